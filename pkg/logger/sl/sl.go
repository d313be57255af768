// Package sl holds shared slog attribute helpers
package sl

import (
	"log/slog"
	"net"
)

// Err returns a slog.Attr with the error message
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}

	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Remote returns a slog.Attr with the peer address of a connection
func Remote(addr net.Addr) slog.Attr {
	if addr == nil {
		return slog.String("remote_addr", "")
	}

	return slog.String("remote_addr", addr.String())
}
