// Package protocol implements the wire format spoken by the server: inline and
// RESP array requests, and the simple string, error, integer and bulk replies.
package protocol

import (
	"fmt"
	"strconv"
)

// Kind identifies a reply type by its wire prefix
type Kind byte

const (
	KindSimple  Kind = '+'
	KindError   Kind = '-'
	KindInteger Kind = ':'
	KindBulk    Kind = '$'
)

// Reply is a single server reply
type Reply struct {
	Kind Kind
	// Str holds the text of simple string and error replies
	Str string
	Int int64
	// Bulk holds the payload of a bulk reply; Null marks the absent value
	Bulk []byte
	Null bool
}

// OK is the acknowledgement reply
var OK = Simple("OK")

// Simple returns a simple string reply
func Simple(s string) Reply {
	return Reply{Kind: KindSimple, Str: s}
}

// Error returns an error reply
func Error(msg string) Reply {
	return Reply{Kind: KindError, Str: msg}
}

// Errorf returns an error reply with a formatted message
func Errorf(format string, args ...any) Reply {
	return Error(fmt.Sprintf(format, args...))
}

// Integer returns an integer reply
func Integer(n int64) Reply {
	return Reply{Kind: KindInteger, Int: n}
}

// Bulk returns a bulk string reply. A nil slice is still a present, empty value;
// use NullBulk for absence.
func Bulk(b []byte) Reply {
	if b == nil {
		b = []byte{}
	}
	return Reply{Kind: KindBulk, Bulk: b}
}

// NullBulk returns the reply used for a missing value
func NullBulk() Reply {
	return Reply{Kind: KindBulk, Null: true}
}

// IsError reports whether r is an error reply
func (r Reply) IsError() bool {
	return r.Kind == KindError
}

// String renders the reply the way an interactive client shows it
func (r Reply) String() string {
	switch r.Kind {
	case KindSimple:
		return r.Str
	case KindError:
		return "(error) " + r.Str
	case KindInteger:
		return "(integer) " + strconv.FormatInt(r.Int, 10)
	case KindBulk:
		if r.Null {
			return "(nil)"
		}
		return strconv.Quote(string(r.Bulk))
	default:
		return fmt.Sprintf("(unknown reply %q)", byte(r.Kind))
	}
}
