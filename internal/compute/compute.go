package compute

import (
	"errors"
	"log/slog"
	"time"

	"github.com/8thgencore/redlite/internal/protocol"
	"github.com/8thgencore/redlite/internal/storage"
)

// Handler is a struct that handles commands
type Handler struct {
	log     *slog.Logger
	storage storage.Storage
}

// NewHandler creates a new Handler
func NewHandler(log *slog.Logger, s storage.Storage) *Handler {
	return &Handler{log: log, storage: s}
}

// Handle handles a whitespace separated command line
func (h *Handler) Handle(input string) protocol.Reply {
	cmd, err := ParseCommand(input)
	if err != nil {
		return errorReply(err)
	}

	return h.Dispatch(cmd)
}

// Execute handles an argument vector read off the wire
func (h *Handler) Execute(args [][]byte) protocol.Reply {
	cmd, err := ParseArgs(args)
	if err != nil {
		h.log.Debug("Rejected command", "error", err.Error())
		return errorReply(err)
	}

	return h.Dispatch(cmd)
}

// Dispatch runs a parsed command against the storage. A panic raised by the
// storage is turned into an error reply.
func (h *Handler) Dispatch(cmd Command) (reply protocol.Reply) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Command failed", "command", cmd.Type, "panic", r)
			reply = protocol.Error("ERR internal error")
		}
	}()

	h.log.Debug("Handling command", "command", cmd.Type, "keys", len(cmd.Keys))

	switch cmd.Type {
	case CommandSet:
		return h.set(cmd)

	case CommandGet:
		value, ok := h.storage.Get(cmd.Key())
		if !ok {
			return protocol.NullBulk()
		}
		return protocol.Bulk(value)

	case CommandDel:
		return protocol.Integer(int64(h.storage.Delete(cmd.Key())))

	case CommandExists:
		return protocol.Integer(int64(h.storage.Exists(cmd.Keys...)))

	case CommandPing:
		if cmd.Echo {
			return protocol.Bulk(cmd.Value)
		}
		return protocol.Simple(ResponsePong)

	case CommandTTL:
		return h.ttl(cmd.Key(), time.Second)

	case CommandPTTL:
		return h.ttl(cmd.Key(), time.Millisecond)
	}

	return errorReply(&UnknownCommandError{Name: cmd.Type})
}

func (h *Handler) set(cmd Command) protocol.Reply {
	opts := cmd.Options
	if opts == (storage.SetOptions{}) {
		h.storage.Set(cmd.Key(), cmd.Value)
		return protocol.OK
	}

	res := h.storage.SetWithOptions(cmd.Key(), cmd.Value, opts)
	if opts.ReturnOld {
		if !res.HadOld {
			return protocol.NullBulk()
		}
		return protocol.Bulk(res.Old)
	}
	if !res.Applied {
		return protocol.NullBulk()
	}

	return protocol.OK
}

// ttl reports the time left for key in the given unit, rounded to nearest
func (h *Handler) ttl(key string, unit time.Duration) protocol.Reply {
	left, err := h.storage.TTL(key)
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		return protocol.Integer(ttlMissingKey)
	case errors.Is(err, storage.ErrNoExpiry):
		return protocol.Integer(ttlNoExpiry)
	case err != nil:
		return errorReply(err)
	}

	return protocol.Integer(int64((left + unit/2) / unit))
}

func errorReply(err error) protocol.Reply {
	var parseErr *ParseError
	var unknownErr *UnknownCommandError
	if errors.As(err, &parseErr) || errors.As(err, &unknownErr) {
		return protocol.Error(err.Error())
	}

	return protocol.Error("ERR " + err.Error())
}
