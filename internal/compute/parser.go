package compute

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/8thgencore/redlite/internal/storage"
)

// Command is a parsed request
type Command struct {
	Type string
	Keys []string
	// Value is the SET payload, or the PING message when Echo is set
	Value   []byte
	Echo    bool
	Options storage.SetOptions
}

// Key returns the first key of the command
func (c Command) Key() string {
	if len(c.Keys) == 0 {
		return ""
	}
	return c.Keys[0]
}

// ParseCommand parses a whitespace separated command line
func ParseCommand(input string) (Command, error) {
	fields := strings.Fields(input)

	args := make([][]byte, len(fields))
	for i, f := range fields {
		args[i] = []byte(f)
	}

	return ParseArgs(args)
}

// ParseArgs parses an argument vector whose first element is the command name
func ParseArgs(args [][]byte) (Command, error) {
	if len(args) == 0 {
		return Command{}, &ParseError{Err: ErrEmptyCommand}
	}

	name := strings.ToUpper(string(args[0]))
	rest := args[1:]

	switch name {
	case CommandSet:
		if len(rest) < 2 {
			return Command{}, &ParseError{Command: name, Err: ErrWrongArity}
		}
		opts, err := parseSetOptions(rest[2:])
		if err != nil {
			return Command{}, &ParseError{Command: name, Err: err}
		}
		return Command{
			Type:    name,
			Keys:    []string{string(rest[0])},
			Value:   rest[1],
			Options: opts,
		}, nil

	case CommandGet, CommandDel, CommandTTL, CommandPTTL:
		if len(rest) != 1 {
			return Command{}, &ParseError{Command: name, Err: ErrWrongArity}
		}
		return Command{Type: name, Keys: []string{string(rest[0])}}, nil

	case CommandExists:
		if len(rest) < 1 {
			return Command{}, &ParseError{Command: name, Err: ErrWrongArity}
		}
		return Command{Type: name, Keys: toKeys(rest)}, nil

	case CommandPing:
		switch len(rest) {
		case 0:
			return Command{Type: name}, nil
		case 1:
			return Command{Type: name, Value: rest[0], Echo: true}, nil
		default:
			return Command{}, &ParseError{Command: name, Err: ErrWrongArity}
		}
	}

	return Command{}, &UnknownCommandError{Name: string(args[0])}
}

// CommandName returns the canonical name of the command in args, or "UNKNOWN"
// when it is not one the server implements.
func CommandName(args [][]byte) string {
	if len(args) == 0 {
		return "UNKNOWN"
	}

	name := strings.ToUpper(string(args[0]))
	switch name {
	case CommandSet, CommandGet, CommandDel, CommandExists, CommandPing, CommandTTL, CommandPTTL:
		return name
	}

	return "UNKNOWN"
}

// parseSetOptions parses the tokens following "SET key value"
func parseSetOptions(tokens [][]byte) (storage.SetOptions, error) {
	var opts storage.SetOptions
	hasExpiry := false

	for i := 0; i < len(tokens); i++ {
		switch opt := strings.ToUpper(string(tokens[i])); opt {
		case optionNX, optionXX:
			if opts.Condition != storage.Always {
				return opts, ErrSyntax
			}
			opts.Condition = storage.IfNotExists
			if opt == optionXX {
				opts.Condition = storage.IfExists
			}

		case optionGet:
			opts.ReturnOld = true

		case optionKeepTTL:
			if hasExpiry {
				return opts, ErrSyntax
			}
			hasExpiry = true
			opts.KeepTTL = true

		case optionEX, optionPX, optionEXAT, optionPXAT:
			if hasExpiry || i+1 >= len(tokens) {
				return opts, ErrSyntax
			}
			hasExpiry = true
			i++

			n, err := strconv.ParseInt(string(tokens[i]), 10, 64)
			if err != nil {
				return opts, ErrNotInteger
			}
			if n <= 0 {
				return opts, ErrInvalidExpire
			}

			switch opt {
			case optionEX:
				if n > math.MaxInt64/int64(time.Second) {
					return opts, ErrInvalidExpire
				}
				opts.TTL = time.Duration(n) * time.Second
			case optionPX:
				if n > math.MaxInt64/int64(time.Millisecond) {
					return opts, ErrInvalidExpire
				}
				opts.TTL = time.Duration(n) * time.Millisecond
			case optionEXAT:
				opts.ExpireAt = time.Unix(n, 0)
			case optionPXAT:
				opts.ExpireAt = time.UnixMilli(n)
			}

		default:
			return opts, ErrSyntax
		}
	}

	return opts, nil
}

func toKeys(args [][]byte) []string {
	keys := make([]string, len(args))
	for i, a := range args {
		keys[i] = string(a)
	}
	return keys
}
