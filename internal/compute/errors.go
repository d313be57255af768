package compute

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyCommand is an error that occurs when the input holds no command
	ErrEmptyCommand = errors.New("empty command")

	// ErrWrongArity is an error that occurs when a command gets the wrong number of arguments
	ErrWrongArity = errors.New("wrong number of arguments")

	// ErrSyntax is an error that occurs when command options cannot be parsed
	ErrSyntax = errors.New("syntax error")

	// ErrNotInteger is an error that occurs when a numeric argument is not a valid integer
	ErrNotInteger = errors.New("value is not an integer or out of range")

	// ErrInvalidExpire is an error that occurs when an expiry is zero or negative
	ErrInvalidExpire = errors.New("invalid expire time")
)

// ParseError is returned when a known command is malformed.
// Its message is the text sent back to the client.
type ParseError struct {
	Command string
	Err     error
}

func (e *ParseError) Error() string {
	name := strings.ToLower(e.Command)

	switch {
	case errors.Is(e.Err, ErrWrongArity):
		return fmt.Sprintf("ERR wrong number of arguments for '%s' command", name)
	case errors.Is(e.Err, ErrInvalidExpire):
		return fmt.Sprintf("ERR invalid expire time in '%s' command", name)
	default:
		return "ERR " + e.Err.Error()
	}
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// UnknownCommandError is returned for a verb the server does not implement
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("ERR unknown command '%s'", e.Name)
}
