package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var (
	// ErrProtocol is returned when the byte stream is not valid framing
	ErrProtocol = errors.New("protocol error")
	// ErrLimitExceeded is returned when a request exceeds the configured limits
	ErrLimitExceeded = errors.New("limit exceeded")
)

// headerLimit bounds "*<n>" and "$<n>" header lines
const headerLimit = 32

// Limits bounds the size of a single request
type Limits struct {
	// MaxInline bounds an inline command line, terminator excluded
	MaxInline int
	// MaxBulk bounds one argument of a RESP array request
	MaxBulk int
	// MaxArray bounds the number of arguments of a RESP array request
	MaxArray int
}

// DefaultLimits returns the limits used when nothing is configured
func DefaultLimits() Limits {
	return Limits{
		MaxInline: 64 * 1024,
		MaxBulk:   512 * 1024,
		MaxArray:  1024,
	}
}

// ReadCommand reads one request from r and returns its arguments.
//
// Requests starting with '*' are RESP arrays of bulk strings; anything else is
// an inline command line split on whitespace. An empty inline line yields a
// nil slice and no error.
func ReadCommand(r *bufio.Reader, limits Limits) ([][]byte, error) {
	b, err := r.Peek(1)
	if err != nil {
		return nil, err
	}

	if b[0] == '*' {
		return readArrayCommand(r, limits)
	}

	line, err := readLine(r, limits.MaxInline, false)
	if err != nil {
		return nil, err
	}

	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}

	return fields, nil
}

func readArrayCommand(r *bufio.Reader, limits Limits) ([][]byte, error) {
	line, err := readLine(r, headerLimit, true)
	if err != nil {
		return nil, err
	}

	n, err := strconv.Atoi(string(line[1:]))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid multibulk length", ErrProtocol)
	}
	if n <= 0 {
		return nil, nil
	}
	if n > limits.MaxArray {
		return nil, fmt.Errorf("%w: multibulk length %d exceeds %d", ErrLimitExceeded, n, limits.MaxArray)
	}

	args := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		arg, err := readBulkString(r, limits.MaxBulk)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	return args, nil
}

func readBulkString(r *bufio.Reader, maxLen int) ([]byte, error) {
	line, err := readLine(r, headerLimit, true)
	if err != nil {
		return nil, err
	}
	if len(line) == 0 || line[0] != '$' {
		return nil, fmt.Errorf("%w: expected '$', got %q", ErrProtocol, firstByte(line))
	}

	n, err := strconv.Atoi(string(line[1:]))
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: invalid bulk length", ErrProtocol)
	}
	if n > maxLen {
		return nil, fmt.Errorf("%w: bulk length %d exceeds %d", ErrLimitExceeded, n, maxLen)
	}

	buf := make([]byte, n+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, unexpectedEOF(err)
	}
	if !bytes.HasSuffix(buf, crlf) {
		return nil, fmt.Errorf("%w: bulk string not terminated by CRLF", ErrProtocol)
	}

	return buf[:n], nil
}

// readLine reads up to the next LF and returns the line without its
// terminator. strict requires CRLF; otherwise a bare LF is accepted too.
// The returned slice is owned by the caller.
func readLine(r *bufio.Reader, maxLen int, strict bool) ([]byte, error) {
	var buf []byte
	for {
		frag, err := r.ReadSlice('\n')
		if err == nil {
			buf = append(buf, frag...)
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			buf = append(buf, frag...)
			if len(buf) > maxLen+2 {
				return nil, fmt.Errorf("%w: line length exceeds %d", ErrLimitExceeded, maxLen)
			}
			continue
		}
		if len(buf) > 0 || len(frag) > 0 {
			return nil, unexpectedEOF(err)
		}
		return nil, err
	}

	switch {
	case bytes.HasSuffix(buf, crlf):
		buf = buf[:len(buf)-2]
	case strict:
		return nil, fmt.Errorf("%w: line not terminated by CRLF", ErrProtocol)
	default:
		buf = buf[:len(buf)-1]
	}

	if len(buf) > maxLen {
		return nil, fmt.Errorf("%w: line length exceeds %d", ErrLimitExceeded, maxLen)
	}

	return buf, nil
}

// ReadReply reads one reply from r
func ReadReply(r *bufio.Reader) (Reply, error) {
	line, err := readLine(r, DefaultLimits().MaxInline, true)
	if err != nil {
		return Reply{}, err
	}
	if len(line) == 0 {
		return Reply{}, fmt.Errorf("%w: empty reply line", ErrProtocol)
	}

	payload := string(line[1:])
	switch Kind(line[0]) {
	case KindSimple:
		return Simple(payload), nil
	case KindError:
		return Error(payload), nil
	case KindInteger:
		n, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return Reply{}, fmt.Errorf("%w: invalid integer reply %q", ErrProtocol, payload)
		}
		return Integer(n), nil
	case KindBulk:
		n, err := strconv.Atoi(payload)
		if err != nil || n < -1 {
			return Reply{}, fmt.Errorf("%w: invalid bulk length %q", ErrProtocol, payload)
		}
		if n == -1 {
			return NullBulk(), nil
		}
		buf := make([]byte, n+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return Reply{}, unexpectedEOF(err)
		}
		if !bytes.HasSuffix(buf, crlf) {
			return Reply{}, fmt.Errorf("%w: bulk reply not terminated by CRLF", ErrProtocol)
		}
		return Bulk(buf[:n]), nil
	default:
		return Reply{}, fmt.Errorf("%w: unsupported reply type %q", ErrProtocol, line[0])
	}
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func firstByte(b []byte) byte {
	if len(b) == 0 {
		return 0
	}
	return b[0]
}
