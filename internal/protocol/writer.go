package protocol

import (
	"bufio"
	"errors"
	"strconv"
	"strings"
)

// ErrUnknownReply is returned when asked to encode a reply of unknown kind
var ErrUnknownReply = errors.New("unknown reply kind")

var crlf = []byte("\r\n")

// lineSafe keeps single-line replies on one line
var lineSafe = strings.NewReplacer("\r", " ", "\n", " ")

// AppendReply appends the wire encoding of r to dst
func AppendReply(dst []byte, r Reply) ([]byte, error) {
	switch r.Kind {
	case KindSimple, KindError:
		dst = append(dst, byte(r.Kind))
		dst = append(dst, lineSafe.Replace(r.Str)...)
	case KindInteger:
		dst = append(dst, ':')
		dst = strconv.AppendInt(dst, r.Int, 10)
	case KindBulk:
		dst = append(dst, '$')
		if r.Null {
			dst = append(dst, '-', '1')
			break
		}
		dst = strconv.AppendInt(dst, int64(len(r.Bulk)), 10)
		dst = append(dst, crlf...)
		dst = append(dst, r.Bulk...)
	default:
		return dst, ErrUnknownReply
	}

	return append(dst, crlf...), nil
}

// Encode returns the wire encoding of r
func Encode(r Reply) ([]byte, error) {
	return AppendReply(nil, r)
}

// WriteReply writes r to w without flushing
func WriteReply(w *bufio.Writer, r Reply) error {
	buf, err := AppendReply(w.AvailableBuffer(), r)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)

	return err
}

// WriteCommand writes args as a RESP array of bulk strings without flushing
func WriteCommand(w *bufio.Writer, args ...[]byte) error {
	buf := w.AvailableBuffer()
	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(len(args)), 10)
	buf = append(buf, crlf...)
	for _, arg := range args {
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(arg)), 10)
		buf = append(buf, crlf...)
		buf = append(buf, arg...)
		buf = append(buf, crlf...)
	}
	_, err := w.Write(buf)

	return err
}
