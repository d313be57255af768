package server

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/8thgencore/redlite/internal/compute"
	"github.com/8thgencore/redlite/internal/protocol"
	"github.com/8thgencore/redlite/pkg/logger/sl"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"
)

const (
	readBufferSize  = 16 * 1024
	writeBufferSize = 16 * 1024
	// writeTimeout bounds a single flush when no idle timeout is configured
	writeTimeout = 30 * time.Second
)

var errRateLimited = protocol.Error("ERR rate limit exceeded")

// session is the per-connection state
type session struct {
	id      string
	conn    net.Conn
	log     *slog.Logger
	reader  *bufio.Reader
	writer  *bufio.Writer
	limiter *rate.Limiter
}

// handleConnection handles a connection
func (s *Server) handleConnection(conn net.Conn) {
	sess := s.newSession(conn)

	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			sess.log.Error("Failed to close connection", sl.Err(err))
		}
		s.untrack(conn)
		s.metrics.ConnClosed()
		s.connections.Done()
		s.decrementConnCount()
	}()

	sess.log.Info("New connection established")

	for {
		// Flush before blocking on the next request; pipelined requests
		// are answered in one write.
		if sess.reader.Buffered() == 0 && sess.writer.Buffered() > 0 {
			if err := s.flush(sess); err != nil {
				sess.log.Error("Failed to write response", sl.Err(err))
				return
			}
		}

		if s.config.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout))
		}

		args, err := protocol.ReadCommand(sess.reader, s.limits)
		if err != nil {
			s.handleReadError(sess, err)
			return
		}
		if len(args) == 0 {
			continue
		}

		reply := s.execute(sess, args)
		if err := s.writeReply(sess, reply); err != nil {
			sess.log.Error("Failed to write response", sl.Err(err))
			return
		}
	}
}

func (s *Server) newSession(conn net.Conn) *session {
	id := ulid.Make().String()

	sess := &session{
		id:     id,
		conn:   conn,
		log:    s.log.With("conn_id", id, sl.Remote(conn.RemoteAddr())),
		reader: bufio.NewReaderSize(conn, readBufferSize),
		writer: bufio.NewWriterSize(conn, writeBufferSize),
	}

	if n := s.config.CommandsPerSecond; n > 0 {
		sess.limiter = rate.NewLimiter(rate.Limit(n), n)
	}

	return sess
}

// execute runs one request and records it
func (s *Server) execute(sess *session, args [][]byte) protocol.Reply {
	name := compute.CommandName(args)

	if sess.limiter != nil && !sess.limiter.Allow() {
		sess.log.Debug("Rate limit exceeded", "command", name)
		s.metrics.RateLimited()
		return errRateLimited
	}

	start := time.Now()
	reply := s.handler.Execute(args)
	s.metrics.ObserveCommand(name, reply.IsError(), time.Since(start))

	return reply
}

// writeReply buffers reply. A reply larger than the buffer, or one that
// fills it, reaches the socket here, so the write deadline is armed first.
func (s *Server) writeReply(sess *session, reply protocol.Reply) error {
	s.armWriteDeadline(sess)

	return protocol.WriteReply(sess.writer, reply)
}

func (s *Server) flush(sess *session) error {
	s.armWriteDeadline(sess)

	return sess.writer.Flush()
}

func (s *Server) armWriteDeadline(sess *session) {
	timeout := writeTimeout
	if s.config.IdleTimeout > 0 {
		timeout = s.config.IdleTimeout
	}
	_ = sess.conn.SetWriteDeadline(time.Now().Add(timeout))
}

func (s *Server) handleReadError(sess *session, err error) {
	switch {
	case errors.Is(err, io.EOF):
		sess.log.Info("Client disconnected")

	case errors.Is(err, io.ErrUnexpectedEOF):
		sess.log.Info("Client disconnected mid-request")

	case errors.Is(err, protocol.ErrProtocol), errors.Is(err, protocol.ErrLimitExceeded):
		// The stream cannot be resynchronised, answer and hang up.
		sess.log.Warn("Malformed request", sl.Err(err))
		_ = s.writeReply(sess, protocol.Errorf("ERR Protocol error: %s", err))
		if err := s.flush(sess); err != nil {
			sess.log.Debug("Failed to write protocol error", sl.Err(err))
		}

	case errors.Is(err, os.ErrDeadlineExceeded):
		sess.log.Info("Closing idle connection", "idle_timeout", s.config.IdleTimeout)

	case errors.Is(err, net.ErrClosed):
		sess.log.Debug("Connection closed by server")

	default:
		sess.log.Error("Failed to read from connection", sl.Err(err))
	}
}
