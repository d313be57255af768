package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/8thgencore/redlite/internal/compute"
	"github.com/8thgencore/redlite/internal/config"
	"github.com/8thgencore/redlite/internal/metrics"
	"github.com/8thgencore/redlite/internal/protocol"
	"github.com/8thgencore/redlite/pkg/logger/sl"
)

const (
	// acceptRetryDelay throttles the accept loop after a transient error
	acceptRetryDelay = 10 * time.Millisecond
	// rejectWriteTimeout bounds the write of the max-clients error
	rejectWriteTimeout = time.Second
)

var errMaxClients = []byte("-ERR max number of clients reached\r\n")

// Server is the server struct
type Server struct {
	log     *slog.Logger
	config  *config.NetworkConfig
	handler *compute.Handler
	metrics *metrics.Metrics
	limits  protocol.Limits

	connections   sync.WaitGroup
	connCount     int32
	connCountLock sync.Mutex

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
}

// NewServer creates a new server
func NewServer(
	log *slog.Logger,
	config *config.NetworkConfig,
	handler *compute.Handler,
	m *metrics.Metrics,
) *Server {
	limits := protocol.DefaultLimits()
	if size := int(config.MaxMessageSizeBytes); size > 0 {
		limits.MaxInline = size
		limits.MaxBulk = size
	}

	return &Server{
		log:     log,
		config:  config,
		handler: handler,
		metrics: m,
		limits:  limits,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start listens on the configured address and serves until ctx is done
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is done or the listener is
// closed. It returns after every connection handler has finished.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.log.Info("Server started", "address", listener.Addr().String())

	stop := context.AfterFunc(ctx, s.shutdown)
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Error("Failed to accept connection", sl.Err(err))
			time.Sleep(acceptRetryDelay)

			continue
		}

		if !s.canAcceptConnection() {
			s.log.Warn("Max connections reached, rejecting connection", sl.Remote(conn.RemoteAddr()))
			s.metrics.ConnRejected()
			s.reject(conn)

			continue
		}

		if !s.track(conn) {
			s.decrementConnCount()
			_ = conn.Close()

			break
		}

		s.connections.Add(1)
		s.metrics.ConnOpened()
		go s.handleConnection(conn)
	}

	s.shutdown()
	s.connections.Wait()
	s.log.Info("Server stopped")

	return nil
}

// Addr returns the listening address, or nil before Serve is called
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// shutdown closes the listener and every live connection
func (s *Server) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Error("Failed to close listener", sl.Err(err))
		}
	}

	for conn := range s.conns {
		_ = conn.Close()
	}
}

func (s *Server) reject(conn net.Conn) {
	_ = conn.SetWriteDeadline(time.Now().Add(rejectWriteTimeout))
	if _, err := conn.Write(errMaxClients); err != nil {
		s.log.Debug("Failed to write rejection", sl.Err(err))
	}

	if err := conn.Close(); err != nil {
		s.log.Error("Failed to close connection", sl.Err(err))
	}
}

// track registers a live connection; it reports false once shutdown started
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}

	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// canAcceptConnection checks if the server can accept a new connection
func (s *Server) canAcceptConnection() bool {
	s.connCountLock.Lock()
	defer s.connCountLock.Unlock()

	if int(s.connCount) >= s.config.MaxConnections {
		return false
	}

	s.connCount++

	return true
}

// decrementConnCount decrements the connection count
func (s *Server) decrementConnCount() {
	s.connCountLock.Lock()
	s.connCount--
	s.connCountLock.Unlock()
}
