package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/8thgencore/redlite/internal/protocol"
)

// ErrNotConnected is returned when a command is sent before Connect
var ErrNotConnected = errors.New("client is not connected")

// Client represents a client for connecting to the server
type Client struct {
	address string
	timeout time.Duration

	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
}

// New creates a new instance of the client. A zero timeout leaves requests
// bounded only by their context.
func New(address string, timeout time.Duration) *Client {
	return &Client{
		address: address,
		timeout: timeout,
	}
}

// Connect establishes a connection to the server
func (c *Client) Connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: c.timeout}

	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.writer = bufio.NewWriter(conn)

	return nil
}

// Do sends one command and waits for its reply. Error replies are returned
// as a Reply, not as an error. A failed send or read leaves the stream out of
// step, so the connection is closed and later calls return ErrNotConnected.
func (c *Client) Do(ctx context.Context, args ...string) (protocol.Reply, error) {
	conn := c.conn
	if conn == nil {
		return protocol.Reply{}, ErrNotConnected
	}

	deadline, ok := ctx.Deadline()
	if c.timeout > 0 {
		if d := time.Now().Add(c.timeout); !ok || d.Before(deadline) {
			deadline, ok = d, true
		}
	}
	if ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Time{})
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	raw := make([][]byte, len(args))
	for i, arg := range args {
		raw[i] = []byte(arg)
	}

	if err := protocol.WriteCommand(c.writer, raw...); err != nil {
		_ = c.Close()
		return protocol.Reply{}, fmt.Errorf("failed to send command: %w", err)
	}
	if err := c.writer.Flush(); err != nil {
		_ = c.Close()
		return protocol.Reply{}, fmt.Errorf("failed to send command: %w", contextError(ctx, err))
	}

	reply, err := protocol.ReadReply(c.reader)
	if err != nil {
		_ = c.Close()
		return protocol.Reply{}, fmt.Errorf("failed to read response: %w", contextError(ctx, err))
	}

	return reply, nil
}

// contextError reports a deadline hit while ctx was ending as the context's error
func contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
			return context.DeadlineExceeded
		}
	}

	return err
}

// Run starts the interactive client mode. Each line read from in is sent as
// one command; "exit" or the end of input quits.
func (c *Client) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprintln(out, "Connected to redlite at", c.address+". Type 'exit' to quit.")

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if strings.EqualFold(args[0], "exit") {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}

		reply, err := c.Do(ctx, args...)
		if err != nil {
			return fmt.Errorf("command error: %w", err)
		}
		fmt.Fprintln(out, reply.String())
	}
}

// Close closes the connection
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil

	return err
}
