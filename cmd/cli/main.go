package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/8thgencore/redlite/internal/client"
	"github.com/alecthomas/kong"
)

// errCommandFailed marks a command answered with an error reply
var errCommandFailed = errors.New("command failed")

// CLI is the command line of the client
type CLI struct {
	Address string        `short:"a" default:"127.0.0.1:8080" env:"REDLITE_ADDRESS" help:"Server address to connect to."`
	Timeout time.Duration `short:"t" default:"5s" help:"Dial and per-command timeout."`
	Command []string      `arg:"" optional:"" help:"Command to run once; starts an interactive session when empty."`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("redlite-cli"),
		kong.Description("Client for the redlite server."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, cli)
	stop()

	switch {
	case errors.Is(err, errCommandFailed):
		os.Exit(2)
	case err != nil:
		fmt.Fprintf(os.Stderr, "redlite-cli: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cli CLI) error {
	c := client.New(cli.Address, cli.Timeout)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()

	if len(cli.Command) == 0 {
		return c.Run(ctx, os.Stdin, os.Stdout)
	}

	reply, err := c.Do(ctx, cli.Command...)
	if err != nil {
		return err
	}
	fmt.Println(reply.String())

	if reply.IsError() {
		return errCommandFailed
	}

	return nil
}
