package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/8thgencore/redlite/internal/app"
	"github.com/8thgencore/redlite/internal/config"
	"github.com/8thgencore/redlite/pkg/logger"
	"github.com/8thgencore/redlite/pkg/logger/sl"
	"github.com/alecthomas/kong"
)

var version = "dev"

// CLI is the command line of the server
type CLI struct {
	Config   string           `short:"c" type:"existingfile" env:"CONFIG_PATH" help:"Path to the YAML config file."`
	Address  string           `short:"a" help:"Listen address, overrides network.address."`
	LogLevel string           `name:"log-level" help:"Log level, overrides logging.level (debug, info, warn, error)."`
	Version  kong.VersionFlag `help:"Print version and exit."`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("redlite-server"),
		kong.Description("In-memory key-value server speaking a subset of the Redis protocol."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	if err := run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "redlite-server: %v\n", err)
		os.Exit(1)
	}
}

func run(cli CLI) error {
	// Load configuration
	cfg, err := config.NewConfig(cli.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cli.Address != "" {
		cfg.Network.Address = cli.Address
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if err := cfg.Finalize(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}

	out, err := logger.OpenOutput(cfg.Logging.Output)
	if err != nil {
		return err
	}
	defer out.Close()

	log := logger.New(cfg.Env, level, out)

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("Failed to initialize application", sl.Err(err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run application
	if err := application.Run(ctx); err != nil {
		log.Error("Application error", sl.Err(err))
		return err
	}

	return nil
}
