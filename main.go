package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blockdoc/internal/app"
	"blockdoc/internal/config"
	"blockdoc/internal/logging"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cmd, cfg, err := config.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stdout, err)
			return nil
		}
		return err
	}

	build, err := logging.New().Level(cfg.LogLevel)
	if err != nil {
		return err
	}
	switch {
	case cfg.LogFile != "":
		build = build.FromPath(cfg.LogFile)
	case cmd == config.CommandMCP:
		// stdout carries the protocol; JSON lines on stderr.
	default:
		build = build.Console(true)
	}
	logger, err := build.Make()
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.With().Str("cmd", cmd).Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := a.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	switch cmd {
	case config.CommandCheckpoint:
		res, err := a.Checkpoint(ctx)
		for _, r := range res {
			log.Info().Str("doc", r.DocID).Uint64("version", r.Version).Int64("pruned", r.Pruned).Msg("checkpointed")
		}
		return err
	case config.CommandMCP:
		if err := a.Startup(ctx); err != nil {
			return err
		}
		return a.ServeMCP(version)
	default:
		if err := a.Startup(ctx); err != nil {
			return err
		}
		return a.Serve(ctx)
	}
}
