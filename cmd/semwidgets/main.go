// Package main runs semwidgets: it loads layered configuration, wires the
// data source pipeline, widget store and change flow, and serves the
// gateway and metrics endpoints until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/semwidgets/config"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semwidgets"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(fs, args)
	if err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return fmt.Errorf("parse flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		fs.SetOutput(stdout)
		printDetailedHelp(fs)
		return nil
	}

	logger := setupLogger(stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	loader, cfg, err := loadConfig(cliCfg.ConfigPaths)
	if err != nil {
		return err
	}
	logger.Info("Configuration loaded", "layers", cliCfg.ConfigPaths, "store", cfg.Store.Mode, "nats", cfg.NATS.Enabled)
	logger.Debug("Effective configuration", "config", cfg.String())

	if cliCfg.Validate {
		logger.Info("Configuration is valid")
		return nil
	}

	logger.Info("Starting semwidgets", "version", Version, "build_time", BuildTime)
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	if cliCfg.Watch {
		if err := a.watchConfig(loader); err != nil {
			_ = a.Stop(context.Background())
			return err
		}
		logger.Info("Watching configuration for changes", "layers", cliCfg.ConfigPaths)
	}

	serveErr := a.Serve(ctx)
	if serveErr != nil {
		logger.Error("Listener failed", "error", serveErr)
	} else {
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
	defer cancel()
	if err := a.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if serveErr != nil {
		return serveErr
	}

	logger.Info("semwidgets shutdown complete")
	return nil
}

// loadConfig merges the layers over the built-in defaults, then applies
// SEMWIDGETS_* environment overrides and validates the result.
func loadConfig(paths []string) (*config.Loader, *config.Config, error) {
	loader := config.NewLoader()
	for _, path := range paths {
		loader.AddLayer(path)
	}
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return loader, cfg, nil
}
