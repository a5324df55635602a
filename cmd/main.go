package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/freekieb7/go-polls/internal/config"
	"github.com/freekieb7/go-polls/internal/container"
)

const (
	shutdownTimeout = 5 * time.Second
	purgeInterval   = 10 * time.Minute
)

func main() {
	ctx := context.Background()

	if err := Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func Run(ctx context.Context) error {
	// Graceful shutdown on interruption
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return errors.Join(errors.New("load config failed"), err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	c, err := container.New(ctx, &cfg, logger)
	if err != nil {
		return errors.Join(errors.New("build container failed"), err)
	}
	defer c.Close()

	go c.PurgeSessions(ctx, purgeInterval)

	server := c.HttpServer

	// Serve app
	srvErr := make(chan error, 1)
	go func() {
		logger.Info("Listening and serving",
			"addr", server.Addr,
			"environment", cfg.Server.Environment,
			"api", cfg.API.BaseURL,
			"session_backend", cfg.Session.Backend)
		srvErr <- server.ListenAndServe()
	}()

	// Wait for interruption.
	select {
	case err := <-srvErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("Shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return err
		}

		logger.Info("Shutdown completed")
	}

	return nil
}

// newLogger writes JSON in production and text elsewhere.
func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if cfg.Server.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
