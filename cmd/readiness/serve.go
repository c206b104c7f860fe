package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tripnara/readiness/pkg/api"
	"github.com/tripnara/readiness/pkg/config"
)

// idempotencyTTL bounds how long a replayed POST response is kept.
const idempotencyTTL = 24 * time.Hour

func runServer(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	envFile := fs.String("env-file", ".env", "optional dotenv file")
	port := fs.String("port", "", "listen port (overrides PORT)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if *port != "" {
		cfg.Port = *port
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub, err := buildSubsystems(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer func() {
		if err := sub.Close(); err != nil {
			logger.Warn("shutdown cleanup", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           buildHandler(ctx, cfg, sub, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("readiness server listening", "addr", srv.Addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			return 1
		}
	}
	_, _ = fmt.Fprintln(stdout, "server stopped")
	return 0
}

// buildHandler wraps the routes with request id, logging, rate limiting and idempotency.
// Background cleanup goroutines stop with ctx.
func buildHandler(ctx context.Context, cfg *config.Config, sub *subsystems, logger *slog.Logger) http.Handler {
	var h http.Handler = api.NewHandler(sub.svc).Routes()
	h = api.IdempotencyMiddleware(api.NewIdempotencyStore(ctx, idempotencyTTL))(h)
	if cfg.RateLimitRPS > 0 {
		h = api.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware(h)
	}
	h = api.Logging(logger)(h)
	return api.RequestID(h)
}
