package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AltairaLabs/cloudysetup/internal/cloudysetup"
)

const (
	shutdownTimeout        = 10 * time.Second
	defaultReadHeaderTmout = 10 * time.Second
	// No write timeout: ?wait=true and watch responses last as long as a poll.
	defaultIdleTimeout = 120 * time.Second
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	svcCfg, err := cloudysetup.LoadConfig("")
	if err != nil {
		return fmt.Errorf("service config: %w", err)
	}
	if err := svcCfg.Validate(); err != nil {
		return err
	}
	for _, w := range cloudysetup.DiagnoseConfig(svcCfg) {
		log.Warn("config warning", "category", w.Category, "message", w.Message, "hint", w.Hint)
	}

	shutdownTracing, err := setupTracing(context.Background(), cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	svc := cloudysetup.NewService(svcCfg, cloudysetup.WithLogger(log))
	healthH := newHealthHandler()
	api := newAPIServer(svc, log, healthH, cfg)

	addr := fmt.Sprintf(":%d", cfg.Port)
	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	log.Info("listening", "addr", ln.Addr().String(), "version", cloudysetup.Version,
		"region", svcCfg.Region, "dry_run", svcCfg.DryRun)

	return runWithShutdown(log, ln, api.handler(), healthH)
}

// runWithShutdown starts the HTTP server and handles graceful shutdown on SIGTERM/SIGINT.
func runWithShutdown(log *slog.Logger, ln net.Listener, handler http.Handler, healthH *healthHandler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: defaultReadHeaderTmout,
		IdleTimeout:       defaultIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}

	healthH.setUnhealthy()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}
