package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	worldarchive "github.com/brandquad/world-archive-lib"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := worldarchive.LoadConfig(os.Getenv)
	if err != nil {
		return err
	}

	log := worldarchive.NewLogger(cfg, os.Stdout)
	slog.SetDefault(log)

	worldarchive.StartImaging(log)
	defer worldarchive.StopImaging()

	srv, err := worldarchive.NewServer(ctx, cfg, worldarchive.WithLogger(log))
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := srv.HTTPServer()
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
