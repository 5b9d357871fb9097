package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tickerlens/tickerlens/internal/server"
)

func runMonitor(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	a, err := newApp(configPath(cmd), log.Logger)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = a.cfg.Monitor.Addr
	}

	srv := server.New(server.Config{Addr: addr}, server.Deps{
		Registry: a.registry,
		Cache:    a.cache,
		Metrics:  a.metrics,
		Logger:   log.Logger,
		Version:  version,
	})

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("health", fmt.Sprintf("http://%s/health", srv.Addr())).
			Str("providers", fmt.Sprintf("http://%s/providers", srv.Addr())).
			Str("metrics", fmt.Sprintf("http://%s/metrics", srv.Addr())).
			Msg("monitor endpoints available")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("monitor server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
