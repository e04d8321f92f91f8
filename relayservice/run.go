// Package relayservice boots the classification relay: configuration, the
// pre-warmed classifier pool, the HTTP surface, and graceful shutdown.
package relayservice

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/feedsift/feedsift/internal/config"
	"github.com/feedsift/feedsift/internal/logger"
	"github.com/feedsift/feedsift/internal/relay"
)

// Run starts the relay HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("feedsift-relay")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Str("addr", cfg.RelayAddr()).
		Str("classifier_cmd", cfg.ClassifierCmd).
		Int("pool_size", cfg.PoolSize).
		Int64("max_body_bytes", cfg.MaxBodyBytes).
		Msg("Relay starting")

	// Cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := relay.NewPool(cfg.ClassifierCmd, cfg.ClassifierArgs, cfg.PoolSize, log)
	defer pool.Close()

	handler := relay.NewHandler(pool, cfg.MaxBodyBytes, cfg.RateLimitRPS, cfg.RateLimitBurst, log)
	handler.StartHealthMonitor(ctx, 5*time.Second)

	server := &http.Server{
		Addr:              cfg.RelayAddr(),
		Handler:           relay.NewRouter(handler),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.OracleTimeout() + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down relay")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Relay exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}
