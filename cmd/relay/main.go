package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jayramgit94/Zoom/internal/config"
	"github.com/jayramgit94/Zoom/internal/history"
	"github.com/jayramgit94/Zoom/internal/logging"
	"github.com/jayramgit94/Zoom/internal/redisstore"
	"github.com/jayramgit94/Zoom/internal/relay"
	"github.com/jayramgit94/Zoom/internal/server"
	"github.com/jayramgit94/Zoom/internal/version"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.LoadRelay()
	l := logging.Init(os.Stderr, logging.ParseLevel(cfg.LogLevel, zerolog.InfoLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store   history.Service = history.NewMemoryStore()
		hubOpts                 = []relay.Option{relay.WithLogger(l)}
	)
	if cfg.Redis.Enabled() {
		rdb, err := redisstore.Connect(ctx, cfg.Redis)
		if err != nil {
			l.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable")
		}
		defer rdb.Close()
		store = history.NewRedisStore(rdb)
		hubOpts = append(hubOpts, relay.WithMirror(redisstore.NewRoomMirror(rdb)))
		l.Info().Str("addr", cfg.Redis.Addr).Msg("Using Redis for history and room mirror")
	}

	hub := relay.NewHub(hubOpts...)
	go hub.Run()

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: server.New(server.Config{
			Hub:            hub,
			History:        store,
			JWTSecret:      cfg.JWTSecret,
			AllowedOrigins: cfg.AllowedOrigins,
			Logger:         l,
		}).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		l.Info().
			Str("addr", cfg.Addr()).
			Str("version", version.Version).
			Str("environment", cfg.Environment).
			Msg("Starting relay")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	l.Info().Msg("Shutting down relay...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("Server forced to shutdown")
	}

	hub.Stop()
	l.Info().Msg("Relay exited")
}
