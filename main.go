package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wehriam/hiitrack/config"
	"github.com/wehriam/hiitrack/internal/engine"
	"github.com/wehriam/hiitrack/internal/store"
	"github.com/wehriam/hiitrack/logger"
	"github.com/wehriam/hiitrack/observability"
	"github.com/wehriam/hiitrack/redisclient"
	"github.com/wehriam/hiitrack/router"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("hiitrack starting")

	metrics := observability.NewMetrics(log)

	var s store.Store
	rc, err := redisclient.New(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("redis init failed — falling back to in-memory store")
		s = store.NewMemoryStore()
	} else if err := rc.Ping(); err != nil {
		log.Warn().Err(err).Msg("redis ping failed — falling back to in-memory store")
		s = store.NewMemoryStore()
	} else {
		log.Info().Msg("redis connected")
		s = store.NewRedisStore(rc.Raw())
	}

	eng := engine.New(store.NewInstrumentedStore(s, metrics), log)

	r := router.NewRouter(cfg, log, eng, metrics)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.DefaultTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("hiitrack listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	if rc != nil {
		if err := rc.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("hiitrack stopped gracefully")
	}
}
