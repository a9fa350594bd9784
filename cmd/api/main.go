package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"mediaserver/internal/app"
	"mediaserver/internal/config"
	"mediaserver/internal/database"
	"mediaserver/internal/pkg/lock"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	db, err := database.Connect(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatalw("database connect failed", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var locker lock.Locker
	if cfg.RedisURL != "" {
		redisLock, err := lock.NewRedis(ctx, cfg.RedisURL, cfg.LockTTL)
		if err != nil {
			logger.Fatalw("redis connect failed", "error", err)
		}
		defer redisLock.Close()
		locker = redisLock
		logger.Infow("generation lock", "backend", "redis")
	}

	a, err := app.New(cfg, db, locker, logger)
	if err != nil {
		logger.Fatalw("app init failed", "error", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infow("listening", "addr", cfg.HTTPAddr, "env", cfg.AppEnv, "tokens", cfg.Media.UseTokens, "links", cfg.Media.Links)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("shutdown failed", "error", err)
	}
}

func newLogger(cfg *config.Config) *zap.SugaredLogger {
	build := zap.NewProduction
	if cfg.IsDev() {
		build = zap.NewDevelopment
	}
	l, err := build()
	if err != nil {
		log.Fatal(err)
	}
	return l.Sugar()
}
