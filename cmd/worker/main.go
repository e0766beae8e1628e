// Package main runs the background maintenance worker (token refresh, expired-session cleanup).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/crowdqueue/backend/config"
	"github.com/crowdqueue/backend/internal/sessions"
	"github.com/crowdqueue/backend/internal/spotify"
	"github.com/crowdqueue/backend/internal/worker"
	"github.com/crowdqueue/backend/pkg/database"
	"github.com/crowdqueue/backend/pkg/queue"
	"github.com/crowdqueue/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	spotifyRepo := spotify.NewRepository(pool)
	spotifyService := spotify.NewService(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.RedirectURL, spotifyRepo, logger)
	sessionRepo := sessions.NewRepository(pool)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewMaintenanceProcessor(spotifyService, spotifyRepo, sessionRepo, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	go processor.RunScanner(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
