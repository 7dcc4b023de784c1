// Package main runs the background job worker (history retention cleanup).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/orbit-saas/settings-backend/config"
	"github.com/orbit-saas/settings-backend/internal/customizations"
	"github.com/orbit-saas/settings-backend/internal/history"
	"github.com/orbit-saas/settings-backend/internal/registry"
	"github.com/orbit-saas/settings-backend/internal/worker"
	"github.com/orbit-saas/settings-backend/pkg/database"
	"github.com/orbit-saas/settings-backend/pkg/queue"
	"github.com/orbit-saas/settings-backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	reg, err := registry.Load()
	if err != nil {
		logger.Fatal("registry", zap.Error(err))
	}

	drafts := customizations.NewDraftStore(rdb.Client, time.Duration(cfg.Draft.TTLHours)*time.Hour, logger)
	customRepo := customizations.NewRepository(pool)
	customSvc := customizations.NewService(customRepo, drafts, reg, logger)

	historyRepo := history.NewRepository(pool)
	policy := history.RetentionPolicy{KeepRecent: cfg.Retention.KeepRecent, KeepDays: cfg.Retention.KeepDays}
	historySvc := history.NewService(historyRepo, customSvc, policy, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewRetentionProcessor(historySvc, historyRepo, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	go processor.RunScheduler(workerCtx)
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
