// Package main runs the background worker: lecture archives to S3 and the participant sweeper.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-lms/backend/config"
	"github.com/aura-lms/backend/internal/chat"
	"github.com/aura-lms/backend/internal/lectures"
	"github.com/aura-lms/backend/internal/worker"
	"github.com/aura-lms/backend/pkg/database"
	"github.com/aura-lms/backend/pkg/queue"
	"github.com/aura-lms/backend/pkg/redis"
	"github.com/aura-lms/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Coordinator.StoreBackend != config.BackendPostgres {
		logger.Fatal("worker requires LECTURE_STORE=postgres; the memory store runs its jobs in the server")
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{MaxConns: int32(cfg.Database.MaxConns)}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	lectureRepo := lectures.NewRepository(pool)
	sweeper := worker.NewSweeper(lectureRepo, logger)
	if err := sweeper.Start(cfg.Coordinator.SweeperSchedule); err != nil {
		logger.Fatal("sweeper", zap.Error(err))
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	if cfg.Redis.Addr != "" && cfg.AWS.ArchiveBucket != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()

		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			ArchiveBucket:   cfg.AWS.ArchiveBucket,
		}, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}

		processor := worker.NewArchiveProcessor(lectureRepo, chat.NewRepository(pool), s3Client, queue.NewQueue(rdb.Client, logger), logger)
		go func() {
			processor.Run(workerCtx)
			close(done)
		}()
		logger.Info("archive worker started", zap.String("bucket", cfg.AWS.ArchiveBucket))
	} else {
		logger.Warn("archiving disabled; set REDIS_ADDR and AWS_S3_ARCHIVE_BUCKET to enable")
		close(done)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	sweeper.Stop()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("archive worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
