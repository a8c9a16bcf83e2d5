// Package main runs the live-lecture coordinator: REST lookups, the signaling WebSocket and,
// in single-instance deployments, the archive worker and participant sweeper.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-lms/backend/config"
	"github.com/aura-lms/backend/internal/analytics"
	"github.com/aura-lms/backend/internal/auth"
	"github.com/aura-lms/backend/internal/chat"
	"github.com/aura-lms/backend/internal/entitlements"
	"github.com/aura-lms/backend/internal/lectures"
	"github.com/aura-lms/backend/internal/lifecycle"
	"github.com/aura-lms/backend/internal/media"
	"github.com/aura-lms/backend/internal/middleware"
	"github.com/aura-lms/backend/internal/models"
	"github.com/aura-lms/backend/internal/moderation"
	"github.com/aura-lms/backend/internal/presence"
	"github.com/aura-lms/backend/internal/realtime"
	"github.com/aura-lms/backend/internal/worker"
	"github.com/aura-lms/backend/pkg/database"
	"github.com/aura-lms/backend/pkg/queue"
	"github.com/aura-lms/backend/pkg/redis"
	"github.com/aura-lms/backend/pkg/response"
	"github.com/aura-lms/backend/pkg/storage"
)

// stores groups the persistence collaborators picked by LECTURE_STORE.
type stores struct {
	lectures lectures.Store
	messages chat.MessageStore
	payments entitlements.PaymentStore
	users    auth.UserGetter
	close    func()
}

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	st := openStores(ctx, cfg, logger)
	defer st.close()

	// Redis is optional: without it fan-out stays in-process and lectures are not archived.
	var (
		pub      realtime.Publisher
		sub      realtime.Subscriber
		archiver lifecycle.Archiver
		jobQueue *queue.Queue
		blocks   moderation.BlockStore = moderation.NewMemoryBlockStore()
	)
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()

		ps := realtime.NewRedisPubSub(rdb.Client, logger)
		pub, sub = ps, ps
		jobQueue = queue.NewQueue(rdb.Client, logger)
		archiver = jobQueue
		if cfg.Coordinator.BlockStore == config.BackendRedis {
			blocks = moderation.NewRedisBlockStore(rdb.Client)
		}
	}

	tokens, err := media.NewZegoIssuer(cfg.Zego.AppID, cfg.Zego.ServerSecret, cfg.Zego.TokenTTLSec)
	if err != nil {
		logger.Fatal("media tokens", zap.Error(err))
	}
	if !tokens.Configured() {
		logger.Warn("media SDK not configured; go-live and join will fail until ZEGO_APP_ID and ZEGO_SERVER_SECRET are set")
	}

	var snapClient entitlements.SnapCreator
	if cfg.Midtrans.ServerKey != "" {
		snapClient = entitlements.NewSnapClient(cfg.Midtrans.ServerKey, cfg.Midtrans.Production)
	}

	hub := realtime.NewHub(logger, pub, sub)
	tracker := presence.NewTracker(st.lectures, hub, logger)
	modController := moderation.NewController(st.lectures, blocks, hub, logger)
	machine := lifecycle.NewMachine(lifecycle.Deps{
		Store:        st.lectures,
		Tokens:       tokens,
		Entitlements: entitlements.NewService(st.payments, snapClient, logger),
		Roster:       tracker,
		Moderation:   modController,
		Archiver:     archiver,
		Rooms:        hub,
		Logger:       logger,
	})
	relay := chat.NewRelay(st.lectures, st.messages, hub, logger)
	dispatcher := realtime.NewDispatcher(machine, modController, relay, hub, logger)

	jwtService := auth.NewJWTService(cfg.JWT.TeacherSecret, cfg.JWT.StudentSecret, cfg.JWT.ExpireHours)
	resolver := auth.NewResolver(jwtService, st.users, logger)

	authHandler := auth.NewHandler(logger)
	lectureHandler := lectures.NewHandler(st.lectures)
	presenceHandler := presence.NewHandler(st.lectures, tracker)
	chatHandler := chat.NewHandler(relay, logger)
	analyticsHandler := analytics.NewHandler(st.lectures, st.messages)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	api := router.Group("")
	api.Use(middleware.JWT(resolver))
	{
		api.GET("/auth/me", authHandler.Me)
		api.GET("/lectures/:id", lectureHandler.Get)
		api.GET("/lectures/:id/participants", middleware.RequireRole(models.RoleTeacher), presenceHandler.Participants)
		api.GET("/lectures/:id/messages", chatHandler.History)
		api.GET("/lectures/:id/analytics", middleware.RequireRole(models.RoleTeacher), analyticsHandler.GetByLecture)
	}

	// Signaling socket; credentials travel in the query string.
	router.GET("/ws", realtime.ServeWs(hub, dispatcher, resolver, middleware.CheckOrigin(cfg.Server.CORSAllowedOrigins), logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Single-instance deployments run the background jobs here instead of cmd/worker.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	var sweeper *worker.Sweeper
	if cfg.Coordinator.StoreBackend == config.BackendMemory {
		sweeper = worker.NewSweeper(st.lectures, logger)
		if err := sweeper.Start(cfg.Coordinator.SweeperSchedule); err != nil {
			logger.Fatal("sweeper", zap.Error(err))
		}
		if jobQueue != nil && cfg.AWS.ArchiveBucket != "" {
			s3Client, err := storage.NewS3(ctx, s3Config(cfg), logger)
			if err != nil {
				logger.Fatal("s3", zap.Error(err))
			}
			go worker.NewArchiveProcessor(st.lectures, st.messages, s3Client, jobQueue, logger).Run(workerCtx)
			logger.Info("archive worker started")
		}
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Coordinator.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	hub.Shutdown()
	if sweeper != nil {
		sweeper.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) stores {
	if cfg.Coordinator.StoreBackend == config.BackendMemory {
		logger.Warn("using in-memory session store; state is lost on restart")
		ls, ms := lectures.NewMemoryStore(), chat.NewMemoryStore()
		if path := cfg.Coordinator.SeedFile; path != "" {
			f, err := os.Open(path)
			if err != nil {
				logger.Fatal("open seed file", zap.Error(err))
			}
			n, err := lectures.Seed(ctx, ls, f)
			f.Close()
			if err != nil {
				logger.Fatal("seed lectures", zap.String("file", path), zap.Error(err))
			}
			logger.Info("seeded lectures", zap.String("file", path), zap.Int("count", n))
		} else {
			logger.Warn("no LECTURE_SEED_FILE set; the memory store starts empty")
		}
		return stores{
			lectures: ls,
			messages: ms,
			payments: entitlements.NewMemoryStore(),
			close:    func() {},
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{MaxConns: int32(cfg.Database.MaxConns)}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		logger.Fatal("migrate", zap.Error(err))
	}
	ls, ms := lectures.NewRepository(pool), chat.NewRepository(pool)
	return stores{
		lectures: ls,
		messages: ms,
		payments: entitlements.NewRepository(pool),
		users:    auth.NewRepository(pool),
		close:    pool.Close,
	}
}

func s3Config(cfg *config.Config) storage.S3Config {
	return storage.S3Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		ArchiveBucket:   cfg.AWS.ArchiveBucket,
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
