package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"skillswap/backend/internal/api/handler"
	"skillswap/backend/internal/auth"
	"skillswap/backend/internal/chathub"
	"skillswap/backend/internal/config"
	"skillswap/backend/internal/media"
	"skillswap/backend/internal/observability"
	"skillswap/backend/internal/presence"
	"skillswap/backend/internal/relay"
	"skillswap/backend/internal/signaling"
	"skillswap/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupStorage opens PostgreSQL, or the in-memory store when DATABASE_DSN is
// "memory" (development only).
func setupStorage(cfg *config.Config, logger *zap.Logger) storage.Storage {
	if cfg.DatabaseDSN == config.MemoryDSN {
		logger.Warn("using in-memory storage, nothing is persisted")
		return storage.NewMemoryStore()
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		logger.Fatal("failed to connect PostgreSQL", zap.Error(err))
	}

	s := storage.NewStorageService(db, logger)
	if err := s.Migrate(); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	return s
}

func setupRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect Redis", zap.Error(err))
	}
	return rdb
}

// clusterOptions wires the presence directory and the relay for multi-node
// deployments. Without Redis the hub runs single-node.
func clusterOptions(cfg *config.Config, rdb *redis.Client, logger *zap.Logger) ([]chathub.Option, func()) {
	if cfg.RelayBackend == config.RelayNone {
		return nil, func() {}
	}
	if rdb == nil {
		logger.Warn("relay backend needs REDIS_ADDR for the presence directory, running single-node", zap.String("relay", cfg.RelayBackend))
		return nil, func() {}
	}
	dir := presence.NewDirectory(rdb, cfg.NodeID, presence.DefaultEntryTTL, logger)

	switch cfg.RelayBackend {
	case config.RelayNATS:
		nc, err := chathub.ConnectNATS(cfg.NATSURL, cfg.NodeID)
		if err != nil {
			logger.Fatal("failed to connect NATS", zap.Error(err))
		}
		return []chathub.Option{chathub.WithCluster(cfg.NodeID, dir, chathub.NewNATSRelay(nc, logger))}, func() { _ = nc.Drain() }
	default:
		return []chathub.Option{chathub.WithCluster(cfg.NodeID, dir, chathub.NewRedisRelay(rdb, logger))}, func() {}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		if cfg == nil {
			log.Fatalf("config: %v", err)
		}
		log.Printf("Warning: %v", err)
	}

	logger, err := observability.NewLogger(cfg.IsDevelopment(), cfg.NodeID)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting skillswap realtime core", zap.String("env", cfg.Env), zap.String("relay", cfg.RelayBackend))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Dependencies
	store := setupStorage(cfg, logger)
	rdb := setupRedis(ctx, cfg, logger)
	opts, closeCluster := clusterOptions(cfg, rdb, logger)
	defer closeCluster()

	// 2. Hub and call coordinator
	hub := chathub.NewManagerService(store, logger.Named("hub"), opts...)
	issuer := relay.NewIssuer(cfg.RelayAppID, cfg.RelayAppCert, cfg.RelayTokenTTL)
	var callOpts []signaling.Option
	if len(opts) > 0 {
		// Calls live next to the presence directory so any node can answer them.
		callOpts = append(callOpts, signaling.WithCallStore(signaling.NewRedisCallStore(rdb, signaling.DefaultCallRecordTTL)))
	}
	calls := signaling.NewCoordinator(hub, store, issuer, cfg.CallInviteTimeout, logger.Named("calls"), callOpts...)
	go hub.Run(ctx)

	// 3. Gin routing
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	authSvc := auth.NewService(cfg.JWTSecret, cfg.JWTIssuer, auth.DefaultTokenTTL)
	uploads := media.NewDiskStore(cfg.UploadDir, cfg.UploadBaseURL, cfg.UploadMaxBytes, logger.Named("media"))
	h := handler.NewHandler(hub, calls, store, authSvc, uploads, cfg.AllowedOrigins, logger.Named("gateway"))
	h.DevTokens = cfg.IsDevelopment()
	h.Register(r)
	if strings.HasPrefix(cfg.UploadBaseURL, "/") {
		r.Static(cfg.UploadBaseURL, cfg.UploadDir)
	}

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}
