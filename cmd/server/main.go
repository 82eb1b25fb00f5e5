package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voicelinehq/voiceline/config"
	"github.com/voicelinehq/voiceline/internal/api"
	"github.com/voicelinehq/voiceline/internal/auth"
	"github.com/voicelinehq/voiceline/internal/db"
	"github.com/voicelinehq/voiceline/internal/services"
	"github.com/voicelinehq/voiceline/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: failed to build: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx := context.Background()

	postgres, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		sugar.Fatalf("postgres: failed to connect: %v", err)
	}
	defer postgres.Close()

	if err := postgres.Ping(ctx); err != nil {
		sugar.Fatalf("postgres: ping failed: %v", err)
	}
	if err := postgres.EnsureSchema(ctx); err != nil {
		sugar.Fatalf("postgres: ensure schema: %v", err)
	}

	store := db.NewStore(postgres.Pool)

	mongoStore, err := db.NewMongo(ctx, cfg.Mongo)
	if err != nil {
		sugar.Fatalf("mongo: failed to connect: %v", err)
	}
	defer func() {
		if err := mongoStore.Close(context.Background()); err != nil {
			sugar.Warnf("mongo: close error: %v", err)
		}
	}()

	if err := mongoStore.EnsureCollections(ctx); err != nil {
		sugar.Fatalf("mongo: ensure collections: %v", err)
	}

	redisClient, err := db.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		sugar.Fatalf("redis: failed to connect: %v", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			sugar.Warnf("redis: close error: %v", err)
		}
	}()

	liveCache := db.NewLiveCache(redisClient, cfg.Static.CallLimits().MaxDuration)

	llm, err := services.NewLLM(cfg.OpenAI, sugar)
	if err != nil {
		sugar.Fatalf("llm: failed to initialise: %v", err)
	}

	authService, err := auth.NewService(cfg.JWTSecret, 24*time.Hour, store)
	if err != nil {
		sugar.Fatalf("failed to initialise auth service: %v", err)
	}

	router := setupRouter(authService, store, mongoStore, liveCache, llm, cfg.Static, sugar)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infof("server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("server crashed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnf("graceful shutdown failed: %v", err)
	}

	sugar.Info("server stopped cleanly")
}

func setupRouter(
	authService *auth.Service,
	store *db.Store,
	transcripts *db.Mongo,
	liveCache *db.LiveCache,
	llm *services.LLM,
	settings config.Settings,
	logger *zap.SugaredLogger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	api.NewHandler(authService, store, transcripts, liveCache, llm, settings, logger).RegisterRoutes(router)

	return router
}
