package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fedivid/recoserver/internal/ann"
	"github.com/fedivid/recoserver/internal/cache"
	"github.com/fedivid/recoserver/internal/config"
	"github.com/fedivid/recoserver/internal/database"
	"github.com/fedivid/recoserver/internal/handlers"
	"github.com/fedivid/recoserver/internal/logger"
	"github.com/fedivid/recoserver/internal/middleware"
	"github.com/fedivid/recoserver/internal/ratelimit"
	"github.com/fedivid/recoserver/internal/recommendations"
	"github.com/fedivid/recoserver/internal/store"
)

func main() {
	// missing .env just means system environment only
	_ = godotenv.Load()

	cfg := config.Load()

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		os.Exit(1)
	}
	defer logger.Close()

	logger.Log.Info("recoserver starting")

	if err := database.Initialize(); err != nil {
		logger.Log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		logger.Log.Fatal("failed to run migrations", zap.Error(err))
	}

	// A missing or corrupt index snapshot refuses startup: serving without
	// the similarity index would silently degrade every response.
	index, err := ann.Load(cfg.IndexPath, cfg.EmbeddingDim, cfg.Normalize)
	if err != nil {
		logger.Log.Fatal("failed to load ANN index",
			zap.String("path", cfg.IndexPath),
			zap.Error(err))
	}
	logger.Log.Info("ANN index loaded",
		zap.String("path", cfg.IndexPath),
		zap.Int("vectors", index.Len()))

	var redisClient *cache.RedisClient
	if cfg.RedisHost != "" {
		redisClient, err = cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
		if err != nil {
			logger.Log.Warn("Redis unavailable, response cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	profiles := recommendations.DefaultProfiles()
	if raw, err := cfg.LoadProfilesBytes(); err != nil {
		logger.Log.Fatal("failed to read profiles", zap.Error(err))
	} else if raw != nil {
		profiles, err = recommendations.LoadProfiles(raw)
		if err != nil {
			logger.Log.Fatal("failed to parse profiles", zap.Error(err))
		}
	}

	videoStore := store.NewStore(database.DB)
	likesStore := store.NewLikesStore(database.DB)
	simCache := recommendations.NewSimilarityCache(database.DB)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	pipeline := recommendations.NewPipeline(likesStore, videoStore, simCache, rng)

	service := recommendations.NewService(videoStore, likesStore, simCache, index, pipeline, profiles, recommendations.ServiceConfig{
		CacheReads:  cfg.CacheReadsEnabled,
		CacheWrites: cfg.CacheWritesEnabled,
		Moderation: recommendations.ModerationConfig{
			FilterInstances:  cfg.ModerationFilterInstances,
			FilterChannels:   cfg.ModerationFilterChannels,
			InstanceDenylist: cfg.InstanceDenylist,
			ChannelBlocklist: cfg.ChannelBlocklist,
		},
	})

	h := handlers.NewHandlers(videoStore, likesStore, service)
	limiter := ratelimit.New(cfg.RateLimitMax, cfg.RateLimitWindow)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "X-Request-ID"}
	corsConfig.MaxAge = 600 * time.Second
	r.Use(cors.New(corsConfig))

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(middleware.BodyLimitMiddleware(cfg.MaxBodyBytes))
	api.Use(middleware.RateLimitMiddleware(limiter, cfg.RateLimitMax, cfg.RateLimitWindow))
	{
		api.POST("/videos/resolve", h.ResolveVideo)
		api.POST("/videos/metadata", h.BatchMetadata)
		api.POST("/events", h.IngestEvents)

		recs := api.Group("")
		if redisClient != nil {
			recs.Use(middleware.ResponseCacheMiddleware(redisClient, 30*time.Second))
		}
		recs.POST("/recommendations", h.Recommend)
		recs.POST("/related", h.Related)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Log.Info("listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("forced shutdown", zap.Error(err))
	}
}
