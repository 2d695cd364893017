package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/vouch/internal/api"
	"github.com/nidhogg/vouch/internal/config"
	"github.com/nidhogg/vouch/internal/provenance"
	"github.com/nidhogg/vouch/internal/provider"
	"github.com/nidhogg/vouch/internal/ratelimit"
	pgstore "github.com/nidhogg/vouch/internal/store"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting vouch...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/vouch.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Provider router
	router := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		provCfg := provider.Config{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Model: pc.Model, Extra: pc.Extra,
		}
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}
	if cfg.Loop.DefaultProvider != "" {
		router.SetDefault(cfg.Loop.DefaultProvider)
	}
	router.SetFallbacks(cfg.Loop.Fallbacks)

	// Durable provenance ledger
	var graphStore *provenance.Store
	if cfg.Database.Neo4j.URI != "" {
		gs, gsErr := provenance.NewStore(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if gsErr == nil {
			gsErr = gs.Ping(context.Background())
		}
		if gsErr != nil {
			logger.Warn("Neo4j unavailable, provenance falls back to memory", zap.Error(gsErr))
		} else {
			graphStore = gs
		}
	}

	// Chat history store
	var pg *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without chat history", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(context.Background(), "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			pg = ps
		}
	}

	// Per-scope rate limiter
	var limiter ratelimit.Limiter
	var redisLimiter *ratelimit.RedisLimiter
	if cfg.Database.Redis.URL != "" {
		rl, rlErr := ratelimit.NewRedisLimiter(cfg.Database.Redis.URL, cfg.Loop.RateLimitPerMinute, time.Minute, logger)
		if rlErr != nil {
			logger.Warn("Redis unavailable, using in-process rate limiter", zap.Error(rlErr))
		} else {
			redisLimiter = rl
			limiter = rl
		}
	}
	if limiter == nil {
		limiter = ratelimit.NewMemoryLimiter(cfg.Loop.RateLimitPerMinute, time.Minute)
	}

	handler := api.NewHandler(router, graphStore, pg, limiter,
		cfg.Auth.JWTSecret, cfg.Loop.ProducerModel, cfg.Loop.ReviewerModel, logger)

	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("vouch listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down vouch...")
	ctx := context.Background()
	srv.Shutdown(ctx)
	if graphStore != nil {
		graphStore.Close(ctx)
	}
	if pg != nil {
		pg.Close()
	}
	if redisLimiter != nil {
		redisLimiter.Close()
	}
}
