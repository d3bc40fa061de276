package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Sternrassler/panel-aggregator/pkg/client"
	"github.com/Sternrassler/panel-aggregator/pkg/fetcher"
	"github.com/Sternrassler/panel-aggregator/pkg/logging"
	"github.com/Sternrassler/panel-aggregator/pkg/query"
	"github.com/Sternrassler/panel-aggregator/pkg/viewstate"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// config is read from the environment.
type config struct {
	BackendURL      string
	ScopeID         string
	Port            string
	RedisURL        string
	UserAgent       string
	HTTPTimeout     time.Duration
	DefaultPageSize int
	ViewStateTTL    time.Duration
	SessionIdle     time.Duration
	AllowedOrigins  []string
	LogLevel        logging.LogLevel
	LogPretty       bool
}

func loadConfig() (config, error) {
	cfg := config{
		BackendURL: getEnv("BACKEND_URL", "http://localhost:8081/api"),
		ScopeID:    getEnv("SCOPE_ID", ""),
		Port:       getEnv("PORT", "8080"),
		RedisURL:   getEnv("REDIS_URL", "localhost:6379"),
		UserAgent:  getEnv("USER_AGENT", "panel-aggregator/0.1.0"),
		LogLevel:   logging.ParseLevel(getEnv("LOG_LEVEL", "info")),

		AllowedOrigins: parseOrigins(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}

	var err error
	if cfg.HTTPTimeout, err = time.ParseDuration(getEnv("HTTP_TIMEOUT", "30s")); err != nil {
		return cfg, fmt.Errorf("HTTP_TIMEOUT: %w", err)
	}
	if cfg.ViewStateTTL, err = time.ParseDuration(getEnv("VIEWSTATE_TTL", "24h")); err != nil {
		return cfg, fmt.Errorf("VIEWSTATE_TTL: %w", err)
	}
	if cfg.SessionIdle, err = time.ParseDuration(getEnv("SESSION_IDLE", "30m")); err != nil {
		return cfg, fmt.Errorf("SESSION_IDLE: %w", err)
	}
	if cfg.DefaultPageSize, err = strconv.Atoi(getEnv("DEFAULT_PAGE_SIZE", "10")); err != nil {
		return cfg, fmt.Errorf("DEFAULT_PAGE_SIZE: %w", err)
	}
	if cfg.LogPretty, err = strconv.ParseBool(getEnv("LOG_PRETTY", "false")); err != nil {
		return cfg, fmt.Errorf("LOG_PRETTY: %w", err)
	}

	return cfg, nil
}

func (c config) pageConfig() (query.PageConfig, error) {
	pages := query.DefaultPageConfig()
	pages.DefaultPageSize = c.DefaultPageSize
	if pages.MaxPageSize < c.DefaultPageSize {
		pages.MaxPageSize = c.DefaultPageSize
	}
	if err := pages.Validate(); err != nil {
		return pages, fmt.Errorf("DEFAULT_PAGE_SIZE: %w", err)
	}
	return pages, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logCfg.Pretty = cfg.LogPretty
	logging.Setup(logCfg)
	logger := logging.NewLogger("panel-proxy")

	pages, err := cfg.pageConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// View state is optional: without Redis every session starts from defaults.
	var store *viewstate.Store
	if cfg.RedisURL != "none" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisURL,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("redis", cfg.RedisURL).Msg("Redis unavailable, view state disabled")
		} else {
			store = viewstate.NewStore(redisClient, cfg.ViewStateTTL)
			logger.Info().Str("redis", cfg.RedisURL).Dur("ttl", cfg.ViewStateTTL).Msg("Connected to Redis")
		}
	}

	clientCfg := client.DefaultConfig(cfg.BackendURL, cfg.UserAgent)
	clientCfg.Timeout = cfg.HTTPTimeout
	backend, err := client.New(clientCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create backend client")
	}
	defer backend.Close()

	reg := newRegistry(ctx, defaultViews(), fetcher.New[json.RawMessage](backend), cfg.ScopeID, cfg.SessionIdle, logger)
	defer reg.Close()
	go reg.run(ctx)

	srv := &server{
		registry: reg,
		store:    store,
		pages:    pages,
		origins:  cfg.AllowedOrigins,
		logger:   logger,
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Server shutdown failed")
		}
	}()

	logger.Info().
		Str("addr", httpServer.Addr).
		Str("backend", cfg.BackendURL).
		Str("scope", cfg.ScopeID).
		Str("user_agent", cfg.UserAgent).
		Int("views", len(reg.list())).
		Msg("Starting panel proxy server")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}

	logger.Info().Msg("Server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
