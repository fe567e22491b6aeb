package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ChatKit/middleware"
	"ChatKit/pkg/cache"
	"ChatKit/pkg/chat"
	"ChatKit/pkg/config"
	"ChatKit/pkg/llm"
	"ChatKit/pkg/logging"
	"ChatKit/pkg/store"
	"ChatKit/pkg/tools"
	"ChatKit/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logging.New("")
		l.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New(cfg.AppEnv)

	mode, err := chat.ParseMode(cfg.ChatMode)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid chat mode")
	}

	// storage is only opened in persistent mode
	var st store.Store
	if mode == chat.ModePersistent {
		gs, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal().Err(err).Str("driver", cfg.DatabaseDriver).Msg("database connection failed")
		}
		defer gs.Close()
		st = gs
		logger.Info().Str("driver", cfg.DatabaseDriver).Msg("connected to database")
	}

	var custom []tools.Schema
	if cfg.ToolsFile != "" {
		custom, err = tools.LoadFile(cfg.ToolsFile)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.ToolsFile).Msg("failed to load tool schemas")
		}
	}
	registry := tools.NewRegistry(custom...)
	logger.Info().Strs("tools", registry.Names()).Msg("page-aware tools registered")

	toolCache := cache.New(cfg.ToolCacheMaxItems, time.Minute)
	defer toolCache.Stop()

	var identity chat.IdentityFunc
	if cfg.RequireIdentity {
		identity = middleware.IdentityFromContext
	}

	pipeline, err := chat.New(chat.Config{
		Mode:              mode,
		Store:             st,
		Engine:            newEngine(cfg, logger),
		Identity:          identity,
		SystemPrompt:      cfg.SystemPrompt,
		StaticTools:       []llm.Tool{tools.CurrentTime(nil)},
		Registry:          registry,
		ToolCache:         toolCache,
		ToolCacheTTL:      time.Duration(cfg.ToolCacheTTLSeconds) * time.Second,
		CompletionTimeout: cfg.LLMTimeout,
		Logger:            logging.Component(logger, "chat"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build chat pipeline")
	}

	limiter := middleware.NewLimiter(
		time.Duration(cfg.RateLimitWindowSeconds)*time.Second,
		cfg.RateLimitCapacity,
		cfg.UserConcurrencyLimit,
	)
	defer limiter.Stop()

	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logging.Component(logger, "http")))
	r.Use(middleware.Metrics())

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "X-Conversation-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, routes.Deps{
		Pipeline:  pipeline,
		Store:     st,
		Limiter:   limiter,
		JWTSecret: cfg.JWTSecret,
		Logger:    logging.Component(logger, "http"),
	})

	// no write timeout: responses are long-lived streams
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.AppEnv).
			Str("mode", mode.String()).
			Bool("gemini", cfg.IsGeminiEnabled).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	// let detached completions finish recording their replies
	if err := pipeline.Wait(ctx); err != nil {
		logger.Warn().Err(err).Msg("in-flight completions did not finish")
	}
	logger.Info().Msg("server stopped")
}

// newEngine streams from Gemini when enabled, falling back to the offline
// engine when Gemini fails before producing text.
func newEngine(cfg *config.Config, logger zerolog.Logger) llm.Engine {
	local := llm.Local{Delay: 30 * time.Millisecond}
	if !cfg.IsGeminiEnabled {
		logger.Warn().Msg("gemini disabled: using offline completion engine")
		return local
	}
	return llm.Fallback{
		Primary: llm.NewGemini(llm.GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			Enabled: true,
			Logger:  logging.Component(logger, "gemini"),
		}),
		Secondary: local,
	}
}
