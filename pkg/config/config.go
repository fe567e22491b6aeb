package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration read from the environment.
type Config struct {
	AppEnv       string
	IsProduction bool
	Port         string

	DatabaseDriver string // "sqlite" or "mysql"
	DatabaseDSN    string

	// ChatMode is "persistent" or "stateless".
	ChatMode string
	// RequireIdentity configures an identity resolver for the chat pipeline.
	// When false, persistent conversations are unscoped.
	RequireIdentity bool
	JWTSecret       string
	SystemPrompt    string
	ToolsFile       string

	GeminiAPIKey    string
	GeminiModel     string
	IsGeminiEnabled bool
	LLMTimeout      time.Duration

	// runtime tunables
	RateLimitWindowSeconds int
	RateLimitCapacity      int
	UserConcurrencyLimit   int
	ToolCacheTTLSeconds    int
	ToolCacheMaxItems      int

	CORSOrigins []string
}

// loadAppEnv loads .env outside production. A missing .env file is not fatal.
func loadAppEnv() string {
	appEnv := os.Getenv("APP_ENV")
	if appEnv == "production" {
		return appEnv
	}
	_ = godotenv.Load()
	return os.Getenv("APP_ENV")
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	appEnv := loadAppEnv()
	if appEnv == "" {
		appEnv = "development"
	}
	if !slices.Contains([]string{"development", "staging", "production"}, appEnv) {
		return nil, fmt.Errorf("APP_ENV must be 'development', 'staging' or 'production', got %q", appEnv)
	}

	cfg := &Config{
		AppEnv:       appEnv,
		IsProduction: appEnv == "production",
		Port:         getEnv("PORT", "5000"),

		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", "sqlite")),
		DatabaseDSN:    getEnv("DATABASE_DSN", "chat.db"),

		ChatMode:        strings.ToLower(getEnv("CHAT_MODE", "persistent")),
		RequireIdentity: os.Getenv("CHAT_REQUIRE_IDENTITY") == "1",
		JWTSecret:       os.Getenv("JWT_SECRET_KEY"),
		SystemPrompt:    os.Getenv("CHAT_SYSTEM_PROMPT"),
		ToolsFile:       os.Getenv("CHAT_TOOLS_FILE"),

		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		IsGeminiEnabled: os.Getenv("IS_GEMINI_ENABLED") == "1",
		LLMTimeout:      time.Duration(atoiOr(os.Getenv("LLM_TIMEOUT_SECONDS"), 120)) * time.Second,

		RateLimitWindowSeconds: atoiOr(os.Getenv("RATE_LIMIT_WINDOW_SECONDS"), 10),
		RateLimitCapacity:      atoiOr(os.Getenv("RATE_LIMIT_CAPACITY"), 5),
		UserConcurrencyLimit:   atoiOr(os.Getenv("USER_CONCURRENCY_LIMIT"), 2),
		ToolCacheTTLSeconds:    atoiOr(os.Getenv("TOOL_CACHE_TTL_SECONDS"), 600),
		ToolCacheMaxItems:      atoiOr(os.Getenv("TOOL_CACHE_MAX_ITEMS"), 500),

		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),
	}

	if !slices.Contains([]string{"persistent", "stateless"}, cfg.ChatMode) {
		return nil, fmt.Errorf("CHAT_MODE must be 'persistent' or 'stateless', got %q", cfg.ChatMode)
	}
	if !slices.Contains([]string{"sqlite", "mysql"}, cfg.DatabaseDriver) {
		return nil, fmt.Errorf("DATABASE_DRIVER must be 'sqlite' or 'mysql', got %q", cfg.DatabaseDriver)
	}
	if cfg.RequireIdentity && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY must be set when CHAT_REQUIRE_IDENTITY=1")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
