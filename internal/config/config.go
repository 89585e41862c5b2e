// Package config loads process configuration from the environment and the
// optional guardrail rules file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration. Every field has a usable default so
// the server starts with nothing but a completion endpoint configured.
type Config struct {
	HTTPPort string
	GRPCPort string
	LogLevel string

	// RateLimitPerMinute is the per-client request quota per 60 s window.
	RateLimitPerMinute int
	// MaxBodyBytes caps the request body read by the pipeline.
	MaxBodyBytes int64
	// RulesFile is an optional YAML file overriding the built-in rule lists.
	RulesFile string

	PostgresDSN   string
	ClickHouseDSN string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CompletionBaseURL string
	CompletionAPIKey  string
	CompletionModel   string
	CompletionTimeout time.Duration

	// AdminPasswordHash is a bcrypt hash. Empty disables the admin surface.
	AdminPasswordHash string
	AdminSessionTTL   time.Duration
	// SecureCookies marks the admin session cookie Secure. Enable behind TLS.
	SecureCookies bool
	// AllowedOrigin is the CORS origin of the site front end. "*" allows any.
	AllowedOrigin string

	ShutdownTimeout time.Duration
}

// Load reads .env files (if present) and then the environment.
// Variables already set in the environment win over .env values.
func Load(envFiles ...string) Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}

	return Config{
		HTTPPort: envOrDefault("GUARD_HTTP_PORT", "8080"),
		GRPCPort: envOrDefault("GUARD_GRPC_PORT", "9090"),
		LogLevel: envOrDefault("GUARD_LOG_LEVEL", "info"),

		RateLimitPerMinute: envOrDefaultInt("GUARD_RATE_LIMIT_PER_MINUTE", 10),
		MaxBodyBytes:       int64(envOrDefaultInt("GUARD_MAX_BODY_BYTES", 1<<20)),
		RulesFile:          os.Getenv("GUARD_RULES_FILE"),

		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		ClickHouseDSN: os.Getenv("CLICKHOUSE_DSN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envOrDefaultInt("REDIS_DB", 0),

		CompletionBaseURL: strings.TrimRight(envOrDefault("COMPLETION_BASE_URL", "https://api.openai.com/v1"), "/"),
		CompletionAPIKey:  os.Getenv("COMPLETION_API_KEY"),
		CompletionModel:   envOrDefault("COMPLETION_MODEL", "gpt-4o-mini"),
		CompletionTimeout: time.Duration(envOrDefaultInt("COMPLETION_TIMEOUT_S", 120)) * time.Second,

		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		AdminSessionTTL:   time.Duration(envOrDefaultInt("GUARD_ADMIN_SESSION_TTL_S", 8*60*60)) * time.Second,
		SecureCookies:     envOrDefaultBool("GUARD_SECURE_COOKIES", false),
		AllowedOrigin:     envOrDefault("GUARD_ALLOWED_ORIGIN", "*"),

		ShutdownTimeout: time.Duration(envOrDefaultInt("GUARD_SHUTDOWN_TIMEOUT_S", 10)) * time.Second,
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
