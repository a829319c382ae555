package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "linkboard/backend/pkg/errors"
)

// Graph store backends
const (
	GraphBackendNeo4j  = "neo4j"
	GraphBackendSQLite = "sqlite"
	GraphBackendMemory = "memory"
)

// AI providers
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderCustom = "custom"
)

// Config holds all application configuration
type Config struct {
	// App
	Port     string
	Env      string
	LogLevel string

	// Graph store
	GraphBackend  string
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string
	SQLitePath    string

	// AI
	AIProvider       string
	AIEndpoint       string // Full chat-completions URL
	AIModel          string
	AIAPIKey         string
	AITemperature    float64
	AIMaxTokens      int           // Response-size cap sent as max_tokens
	AIRequestTimeout time.Duration // 0 disables the timeout

	// Extraction
	MaxSourceChars int

	// Observability
	MetricsEnabled bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", ""),
		GraphBackend:     strings.ToLower(getEnv("GRAPH_BACKEND", GraphBackendSQLite)),
		Neo4jURI:         getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:        getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:    getEnv("NEO4J_PASSWORD", ""),
		Neo4jDatabase:    getEnv("NEO4J_DATABASE", ""),
		SQLitePath:       getEnv("SQLITE_PATH", "linkboard.db"),
		AIProvider:       strings.ToLower(getEnv("AI_PROVIDER", ProviderOllama)),
		AIEndpoint:       getEnv("AI_ENDPOINT", ""),
		AIModel:          getEnv("AI_MODEL", "llama3.1"),
		AIAPIKey:         getEnv("AI_API_KEY", ""),
		AITemperature:    getEnvFloat("AI_TEMPERATURE", 0.1),
		AIMaxTokens:      getEnvInt("AI_MAX_TOKENS", 4096),
		AIRequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", 0),
		MaxSourceChars:   getEnvInt("MAX_SOURCE_CHARS", 50000),
		MetricsEnabled:   getEnvBool("METRICS_ENABLED", true),
	}

	if cfg.AIEndpoint == "" {
		cfg.AIEndpoint = DefaultEndpoint(cfg.AIProvider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultEndpoint returns the preset chat-completions URL for a provider.
// Custom providers have no preset.
func DefaultEndpoint(provider string) string {
	switch provider {
	case ProviderOllama:
		return "http://localhost:11434/v1/chat/completions"
	case ProviderOpenAI:
		return "https://api.openai.com/v1/chat/completions"
	default:
		return ""
	}
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	switch c.GraphBackend {
	case GraphBackendNeo4j:
		if c.Neo4jURI == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_URI")
		}
		if c.Neo4jUser == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_USER")
		}
		if c.Neo4jPassword == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_PASSWORD")
		}
	case GraphBackendSQLite:
		if c.SQLitePath == "" {
			return apperrors.NewConfigMissingRequired("SQLITE_PATH")
		}
	case GraphBackendMemory:
	default:
		return apperrors.NewConfigValidationFailed("GRAPH_BACKEND", fmt.Sprintf("unknown backend %q", c.GraphBackend))
	}

	switch c.AIProvider {
	case ProviderOllama, ProviderOpenAI, ProviderCustom:
	default:
		return apperrors.NewConfigValidationFailed("AI_PROVIDER", fmt.Sprintf("unknown provider %q", c.AIProvider))
	}
	if c.AIEndpoint == "" {
		return apperrors.NewConfigMissingRequired("AI_ENDPOINT")
	}
	if c.AIModel == "" {
		return apperrors.NewConfigMissingRequired("AI_MODEL")
	}
	if c.AITemperature < 0 || c.AITemperature > 2 {
		return apperrors.NewConfigValidationFailed("AI_TEMPERATURE", "must be between 0 and 2")
	}
	if c.AIMaxTokens <= 0 {
		return apperrors.NewConfigValidationFailed("AI_MAX_TOKENS", "must be positive")
	}
	if c.AIRequestTimeout < 0 {
		return apperrors.NewConfigValidationFailed("AI_REQUEST_TIMEOUT", "must not be negative")
	}
	if c.MaxSourceChars <= 0 {
		return apperrors.NewConfigValidationFailed("MAX_SOURCE_CHARS", "must be positive")
	}
	// The AI API key is optional: local providers do not need one
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
