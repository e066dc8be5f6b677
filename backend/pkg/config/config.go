package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	apperrors "papergraph/backend/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Env      string
	LogLevel string

	// Neo4j
	Neo4jURI             string
	Neo4jUser            string
	Neo4jPassword        string
	Neo4jMaxPoolSize     int
	Neo4jMaxConnLifetime time.Duration
	TxTimeout            time.Duration

	// Model service
	LiteLLMURL       string
	OpenRouterAPIKey string
	ModelID          string
	FallbackModelID  string // used by the simplified retry level; defaults to ModelID
	EmbeddingModel   string // empty disables embeddings
	ModelRPS         float64
	PromptVersion    string
	CachePath        string

	// Pipeline
	StrengthThreshold  float64
	FuzzyThreshold     float64
	EmbeddingThreshold float64
	SynonymsPath       string
	Workers            int
	ProgressPath       string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Env:                  getEnv("ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", ""),
		Neo4jURI:             getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:            getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:        getEnv("NEO4J_PASSWORD", "password"),
		Neo4jMaxPoolSize:     getEnvInt("NEO4J_MAX_POOL_SIZE", 50),
		Neo4jMaxConnLifetime: time.Duration(getEnvInt("NEO4J_MAX_CONN_LIFETIME_SECONDS", 3600)) * time.Second,
		TxTimeout:            time.Duration(getEnvInt("TX_TIMEOUT_SECONDS", 60)) * time.Second,
		LiteLLMURL:           getEnv("LITELLM_URL", "http://localhost:4000"),
		OpenRouterAPIKey:     getEnv("OPENROUTER_API_KEY", ""),
		ModelID:              getEnv("MODEL_ID", "openrouter/anthropic/claude-3.5-sonnet"),
		FallbackModelID:      getEnv("FALLBACK_MODEL_ID", ""),
		EmbeddingModel:       getEnv("EMBEDDING_MODEL", ""),
		ModelRPS:             getEnvFloat("MODEL_RPS", 0),
		PromptVersion:        getEnv("PROMPT_VERSION", "v1"),
		CachePath:            getEnv("CACHE_PATH", "papergraph-cache.db"),
		StrengthThreshold:    getEnvFloat("STRENGTH_THRESHOLD", 0.3),
		FuzzyThreshold:       getEnvFloat("FUZZY_THRESHOLD", 0.85),
		EmbeddingThreshold:   getEnvFloat("EMBEDDING_THRESHOLD", 0.85),
		SynonymsPath:         getEnv("SYNONYMS_PATH", ""),
		Workers:              getEnvInt("WORKERS", 4),
		ProgressPath:         getEnv("PROGRESS_PATH", "papergraph-progress.json"),
	}
	if cfg.FallbackModelID == "" {
		cfg.FallbackModelID = cfg.ModelID
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_URI")
	}
	if c.Neo4jUser == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_USER")
	}
	if c.LiteLLMURL == "" {
		return apperrors.NewConfigMissingRequired("LITELLM_URL")
	}
	if c.ModelID == "" {
		return apperrors.NewConfigMissingRequired("MODEL_ID")
	}
	if c.Workers < 1 {
		return apperrors.NewConfigValidationFailed("WORKERS", "must be at least 1")
	}
	if c.Neo4jMaxPoolSize < 1 {
		return apperrors.NewConfigValidationFailed("NEO4J_MAX_POOL_SIZE", "must be at least 1")
	}
	if c.ModelRPS < 0 {
		return apperrors.NewConfigValidationFailed("MODEL_RPS", "must not be negative")
	}
	for field, v := range map[string]float64{
		"STRENGTH_THRESHOLD":  c.StrengthThreshold,
		"FUZZY_THRESHOLD":     c.FuzzyThreshold,
		"EMBEDDING_THRESHOLD": c.EmbeddingThreshold,
	} {
		if v < 0 || v > 1 {
			return apperrors.NewConfigValidationFailed(field, "must be within [0, 1]")
		}
	}
	// OpenRouter API key is optional when the proxy holds credentials
	return nil
}

// EmbeddingsEnabled reports whether an embedding model is configured
func (c *Config) EmbeddingsEnabled() bool {
	return c.EmbeddingModel != ""
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
