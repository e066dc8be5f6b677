package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "papergraph/backend/pkg/errors"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("NEO4J_URI", "bolt://graph:7687")
	t.Setenv("WORKERS", "")
	t.Setenv("STRENGTH_THRESHOLD", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "bolt://graph:7687", cfg.Neo4jURI)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 0.3, cfg.StrengthThreshold)
	assert.Equal(t, 50, cfg.Neo4jMaxPoolSize)
	assert.Equal(t, time.Hour, cfg.Neo4jMaxConnLifetime)
	assert.Equal(t, cfg.ModelID, cfg.FallbackModelID)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("WORKERS", "12")
	t.Setenv("STRENGTH_THRESHOLD", "0.45")
	t.Setenv("EMBEDDING_MODEL", "text-embedding-3-small")
	t.Setenv("TX_TIMEOUT_SECONDS", "15")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Workers)
	assert.InDelta(t, 0.45, cfg.StrengthThreshold, 1e-9)
	assert.True(t, cfg.EmbeddingsEnabled())
	assert.Equal(t, 15*time.Second, cfg.TxTimeout)
}

func TestLoad_InvalidNumberFallsBackToDefault(t *testing.T) {
	t.Setenv("WORKERS", "many")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Workers)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Neo4jURI:           "bolt://localhost:7687",
			Neo4jUser:          "neo4j",
			LiteLLMURL:         "http://localhost:4000",
			ModelID:            "m",
			Workers:            1,
			Neo4jMaxPoolSize:   50,
			StrengthThreshold:  0.3,
			FuzzyThreshold:     0.85,
			EmbeddingThreshold: 0.85,
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"missing uri", func(c *Config) { c.Neo4jURI = "" }, "NEO4J_URI"},
		{"missing model", func(c *Config) { c.ModelID = "" }, "MODEL_ID"},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "WORKERS"},
		{"threshold above one", func(c *Config) { c.StrengthThreshold = 1.5 }, "STRENGTH_THRESHOLD"},
		{"negative rps", func(c *Config) { c.ModelRPS = -1 }, "MODEL_RPS"},
	}

	assert.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfig))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
