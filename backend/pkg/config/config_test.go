package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "linkboard/backend/pkg/errors"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	for _, key := range []string{"GRAPH_BACKEND", "AI_PROVIDER", "AI_ENDPOINT", "AI_MODEL", "AI_MAX_TOKENS", "MAX_SOURCE_CHARS", "AI_REQUEST_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, GraphBackendSQLite, cfg.GraphBackend)
	assert.Equal(t, ProviderOllama, cfg.AIProvider)
	assert.Equal(t, "http://localhost:11434/v1/chat/completions", cfg.AIEndpoint)
	assert.Equal(t, 4096, cfg.AIMaxTokens)
	assert.Equal(t, 50000, cfg.MaxSourceChars)
	assert.Equal(t, time.Duration(0), cfg.AIRequestTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("GRAPH_BACKEND", "Memory")
	t.Setenv("AI_PROVIDER", "openai")
	t.Setenv("AI_ENDPOINT", "")
	t.Setenv("AI_TEMPERATURE", "0.4")
	t.Setenv("AI_REQUEST_TIMEOUT", "45s")
	t.Setenv("METRICS_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, GraphBackendMemory, cfg.GraphBackend)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", cfg.AIEndpoint)
	assert.InDelta(t, 0.4, cfg.AITemperature, 1e-9)
	assert.Equal(t, 45*time.Second, cfg.AIRequestTimeout)
	assert.False(t, cfg.MetricsEnabled)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			GraphBackend:   GraphBackendMemory,
			AIProvider:     ProviderCustom,
			AIEndpoint:     "http://llm.internal/v1/chat/completions",
			AIModel:        "m",
			AITemperature:  0.1,
			AIMaxTokens:    100,
			MaxSourceChars: 10,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"unknown backend", func(c *Config) { c.GraphBackend = "redis" }, true},
		{"neo4j without password", func(c *Config) {
			c.GraphBackend = GraphBackendNeo4j
			c.Neo4jURI = "bolt://localhost:7687"
			c.Neo4jUser = "neo4j"
		}, true},
		{"custom provider without endpoint", func(c *Config) { c.AIEndpoint = "" }, true},
		{"temperature out of range", func(c *Config) { c.AITemperature = 3 }, true},
		{"zero max tokens", func(c *Config) { c.AIMaxTokens = 0 }, true},
		{"negative timeout", func(c *Config) { c.AIRequestTimeout = -time.Second }, true},
		{"missing api key is fine", func(c *Config) { c.AIAPIKey = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent to testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
