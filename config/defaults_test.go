package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, LLMConfig{}, cfg.LLM)
	assert.NotEqual(t, SearchConfig{}, cfg.Search)
	assert.NotEqual(t, MarketConfig{}, cfg.Market)
	assert.NotEqual(t, OrchestratorConfig{}, cfg.Orchestrator)
	assert.NotEqual(t, GuardrailConfig{}, cfg.Guardrail)
	assert.NotEqual(t, AuthConfig{}, cfg.Auth)
	assert.NoError(t, cfg.Validate())
}

// --- Individual Default*Config functions ---

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.True(t, cfg.WriteTimeout > DefaultOrchestratorConfig().RunTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 5.0, cfg.RateLimitRPS)
	assert.Equal(t, 10, cfg.RateLimitBurst)
}

func TestDefaultLLMConfig(t *testing.T) {
	cfg := DefaultLLMConfig()
	assert.Equal(t, "groq", cfg.Provider)
	assert.Equal(t, "https://api.groq.com/openai", cfg.BaseURL)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.Model)
	assert.Zero(t, cfg.Temperature)
	assert.Empty(t, cfg.APIKey)
}

func TestDefaultSearchConfig(t *testing.T) {
	cfg := DefaultSearchConfig()
	assert.Equal(t, 3, cfg.MaxResults)
	assert.Equal(t, "basic", cfg.SearchDepth)
	assert.Equal(t, "Sri Lanka stock market", cfg.QuerySuffix)
}

func TestDefaultMarketConfig(t *testing.T) {
	cfg := DefaultMarketConfig()
	assert.Equal(t, "https://www.cse.lk/api", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 5.0, cfg.RequestsPerSecond)
	assert.True(t, cfg.AllowUnlisted)
}

func TestDefaultOrchestratorConfig(t *testing.T) {
	cfg := DefaultOrchestratorConfig()
	assert.Equal(t, 25, cfg.MaxSteps)
	assert.Equal(t, 4, cfg.MaxFanOut)
	assert.Equal(t, 400, cfg.MaxSummaryTokens)
	assert.True(t, cfg.WorkerTimeout < cfg.RunTimeout)
}

func TestDefaultGuardrailConfig(t *testing.T) {
	cfg := DefaultGuardrailConfig()
	assert.Empty(t, cfg.RiskTerms)
	assert.Equal(t, 2000, cfg.MaxQueryLength)
	assert.True(t, cfg.DetectInjection)
}

func TestDefaultStoresAreDisabled(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}
