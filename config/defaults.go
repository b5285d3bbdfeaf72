// =============================================================================
// 📦 csescout 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
		Redis:        DefaultRedisConfig(),
		Database:     DefaultDatabaseConfig(),
		LLM:          DefaultLLMConfig(),
		Search:       DefaultSearchConfig(),
		Market:       DefaultMarketConfig(),
		Orchestrator: DefaultOrchestratorConfig(),
		Guardrail:    DefaultGuardrailConfig(),
		Auth:         DefaultAuthConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:    8080,
		MetricsPort: 9091,
		ReadTimeout: 30 * time.Second,
		// 查询可能运行数分钟
		WriteTimeout:    6 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    5,
		RateLimitBurst:  10,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "csescout",
		SampleRate:   0.1,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:   false,
		Addr:      "localhost:6379",
		PoolSize:  10,
		KeyPrefix: "csescout:",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "csescout",
		Name:            "csescout.db",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    "groq",
		BaseURL:     "https://api.groq.com/openai",
		Model:       "llama-3.3-70b-versatile",
		Temperature: 0,
		Timeout:     60 * time.Second,
		MaxRetries:  2,
	}
}

// DefaultSearchConfig 返回默认新闻检索配置
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		BaseURL:           "https://api.tavily.com/search",
		Timeout:           15 * time.Second,
		RequestsPerSecond: 2,
		MaxResults:        3,
		SearchDepth:       "basic",
		QuerySuffix:       "Sri Lanka stock market",
	}
}

// DefaultMarketConfig 返回默认 CSE 配置
func DefaultMarketConfig() MarketConfig {
	return MarketConfig{
		BaseURL:           "https://www.cse.lk/api",
		Timeout:           5 * time.Second,
		RequestsPerSecond: 5,
		QuoteTTL:          30 * time.Second,
		HistoryDays:       90,
		SymbolCacheTTL:    24 * time.Hour,
		AllowUnlisted:     true,
	}
}

// DefaultOrchestratorConfig 返回默认调度配置
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxSteps:           25,
		RunTimeout:         5 * time.Minute,
		WorkerTimeout:      2 * time.Minute,
		SupervisorTimeout:  60 * time.Second,
		MaxFanOut:          4,
		WorkerMaxSteps:     4,
		MaxSummaryTokens:   400,
		MaxConcurrentTools: 4,
	}
}

// DefaultGuardrailConfig 返回默认护栏配置
func DefaultGuardrailConfig() GuardrailConfig {
	return GuardrailConfig{
		MaxQueryLength:  2000,
		DetectInjection: true,
	}
}

// DefaultAuthConfig 返回默认鉴权配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled: false,
		Issuer:  "csescout",
	}
}
