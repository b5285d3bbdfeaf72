package groq

import (
	"github.com/BaSui01/csescout/llm/providers"
	"github.com/BaSui01/csescout/llm/providers/openaicompat"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL Groq 的 OpenAI 兼容入口
	DefaultBaseURL = "https://api.groq.com/openai"
	// DefaultModel 默认模型
	DefaultModel = "llama-3.3-70b-versatile"
)

// GroqProvider 实现 Groq LLM 提供者.
// Groq 使用 OpenAI 兼容的 API 格式，支持并行工具调用.
type GroqProvider struct {
	*openaicompat.Provider
}

// NewGroqProvider 创建新的 Groq 提供者实例.
func NewGroqProvider(cfg providers.GroqConfig, logger *zap.Logger) *GroqProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	return &GroqProvider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName:  "groq",
			APIKey:        cfg.APIKey,
			BaseURL:       cfg.BaseURL,
			DefaultModel:  cfg.Model,
			FallbackModel: DefaultModel,
			Timeout:       cfg.Timeout,
		}, logger),
	}
}
