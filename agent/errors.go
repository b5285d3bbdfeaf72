package agent

import "errors"

var (
	// ErrProviderNotSet LLM Provider 未设置
	ErrProviderNotSet = errors.New("llm provider not set")

	// ErrConfigInvalid 配置无效
	ErrConfigInvalid = errors.New("invalid agent config")
)
