// Package openaicompat provides a shared base implementation for
// OpenAI-compatible LLM providers.
//
// Groq serves the OpenAI Chat Completions format, so the groq package embeds
// openaicompat.Provider and only overrides what differs:
//
//   - Provider name and default model
//   - Base URL
//   - Custom headers (if any)
//   - Request hooks for provider-specific fields
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName:  "groq",
//	    APIKey:        cfg.APIKey,
//	    BaseURL:       "https://api.groq.com/openai",
//	    DefaultModel:  "llama-3.3-70b-versatile",
//	}, logger)
package openaicompat
