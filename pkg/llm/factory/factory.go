package factory

import (
	"fmt"

	"filings-rag-be/pkg/llm"
	"filings-rag-be/pkg/llm/anthropic"
	"filings-rag-be/pkg/llm/ollama"
	"filings-rag-be/pkg/llm/openaicompat"
)

// Config selects and configures one chat backend.
type Config struct {
	Provider string // ollama | anthropic | openai
	Model    string
	BaseURL  string
	APIKey   string
}

func NewLLMProvider(cfg Config) (llm.LLMProvider, error) {
	switch cfg.Provider {
	case "ollama", "":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.NewOllamaProvider(baseURL, cfg.Model), nil
	case "anthropic":
		return anthropic.NewFromAPIKey(cfg.APIKey, cfg.Model)
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai-compatible provider requires an api key")
		}
		return openaicompat.NewProvider(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
