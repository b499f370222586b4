package llm

import (
	"context"
	"fmt"
	"os"
)

// Message is one chat turn sent to a generation backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any generation backend.
type LLMClient interface {
	Generate(ctx context.Context, messages []Message, params GenerationParams) (string, error)
	Provider() string
	Model() string
}

// NewLLMClient selects a generation backend from GENERATION_BACKEND
// ("openai", "http", or "ollama"). Each constructor fails fast when its
// provider is disabled or has no credential; nothing is deferred to the
// first Generate call.
func NewLLMClient() (LLMClient, error) {
	backend := os.Getenv("GENERATION_BACKEND")
	switch backend {
	case "openai":
		return NewOpenAIClient()
	case "http":
		return NewHTTPClient()
	case "ollama", "":
		return NewOllamaClient()
	default:
		return nil, fmt.Errorf("unknown GENERATION_BACKEND %q (want openai, http, or ollama)", backend)
	}
}
