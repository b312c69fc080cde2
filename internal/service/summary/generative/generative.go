package generative

import (
	"context"
	"fmt"
	"strings"

	"call-recap-service/internal/service/summary"
)

// Config selects and configures one backend.
type Config struct {
	Backend string // openai, gemini, ollama; empty disables generation
	OpenAI  OpenAIConfig
	Gemini  GeminiConfig
	Ollama  OllamaConfig
}

// New returns the configured generator, or nil when Backend is empty.
func New(ctx context.Context, cfg Config) (summary.Generator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none":
		return nil, nil
	case OpenAIName:
		return NewOpenAI(cfg.OpenAI), nil
	case GeminiName:
		g, err := NewGemini(ctx, cfg.Gemini)
		if err != nil {
			return nil, err
		}
		return g, nil
	case OllamaName:
		return NewOllama(cfg.Ollama), nil
	default:
		return nil, fmt.Errorf("unknown generator backend %q", cfg.Backend)
	}
}
