// Package generate abstracts the LLM backends that produce metadata and
// chunk translations. Every provider takes a fully composed prompt and
// returns cleaned text; prompt composition stays in the prompt package.
package generate

import (
	"context"
	"fmt"
)

// Generator produces text from a prompt. Implementations must be safe for
// concurrent use; the pipeline fans chunk translations out across workers.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider string // "gemini", "ollama", "openrouter"
	Model    string
	APIKey   string
	BaseURL  string
}

// New builds the configured provider.
func New(cfg Config) (Generator, error) {
	switch cfg.Provider {
	case "", "gemini":
		return NewGemini(cfg.APIKey, cfg.Model)
	case "ollama":
		return NewOllama(cfg.BaseURL, cfg.Model), nil
	case "openrouter":
		return NewOpenRouter(cfg.APIKey, cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
