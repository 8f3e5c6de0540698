// Package provider - driver factory
package provider

import (
	"context"
	"fmt"
)

// New creates a provider instance from config.
// Dispatches to the appropriate constructor based on cfg.Driver.
func New(ctx context.Context, name string, cfg ClientConfig) (Provider, error) {
	switch cfg.Driver {
	case "gemini":
		return NewGeminiProvider(ctx, name, cfg)
	case "huggingface":
		return NewHuggingFaceProvider(name, cfg)
	case "openai":
		return NewOpenAIProvider(name, cfg)
	default:
		return nil, fmt.Errorf("unknown provider driver: %s", cfg.Driver)
	}
}
