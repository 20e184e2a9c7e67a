// Package llm is the boundary to the vision-and-text generation service.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tatianab/photo-game/internal/imaging"
)

// ErrEmptyResponse is returned when the service answers without any text.
var ErrEmptyResponse = errors.New("no content returned from model")

// Request is one prompt, optionally with a photo attached.
type Request struct {
	Prompt    string
	Image     *imaging.EncodedImage
	MaxTokens int
}

// Generator turns a request into the model's text reply.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Close() error
}

type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
)

// Config selects and configures a backend.
type Config struct {
	Provider Provider
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(p Provider) string {
	switch p {
	case ProviderAnthropic:
		return "claude-sonnet-4-20250514"
	default:
		return "gemini-2.5-flash"
	}
}

// New builds the Generator for cfg.Provider.
func New(ctx context.Context, cfg Config) (Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q", cfg.Provider)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}
	switch cfg.Provider {
	case ProviderGemini, "":
		return NewGemini(ctx, cfg.APIKey, cfg.Model)
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
