// ABOUTME: Provider selection from resolved model options
// ABOUTME: Builds the OpenAI or Anthropic completer and wraps it with retries

package model

import (
	"fmt"
	"log/slog"
	"time"
)

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Options are the resolved settings for a provider client.
type Options struct {
	Provider       string
	Name           string
	BaseURL        string
	APIKey         string
	Temperature    float64
	TopP           float64
	MaxTokens      int
	RequestTimeout time.Duration
	MaxRetries     int
}

// New returns the configured provider wrapped in Retrying.
func New(opts Options, logger *slog.Logger) (Completer, error) {
	var base Completer
	switch opts.Provider {
	case ProviderOpenAI:
		base = NewOpenAI(opts)
	case ProviderAnthropic:
		base = NewAnthropic(opts)
	default:
		return nil, fmt.Errorf("unknown model provider %q", opts.Provider)
	}
	if opts.Name == "" {
		return nil, fmt.Errorf("model name is required for provider %q", opts.Provider)
	}
	return NewRetrying(base, opts.MaxRetries+1, 0, logger), nil
}
