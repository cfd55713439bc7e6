// ABOUTME: Completer interface, prompt types and failure classification
// ABOUTME: Maps provider errors onto ErrModelTimeout and ErrModelUnavailable

package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrModelUnavailable indicates the provider failed or returned a malformed response.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrModelTimeout indicates the model call did not finish before its deadline.
	ErrModelTimeout = errors.New("model timeout")
)

// Role of a prompt message as the provider sees it.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of prompt context.
type Message struct {
	Role    Role
	Content string
}

// Prompt is a system instruction plus chronological context.
type Prompt struct {
	System   string
	Messages []Message
}

// Completer produces a text completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, p Prompt) (string, error)

// Complete calls f(ctx, p).
func (f CompleterFunc) Complete(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// classify wraps err in the matching sentinel. statusCode is the provider's
// HTTP status when known, 0 otherwise. The original error stays in the chain.
func classify(provider string, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrModelTimeout) || errors.Is(err, ErrModelUnavailable) {
		return err
	}

	if isTimeout(err) || statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout {
		return fmt.Errorf("%w: %s: %w", ErrModelTimeout, provider, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrModelUnavailable, provider, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// nonEmpty rejects blank completions as malformed.
func nonEmpty(provider, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s: empty completion", ErrModelUnavailable, provider)
	}
	return text, nil
}
