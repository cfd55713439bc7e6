// Package model wraps the external language-model capability behind a single
// Completer interface.
//
// Providers (OpenAI, Anthropic) translate provider-specific failures into two
// sentinel errors so callers never inspect SDK error types:
//
//   - ErrModelTimeout: the call exceeded its deadline
//   - ErrModelUnavailable: the provider refused, failed, or returned nothing usable
//
// Retrying decorates any Completer with bounded exponential backoff on
// ErrModelUnavailable. Timeouts are returned immediately.
package model
