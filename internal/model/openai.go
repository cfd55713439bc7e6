// ABOUTME: OpenAI chat-completions implementation of Completer
// ABOUTME: Sends the system prompt and history, returns the first choice's text

package model

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAI completes prompts with the chat completions API.
type OpenAI struct {
	client      openai.Client
	model       string
	temperature float64
	topP        float64
	maxTokens   int64
}

// NewOpenAI creates an OpenAI completer. SDK-level retries are disabled;
// wrap the result in Retrying for retry behaviour.
func NewOpenAI(opts Options) *OpenAI {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.RequestTimeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.RequestTimeout))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &OpenAI{
		client:      openai.NewClient(reqOpts...),
		model:       opts.Name,
		temperature: opts.Temperature,
		topP:        opts.TopP,
		maxTokens:   int64(opts.MaxTokens),
	}
}

// Complete implements Completer.
func (o *OpenAI) Complete(ctx context.Context, p Prompt) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(p.Messages)+1)
	if p.System != "" {
		messages = append(messages, openai.SystemMessage(p.System))
	}
	for _, m := range p.Messages {
		if m.Role == RoleAssistant {
			messages = append(messages, openai.AssistantMessage(m.Content))
		} else {
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    messages,
		Temperature: openai.Float(o.temperature),
	}
	if o.topP > 0 {
		params.TopP = openai.Float(o.topP)
	}
	if o.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(o.maxTokens)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", classify("openai", apiErr.StatusCode, err)
		}
		return "", classify("openai", 0, err)
	}
	if len(resp.Choices) == 0 {
		return nonEmpty("openai", "")
	}
	return nonEmpty("openai", resp.Choices[0].Message.Content)
}

var _ Completer = (*OpenAI)(nil)
