// ABOUTME: Tests for the model-backed classifier and its output parser
// ABOUTME: Checks prompt contents and tolerance of fenced or noisy JSON

package router

import (
	"context"
	"fmt"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/support-gateway/internal/agent"
	"github.com/2389/support-gateway/internal/model"
	"github.com/2389/support-gateway/internal/state"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		parsed bool
	}{
		{"plain", `{"next": "billing_agent", "reason": "refund"}`, "billing_agent", true},
		{"fenced", "```json\n{\"next\": \"technical_agent\"}\n```", "technical_agent", true},
		{"chatter", `Sure! Here you go: {"next":"FINISH","reason":"answered"} Hope that helps.`, "FINISH", true},
		{"extra fields", `{"next": "general_info_agent", "action": "handle", "information": "hours?"}`, "general_info_agent", true},
		{"no json", "Hello there, how can I help?", "", false},
		{"broken json", `{"next": "billing_agent"`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseClassification(tt.in)
			assert.Equal(t, tt.parsed, ok)
			assert.Equal(t, tt.want, got.Next)
		})
	}
}

func TestLLMClassifier_Prompt(t *testing.T) {
	var captured model.Prompt
	c := NewLLMClassifier(model.CompleterFunc(func(ctx context.Context, p model.Prompt) (string, error) {
		captured = p
		return `{"next": "billing_agent", "reason": "invoice"}`, nil
	}), "", 0, nil)

	st := state.New("conv-1")
	_, err := st.AppendMessage(state.RoleUser, "Where is my invoice?", "")
	require.NoError(t, err)

	reg := newRegistry(t)
	got, err := c.Classify(context.Background(), st, reg.Describe())
	require.NoError(t, err)
	assert.Equal(t, "billing_agent", got.Next)
	assert.Equal(t, "invoice", got.Reason)

	assert.Contains(t, captured.System, "- billing_agent:")
	assert.Contains(t, captured.System, "- technical_agent:")
	assert.Contains(t, captured.System, "choose general_info_agent")
	require.Len(t, captured.Messages, 1)
	assert.Contains(t, captured.Messages[0].Content, "[user] Where is my invoice?")
}

func TestLLMClassifier_GarbageIsAmbiguous(t *testing.T) {
	c := NewLLMClassifier(model.CompleterFunc(func(ctx context.Context, p model.Prompt) (string, error) {
		return "Hi! How can I help you today?", nil
	}), "", 0, nil)
	r, err := New(c, newRegistry(t), Config{}, nil)
	require.NoError(t, err)

	d, err := r.Decide(context.Background(), userState(t, "hello"))
	require.NoError(t, err)
	assert.Equal(t, agent.GeneralInfoName, d.Agent)
}

func TestLLMClassifier_ModelError(t *testing.T) {
	c := NewLLMClassifier(model.CompleterFunc(func(ctx context.Context, p model.Prompt) (string, error) {
		return "", fmt.Errorf("%w: slow", model.ErrModelTimeout)
	}), "", 0, nil)

	_, err := c.Classify(context.Background(), userState(t, "hi"), nil)
	assert.ErrorIs(t, err, model.ErrModelTimeout)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))

	// "é" is two bytes; cutting at byte 2 would split it
	got := truncate("aé€b", 2)
	assert.Equal(t, "a...", got)
	assert.True(t, utf8.ValidString(got))

	got = truncate("€€€", 4)
	assert.Equal(t, "€...", got)
	assert.True(t, utf8.ValidString(got))
}
