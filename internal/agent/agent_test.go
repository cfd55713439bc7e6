// ABOUTME: Tests for specialist agents: prompt construction, reply append, failure handling
// ABOUTME: Uses a recording fake completer in place of a real model

package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/support-gateway/internal/model"
	"github.com/2389/support-gateway/internal/state"
)

type recordingCompleter struct {
	reply   string
	err     error
	calls   int
	prompts []model.Prompt
}

func (r *recordingCompleter) Complete(ctx context.Context, p model.Prompt) (string, error) {
	r.calls++
	r.prompts = append(r.prompts, p)
	if r.err != nil {
		return "", r.err
	}
	return r.reply, nil
}

func newState(t *testing.T, msgs ...string) *state.State {
	t.Helper()
	st := state.New("conv-1")
	for i, m := range msgs {
		role := state.RoleUser
		name := ""
		if i%2 == 1 {
			role = state.RoleAgent
			name = GeneralInfoName
		}
		_, err := st.AppendMessage(role, m, name)
		require.NoError(t, err)
	}
	return st
}

func TestSpecialist_AppendsReply(t *testing.T) {
	c := &recordingCompleter{reply: "Your refund is on its way."}
	a := NewBilling(c, Options{})
	st := newState(t, "I need help with billing")
	require.NoError(t, st.RouteTo(BillingName))

	require.NoError(t, a.Handle(context.Background(), st))

	assert.Equal(t, 1, c.calls)
	require.Len(t, st.Messages, 2)
	reply := st.Messages[1]
	assert.Equal(t, state.RoleAgent, reply.Role)
	assert.Equal(t, "Your refund is on its way.", reply.Content)
	assert.Equal(t, BillingName, reply.AgentName)
	assert.Equal(t, BillingName, st.ActiveAgent, "agent must not change routing")
	assert.Equal(t, 1, st.TurnCount)
}

func TestSpecialist_EmptyReplyFails(t *testing.T) {
	for _, reply := range []string{"", "  \n\t"} {
		c := &recordingCompleter{reply: reply}
		a := NewBilling(c, Options{})
		st := newState(t, "bill")
		require.NoError(t, st.RouteTo(BillingName))

		err := a.Handle(context.Background(), st)
		assert.ErrorIs(t, err, ErrAgentExecution)
		assert.Len(t, st.Messages, 1, "no reply may be appended for %q", reply)
	}
}

func TestSpecialist_PromptShape(t *testing.T) {
	c := &recordingCompleter{reply: "ok"}
	a := NewTechnical(c, Options{HistoryWindow: 3})
	st := newState(t, "hi", "hello!", "my app crashes", "which version?", "v2")

	require.NoError(t, a.Handle(context.Background(), st))

	require.Len(t, c.prompts, 1)
	p := c.prompts[0]
	assert.Contains(t, p.System, "technical support agent")
	// window of 3 is [my app crashes, which version?, v2]
	require.Len(t, p.Messages, 3)
	assert.Equal(t, model.RoleUser, p.Messages[0].Role)
	assert.Equal(t, "my app crashes", p.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, p.Messages[1].Role)
	assert.Equal(t, model.RoleUser, p.Messages[2].Role)
}

func TestSpecialist_WindowNeverStartsWithAssistant(t *testing.T) {
	c := &recordingCompleter{reply: "ok"}
	a := NewGeneralInfo(c, Options{HistoryWindow: 2})
	st := newState(t, "hi", "hello!", "thanks")

	require.NoError(t, a.Handle(context.Background(), st))

	require.Len(t, c.prompts[0].Messages, 1)
	assert.Equal(t, "thanks", c.prompts[0].Messages[0].Content)
}

func TestSpecialist_ModelFailure(t *testing.T) {
	c := &recordingCompleter{err: fmt.Errorf("%w: deadline", model.ErrModelTimeout)}
	a := NewBilling(c, Options{})
	st := newState(t, "where is my invoice")

	err := a.Handle(context.Background(), st)

	assert.ErrorIs(t, err, ErrAgentExecution)
	assert.ErrorIs(t, err, model.ErrModelTimeout)
	assert.Len(t, st.Messages, 1, "no reply may be fabricated on failure")
}

func TestSpecialist_EmptyHistory(t *testing.T) {
	c := &recordingCompleter{reply: "ok"}
	a := NewTechnical(c, Options{})

	err := a.Handle(context.Background(), state.New("conv-1"))
	assert.ErrorIs(t, err, state.ErrInvalidState)
	assert.Equal(t, 0, c.calls)
}

func TestSpecialist_Overrides(t *testing.T) {
	c := &recordingCompleter{reply: "ok"}
	a := NewBilling(c, Options{Description: "Money things", Prompt: "Be terse."})

	assert.Equal(t, "Money things", a.Description())
	require.NoError(t, a.Handle(context.Background(), newState(t, "refund?")))
	assert.Equal(t, "Be terse.", c.prompts[0].System)
}
