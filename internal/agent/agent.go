// ABOUTME: Agent interface and the technical, billing and general-information specialists
// ABOUTME: Each specialist makes one model call and appends its reply to the state

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/support-gateway/internal/model"
	"github.com/2389/support-gateway/internal/state"
)

// ErrAgentExecution indicates an agent could not produce a reply.
var ErrAgentExecution = errors.New("agent execution failed")

// Agent names.
const (
	TechnicalName   = "technical_agent"
	BillingName     = "billing_agent"
	GeneralInfoName = "general_info_agent"
)

// DefaultHistoryWindow is the number of recent messages sent to the model.
const DefaultHistoryWindow = 10

// Agent handles one turn of a support conversation.
type Agent interface {
	Name() string
	Description() string
	Handle(ctx context.Context, st *state.State) error
}

// Options customise a specialist. Zero values fall back to the variant defaults.
type Options struct {
	Description   string
	Prompt        string
	HistoryWindow int
	Logger        *slog.Logger
}

// specialist holds the behaviour shared by every variant.
type specialist struct {
	name        string
	description string
	prompt      string
	window      int
	completer   model.Completer
	logger      *slog.Logger
}

func newSpecialist(name, description, prompt string, c model.Completer, opts Options) specialist {
	if opts.Description != "" {
		description = opts.Description
	}
	if opts.Prompt != "" {
		prompt = opts.Prompt
	}
	window := opts.HistoryWindow
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return specialist{
		name:        name,
		description: description,
		prompt:      prompt,
		window:      window,
		completer:   c,
		logger:      logger.With("component", "agent", "agent", name),
	}
}

func (s *specialist) Name() string        { return s.name }
func (s *specialist) Description() string { return s.description }

// Handle implements Agent.
func (s *specialist) Handle(ctx context.Context, st *state.State) error {
	if len(st.Messages) == 0 {
		return fmt.Errorf("%w: %s invoked with empty history", state.ErrInvalidState, s.name)
	}

	prompt := model.Prompt{
		System:   s.prompt,
		Messages: historyPrompt(st.Recent(s.window)),
	}

	reply, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		s.logger.Warn("model call failed",
			"conversation_id", st.ConversationID,
			"error", err,
		)
		return fmt.Errorf("%w: %s: %w", ErrAgentExecution, s.name, err)
	}
	if strings.TrimSpace(reply) == "" {
		s.logger.Warn("model returned an empty reply", "conversation_id", st.ConversationID)
		return fmt.Errorf("%w: %s: empty reply", ErrAgentExecution, s.name)
	}

	if _, err := st.AppendMessage(state.RoleAgent, reply, s.name); err != nil {
		return err
	}

	s.logger.Debug("agent replied",
		"conversation_id", st.ConversationID,
		"turn_count", st.TurnCount,
		"reply_len", len(reply),
	)
	return nil
}

// historyPrompt maps stored messages to provider roles. System messages are
// dropped and the context always opens with a user turn.
func historyPrompt(msgs []state.Message) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case state.RoleUser:
			out = append(out, model.Message{Role: model.RoleUser, Content: m.Content})
		case state.RoleAgent:
			if len(out) == 0 {
				continue
			}
			out = append(out, model.Message{Role: model.RoleAssistant, Content: m.Content})
		}
	}
	return out
}

// Technical answers troubleshooting and product questions.
type Technical struct{ specialist }

// NewTechnical creates the technical support specialist.
func NewTechnical(c model.Completer, opts Options) *Technical {
	return &Technical{newSpecialist(TechnicalName,
		"Technical issues: errors, outages, setup, configuration and troubleshooting.",
		"You are a technical support agent. Diagnose the customer's problem and give clear, step-by-step guidance.",
		c, opts)}
}

// Billing answers payment and invoice questions.
type Billing struct{ specialist }

// NewBilling creates the billing specialist.
func NewBilling(c model.Completer, opts Options) *Billing {
	return &Billing{newSpecialist(BillingName,
		"Billing: invoices, charges, payments, refunds and subscription plans.",
		"You are a billing agent. Help the customer with invoices, payments, refunds and plan changes.",
		c, opts)}
}

// GeneralInfo answers everything else and is the routing fallback.
type GeneralInfo struct{ specialist }

// NewGeneralInfo creates the general-information specialist.
func NewGeneralInfo(c model.Completer, opts Options) *GeneralInfo {
	return &GeneralInfo{newSpecialist(GeneralInfoName,
		"General information: greetings, company and product questions, anything unclear.",
		"You are a general information agent. Answer general questions about the company and its products politely and concisely.",
		c, opts)}
}

var (
	_ Agent = (*Technical)(nil)
	_ Agent = (*Billing)(nil)
	_ Agent = (*GeneralInfo)(nil)
)
