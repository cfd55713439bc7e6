// ABOUTME: Model-backed classifier that asks the LLM for a JSON routing verdict
// ABOUTME: Tolerates code fences and chatter around the JSON object

package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/2389/support-gateway/internal/agent"
	"github.com/2389/support-gateway/internal/model"
	"github.com/2389/support-gateway/internal/state"
)

const routerInstructions = `You are the router for a customer support system. You never answer the customer yourself.

Classify the conversation and hand it to exactly one support agent:
%s
Rules:
- If the latest message is from the customer, choose the agent whose topic matches it.
- If the message is unclear or matches no category, choose %s.
- If the latest message is an agent reply that fully answers the customer, answer FINISH.

Respond with JSON only, no prose:
{"next": "<agent name or FINISH>", "reason": "<one short sentence>"}`

// LLMClassifier classifies with one model call per decision.
type LLMClassifier struct {
	completer     model.Completer
	defaultAgent  string
	historyWindow int
	logger        *slog.Logger
}

// NewLLMClassifier creates a classifier over c. historyWindow bounds how much
// of the conversation is shown to the model.
func NewLLMClassifier(c model.Completer, defaultAgent string, historyWindow int, logger *slog.Logger) *LLMClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultAgent == "" {
		defaultAgent = agent.GeneralInfoName
	}
	if historyWindow <= 0 {
		historyWindow = agent.DefaultHistoryWindow
	}
	return &LLMClassifier{
		completer:     c,
		defaultAgent:  defaultAgent,
		historyWindow: historyWindow,
		logger:        logger.With("component", "classifier"),
	}
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, st *state.State, agents []agent.Description) (Classification, error) {
	out, err := c.completer.Complete(ctx, c.prompt(st, agents))
	if err != nil {
		return Classification{}, err
	}

	cl, ok := ParseClassification(out)
	if !ok {
		c.logger.Warn("unparseable classification",
			"conversation_id", st.ConversationID,
			"output", truncate(out, 200),
		)
	}
	return cl, nil
}

func (c *LLMClassifier) prompt(st *state.State, agents []agent.Description) model.Prompt {
	var catalog strings.Builder
	for _, a := range agents {
		fmt.Fprintf(&catalog, "- %s: %s\n", a.Name, a.Description)
	}

	var transcript strings.Builder
	transcript.WriteString("Conversation so far:\n")
	for _, m := range st.Recent(c.historyWindow) {
		author := string(m.Role)
		if m.Role == state.RoleAgent && m.AgentName != "" {
			author = m.AgentName
		}
		fmt.Fprintf(&transcript, "[%s] %s\n", author, m.Content)
	}

	return model.Prompt{
		System: fmt.Sprintf(routerInstructions, catalog.String(), c.defaultAgent),
		Messages: []model.Message{
			{Role: model.RoleUser, Content: transcript.String()},
		},
	}
}

type verdict struct {
	Next   string `json:"next"`
	Reason string `json:"reason"`
}

// ParseClassification extracts {"next", "reason"} from model output. The
// second result is false when no JSON object could be decoded; the returned
// classification is then empty, which the router treats as ambiguous.
func ParseClassification(out string) (Classification, bool) {
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start < 0 || end <= start {
		return Classification{}, false
	}

	var v verdict
	if err := json.Unmarshal([]byte(out[start:end+1]), &v); err != nil {
		return Classification{}, false
	}
	return Classification{Next: strings.TrimSpace(v.Next), Reason: v.Reason}, true
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

var _ Classifier = (*LLMClassifier)(nil)
