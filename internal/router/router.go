// ABOUTME: Supervisor decision logic choosing RouteTo(agent) or Terminate for each turn
// ABOUTME: Applies the turn ceiling and falls back to the default agent on ambiguity

package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/support-gateway/internal/agent"
	"github.com/2389/support-gateway/internal/state"
)

// Finish is the classification meaning the latest agent reply concludes the turn.
const Finish = "FINISH"

// DefaultMaxTurns bounds routing decisions per cycle when no ceiling is configured.
const DefaultMaxTurns = 3

// Kind distinguishes the two decision variants.
type Kind int

const (
	KindRoute Kind = iota
	KindTerminate
)

// Decision is the router's verdict for one step of a cycle.
type Decision struct {
	Kind  Kind
	Agent string
	// Forced is set when Terminate came from the turn ceiling.
	Forced bool
	Reason string
}

// RouteTo returns a decision that hands the turn to name.
func RouteTo(name string) Decision {
	return Decision{Kind: KindRoute, Agent: name}
}

// Terminate returns a decision that ends the cycle.
func Terminate() Decision {
	return Decision{Kind: KindTerminate}
}

func (d Decision) String() string {
	switch {
	case d.Kind == KindRoute:
		return "route:" + d.Agent
	case d.Forced:
		return "terminate:forced"
	default:
		return "terminate"
	}
}

// Classification is a classifier's raw answer: an agent name, Finish, or
// anything else (treated as ambiguous).
type Classification struct {
	Next   string
	Reason string
}

// Classifier categorises the current state of a conversation.
type Classifier interface {
	Classify(ctx context.Context, st *state.State, agents []agent.Description) (Classification, error)
}

// Config holds resolved routing settings.
type Config struct {
	MaxTurns     int
	DefaultAgent string
}

// Router decides the next step of a cycle.
type Router struct {
	classifier   Classifier
	registry     *agent.Registry
	maxTurns     int
	defaultAgent string
	logger       *slog.Logger
}

// New creates a Router. The default agent must be registered.
func New(c Classifier, reg *agent.Registry, cfg Config, logger *slog.Logger) (*Router, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.DefaultAgent == "" {
		cfg.DefaultAgent = agent.GeneralInfoName
	}
	if !reg.Has(cfg.DefaultAgent) {
		return nil, fmt.Errorf("default agent: %w: %s (registered: %s)",
			agent.ErrAgentNotFound, cfg.DefaultAgent, strings.Join(reg.Names(), ", "))
	}
	return &Router{
		classifier:   c,
		registry:     reg,
		maxTurns:     cfg.MaxTurns,
		defaultAgent: cfg.DefaultAgent,
		logger:       logger.With("component", "router"),
	}, nil
}

// MaxTurns returns the configured turn ceiling.
func (r *Router) MaxTurns() int {
	return r.maxTurns
}

// Decide returns the next step for st. It does not mutate st.
func (r *Router) Decide(ctx context.Context, st *state.State) (Decision, error) {
	if st.TurnCount >= r.maxTurns {
		r.logger.Warn("turn ceiling reached, forcing termination",
			"conversation_id", st.ConversationID,
			"turn_count", st.TurnCount,
			"max_turns", r.maxTurns,
		)
		d := Terminate()
		d.Forced = true
		d.Reason = "turn ceiling reached"
		return d, nil
	}

	c, err := r.classifier.Classify(ctx, st, r.registry.Describe())
	if err != nil {
		return Decision{}, fmt.Errorf("classifying message: %w", err)
	}

	d := r.resolve(st, c)
	r.logger.Debug("routing decision",
		"conversation_id", st.ConversationID,
		"turn_count", st.TurnCount,
		"classified_as", c.Next,
		"decision", d.String(),
	)
	return d, nil
}

// resolve maps a classification onto a decision. It is deterministic in (st, c).
func (r *Router) resolve(st *state.State, c Classification) Decision {
	next := strings.TrimSpace(c.Next)

	if strings.EqualFold(next, Finish) {
		if _, ok := st.Reply(); ok {
			d := Terminate()
			d.Reason = c.Reason
			return d
		}
		d := RouteTo(r.defaultAgent)
		d.Reason = "finish requested before any agent reply"
		return d
	}

	name := strings.ToLower(next)
	if r.registry.Has(name) {
		d := RouteTo(name)
		d.Reason = c.Reason
		return d
	}

	d := RouteTo(r.defaultAgent)
	d.Reason = fmt.Sprintf("ambiguous classification %q", next)
	return d
}
