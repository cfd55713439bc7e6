// ABOUTME: Graph executor running the router/agent cycle to a terminal decision
// ABOUTME: Enforces the turn ceiling and reports RoutingLimitExceeded on the result

package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/support-gateway/internal/agent"
	"github.com/2389/support-gateway/internal/router"
	"github.com/2389/support-gateway/internal/state"
)

// ErrRoutingLimitExceeded marks a cycle that was terminated by the turn ceiling.
// It is reported through Result.LimitExceeded, not returned from Run.
var ErrRoutingLimitExceeded = errors.New("routing limit exceeded")

// LimitPlaceholder is the reply used when the ceiling is hit before any agent answered.
const LimitPlaceholder = "Sorry, I wasn't able to route your request. Please try rephrasing it."

// limitAgentName authors the placeholder reply.
const limitAgentName = "router"

// Phase is a state of the executor's state machine.
type Phase int

const (
	AwaitingRouting Phase = iota
	AgentRunning
	Done
)

func (p Phase) String() string {
	switch p {
	case AwaitingRouting:
		return "AWAITING_ROUTING"
	case AgentRunning:
		return "AGENT_RUNNING"
	case Done:
		return "DONE"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Decider chooses the next step. *router.Router implements it.
type Decider interface {
	Decide(ctx context.Context, st *state.State) (router.Decision, error)
}

// AgentSource looks agents up by name. *agent.Registry implements it.
type AgentSource interface {
	Get(name string) (agent.Agent, error)
}

// Config holds resolved executor settings.
type Config struct {
	MaxTurns int
}

// Result describes a completed cycle.
type Result struct {
	Reply         string
	AgentName     string
	Turns         int
	LimitExceeded bool
}

// Err returns ErrRoutingLimitExceeded when the ceiling forced termination.
func (r *Result) Err() error {
	if r.LimitExceeded {
		return ErrRoutingLimitExceeded
	}
	return nil
}

// Executor runs cycles. It holds no per-conversation state and is safe for
// concurrent use across different conversations.
type Executor struct {
	decider  Decider
	agents   AgentSource
	maxTurns int
	logger   *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(d Decider, agents AgentSource, cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = router.DefaultMaxTurns
	}
	return &Executor{
		decider:  d,
		agents:   agents,
		maxTurns: cfg.MaxTurns,
		logger:   logger.With("component", "graph"),
	}
}

// Run drives st from AWAITING_ROUTING to DONE. st must hold the triggering
// user message and must not be terminated. On error st keeps every message
// appended so far and Terminated stays false.
func (e *Executor) Run(ctx context.Context, st *state.State) (*Result, error) {
	if st.Terminated {
		return nil, fmt.Errorf("%w: cycle already terminated", state.ErrInvalidState)
	}
	if last, ok := st.LastMessage(); !ok || last.Role != state.RoleUser {
		return nil, fmt.Errorf("%w: cycle must start with a user message", state.ErrInvalidState)
	}

	log := e.logger.With("conversation_id", st.ConversationID)
	phase := AwaitingRouting
	forced := false

	for phase != Done {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("cycle interrupted in %s: %w", phase, err)
		}

		switch phase {
		case AwaitingRouting:
			d, err := e.decider.Decide(ctx, st)
			if err != nil {
				return nil, fmt.Errorf("routing turn %d: %w", st.TurnCount+1, err)
			}

			if d.Kind == router.KindRoute && st.TurnCount >= e.maxTurns {
				log.Warn("decider routed past the turn ceiling", "turn_count", st.TurnCount, "agent", d.Agent)
				d = router.Terminate()
				d.Forced = true
			}

			if d.Kind == router.KindTerminate {
				forced = d.Forced
				phase = Done
				break
			}

			if err := st.RouteTo(d.Agent); err != nil {
				return nil, err
			}
			log.Debug("routed", "agent", d.Agent, "turn_count", st.TurnCount, "reason", d.Reason)
			phase = AgentRunning

		case AgentRunning:
			a, err := e.agents.Get(st.ActiveAgent)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", state.ErrInvalidState, err)
			}
			if err := a.Handle(ctx, st); err != nil {
				return nil, err
			}
			phase = AwaitingRouting
		}
	}

	if forced {
		if _, ok := st.Reply(); !ok {
			if _, err := st.AppendMessage(state.RoleAgent, LimitPlaceholder, limitAgentName); err != nil {
				return nil, err
			}
		}
	}
	if err := st.Terminate(); err != nil {
		return nil, err
	}

	reply, _ := st.Reply()
	res := &Result{
		Reply:         reply.Content,
		AgentName:     reply.AgentName,
		Turns:         st.TurnCount,
		LimitExceeded: forced,
	}
	log.Info("cycle complete",
		"agent", res.AgentName,
		"turn_count", res.Turns,
		"limit_exceeded", res.LimitExceeded,
	)
	return res, nil
}
