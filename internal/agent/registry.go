// ABOUTME: Fixed name-to-agent registry built once at startup
// ABOUTME: Provides lookup and stable name/description listings for routing

package agent

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/support-gateway/internal/model"
)

// ErrAgentAlreadyRegistered indicates two agents share a name.
var ErrAgentAlreadyRegistered = errors.New("agent already registered")

// ErrAgentNotFound indicates the requested agent is not in the registry.
var ErrAgentNotFound = errors.New("agent not found")

// Description is the public summary of one registered agent.
type Description struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Registry is an immutable set of agents keyed by name.
type Registry struct {
	agents map[string]Agent
	order  []string
}

// NewRegistry builds a registry. Registration order is preserved by Names and Describe.
func NewRegistry(agents ...Agent) (*Registry, error) {
	r := &Registry{agents: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		name := a.Name()
		if name == "" {
			return nil, errors.New("agent name must not be empty")
		}
		if _, exists := r.agents[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrAgentAlreadyRegistered, name)
		}
		r.agents[name] = a
		r.order = append(r.order, name)
	}
	return r, nil
}

// NewStandardRegistry builds the technical, billing and general-information
// agents over one completer. overrides is keyed by agent name; an unknown key
// is an error.
func NewStandardRegistry(c model.Completer, overrides map[string]Options, historyWindow int, logger *slog.Logger) (*Registry, error) {
	opts := func(name string) Options {
		o := overrides[name]
		if o.HistoryWindow == 0 {
			o.HistoryWindow = historyWindow
		}
		if o.Logger == nil {
			o.Logger = logger
		}
		return o
	}

	for name := range overrides {
		switch name {
		case TechnicalName, BillingName, GeneralInfoName:
		default:
			return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
		}
	}

	return NewRegistry(
		NewTechnical(c, opts(TechnicalName)),
		NewBilling(c, opts(BillingName)),
		NewGeneralInfo(c, opts(GeneralInfoName)),
	)
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (Agent, error) {
	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return a, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.agents[name]
	return ok
}

// Names returns agent names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Describe returns name and description for every agent in registration order.
func (r *Registry) Describe() []Description {
	out := make([]Description, 0, len(r.order))
	for _, name := range r.order {
		a := r.agents[name]
		out = append(out, Description{Name: name, Description: a.Description()})
	}
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	return len(r.order)
}
