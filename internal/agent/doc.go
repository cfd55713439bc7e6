// Package agent implements the specialist support agents and the registry
// the router chooses between.
//
// # Overview
//
// Every agent satisfies one interface:
//
//	type Agent interface {
//	    Name() string
//	    Description() string
//	    Handle(ctx context.Context, st *state.State) error
//	}
//
// Handle builds a prompt from the agent's specialization and the recent
// history, makes exactly one model call, and appends the completion as an
// agent message. It never changes ActiveAgent; routing belongs to the router.
//
// # Variants
//
// The set is closed:
//
//   - Technical (technical_agent): troubleshooting and product issues
//   - Billing (billing_agent): invoices, payments, refunds
//   - GeneralInfo (general_info_agent): everything else, and the fallback
//
// # Registry
//
// The Registry maps names to agents. It is built once at startup and is
// read-only afterwards, so lookups need no locking:
//
//	reg, err := agent.NewStandardRegistry(completer, overrides, 10, logger)
//	a, err := reg.Get("billing_agent")
//
// # Errors
//
// A failed model call is reported as ErrAgentExecution wrapping the model
// error, so callers can match either one:
//
//	errors.Is(err, agent.ErrAgentExecution) // true
//	errors.Is(err, model.ErrModelTimeout)   // true when the model timed out
//
// No reply is appended on failure.
package agent
