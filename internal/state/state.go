// ABOUTME: Conversation state threaded through one support session
// ABOUTME: Append-only message history plus per-cycle routing metadata

package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidState indicates a contract violation against the conversation state,
// such as appending after the current cycle has terminated. It is never retried.
var ErrInvalidState = errors.New("invalid conversation state")

// Role identifies who authored a message.
type Role string

// Message roles
const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleSystem:
		return true
	}
	return false
}

// Message is a single entry in the conversation history.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	AgentName string    `json:"agent_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// State is the mutable record of one conversation. Messages are append-only;
// ActiveAgent, TurnCount and Terminated describe the cycle currently in flight.
type State struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
	ActiveAgent    string    `json:"active_agent,omitempty"`
	TurnCount      int       `json:"turn_count"`
	Terminated     bool      `json:"terminated"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Version is the persisted revision this state was loaded at (0 = never saved).
	// It is owned by the store and not serialized with the state.
	Version int64 `json:"-"`
}

// New creates a fresh state with empty history and no active agent.
func New(conversationID string) *State {
	now := time.Now().UTC()
	return &State{
		ConversationID: conversationID,
		Messages:       []Message{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// BeginCycle resets the per-cycle routing metadata before a new inbound message
// is processed. History is left untouched.
func (s *State) BeginCycle() {
	s.ActiveAgent = ""
	s.TurnCount = 0
	s.Terminated = false
}

// AppendMessage appends a message to the history. It fails with ErrInvalidState
// once the current cycle has terminated or when the role is unknown.
func (s *State) AppendMessage(role Role, content, agentName string) (Message, error) {
	if s.Terminated {
		return Message{}, fmt.Errorf("%w: append after termination", ErrInvalidState)
	}
	if !role.Valid() {
		return Message{}, fmt.Errorf("%w: unknown role %q", ErrInvalidState, role)
	}

	msg := Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		AgentName: agentName,
		CreatedAt: time.Now().UTC(),
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = msg.CreatedAt
	return msg, nil
}

// RouteTo records a routing decision: the named agent becomes active and the
// turn counter advances.
func (s *State) RouteTo(agentName string) error {
	if s.Terminated {
		return fmt.Errorf("%w: routing after termination", ErrInvalidState)
	}
	s.ActiveAgent = agentName
	s.TurnCount++
	return nil
}

// Terminate marks the current cycle complete. The latest message must be a
// non-empty agent reply and the cycle must not already be terminated.
func (s *State) Terminate() error {
	if s.Terminated {
		return fmt.Errorf("%w: cycle already terminated", ErrInvalidState)
	}
	if _, ok := s.Reply(); !ok {
		return fmt.Errorf("%w: terminating without an agent reply", ErrInvalidState)
	}
	s.Terminated = true
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// LastMessage returns the most recent message, if any.
func (s *State) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Reply returns the latest message when it is a non-empty agent reply.
func (s *State) Reply() (Message, bool) {
	last, ok := s.LastMessage()
	if !ok || last.Role != RoleAgent || last.Content == "" {
		return Message{}, false
	}
	return last, true
}

// Recent returns a copy of the last n messages in chronological order.
// A non-positive n returns the whole history.
func (s *State) Recent(n int) []Message {
	start := 0
	if n > 0 && len(s.Messages) > n {
		start = len(s.Messages) - n
	}
	out := make([]Message, len(s.Messages)-start)
	copy(out, s.Messages[start:])
	return out
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	return &c
}
