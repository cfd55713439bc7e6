// ABOUTME: Conversation service running one routing cycle per inbound message
// ABOUTME: Owns load/save, per-conversation serialization, timeouts and request dedupe

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/support-gateway/internal/agent"
	"github.com/2389/support-gateway/internal/dedupe"
	"github.com/2389/support-gateway/internal/graph"
	"github.com/2389/support-gateway/internal/model"
	"github.com/2389/support-gateway/internal/state"
	"github.com/2389/support-gateway/internal/store"
)

var (
	// ErrCycleAborted is returned when the caller cancelled or the cycle timed out.
	// Nothing from the aborted cycle is saved.
	ErrCycleAborted = errors.New("cycle aborted")

	// ErrDuplicateRequest is returned when a request id is replayed within the dedupe window.
	ErrDuplicateRequest = errors.New("duplicate request")

	// ErrEmptyMessage is returned for blank message content.
	ErrEmptyMessage = errors.New("message content is required")
)

// saveTimeout bounds persistence after a cycle has finished.
const saveTimeout = 5 * time.Second

// requestNamespace seeds conversation ids derived from request ids.
var requestNamespace = uuid.MustParse("6f1c2a52-3a8e-4c1e-9b1e-5d7f0c9b8a41")

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	LoadConversation(ctx context.Context, id string) (*state.State, error)
	SaveConversation(ctx context.Context, st *state.State) error
	DeleteConversation(ctx context.Context, id string) error
	RecordCycle(ctx context.Context, rec *store.CycleRecord) error
	ListCycles(ctx context.Context, conversationID string, limit int) ([]*store.CycleRecord, error)
}

// CycleRunner drives a state through one cycle. *graph.Executor implements it.
type CycleRunner interface {
	Run(ctx context.Context, st *state.State) (*graph.Result, error)
}

// Config holds resolved service settings.
type Config struct {
	// CycleTimeout bounds lock wait plus the whole cycle. Zero means no limit.
	CycleTimeout time.Duration

	// Dedupe, when set, rejects replayed request ids.
	Dedupe *dedupe.Cache

	// Broadcaster, when set, receives every saved message.
	Broadcaster *Broadcaster
}

// Service is the conversation layer: every inbound message becomes exactly
// one cycle, and history is persisted according to how that cycle ended.
type Service struct {
	store        ConversationStore
	runner       CycleRunner
	locks        *lockTable
	dedupe       *dedupe.Cache
	broadcaster  *Broadcaster
	cycleTimeout time.Duration
	logger       *slog.Logger
}

// New creates a new Service.
func New(st ConversationStore, runner CycleRunner, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:        st,
		runner:       runner,
		locks:        newLockTable(),
		dedupe:       cfg.Dedupe,
		broadcaster:  cfg.Broadcaster,
		cycleTimeout: cfg.CycleTimeout,
		logger:       logger.With("component", "conversation"),
	}
}

// SendRequest is one inbound user message.
type SendRequest struct {
	// ConversationID is optional; empty starts a new conversation.
	ConversationID string
	Content        string
	// RequestID is an optional client-chosen idempotency key. When it opens a
	// new conversation, the conversation id is derived from it so a replay
	// lands on the same conversation.
	RequestID string
}

// SendResponse is the outcome of a completed cycle.
type SendResponse struct {
	ConversationID string
	Reply          string
	AgentName      string
	LimitExceeded  bool
	Turns          int
	Duration       time.Duration
}

// CycleError carries the conversation id alongside a failed cycle's error so
// the boundary layer can tell the client which conversation to retry.
type CycleError struct {
	ConversationID string
	Err            error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("conversation %s: %v", e.ConversationID, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

// Retryable reports whether err is a transient failure the client may retry.
func Retryable(err error) bool {
	return errors.Is(err, model.ErrModelUnavailable) ||
		errors.Is(err, model.ErrModelTimeout) ||
		errors.Is(err, agent.ErrAgentExecution) ||
		errors.Is(err, store.ErrConflict)
}

// HandleMessage runs one cycle for req.
func (s *Service) HandleMessage(ctx context.Context, req SendRequest) (*SendResponse, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	id := req.ConversationID
	switch {
	case id != "":
	case req.RequestID != "":
		id = uuid.NewSHA1(requestNamespace, []byte(req.RequestID)).String()
	default:
		id = uuid.New().String()
	}
	log := s.logger.With("conversation_id", id)

	var dedupeKey string
	if s.dedupe != nil && req.RequestID != "" {
		dedupeKey = dedupe.Key(id, req.RequestID)
		if s.dedupe.CheckAndMark(dedupeKey) {
			log.Info("duplicate request rejected", "request_id", req.RequestID)
			return nil, &CycleError{ConversationID: id, Err: ErrDuplicateRequest}
		}
	}

	resp, err := s.runCycle(ctx, id, content, log)
	if err != nil {
		if dedupeKey != "" {
			s.dedupe.Forget(dedupeKey)
		}
		return nil, &CycleError{ConversationID: id, Err: err}
	}
	return resp, nil
}

func (s *Service) runCycle(ctx context.Context, id, content string, log *slog.Logger) (*SendResponse, error) {
	cycleCtx := ctx
	if s.cycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, s.cycleTimeout)
		defer cancel()
	}

	release, err := s.locks.acquire(cycleCtx, id)
	if err != nil {
		log.Warn("gave up waiting for conversation lock", "error", err)
		return nil, fmt.Errorf("%w: waiting for conversation: %w", ErrCycleAborted, err)
	}
	defer release()

	st, err := s.store.LoadConversation(cycleCtx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Debug("starting new conversation")
		st = state.New(id)
	case err != nil:
		if cycleCtx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrCycleAborted, context.Cause(cycleCtx))
		}
		return nil, fmt.Errorf("loading conversation: %w", err)
	}

	st.BeginCycle()
	firstNew := len(st.Messages)
	if _, err := st.AppendMessage(state.RoleUser, content, ""); err != nil {
		return nil, err
	}

	start := time.Now()
	res, runErr := s.runner.Run(cycleCtx, st)
	elapsed := time.Since(start)

	switch {
	case runErr == nil:
		if err := s.save(ctx, st); err != nil {
			return nil, err
		}
		s.publish(st, firstNew)

		rec := &store.CycleRecord{
			ConversationID: id,
			Outcome:        store.OutcomeOK,
			AgentName:      res.AgentName,
			TurnCount:      res.Turns,
			Duration:       elapsed,
		}
		if err := res.Err(); err != nil {
			rec.Outcome = store.OutcomeLimitExceeded
			rec.Error = err.Error()
			log.Warn("cycle hit routing limit", "turn_count", res.Turns)
		}
		s.record(ctx, rec)

		return &SendResponse{
			ConversationID: id,
			Reply:          res.Reply,
			AgentName:      res.AgentName,
			LimitExceeded:  res.LimitExceeded,
			Turns:          res.Turns,
			Duration:       elapsed,
		}, nil

	case cycleCtx.Err() != nil:
		log.Warn("cycle abandoned", "error", runErr, "turn_count", st.TurnCount)
		s.record(ctx, &store.CycleRecord{
			ConversationID: id,
			Outcome:        store.OutcomeAborted,
			TurnCount:      st.TurnCount,
			Error:          runErr.Error(),
			Duration:       elapsed,
		})
		return nil, fmt.Errorf("%w: %w", ErrCycleAborted, context.Cause(cycleCtx))

	case errors.Is(runErr, state.ErrInvalidState):
		log.Error("cycle violated state invariants", "error", runErr)
		s.record(ctx, &store.CycleRecord{
			ConversationID: id,
			Outcome:        store.OutcomeFailed,
			TurnCount:      st.TurnCount,
			Error:          runErr.Error(),
			Duration:       elapsed,
		})
		return nil, runErr

	default:
		// Keep what the cycle accumulated so a retry continues the conversation.
		log.Warn("cycle failed, saving partial history", "error", runErr, "turn_count", st.TurnCount)
		if err := s.save(ctx, st); err != nil {
			log.Error("failed to save partial history", "error", err)
		} else {
			s.publish(st, firstNew)
		}
		s.record(ctx, &store.CycleRecord{
			ConversationID: id,
			Outcome:        store.OutcomeFailed,
			AgentName:      st.ActiveAgent,
			TurnCount:      st.TurnCount,
			Error:          runErr.Error(),
			Duration:       elapsed,
		})
		return nil, runErr
	}
}

// save persists st on a context detached from the caller's cancellation.
func (s *Service) save(ctx context.Context, st *state.State) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if err := s.store.SaveConversation(saveCtx, st); err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, rec *store.CycleRecord) {
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if err := s.store.RecordCycle(recCtx, rec); err != nil {
		s.logger.Error("failed to record cycle",
			"conversation_id", rec.ConversationID,
			"outcome", rec.Outcome,
			"error", err)
	}
}

func (s *Service) publish(st *state.State, from int) {
	if s.broadcaster == nil || from >= len(st.Messages) {
		return
	}
	s.broadcaster.Publish(st.ConversationID, st.Messages[from:]...)
}

// GetConversation returns the stored state for id.
// Returns store.ErrNotFound for unknown conversations.
func (s *Service) GetConversation(ctx context.Context, id string) (*state.State, error) {
	return s.store.LoadConversation(ctx, id)
}

// DeleteConversation clears the history and cycle log of id once any cycle
// in flight for it has finished. Returns store.ErrNotFound for unknown ids.
func (s *Service) DeleteConversation(ctx context.Context, id string) error {
	release, err := s.locks.acquire(ctx, id)
	if err != nil {
		return fmt.Errorf("waiting for conversation: %w", err)
	}
	defer release()

	if err := s.store.DeleteConversation(ctx, id); err != nil {
		return err
	}
	s.logger.Info("conversation deleted", "conversation_id", id)
	return nil
}

// ListCycles returns recent cycle outcomes for id, newest first.
func (s *Service) ListCycles(ctx context.Context, id string, limit int) ([]*store.CycleRecord, error) {
	return s.store.ListCycles(ctx, id, limit)
}

// Subscribe streams messages saved to conversation id until ctx is done.
// The second result is false when broadcasting is disabled.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan state.Message, bool) {
	if s.broadcaster == nil {
		return nil, false
	}
	ch, _ := s.broadcaster.Subscribe(ctx, id)
	return ch, true
}

// Close releases the dedupe cache and subscriber channels.
func (s *Service) Close() {
	if s.dedupe != nil {
		s.dedupe.Close()
	}
	if s.broadcaster != nil {
		s.broadcaster.Close()
	}
}
