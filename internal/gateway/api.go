// ABOUTME: HTTP API handlers for chat, history, cycle log and agent listing
// ABOUTME: Maps conversation errors onto status codes with a retryable flag

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/2389/support-gateway/internal/auth"
	"github.com/2389/support-gateway/internal/conversation"
	"github.com/2389/support-gateway/internal/state"
	"github.com/2389/support-gateway/internal/store"
)

// maxChatBodyBytes bounds POST /api/chat bodies.
const maxChatBodyBytes = 64 << 10

// ChatRequest is the JSON request body for POST /api/chat.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty" validate:"omitempty,max=128,printascii"`
	Message        string `json:"message" validate:"required,max=8000"`
	RequestID      string `json:"request_id,omitempty" validate:"omitempty,max=128"`
}

// ChatResponse is the JSON response for POST /api/chat.
type ChatResponse struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
	AgentName      string `json:"agent_name"`
	Status         string `json:"status"`
	LimitExceeded  bool   `json:"limit_exceeded"`
	Turns          int    `json:"turns"`
	TimeTakenMS    int64  `json:"time_taken_ms"`
}

// Chat status values
const (
	StatusOK                   = "ok"
	StatusRoutingLimitExceeded = "routing_limit_exceeded"
)

// ErrorResponse is the JSON body of every API failure.
type ErrorResponse struct {
	Error          string `json:"error"`
	Retryable      bool   `json:"retryable"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// MessageResponse is one history entry.
type MessageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	HTML      string    `json:"html,omitempty"`
	AgentName string    `json:"agent_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationResponse is the JSON response for GET /api/conversations/{id}.
type ConversationResponse struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []MessageResponse `json:"messages"`
	TurnCount      int               `json:"turn_count"`
	Terminated     bool              `json:"terminated"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// CycleResponse is one cycle log entry.
type CycleResponse struct {
	ID         string    `json:"id"`
	Outcome    string    `json:"outcome"`
	AgentName  string    `json:"agent_name,omitempty"`
	TurnCount  int       `json:"turn_count"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// handleRoot reports that the gateway is running.
func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "Support gateway is running",
		"datetime": time.Now().Format("2006-01-02 15:04:05"),
	})
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the store answers a ping.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d agents)", g.registry.Len())
}

// handleChat runs one cycle for the posted message.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := g.parseChatRequest(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	resp, err := g.conversation.HandleMessage(r.Context(), conversation.SendRequest{
		ConversationID: req.ConversationID,
		Content:        req.Message,
		RequestID:      req.RequestID,
	})
	if err != nil {
		g.sendCycleError(w, r, err)
		return
	}

	status := StatusOK
	if resp.LimitExceeded {
		status = StatusRoutingLimitExceeded
	}
	writeJSON(w, http.StatusOK, ChatResponse{
		ConversationID: resp.ConversationID,
		Reply:          resp.Reply,
		AgentName:      resp.AgentName,
		Status:         status,
		LimitExceeded:  resp.LimitExceeded,
		Turns:          resp.Turns,
		TimeTakenMS:    resp.Duration.Milliseconds(),
	})
}

// sendCycleError maps a HandleMessage failure onto an HTTP status.
func (g *Gateway) sendCycleError(w http.ResponseWriter, r *http.Request, err error) {
	body := ErrorResponse{Error: err.Error()}
	var cycleErr *conversation.CycleError
	if errors.As(err, &cycleErr) {
		body.ConversationID = cycleErr.ConversationID
		body.Error = cycleErr.Err.Error()
	}

	log := g.logger.With("conversation_id", body.ConversationID, "caller", auth.SubjectFromContext(r.Context()))

	var status int
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		status = http.StatusBadRequest
	case errors.Is(err, conversation.ErrDuplicateRequest):
		status = http.StatusConflict
	case errors.Is(err, conversation.ErrCycleAborted):
		// Nothing was saved, so the same message can be sent again.
		status = http.StatusGatewayTimeout
		body.Retryable = true
		log.Warn("cycle aborted", "error", err)
	case conversation.Retryable(err):
		status = http.StatusServiceUnavailable
		body.Retryable = true
		log.Warn("cycle failed, history kept", "error", err)
	case errors.Is(err, state.ErrInvalidState):
		status = http.StatusInternalServerError
		log.Error("invalid conversation state", "error", err)
	default:
		status = http.StatusInternalServerError
		body.Error = "internal server error"
		log.Error("cycle failed", "error", err)
	}

	sendJSONError(w, status, body)
}

// handleListAgents returns the registered agents.
func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.registry.Describe())
}

// handleGetConversation returns the stored history of one conversation.
// ?format=html adds rendered markdown for every message.
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := g.conversation.GetConversation(r.Context(), id)
	if err != nil {
		g.sendLookupError(w, id, err)
		return
	}

	renderHTML := r.URL.Query().Get("format") == "html"
	resp := ConversationResponse{
		ConversationID: st.ConversationID,
		Messages:       make([]MessageResponse, 0, len(st.Messages)),
		TurnCount:      st.TurnCount,
		Terminated:     st.Terminated,
		CreatedAt:      st.CreatedAt,
		UpdatedAt:      st.UpdatedAt,
	}
	for _, m := range st.Messages {
		mr := toMessageResponse(m)
		if renderHTML {
			mr.HTML = g.renderMarkdown(m.Content)
		}
		resp.Messages = append(resp.Messages, mr)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteConversation clears a conversation's history and cycle log.
func (g *Gateway) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := g.conversation.DeleteConversation(r.Context(), id); err != nil {
		if r.Context().Err() != nil {
			sendJSONError(w, http.StatusGatewayTimeout, ErrorResponse{
				Error:          "conversation is busy",
				Retryable:      true,
				ConversationID: id,
			})
			return
		}
		g.sendLookupError(w, id, err)
		return
	}

	g.logger.Info("conversation cleared", "conversation_id", id, "caller", auth.SubjectFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// handleListCycles returns recent cycle outcomes for a conversation.
func (g *Gateway) handleListCycles(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			sendJSONError(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	records, err := g.conversation.ListCycles(r.Context(), id, limit)
	if err != nil {
		g.sendLookupError(w, id, err)
		return
	}

	resp := make([]CycleResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, CycleResponse{
			ID:         rec.ID,
			Outcome:    string(rec.Outcome),
			AgentName:  rec.AgentName,
			TurnCount:  rec.TurnCount,
			Error:      rec.Error,
			DurationMS: rec.Duration.Milliseconds(),
			CreatedAt:  rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) sendLookupError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		sendJSONError(w, http.StatusNotFound, ErrorResponse{Error: "conversation not found", ConversationID: id})
		return
	}
	g.logger.Error("failed to load conversation", "conversation_id", id, "error", err)
	sendJSONError(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", ConversationID: id})
}

func toMessageResponse(m state.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		Role:      string(m.Role),
		Content:   m.Content,
		AgentName: m.AgentName,
		CreatedAt: m.CreatedAt,
	}
}

// parseChatRequest decodes and validates a ChatRequest.
func (g *Gateway) parseChatRequest(r io.Reader) (*ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if err := g.validate.Struct(&req); err != nil {
		return nil, errors.New(describeValidation(err))
	}
	return &req, nil
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func describeValidation(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "invalid request"
	}
	fe := ve[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fe.Field() + " is invalid"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, body ErrorResponse) {
	writeJSON(w, status, body)
}
