// ABOUTME: Server-sent event stream of messages saved to a conversation
// ABOUTME: Emits a subscribed event, then one message event per persisted message

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

var sseKeepaliveInterval = 30 * time.Second

// handleConversationEvents streams messages as cycles on the conversation are saved.
// The conversation does not need to exist yet.
func (g *Gateway) handleConversationEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		sendJSONError(w, http.StatusInternalServerError, ErrorResponse{Error: "streaming not supported"})
		return
	}

	ctx := r.Context()
	msgs, enabled := g.conversation.Subscribe(ctx, id)
	if !enabled {
		sendJSONError(w, http.StatusNotImplemented, ErrorResponse{Error: "event streaming disabled"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "subscribed", map[string]string{"conversation_id": id})
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			g.writeSSEEvent(w, "message", toMessageResponse(msg))
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, dataJSON)
}
