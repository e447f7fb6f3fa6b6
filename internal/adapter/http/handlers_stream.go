package http

import (
	"log/slog"
	"net/http"

	"github.com/sur-labs/reflex/internal/adapter/sse"
)

// StreamTurn handles POST /conversations/{id}/stream. It runs one
// assistant turn and delivers the events as SSE. Errors after the stream
// has started are reported in-band as an error event; the HTTP status is
// already committed by then.
func (h *Handlers) StreamTurn(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	sink, err := sse.NewSink(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	if err := h.streams.StreamTurn(r.Context(), id, sink); err != nil {
		slog.Warn("stream turn failed", "conversation_id", id, "error", err)
	}
}
