package http

import (
	"net/http"

	"github.com/sur-labs/reflex/internal/service"
)

// CreateConversation handles POST /conversations.
func (h *Handlers) CreateConversation(w http.ResponseWriter, r *http.Request) {
	req := service.CreateRequest{}
	if r.ContentLength > 0 {
		var ok bool
		req, ok = readJSON[service.CreateRequest](w, r)
		if !ok {
			return
		}
	}

	conv, err := h.conversations.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusCreated, h.toResponse(conv, false))
}

// GetConversation handles GET /conversations/{id}.
func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversations.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(conv, true))
}

// DeleteConversation handles DELETE /conversations/{id}.
func (h *Handlers) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.conversations.Delete(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /stats.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	count, err := h.conversations.Count(r.Context())
	if err != nil {
		writeDomainError(w, err, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"conversations": count})
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage handles POST /conversations/{id}/messages. It appends the
// user message only; the reply is produced by the stream endpoint.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[sendMessageRequest](w, r)
	if !ok {
		return
	}

	conv, err := h.conversations.SendMessage(r.Context(), urlParam(r, "id"), req.Content)
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(conv, false))
}

// CompleteConversation handles POST /conversations/{id}/complete.
func (h *Handlers) CompleteConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversations.Complete(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(conv, false))
}

// ArchiveConversation handles POST /conversations/{id}/archive.
func (h *Handlers) ArchiveConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversations.Archive(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(conv, false))
}

// ReactivateConversation handles POST /conversations/{id}/reactivate.
func (h *Handlers) ReactivateConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversations.Reactivate(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(conv, false))
}

type renameRequest struct {
	Title string `json:"title"`
}

// RenameConversation handles PUT /conversations/{id}/title.
func (h *Handlers) RenameConversation(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[renameRequest](w, r)
	if !ok {
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	conv, err := h.conversations.Rename(r.Context(), urlParam(r, "id"), req.Title)
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(conv, false))
}
