package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		r.Get("/stats", h.Stats)

		// Conversations
		r.Post("/conversations", h.CreateConversation)
		r.Get("/conversations/{id}", h.GetConversation)
		r.Delete("/conversations/{id}", h.DeleteConversation)
		r.Put("/conversations/{id}/title", h.RenameConversation)

		// Turn flow
		r.Post("/conversations/{id}/messages", h.SendMessage)
		r.Post("/conversations/{id}/stream", h.StreamTurn)

		// Lifecycle transitions
		r.Post("/conversations/{id}/complete", h.CompleteConversation)
		r.Post("/conversations/{id}/archive", h.ArchiveConversation)
		r.Post("/conversations/{id}/reactivate", h.ReactivateConversation)
	})
}
