package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ithil/pensieve/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.UpdateNote)
	r.Delete("/notes/*", h.DeleteNote)
	r.Get("/files/*", h.ServeFile)

	// Graph mutations.
	r.Get("/relations/*", h.Relations)
	r.Post("/links", h.AddLink)
	r.Delete("/links", h.RemoveLink)
	r.Post("/links/move", h.MoveLink)
	r.Post("/move", h.MoveNote)
	r.Post("/rename", h.RenameNote)

	// Collection structure.
	r.Get("/stacks", h.Stacks)
	r.Get("/dates/{role}/{date}", h.DateNode)
	r.Post("/dates/{role}/{date}", h.DateNode)
	r.Get("/templates", h.Templates)
	r.Post("/templates/{id}/run", h.RunTemplate)
	r.Get("/ports", h.Ports)
	r.Post("/ports/{port}/send", h.SendToPort)

	// Inbox.
	r.Post("/inbox", h.Upload)
	r.Post("/inbox/text", h.SendText)

	// Search and graph.
	r.Get("/search", h.Search)
	r.Get("/recent", h.Recent)
	r.Get("/graph", h.Graph)

	// Maintenance.
	r.Get("/check", h.Check)
	r.Post("/repair", h.Repair)
	r.Post("/commit", h.Commit)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
