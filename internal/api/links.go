package api

import (
	"log/slog"
	"net/http"
)

// Relations handles GET /api/relations/*.
//
//	@Summary		Get the links and backlinks of a note
//	@Tags			relations
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	noteservice.Relations
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/relations/{path} [get]
func (h *Handler) Relations(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	rel, err := h.svc.Relations(r.Context(), path)
	if err != nil {
		writeError(w, "relations", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

// AddLink handles POST /api/links. Adding an existing link replaces its
// props in place.
//
//	@Summary		Link two notes
//	@Tags			relations
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LinkRequest	true	"Link to add"
//	@Success		200		{object}	noteservice.Relations
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links [post]
func (h *Handler) AddLink(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Source == "" || req.Target == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("source and target are required"))
		return
	}
	rel, err := h.svc.AddLink(r.Context(), req.Source, req.Target, req.Props)
	if err != nil {
		writeError(w, "add link", err, slog.String("source", req.Source), slog.String("target", req.Target))
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

// RemoveLink handles DELETE /api/links?source=…&target=….
func (h *Handler) RemoveLink(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	target := r.URL.Query().Get("target")
	if source == "" || target == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("source and target are required"))
		return
	}
	rel, err := h.svc.RemoveLink(r.Context(), source, target)
	if err != nil {
		writeError(w, "remove link", err, slog.String("source", source), slog.String("target", target))
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

// MoveLink handles POST /api/links/move.
func (h *Handler) MoveLink(w http.ResponseWriter, r *http.Request) {
	var req MoveLinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Source == "" || req.Target == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("source and target are required"))
		return
	}
	rel, err := h.svc.MoveLink(r.Context(), req.Source, req.Target, req.Delta)
	if err != nil {
		writeError(w, "move link", err, slog.String("source", req.Source), slog.String("target", req.Target))
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

// MoveNote handles POST /api/move.
//
//	@Summary		Send a note to another stack
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MoveNoteRequest	true	"Note and destination stack"
//	@Success		200		{object}	PathResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/move [post]
func (h *Handler) MoveNote(w http.ResponseWriter, r *http.Request) {
	var req MoveNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	p, err := h.svc.MoveNote(r.Context(), req.Path, req.Stack)
	if err != nil {
		writeError(w, "move note", err, slog.String("path", req.Path), slog.String("stack", req.Stack))
		return
	}
	writeJSON(w, http.StatusOK, PathResponse{Path: p})
}

// RenameNote handles POST /api/rename.
func (h *Handler) RenameNote(w http.ResponseWriter, r *http.Request) {
	var req RenameNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Path == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and name are required"))
		return
	}
	p, err := h.svc.RenameNote(r.Context(), req.Path, req.Name)
	if err != nil {
		writeError(w, "rename note", err, slog.String("path", req.Path))
		return
	}
	writeJSON(w, http.StatusOK, PathResponse{Path: p})
}
