package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Stacks handles GET /api/stacks?path=…. An empty path lists the root.
//
//	@Summary		List the sub-stacks and notes of a stack
//	@Tags			stacks
//	@Produce		json
//	@Param			path	query		string	false	"Stack path"
//	@Success		200		{object}	noteservice.StackListing
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/stacks [get]
func (h *Handler) Stacks(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	listing, err := h.svc.Stacks(r.Context(), path)
	if err != nil {
		writeError(w, "list stack", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// DateNode handles GET and POST /api/dates/{role}/{date}. POST creates the
// node when it is missing; GET only looks it up.
func (h *Handler) DateNode(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	date, err := time.ParseInLocation(time.DateOnly, chi.URLParam(r, "date"), time.Local)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("date must be YYYY-MM-DD"))
		return
	}
	create := r.Method == http.MethodPost
	note, err := h.svc.DateNode(r.Context(), role, date, create)
	if err != nil {
		writeError(w, "date node", err, slog.String("role", role))
		return
	}
	status := http.StatusOK
	if create {
		status = http.StatusCreated
	}
	writeJSON(w, status, note)
}

// Templates handles GET /api/templates.
func (h *Handler) Templates(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Templates(r.Context())
	if err != nil {
		writeError(w, "list templates", err)
		return
	}
	out := make([]TemplateDTO, 0, len(list))
	for _, t := range list {
		out = append(out, templateDTO(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": out})
}

// RunTemplate handles POST /api/templates/{id}/run.
//
//	@Summary		Run a template and create its note
//	@Tags			templates
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Template id"
//	@Param			body	body		RunTemplateRequest	false	"Template arguments"
//	@Success		201		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/templates/{id}/run [post]
func (h *Handler) RunTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req RunTemplateRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	note, err := h.svc.RunTemplate(r.Context(), id, req.Args)
	if err != nil {
		writeError(w, "run template", err, slog.String("template", id))
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// Ports handles GET /api/ports.
func (h *Handler) Ports(w http.ResponseWriter, r *http.Request) {
	ports := h.svc.Ports(r.Context())
	out := make([]PortDTO, 0, len(ports))
	for _, p := range ports {
		out = append(out, portDTO(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ports": out})
}

// SendToPort handles POST /api/ports/{port}/send.
func (h *Handler) SendToPort(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "port")
	var req SendToPortRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.SendToPort(r.Context(), req.Path, name); err != nil {
		writeError(w, "send to port", err, slog.String("path", req.Path), slog.String("port", name))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Check handles GET /api/check.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	found, err := h.svc.Check(r.Context())
	if err != nil {
		writeError(w, "check", err)
		return
	}
	writeJSON(w, http.StatusOK, InconsistencyResponse{Inconsistencies: nonNil(found)})
}

// Repair handles POST /api/repair and reports what was fixed.
func (h *Handler) Repair(w http.ResponseWriter, r *http.Request) {
	fixed, err := h.svc.Repair(r.Context())
	if err != nil {
		writeError(w, "repair", err)
		return
	}
	writeJSON(w, http.StatusOK, InconsistencyResponse{Inconsistencies: nonNil(fixed)})
}

// Commit handles POST /api/commit.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if req.Message == "" {
		req.Message = "pensieve: checkpoint " + time.Now().Format(time.DateTime)
	}
	if err := h.svc.Commit(r.Context(), req.Message); err != nil {
		writeError(w, "commit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
