package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ithil/pensieve/internal/apperr"
	"github.com/ithil/pensieve/internal/models"
)

const maxUploadBytes = 50 << 20 // 50 MB

// uploadName validates that the filename is a plain name (no path
// separators, no traversal, not hidden).
func uploadName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") || strings.HasPrefix(cleaned, ".") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	return cleaned, nil
}

// Upload handles POST /api/inbox (multipart/form-data, field "file"). The
// file becomes a new note in the inbox.
//
//	@Summary		Upload a file into the inbox
//	@Tags			inbox
//	@Accept			mpfd
//	@Produce		json
//	@Param			file	formData	file	true	"File to upload"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/inbox [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	name, err := uploadName(header.Filename)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	note, err := h.svc.Upload(r.Context(), name, file, maxUploadBytes)
	if err != nil {
		writeError(w, "upload", err, slog.String("filename", name))
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// SendText handles POST /api/inbox/text.
func (h *Handler) SendText(w http.ResponseWriter, r *http.Request) {
	var req InboxTextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("text is required"))
		return
	}
	note, err := h.svc.SendText(r.Context(), req.Text, req.Filename)
	if err != nil {
		writeError(w, "send text", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// ServeFile handles GET /api/files/*: the raw bytes of a note, so images and
// audio can be embedded by clients.
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	n, ok := h.svc.Collection().NoteByPath(path)
	if !ok {
		writeError(w, "serve file", fmt.Errorf("%s: %w", path, apperr.ErrNotFound))
		return
	}
	if n.Kind() == models.KindCanvas || n.Kind() == models.KindTasklist {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	http.ServeFile(w, r, n.AbsPath())
}
