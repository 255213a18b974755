package api

import (
	"github.com/ithil/pensieve/internal/collection"
	"github.com/ithil/pensieve/internal/index"
	"github.com/ithil/pensieve/internal/noteservice"
	"github.com/ithil/pensieve/internal/port"
	"github.com/ithil/pensieve/internal/template"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Stack    string `json:"stack" example:"Projects"`
	Filename string `json:"filename" example:"hello.md" validate:"required"`
	Content  string `json:"content" example:"# Hello\nWorld"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"# Updated\nContent" validate:"required"`
}

// LinkRequest adds a link from Source to Target.
type LinkRequest struct {
	Source string   `json:"source" example:"Inbox/a.md" validate:"required"`
	Target string   `json:"target" example:"Projects/b.md" validate:"required"`
	Props  []string `json:"props" example:"ref"`
}

// MoveLinkRequest shifts the link to Target by Delta positions.
type MoveLinkRequest struct {
	Source string `json:"source" example:"Inbox/a.md" validate:"required"`
	Target string `json:"target" example:"Projects/b.md" validate:"required"`
	Delta  int    `json:"delta" example:"-1" validate:"required"`
}

// MoveNoteRequest sends a note to another stack.
type MoveNoteRequest struct {
	Path  string `json:"path" example:"Inbox/a.md" validate:"required"`
	Stack string `json:"stack" example:"Archive" validate:"required"`
}

// RenameNoteRequest renames a note within its stack.
type RenameNoteRequest struct {
	Path string `json:"path" example:"Inbox/a.md" validate:"required"`
	Name string `json:"name" example:"alpha" validate:"required"`
}

// PathResponse reports the path of a note after a move or rename.
type PathResponse struct {
	Path string `json:"path" example:"Archive/b.md" validate:"required"`
}

// RunTemplateRequest carries the template arguments.
type RunTemplateRequest struct {
	Args map[string]any `json:"args"`
}

// SendToPortRequest names the note to stage.
type SendToPortRequest struct {
	Path string `json:"path" example:"Inbox/a.md" validate:"required"`
}

// InboxTextRequest writes text into the inbox.
type InboxTextRequest struct {
	Text     string `json:"text" example:"remember the milk" validate:"required"`
	Filename string `json:"filename" example:"milk.md"`
}

// CommitRequest records a version-control checkpoint.
type CommitRequest struct {
	Message string `json:"message" example:"weekly review"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// NoteRefsResponse wraps fuzzy and recent note listings.
type NoteRefsResponse struct {
	Notes []noteservice.NoteRef `json:"notes" validate:"required"`
}

// GraphResponse wraps the relation graph.
type GraphResponse struct {
	Nodes []index.GraphNode `json:"nodes" validate:"required"`
	Links []index.GraphLink `json:"links" validate:"required"`
}

// InconsistencyResponse wraps check and repair results.
type InconsistencyResponse struct {
	Inconsistencies []collection.Inconsistency `json:"inconsistencies" validate:"required"`
}

// TemplateDTO is a template without its generator source.
type TemplateDTO struct {
	ID       string `json:"id" example:"3f0c..." validate:"required"`
	Title    string `json:"title" example:"Meeting" validate:"required"`
	Type     string `json:"type" example:"text"`
	Enabled  bool   `json:"enabled"`
	FromDate bool   `json:"fromDate"`
	Stack    string `json:"stack,omitempty" example:"Meetings"`
}

func templateDTO(t *template.Template) TemplateDTO {
	return TemplateDTO{ID: t.ID, Title: t.Title, Type: t.Type, Enabled: t.Enabled, FromDate: t.FromDate, Stack: t.Stack}
}

// PortDTO is one registered port.
type PortDTO struct {
	ID             string `json:"id" validate:"required"`
	Name           string `json:"name" example:"to-work" validate:"required"`
	TargetPath     string `json:"targetPath" example:"Inbox"`
	CollectionName string `json:"collectionName" example:"work" validate:"required"`
}

func portDTO(p *port.Port) PortDTO {
	return PortDTO{ID: p.ID, Name: p.Name, TargetPath: p.TargetPath, CollectionName: p.CollectionName}
}
