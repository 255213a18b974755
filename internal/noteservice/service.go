// Package noteservice combines the collection, its derived index, the
// template engine and the port registry behind one API used by the HTTP,
// MCP and CLI surfaces.
package noteservice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ithil/pensieve/internal/apperr"
	"github.com/ithil/pensieve/internal/collection"
	"github.com/ithil/pensieve/internal/index"
	"github.com/ithil/pensieve/internal/models"
	"github.com/ithil/pensieve/internal/parser"
	"github.com/ithil/pensieve/internal/port"
	"github.com/ithil/pensieve/internal/storage"
	"github.com/ithil/pensieve/internal/template"
)

// NoteDetail is the full representation of a note. Content and HTML are
// only filled for textual kinds.
type NoteDetail struct {
	Path        string         `json:"path"`
	Name        string         `json:"name"`
	Stack       string         `json:"stack"`
	Kind        models.Kind    `json:"kind"`
	Title       string         `json:"title"`
	Content     string         `json:"content,omitempty"`
	HTML        string         `json:"html,omitempty"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Links       []models.Edge  `json:"links"`
	Backlinks   []models.Edge  `json:"backlinks"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path      string      `json:"path"`
	Stack     string      `json:"stack"`
	Kind      models.Kind `json:"kind"`
	Title     string      `json:"title"`
	Checksum  string      `json:"checksum"`
	Tags      []string    `json:"tags"`
	Excerpt   string      `json:"excerpt,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NoteRef names a note without its content.
type NoteRef struct {
	Path  string      `json:"path"`
	Name  string      `json:"name"`
	Kind  models.Kind `json:"kind"`
	Stack string      `json:"stack"`
}

// StackRef names a stack.
type StackRef struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	IsInbox bool   `json:"is_inbox"`
}

// StackListing is the content of one stack.
type StackListing struct {
	Path   string         `json:"path"`
	Style  map[string]any `json:"style,omitempty"`
	Stacks []StackRef     `json:"stacks"`
	Notes  []NoteRef      `json:"notes"`
}

// Relations are the two edge lists of a note's sidecar.
type Relations struct {
	Links     []models.Edge `json:"links"`
	Backlinks []models.Edge `json:"backlinks"`
}

// Service coordinates collection, index, template and port operations.
type Service struct {
	c      *collection.Collection
	db     *index.DB
	engine *template.Engine
	ports  *port.Registry
	logger *slog.Logger
}

// NewService creates a new note service. ports may be nil when no port
// directory is configured.
func NewService(c *collection.Collection, db *index.DB, engine *template.Engine, ports *port.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = c.Logger()
	}
	if engine == nil {
		engine = template.NewEngine(c, logger)
	}
	return &Service{c: c, db: db, engine: engine, ports: ports, logger: logger}
}

// Collection returns the underlying collection.
func (s *Service) Collection() *collection.Collection { return s.c }

// note resolves path to an existing note or apperr.ErrNotFound.
func (s *Service) note(path string) (*collection.Note, error) {
	n, ok := s.c.NoteByPath(path)
	if !ok {
		return nil, fmt.Errorf("noteservice: %s: %w", path, apperr.ErrNotFound)
	}
	return n, nil
}

// GetNote reads a note with its relations.
func (s *Service) GetNote(_ context.Context, path string) (*NoteDetail, error) {
	n, err := s.note(path)
	if err != nil {
		return nil, err
	}
	return s.detail(n)
}

// CreateNote writes a new note into stack and indexes it.
func (s *Service) CreateNote(_ context.Context, stack, filename string, content []byte) (*NoteDetail, error) {
	n, err := s.c.CreateNote(stack, filename, string(content))
	if err != nil {
		return nil, err
	}
	s.reindex(n)
	return s.detail(n)
}

// UpdateNote replaces the content of a note. A non-empty ifMatch must equal
// the checksum of the current content.
func (s *Service) UpdateNote(_ context.Context, path string, content []byte, ifMatch string) (*NoteDetail, error) {
	n, err := s.note(path)
	if err != nil {
		return nil, err
	}
	existing, err := n.RawContent()
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != storage.Checksum(existing) {
		return nil, apperr.ErrConflict
	}
	if err := n.SetRawContent(content); err != nil {
		return nil, err
	}
	s.reindex(n)
	return s.detail(n)
}

// DeleteNote deletes a note, prunes its neighbors and refreshes the index.
func (s *Service) DeleteNote(_ context.Context, path string) error {
	n, err := s.note(path)
	if err != nil {
		return err
	}
	if err := n.Delete(); err != nil {
		return err
	}
	s.resync()
	return nil
}

// RenameNote gives a note a new name within its stack and returns its new path.
func (s *Service) RenameNote(_ context.Context, path, newName string) (string, error) {
	n, err := s.note(path)
	if err != nil {
		return "", err
	}
	if err := n.Rename(newName); err != nil {
		return "", err
	}
	s.resync()
	return n.Path(), nil
}

// MoveNote sends a note to another stack and returns its new path.
func (s *Service) MoveNote(_ context.Context, path, stack string) (string, error) {
	n, err := s.note(path)
	if err != nil {
		return "", err
	}
	if err := n.SendToStack(stack); err != nil {
		return "", err
	}
	s.resync()
	return n.Path(), nil
}

// ListNotes returns one page of indexed notes.
func (s *Service) ListNotes(_ context.Context, q index.ListQuery) ([]NoteListItem, int, error) {
	rows, total, err := s.db.ListNotes(q)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(rows))
	for i, r := range rows {
		items[i] = NoteListItem{
			Path:      r.Path,
			Stack:     r.Stack,
			Kind:      r.Kind,
			Title:     r.Title,
			Checksum:  r.Checksum,
			Tags:      nonNilSlice(r.Tags),
			Excerpt:   r.Excerpt,
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// FuzzySearch ranks note paths against query.
func (s *Service) FuzzySearch(_ context.Context, query string, limit int) ([]NoteRef, error) {
	notes, err := s.c.FuzzySearch(query, limit)
	if err != nil {
		return nil, err
	}
	return refs(notes), nil
}

// RecentNotes returns the most recently modified notes.
func (s *Service) RecentNotes(_ context.Context, limit int) ([]NoteRef, error) {
	notes, err := s.c.RecentNotes(limit)
	if err != nil {
		return nil, err
	}
	return refs(notes), nil
}

// Graph returns all nodes and links for graph visualization.
func (s *Service) Graph(_ context.Context) ([]index.GraphNode, []index.GraphLink, error) {
	return s.db.Graph()
}

// Stacks lists the stack at path. An empty path lists the stacks root.
func (s *Service) Stacks(_ context.Context, path string) (*StackListing, error) {
	path = s.c.Normalize(path)
	if path == "." {
		path = ""
	}
	st, ok := s.c.StackByPath(path)
	if !ok {
		return nil, fmt.Errorf("noteservice: stack %s: %w", path, apperr.ErrNotFound)
	}
	l, err := s.c.Stacks(path)
	if err != nil {
		return nil, err
	}
	out := &StackListing{Path: path, Stacks: []StackRef{}, Notes: refs(l.Notes)}
	for _, st := range l.Stacks {
		out.Stacks = append(out.Stacks, StackRef{Path: st.Path(), Name: st.Name(), IsInbox: st.IsInbox()})
	}
	if path != "" {
		style, err := st.Style()
		if err != nil {
			s.logger.Warn("noteservice: stack style unreadable", slog.String("path", path), slog.String("error", err.Error()))
		}
		out.Style = style
	}
	return out, nil
}

// Relations returns the sidecar edges of a note.
func (s *Service) Relations(_ context.Context, path string) (*Relations, error) {
	n, err := s.note(path)
	if err != nil {
		return nil, err
	}
	rec, err := n.Relations()
	if err != nil {
		return nil, err
	}
	return &Relations{Links: nonNilSlice(rec.Links), Backlinks: nonNilSlice(rec.Backlinks)}, nil
}

// AddLink links source to target with props.
func (s *Service) AddLink(ctx context.Context, source, target string, props []string) (*Relations, error) {
	n, err := s.note(source)
	if err != nil {
		return nil, err
	}
	if err := n.AddLink(target, props); err != nil {
		return nil, err
	}
	s.reindex(n)
	return s.Relations(ctx, n.Path())
}

// RemoveLink removes the link from source to target.
func (s *Service) RemoveLink(ctx context.Context, source, target string) (*Relations, error) {
	n, err := s.note(source)
	if err != nil {
		return nil, err
	}
	if err := n.RemoveLink(target); err != nil {
		return nil, err
	}
	s.reindex(n)
	return s.Relations(ctx, n.Path())
}

// MoveLink shifts the link to target within source's link list by delta.
func (s *Service) MoveLink(ctx context.Context, source, target string, delta int) (*Relations, error) {
	n, err := s.note(source)
	if err != nil {
		return nil, err
	}
	if err := n.MoveLink(target, delta); err != nil {
		return nil, err
	}
	s.reindex(n)
	return s.Relations(ctx, n.Path())
}

// DateNode returns the date node of role for date, creating it when create
// is set.
func (s *Service) DateNode(_ context.Context, role string, date time.Time, create bool) (*NoteDetail, error) {
	var n *collection.Note
	if create {
		var err error
		if n, err = s.c.CreateDateNode(role, date); err != nil {
			return nil, err
		}
		s.reindex(n)
	} else {
		var ok bool
		if n, ok = s.c.DateNode(role, date); !ok {
			return nil, fmt.Errorf("noteservice: date node %s: %w", s.c.DateNodePath(role, date), apperr.ErrNotFound)
		}
	}
	return s.detail(n)
}

// Templates lists the stored templates.
func (s *Service) Templates(_ context.Context) ([]*template.Template, error) {
	return s.engine.Store().List()
}

// RunTemplate executes the template id with args and returns the created note.
func (s *Service) RunTemplate(ctx context.Context, id string, args map[string]any) (*NoteDetail, error) {
	tpl, err := s.engine.Store().Load(id)
	if err != nil {
		return nil, err
	}
	n, err := s.engine.Run(ctx, tpl, args)
	if n != nil {
		s.resync()
	}
	if err != nil {
		return nil, err
	}
	return s.detail(n)
}

// Ports lists the registered ports.
func (s *Service) Ports(_ context.Context) []*port.Port {
	if s.ports == nil {
		return []*port.Port{}
	}
	return s.ports.Ports()
}

// SendToPort stages the note at path in the named port.
func (s *Service) SendToPort(_ context.Context, path, portName string) error {
	if s.ports == nil {
		return fmt.Errorf("noteservice: port %s: %w", portName, apperr.ErrNotFound)
	}
	n, err := s.note(path)
	if err != nil {
		return err
	}
	if err := s.ports.SendToPort(n, portName); err != nil {
		return err
	}
	s.resync()
	return nil
}

// SendText writes text into the inbox.
func (s *Service) SendText(_ context.Context, text, filename string) (*NoteDetail, error) {
	n, err := s.c.SendText(text, filename)
	if err != nil {
		return nil, err
	}
	s.reindex(n)
	return s.detail(n)
}

// Upload stores r as a new inbox note named filename, reading at most
// maxBytes.
func (s *Service) Upload(_ context.Context, filename string, r io.Reader, maxBytes int64) (*NoteDetail, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("noteservice: upload exceeds %d bytes: %w", maxBytes, apperr.ErrInvalid)
	}
	n, err := s.c.CreateNote(s.c.Inbox(), filename, string(data))
	if err != nil {
		return nil, err
	}
	s.reindex(n)
	return s.detail(n)
}

// Check reports graph inconsistencies without changing anything.
func (s *Service) Check(_ context.Context) ([]collection.Inconsistency, error) {
	return s.c.Check()
}

// Repair fixes what Check reports and refreshes the index.
func (s *Service) Repair(_ context.Context) ([]collection.Inconsistency, error) {
	fixed, err := s.c.Repair()
	if len(fixed) > 0 {
		s.resync()
	}
	return fixed, err
}

// Commit records the collection's working tree in version control.
func (s *Service) Commit(ctx context.Context, message string) error {
	return s.c.Commit(ctx, message)
}

// Sync brings the index up to date with the collection.
func (s *Service) Sync(_ context.Context) error {
	return index.Sync(s.db, s.c, s.logger)
}

// reindex refreshes one note's index row. Failures only cost freshness.
func (s *Service) reindex(n *collection.Note) {
	if err := index.IndexNote(s.db, n); err != nil {
		s.logger.Warn("noteservice: index failed", slog.String("path", n.Path()), slog.String("error", err.Error()))
	}
}

// resync refreshes the whole index after mutations that touch neighbors.
func (s *Service) resync() {
	if err := index.Sync(s.db, s.c, s.logger); err != nil {
		s.logger.Warn("noteservice: sync failed", slog.String("error", err.Error()))
	}
}

func (s *Service) detail(n *collection.Note) (*NoteDetail, error) {
	data, err := n.RawContent()
	if err != nil {
		return nil, err
	}
	rec, err := n.Relations()
	if err != nil {
		return nil, err
	}
	d := &NoteDetail{
		Path:      n.Path(),
		Name:      n.Name(),
		Stack:     n.Stack(),
		Kind:      n.Kind(),
		Title:     n.Name(),
		Checksum:  storage.Checksum(data),
		Tags:      []string{},
		Links:     nonNilSlice(rec.Links),
		Backlinks: nonNilSlice(rec.Backlinks),
	}
	if info, err := s.c.Store().Stat(n.Path()); err == nil {
		d.UpdatedAt = info.ModTime()
	}
	if n.Kind().IsTextual() {
		d.Content = string(data)
	}
	if row, err := s.db.GetNote(n.Path()); err == nil {
		d.Title = row.Title
		d.Tags = nonNilSlice(row.Tags)
	}
	if n.Kind() == models.KindText {
		if res, err := parser.Parse(data); err == nil {
			d.Frontmatter = res.Frontmatter
			if res.Title != "" {
				d.Title = res.Title
			}
			d.Tags = nonNilSlice(res.Tags)
		}
		if html, err := parser.RenderHTML(data); err == nil {
			d.HTML = html
		}
	}
	return d, nil
}

func refs(notes []*collection.Note) []NoteRef {
	out := make([]NoteRef, 0, len(notes))
	for _, n := range notes {
		out = append(out, NoteRef{Path: n.Path(), Name: n.Name(), Kind: n.Kind(), Stack: n.Stack()})
	}
	return out
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
