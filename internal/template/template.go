// Package template stores note templates and runs their generators.
//
// A generator is CUE source evaluated in a fresh context with no filesystem
// or network access. The engine fills three fields before evaluation:
//
//	args:       caller-supplied arguments
//	clock:      {now, date, year, month, day, weekday}
//	collection: {name, specialStacks, stacks}
//
// and reads the result from the script's response field:
//
//	response: {
//		status:  "done" | "error"
//		message: string // optional
//		payload: {
//			content:   string
//			filename?: string
//			title?:    string
//			stack?:    string
//			dates?:    [...string] // YYYY-MM-DD
//			dateRole?: string
//			relations?: [...(string | [string, ...string])]
//		}
//	}
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/ithil/pensieve/internal/apperr"
	"github.com/ithil/pensieve/internal/storage"
)

// Template output types.
const (
	TypeText     = "text"
	TypeCanvas   = "canvas"
	TypeTasklist = "tasklist"
)

// Template is a stored generator plus its metadata.
type Template struct {
	ID        string `json:"-"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	Enabled   bool   `json:"enabled"`
	FromDate  bool   `json:"fromDate"` // link the note to today's date node unless the response names dates
	Stack     string `json:"stack,omitempty"`
	Generator string `json:"generator"`
}

// Validate validates the template definition.
func (t *Template) Validate() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Title, validation.Required),
		validation.Field(&t.Type, validation.In(TypeText, TypeCanvas, TypeTasklist)),
		validation.Field(&t.Generator, validation.Required),
	)
}

// Ext returns the filename extension of notes produced by the template.
func (t *Template) Ext() string {
	switch t.Type {
	case TypeCanvas:
		return ".canvas"
	case TypeTasklist:
		return ".tasklist"
	}
	return ".md"
}

// Store reads and writes template definitions in one directory as <id>.json.
type Store struct {
	dir string
}

// NewStore returns a store over dir. The directory is created on first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the template directory.
func (s *Store) Dir() string { return s.dir }

// Load reads one template.
func (s *Store) Load(id string) (*Template, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return nil, fmt.Errorf("template: id %q: %w", id, apperr.ErrInvalid)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("template: %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("template: read %s: %w", id, err)
	}
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("template: parse %s: %w", id, err)
	}
	t.ID = id
	return &t, nil
}

// List returns every template sorted by id. Unparseable files are skipped.
func (s *Store) List() ([]*Template, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("template: list: %w", err)
	}
	var out []*Template
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" || storage.Hidden(e.Name()) {
			continue
		}
		t, err := s.Load(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Save validates and writes t. A template without id gets a fresh one.
func (s *Store) Save(t *Template) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("template: %w: %w", apperr.ErrInvalid, err)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	data, err := json.MarshalIndent(t, "", " ")
	if err != nil {
		return fmt.Errorf("template: marshal: %w", err)
	}
	return storage.WriteFileAtomic(filepath.Join(s.dir, t.ID+".json"), data)
}

// Delete removes a template.
func (s *Store) Delete(id string) error {
	if err := os.Remove(filepath.Join(s.dir, id+".json")); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("template: %s: %w", id, apperr.ErrNotFound)
		}
		return fmt.Errorf("template: delete %s: %w", id, err)
	}
	return nil
}
