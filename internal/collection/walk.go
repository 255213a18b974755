package collection

import (
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/ithil/pensieve/internal/models"
)

// AllNotes walks the stacks root and returns every visible note.
func (c *Collection) AllNotes() ([]*Note, error) {
	metas, err := c.store.Files("")
	if err != nil {
		return nil, err
	}
	out := make([]*Note, 0, len(metas))
	for _, m := range metas {
		n, err := c.noteAt(m.Path)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Search returns textual notes whose name or content contains term,
// case-insensitively.
func (c *Collection) Search(term string) ([]*Note, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, nil
	}
	notes, err := c.AllNotes()
	if err != nil {
		return nil, err
	}
	var out []*Note
	for _, n := range notes {
		if strings.Contains(strings.ToLower(n.Filename()), term) {
			out = append(out, n)
			continue
		}
		if !n.kind.IsTextual() {
			continue
		}
		body, err := n.Content()
		if err != nil {
			return nil, err
		}
		if strings.Contains(strings.ToLower(body), term) {
			out = append(out, n)
		}
	}
	return out, nil
}

// RecentNotes returns up to limit notes, most recently modified first.
// A non-positive limit returns all notes.
func (c *Collection) RecentNotes(limit int) ([]*Note, error) {
	metas, err := c.store.Files("")
	if err != nil {
		return nil, err
	}
	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	if limit > 0 && len(metas) > limit {
		metas = metas[:limit]
	}
	out := make([]*Note, 0, len(metas))
	for _, m := range metas {
		n, err := c.noteAt(m.Path)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// FuzzySearch ranks all note paths against query with the configured Ranker.
func (c *Collection) FuzzySearch(query string, limit int) ([]*Note, error) {
	notes, err := c.AllNotes()
	if err != nil {
		return nil, err
	}
	corpus := make([]string, len(notes))
	for i, n := range notes {
		corpus[i] = n.rel
	}
	var out []*Note
	for _, m := range c.ranker.Rank(query, corpus) {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, notes[m.Index])
	}
	return out, nil
}

// ResolveLinkTarget resolves a link reference: a stacks-relative path, an
// absolute path inside the stacks root, or a path without extension that
// uniquely names one note in its stack.
func (c *Collection) ResolveLinkTarget(ref string) (*Note, bool) {
	rel := c.normalize(ref)
	if rel == "" {
		return nil, false
	}
	if n, ok := c.NoteByPath(rel); ok {
		return n, true
	}
	if path.Ext(rel) != "" && c.store.Exists(rel) {
		return nil, false
	}

	dir, base := path.Split(rel)
	dir = strings.TrimSuffix(dir, "/")
	entries, err := c.store.ReadDir(dir)
	if err != nil {
		return nil, false
	}
	var found string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, _ := splitName(e.Name())
		if name != base {
			continue
		}
		if found != "" {
			return nil, false
		}
		found = path.Join(dir, e.Name())
	}
	if found == "" {
		return nil, false
	}
	return c.NoteByPath(found)
}

// canvasesReferencing returns every canvas note with an element pointing at p.
func (c *Collection) canvasesReferencing(p string) ([]*Note, error) {
	notes, err := c.AllNotes()
	if err != nil {
		return nil, err
	}
	var out []*Note
	for _, n := range notes {
		if n.kind != models.KindCanvas {
			continue
		}
		cv, err := n.Canvas()
		if err != nil {
			c.logger.Warn("collection: skipping unreadable canvas",
				slog.String("path", n.rel),
				slog.String("error", err.Error()))
			continue
		}
		for _, ref := range cv.References() {
			if c.samePath(ref, p) {
				out = append(out, n)
				break
			}
		}
	}
	return out, nil
}
