package collection

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/ithil/pensieve/internal/models"
)

// relEntry is a memoized sidecar, valid while the file's modtime and size
// are unchanged.
type relEntry struct {
	rec     *models.RelationRecord
	modTime time.Time
	size    int64
}

// Relations returns a copy of the note's relation record. A note without a
// sidecar has an empty record.
func (n *Note) Relations() (*models.RelationRecord, error) {
	rec, err := n.c.loadRelations(n.rel)
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Links returns the outgoing edges in user-visible order.
func (n *Note) Links() ([]models.Edge, error) {
	rec, err := n.Relations()
	if err != nil {
		return nil, err
	}
	return rec.Links, nil
}

// Backlinks returns the incoming edges.
func (n *Note) Backlinks() ([]models.Edge, error) {
	rec, err := n.Relations()
	if err != nil {
		return nil, err
	}
	return rec.Backlinks, nil
}

// InvalidateRelations drops the memoized record for rel. The watcher calls it
// when a sidecar changes behind the collection's back.
func (c *Collection) InvalidateRelations(rel string) {
	c.cacheMu.Lock()
	delete(c.relCache, c.normalize(rel))
	c.cacheMu.Unlock()
}

// loadRelations reads the sidecar of the note at rel. The returned record is
// owned by the cache; callers must clone before mutating.
func (c *Collection) loadRelations(rel string) (*models.RelationRecord, error) {
	rel = c.normalize(rel)
	side := sidecarRel(rel)

	info, err := c.store.Stat(side)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.InvalidateRelations(rel)
			return &models.RelationRecord{}, nil
		}
		return nil, err
	}

	c.cacheMu.Lock()
	if e, ok := c.relCache[rel]; ok && e.modTime.Equal(info.ModTime()) && e.size == info.Size() {
		c.cacheMu.Unlock()
		return e.rec, nil
	}
	c.cacheMu.Unlock()

	data, err := c.store.Read(side)
	if err != nil {
		return nil, err
	}
	rec := &models.RelationRecord{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, rec); err != nil {
			return nil, fmt.Errorf("collection: parse sidecar %s: %w", side, err)
		}
	}

	c.cacheMu.Lock()
	c.relCache[rel] = relEntry{rec: rec, modTime: info.ModTime(), size: info.Size()}
	c.cacheMu.Unlock()
	return rec, nil
}

// saveRelations persists rec as the sidecar of rel. An empty record removes
// the sidecar file.
func (c *Collection) saveRelations(rel string, rec *models.RelationRecord) error {
	rel = c.normalize(rel)
	side := sidecarRel(rel)

	if rec.IsEmpty() {
		c.InvalidateRelations(rel)
		if err := c.store.Delete(side); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("collection: marshal sidecar %s: %w", side, err)
	}
	if err := c.store.Write(side, data); err != nil {
		return err
	}

	stored := rec.Clone()
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	if info, err := c.store.Stat(side); err == nil {
		c.relCache[rel] = relEntry{rec: stored, modTime: info.ModTime(), size: info.Size()}
	} else {
		delete(c.relCache, rel)
	}
	return nil
}

// NoteForSidecar returns the note owning the sidecar at rel, if rel names a
// sidecar whose note still exists.
func (c *Collection) NoteForSidecar(rel string) (*Note, bool) {
	rel = c.normalize(rel)
	dir, file := path.Split(rel)
	if file == StackStyleFile || file == ConfigFileName ||
		!strings.HasPrefix(file, ".") || !strings.HasSuffix(file, ".json") {
		return nil, false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(file, "."), ".json")
	if name == "" {
		return nil, false
	}
	entries, err := c.store.ReadDir(strings.TrimSuffix(dir, "/"))
	if err != nil {
		return nil, false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n, _ := splitName(e.Name()); n == name {
			return c.NoteByPath(path.Join(dir, e.Name()))
		}
	}
	return nil, false
}
