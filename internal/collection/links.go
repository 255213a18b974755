package collection

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ithil/pensieve/internal/apperr"
	"github.com/ithil/pensieve/internal/models"
)

// AddLink adds or updates the edge n → target and mirrors it into the
// target's backlinks. An unresolvable target keeps the forward edge and is
// logged as a dangling reference.
func (n *Note) AddLink(target string, props []string) error {
	n.c.graphMu.Lock()
	defer n.c.graphMu.Unlock()
	return n.c.addLink(n.rel, target, props)
}

// RemoveLink drops the edge n → target and its mirrored backlink.
func (n *Note) RemoveLink(target string) error {
	n.c.graphMu.Lock()
	defer n.c.graphMu.Unlock()
	return n.c.removeLink(n.rel, target)
}

// MoveLink moves the edge to target by delta positions within n's links.
// A destination outside the list leaves the order unchanged.
func (n *Note) MoveLink(target string, delta int) error {
	n.c.graphMu.Lock()
	defer n.c.graphMu.Unlock()
	return n.c.moveLink(n.rel, target, delta)
}

// ReplaceLink rewrites every reference to oldPath held by n. An empty newPath
// drops the references instead.
func (n *Note) ReplaceLink(oldPath, newPath string) error {
	n.c.graphMu.Lock()
	defer n.c.graphMu.Unlock()
	return n.c.replaceLink(n, oldPath, newPath)
}

func (c *Collection) addLink(src, target string, props []string) error {
	src = c.normalize(src)
	dst := c.normalize(target)
	targetNote, resolved := c.ResolveLinkTarget(target)
	if resolved {
		dst = targetNote.rel
	}
	if dst == "" {
		return fmt.Errorf("collection: add link from %s: empty target: %w", src, apperr.ErrNotFound)
	}
	props = append([]string{}, props...)

	rec, err := c.loadRelations(src)
	if err != nil {
		return err
	}
	rec = rec.Clone()
	rec.Links = c.upsertEdge(rec.Links, dst, props)
	if err := c.saveRelations(src, rec); err != nil {
		return err
	}

	if !resolved {
		c.logger.Warn("collection: link target not found",
			slog.String("source", src),
			slog.String("target", dst),
			slog.String("error", apperr.ErrDanglingReference.Error()))
		return nil
	}

	trec, err := c.loadRelations(dst)
	if err != nil {
		return err
	}
	trec = trec.Clone()
	trec.Backlinks = c.upsertEdge(trec.Backlinks, src, props)
	return c.saveRelations(dst, trec)
}

func (c *Collection) removeLink(src, target string) error {
	src = c.normalize(src)
	dst := c.normalize(target)
	targetNote, resolved := c.ResolveLinkTarget(target)
	if resolved {
		dst = targetNote.rel
	}

	rec, err := c.loadRelations(src)
	if err != nil {
		return err
	}
	rec = rec.Clone()
	var removed bool
	rec.Links, removed = c.dropEdges(rec.Links, dst)
	if removed {
		if err := c.saveRelations(src, rec); err != nil {
			return err
		}
	}

	if !resolved {
		return nil
	}
	trec, err := c.loadRelations(dst)
	if err != nil {
		c.logger.Warn("collection: read backlinks failed",
			slog.String("path", dst),
			slog.String("error", err.Error()))
		return nil
	}
	trec = trec.Clone()
	trec.Backlinks, removed = c.dropEdges(trec.Backlinks, src)
	if !removed {
		return nil
	}
	return c.saveRelations(dst, trec)
}

func (c *Collection) moveLink(src, target string, delta int) error {
	src = c.normalize(src)
	rec, err := c.loadRelations(src)
	if err != nil {
		return err
	}
	idx := c.indexOfEdge(rec.Links, target)
	if idx < 0 {
		if t, ok := c.ResolveLinkTarget(target); ok {
			idx = c.indexOfEdge(rec.Links, t.rel)
		}
	}
	if idx < 0 {
		return fmt.Errorf("collection: %s has no link to %s: %w", src, target, apperr.ErrNotFound)
	}

	to := idx + delta
	if to < 0 || to > len(rec.Links)-1 || to == idx {
		return nil
	}

	rec = rec.Clone()
	e := rec.Links[idx]
	links := append(rec.Links[:idx:idx], rec.Links[idx+1:]...)
	links = append(links[:to], append([]models.Edge{e}, links[to:]...)...)
	rec.Links = links
	return c.saveRelations(src, rec)
}

// replaceLink rewrites n's relation lists and, for canvas notes, the element
// references. Duplicates produced by repointing onto an existing edge are
// merged, keeping the first occurrence.
func (c *Collection) replaceLink(n *Note, oldPath, newPath string) error {
	newPath = c.normalize(newPath)

	rec, err := c.loadRelations(n.rel)
	if err != nil {
		return err
	}
	rec = rec.Clone()
	linksChanged := false
	rec.Links, linksChanged = c.rewriteEdges(rec.Links, oldPath, newPath)
	backChanged := false
	rec.Backlinks, backChanged = c.rewriteEdges(rec.Backlinks, oldPath, newPath)
	if linksChanged || backChanged {
		if err := c.saveRelations(n.rel, rec); err != nil {
			return err
		}
	}

	if n.kind != models.KindCanvas {
		return nil
	}
	cv, err := n.Canvas()
	if err != nil {
		c.logger.Warn("collection: skipping unreadable canvas",
			slog.String("path", n.rel),
			slog.String("error", err.Error()))
		return nil
	}
	if cv.RewriteReference(oldPath, newPath, c.samePath, c.now()) {
		return n.SetCanvas(cv)
	}
	return nil
}

// fixLinks propagates a path change of the note formerly at oldPath to every
// neighbor in rec and to every canvas referencing oldPath. An empty newPath
// means the note is gone. Missing neighbors are skipped.
func (c *Collection) fixLinks(oldPath, newPath string, rec *models.RelationRecord) error {
	oldPath = c.normalize(oldPath)
	newPath = c.normalize(newPath)

	var errs []error
	visited := make(map[string]struct{})
	for _, p := range rec.Neighbors() {
		target := p
		if c.samePath(p, oldPath) {
			if newPath == "" {
				continue
			}
			target = newPath
		}
		nb, ok := c.NoteByPath(target)
		if !ok {
			c.logger.Warn("collection: neighbor not found",
				slog.String("path", p),
				slog.String("from", oldPath),
				slog.String("error", apperr.ErrDanglingReference.Error()))
			continue
		}
		if _, seen := visited[nb.rel]; seen {
			continue
		}
		visited[nb.rel] = struct{}{}
		if err := c.replaceLink(nb, oldPath, newPath); err != nil {
			errs = append(errs, fmt.Errorf("collection: fix %s: %w", nb.rel, err))
		}
	}

	canvases, err := c.canvasesReferencing(oldPath)
	if err != nil {
		errs = append(errs, err)
	}
	for _, cv := range canvases {
		if _, seen := visited[cv.rel]; seen {
			continue
		}
		visited[cv.rel] = struct{}{}
		if err := c.replaceLink(cv, oldPath, newPath); err != nil {
			errs = append(errs, fmt.Errorf("collection: fix canvas %s: %w", cv.rel, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Collection) indexOfEdge(edges []models.Edge, p string) int {
	for i, e := range edges {
		if c.samePath(e.Path, p) {
			return i
		}
	}
	return -1
}

// upsertEdge overwrites the props of the edge to p in place, or appends one.
func (c *Collection) upsertEdge(edges []models.Edge, p string, props []string) []models.Edge {
	if i := c.indexOfEdge(edges, p); i >= 0 {
		edges[i].Path = p
		edges[i].Props = props
		return edges
	}
	return append(edges, models.Edge{Path: p, Props: props})
}

func (c *Collection) dropEdges(edges []models.Edge, p string) ([]models.Edge, bool) {
	out := edges[:0]
	removed := false
	for _, e := range edges {
		if c.samePath(e.Path, p) {
			removed = true
			continue
		}
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil, removed
	}
	return out, removed
}

func (c *Collection) rewriteEdges(edges []models.Edge, oldPath, newPath string) ([]models.Edge, bool) {
	if c.indexOfEdge(edges, oldPath) < 0 {
		return edges, false
	}
	var out []models.Edge
	for _, e := range edges {
		if c.samePath(e.Path, oldPath) {
			if newPath == "" {
				continue
			}
			e.Path = newPath
		}
		if c.indexOfEdge(out, e.Path) >= 0 {
			continue
		}
		out = append(out, e)
	}
	return out, true
}
