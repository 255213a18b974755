package collection

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ithil/pensieve/internal/models"
)

// InconsistencyKind names a one-sided or broken edge.
type InconsistencyKind string

// Inconsistency kinds.
const (
	MissingBacklink InconsistencyKind = "missing-backlink" // link without mirror
	MissingLink     InconsistencyKind = "missing-link"     // backlink without mirror
	PropsMismatch   InconsistencyKind = "props-mismatch"
	DanglingLink    InconsistencyKind = "dangling-link"
	DanglingBack    InconsistencyKind = "dangling-backlink"
)

// Inconsistency is one graph defect found by Check. Source holds the
// sidecar that carries the entry; Target is the path the entry names.
type Inconsistency struct {
	Kind   InconsistencyKind `json:"kind"`
	Source string            `json:"source"`
	Target string            `json:"target"`
	Props  []string          `json:"props,omitempty"`
}

func (i Inconsistency) String() string {
	return fmt.Sprintf("%s: %s -> %s", i.Kind, i.Source, i.Target)
}

// Check walks every sidecar and reports edges that break the mirror
// invariant. It does not modify anything.
func (c *Collection) Check() ([]Inconsistency, error) {
	notes, err := c.AllNotes()
	if err != nil {
		return nil, err
	}
	var out []Inconsistency
	for _, n := range notes {
		rec, err := c.loadRelations(n.rel)
		if err != nil {
			return nil, err
		}
		for _, e := range rec.Links {
			t, ok := c.NoteByPath(e.Path)
			if !ok {
				out = append(out, Inconsistency{Kind: DanglingLink, Source: n.rel, Target: e.Path, Props: e.Props})
				continue
			}
			trec, err := c.loadRelations(t.rel)
			if err != nil {
				return nil, err
			}
			i := c.indexOfEdge(trec.Backlinks, n.rel)
			switch {
			case i < 0:
				out = append(out, Inconsistency{Kind: MissingBacklink, Source: n.rel, Target: t.rel, Props: e.Props})
			case !slices.Equal(trec.Backlinks[i].Props, e.Props):
				out = append(out, Inconsistency{Kind: PropsMismatch, Source: n.rel, Target: t.rel, Props: e.Props})
			}
		}
		for _, e := range rec.Backlinks {
			s, ok := c.NoteByPath(e.Path)
			if !ok {
				out = append(out, Inconsistency{Kind: DanglingBack, Source: n.rel, Target: e.Path, Props: e.Props})
				continue
			}
			srec, err := c.loadRelations(s.rel)
			if err != nil {
				return nil, err
			}
			if c.indexOfEdge(srec.Links, n.rel) < 0 {
				out = append(out, Inconsistency{Kind: MissingLink, Source: n.rel, Target: s.rel, Props: e.Props})
			}
		}
	}
	return out, nil
}

// Repair fixes what Check reports: mirrors are restored where both notes
// exist, links win over backlinks on property conflicts, and entries naming
// a missing note are dropped. It returns the defects it handled.
func (c *Collection) Repair() ([]Inconsistency, error) {
	c.graphMu.Lock()
	defer c.graphMu.Unlock()

	found, err := c.Check()
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, inc := range found {
		if err := c.repairOne(inc); err != nil {
			errs = append(errs, fmt.Errorf("collection: repair %s: %w", inc, err))
		}
	}
	return found, errors.Join(errs...)
}

func (c *Collection) repairOne(inc Inconsistency) error {
	update := func(rel string, fn func(rec *models.RelationRecord)) error {
		rec, err := c.loadRelations(rel)
		if err != nil {
			return err
		}
		rec = rec.Clone()
		fn(rec)
		return c.saveRelations(rel, rec)
	}
	props := append([]string{}, inc.Props...)

	switch inc.Kind {
	case MissingBacklink, PropsMismatch:
		return update(inc.Target, func(rec *models.RelationRecord) {
			rec.Backlinks = c.upsertEdge(rec.Backlinks, inc.Source, props)
		})
	case MissingLink:
		return update(inc.Target, func(rec *models.RelationRecord) {
			rec.Links = c.upsertEdge(rec.Links, inc.Source, props)
		})
	case DanglingLink:
		return update(inc.Source, func(rec *models.RelationRecord) {
			rec.Links, _ = c.dropEdges(rec.Links, inc.Target)
		})
	case DanglingBack:
		return update(inc.Source, func(rec *models.RelationRecord) {
			rec.Backlinks, _ = c.dropEdges(rec.Backlinks, inc.Target)
		})
	}
	return nil
}
