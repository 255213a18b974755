package collection

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/ithil/pensieve/internal/apperr"
	"github.com/ithil/pensieve/internal/models"
)

// Rename gives the note a new filename within its stack. newName carries no
// extension; the note keeps its own. The sidecar moves along and every
// neighbor is repointed.
func (n *Note) Rename(newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" || strings.ContainsAny(newName, `/\`) {
		return fmt.Errorf("collection: note name %q: %w", newName, apperr.ErrInvalid)
	}
	n.c.graphMu.Lock()
	defer n.c.graphMu.Unlock()
	return n.c.relocate(n, path.Join(n.Stack(), newName+n.ext))
}

// SendToStack moves the note into stack, creating the stack if needed.
func (n *Note) SendToStack(stack string) error {
	stack = n.c.normalize(stack)
	if stack == "." {
		stack = ""
	}
	n.c.graphMu.Lock()
	defer n.c.graphMu.Unlock()
	if stack != "" {
		if err := n.c.store.MkdirAll(stack); err != nil {
			return err
		}
	}
	return n.c.relocate(n, path.Join(stack, n.Filename()))
}

// Delete removes the note and its sidecar and prunes it from every neighbor.
// Canvas elements referencing it become text placeholders.
func (n *Note) Delete() error {
	n.c.graphMu.Lock()
	defer n.c.graphMu.Unlock()

	rec, err := n.c.loadRelations(n.rel)
	if err != nil {
		return err
	}
	rec = rec.Clone()
	if err := n.c.store.Delete(n.rel); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("collection: delete %s: %w", n.rel, apperr.ErrNotFound)
		}
		return err
	}
	if err := n.c.saveRelations(n.rel, &models.RelationRecord{}); err != nil {
		return err
	}
	n.c.logger.Info("collection: note deleted", slog.String("path", n.rel))
	return n.c.fixLinks(n.rel, "", rec)
}

// RemoveAllRelations severs every edge of the note without deleting it:
// neighbors drop their entries and the note's own sidecar is removed.
func (n *Note) RemoveAllRelations() error {
	n.c.graphMu.Lock()
	defer n.c.graphMu.Unlock()

	rec, err := n.c.loadRelations(n.rel)
	if err != nil {
		return err
	}
	rec = rec.Clone()
	if err := n.c.saveRelations(n.rel, &models.RelationRecord{}); err != nil {
		return err
	}
	return n.c.fixLinks(n.rel, "", rec)
}

// relocate moves content and sidecar to newRel, updates n in place and
// propagates the path change.
func (c *Collection) relocate(n *Note, newRel string) error {
	oldRel := n.rel
	newRel = c.normalize(newRel)
	if newRel == oldRel {
		return nil
	}
	oldSide, newSide := sidecarRel(oldRel), sidecarRel(newRel)
	if c.store.Exists(newRel) || (newSide != oldSide && c.store.Exists(newSide)) {
		return fmt.Errorf("collection: move %s to %s: %w", oldRel, newRel, apperr.ErrAlreadyExists)
	}
	if err := c.checkSidecarFree(newRel, oldRel); err != nil {
		return err
	}

	rec, err := c.loadRelations(oldRel)
	if err != nil {
		return err
	}
	rec = rec.Clone()

	if err := c.store.Move(oldRel, newRel); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("collection: move %s: %w", oldRel, apperr.ErrNotFound)
		}
		return err
	}
	if newSide != oldSide && c.store.Exists(oldSide) {
		if err := c.store.Move(oldSide, newSide); err != nil {
			return fmt.Errorf("collection: move sidecar of %s: %w", oldRel, err)
		}
	}
	c.InvalidateRelations(oldRel)
	c.InvalidateRelations(newRel)

	n.rel = newRel
	n.name, n.ext = splitName(path.Base(newRel))

	c.logger.Info("collection: note moved",
		slog.String("from", oldRel),
		slog.String("to", newRel))
	return c.fixLinks(oldRel, newRel, rec)
}
