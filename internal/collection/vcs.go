package collection

import (
	"context"
	"fmt"
	"log/slog"
)

// Change is one entry of a working-tree status, relative to the collection root.
type Change struct {
	Path    string
	Deleted bool
}

// VersionControl is the commit collaborator. The collection only calls it
// at checkpoints and never looks at its object model.
type VersionControl interface {
	Init(ctx context.Context) error
	Status(ctx context.Context) ([]Change, error)
	Add(ctx context.Context, paths ...string) error
	Remove(ctx context.Context, paths ...string) error
	Commit(ctx context.Context, message string) error
}

// Commit records the current state of the collection. It is a no-op when
// the collection does not use version control or nothing changed.
func (c *Collection) Commit(ctx context.Context, message string) error {
	if c.vcs == nil || !c.cfg.UseGit {
		return nil
	}
	changes, err := c.vcs.Status(ctx)
	if err != nil {
		return fmt.Errorf("collection: vcs status: %w", err)
	}
	if len(changes) == 0 {
		c.logger.Debug("collection: nothing to commit")
		return nil
	}

	var added, removed []string
	for _, ch := range changes {
		if ch.Deleted {
			removed = append(removed, ch.Path)
		} else {
			added = append(added, ch.Path)
		}
	}
	if len(added) > 0 {
		if err := c.vcs.Add(ctx, added...); err != nil {
			return fmt.Errorf("collection: vcs add: %w", err)
		}
	}
	if len(removed) > 0 {
		if err := c.vcs.Remove(ctx, removed...); err != nil {
			return fmt.Errorf("collection: vcs remove: %w", err)
		}
	}
	if err := c.vcs.Commit(ctx, message); err != nil {
		return fmt.Errorf("collection: vcs commit: %w", err)
	}
	c.logger.Info("collection: committed",
		slog.String("message", message),
		slog.Int("added", len(added)),
		slog.Int("removed", len(removed)))
	return nil
}
