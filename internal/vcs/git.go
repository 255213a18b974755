// Package vcs implements the collection's version-control collaborator on
// top of the git binary.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ithil/pensieve/internal/collection"
)

const binGit = "git"

// Git runs git in one working tree.
type Git struct {
	dir    string
	author string // "Name <email>"; empty uses the git config
}

// NewGit returns a collaborator for the repository at dir.
func NewGit(dir string) *Git {
	return &Git{dir: dir}
}

// WithAuthor sets the commit author, e.g. "Pensieve <pensieve@localhost>".
func (g *Git) WithAuthor(author string) *Git {
	g.author = author
	return g
}

// Available reports whether the git binary is on PATH.
func Available() bool {
	_, err := exec.LookPath(binGit)
	return err == nil
}

func (g *Git) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binGit, args...)
	cmd.Dir = g.dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("vcs: git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Init creates the repository.
func (g *Git) Init(ctx context.Context) error {
	_, err := g.run(ctx, "init", "--quiet")
	return err
}

// Status lists changed, untracked and deleted paths.
func (g *Git) Status(ctx context.Context) ([]collection.Change, error) {
	out, err := g.run(ctx, "status", "--porcelain=v1", "-z", "--untracked-files=all")
	if err != nil {
		return nil, err
	}
	return parsePorcelain(out), nil
}

// Add stages paths.
func (g *Git) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := g.run(ctx, append([]string{"add", "--"}, paths...)...)
	return err
}

// Remove stages the removal of paths.
func (g *Git) Remove(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := g.run(ctx, append([]string{"rm", "--cached", "--quiet", "--ignore-unmatch", "--"}, paths...)...)
	return err
}

// Commit records the staged changes.
func (g *Git) Commit(ctx context.Context, message string) error {
	args := []string{"commit", "--quiet", "-m", message}
	if g.author != "" {
		args = append(args, "--author", g.author)
	}
	_, err := g.run(ctx, args...)
	return err
}

// parsePorcelain decodes `git status --porcelain=v1 -z`. Each record is
// "XY path"; renames and copies carry the source path as the next record.
func parsePorcelain(out []byte) []collection.Change {
	var changes []collection.Change
	records := strings.Split(string(out), "\x00")
	for i := 0; i < len(records); i++ {
		rec := records[i]
		if len(rec) < 4 {
			continue
		}
		x, y, p := rec[0], rec[1], rec[3:]
		changes = append(changes, collection.Change{Path: p, Deleted: x == 'D' || y == 'D'})
		if (x == 'R' || x == 'C') && i+1 < len(records) {
			i++
			if x == 'R' {
				changes = append(changes, collection.Change{Path: records[i], Deleted: true})
			}
		}
	}
	return changes
}
