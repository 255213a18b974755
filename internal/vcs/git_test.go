package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ithil/pensieve/internal/collection"
)

func TestParsePorcelain(t *testing.T) {
	out := []byte(" M Stacks/a.md\x00?? Stacks/new.md\x00 D Stacks/old.md\x00R  Stacks/b2.md\x00Stacks/b.md\x00")
	got := parsePorcelain(out)
	assert.Equal(t, []collection.Change{
		{Path: "Stacks/a.md"},
		{Path: "Stacks/new.md"},
		{Path: "Stacks/old.md", Deleted: true},
		{Path: "Stacks/b2.md"},
		{Path: "Stacks/b.md", Deleted: true},
	}, got)
	assert.Empty(t, parsePorcelain(nil))
}

func TestGitCommitRoundTrip(t *testing.T) {
	if !Available() {
		t.Skip("git not installed")
	}
	ctx := context.Background()
	dir := t.TempDir()
	g := NewGit(dir).WithAuthor("Pensieve Test <test@example.com>")
	require.NoError(t, g.Init(ctx))
	for _, kv := range [][2]string{{"user.name", "Pensieve Test"}, {"user.email", "test@example.com"}} {
		require.NoError(t, exec.Command("git", "-C", dir, "config", kv[0], kv[1]).Run())
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("a"), 0o644))
	changes, err := g.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, []collection.Change{{Path: "a.md"}}, changes)

	require.NoError(t, g.Add(ctx, "a.md"))
	require.NoError(t, g.Commit(ctx, "first"))

	require.NoError(t, os.Remove(filepath.Join(dir, "a.md")))
	changes, err = g.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, []collection.Change{{Path: "a.md", Deleted: true}}, changes)
	require.NoError(t, g.Remove(ctx, "a.md"))
	require.NoError(t, g.Commit(ctx, "second"))

	changes, err = g.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, changes)

	log, err := exec.Command("git", "-C", dir, "log", "--format=%s").Output()
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "first"}, strings.Fields(string(log)))
}
