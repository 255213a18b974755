package storage

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempRoot(t *testing.T) *FS {
	t.Helper()
	store, err := NewFS(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestWriteAndRead(t *testing.T) {
	s := tempRoot(t)
	content := []byte("# Hello\nWorld\n")
	require.NoError(t, s.Write("note.md", content))

	got, err := s.Read("note.md")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempRoot(t)
	require.NoError(t, s.Write("a/b/c.md", []byte("deep")))

	got, err := s.Read("a/b/c.md")
	require.NoError(t, err)
	assert.Equal(t, "deep", string(got))
}

func TestCreateIsExclusive(t *testing.T) {
	s := tempRoot(t)
	require.NoError(t, s.Create("2026/10/15.md", []byte("first")))

	err := s.Create("2026/10/15.md", []byte("second"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrExist)

	got, err := s.Read("2026/10/15.md")
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
}

func TestDelete(t *testing.T) {
	s := tempRoot(t)
	require.NoError(t, s.Write("del.md", []byte("bye")))
	require.NoError(t, s.Delete("del.md"))

	_, err := s.Read("del.md")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMove(t *testing.T) {
	s := tempRoot(t)
	require.NoError(t, s.Write("old.md", []byte("data")))
	require.NoError(t, s.Move("old.md", "sub/new.md"))

	got, err := s.Read("sub/new.md")
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))
	assert.False(t, s.Exists("old.md"))
}

func TestListSkipsHidden(t *testing.T) {
	s := tempRoot(t)
	require.NoError(t, s.Write("a.md", []byte("a")))
	require.NoError(t, s.Write("sub/b.canvas", []byte("{}")))
	require.NoError(t, s.Write("sub/.b.json", []byte("{}")))
	require.NoError(t, s.Write(".hidden/c.md", []byte("c")))

	items, err := s.List("")
	require.NoError(t, err)

	var paths []string
	for _, it := range items {
		paths = append(paths, it.Path)
	}
	assert.ElementsMatch(t, []string{"a.md", "sub/b.canvas"}, paths)
}

func TestFilesSkipsChecksums(t *testing.T) {
	s := tempRoot(t)
	require.NoError(t, s.Write("a.md", []byte("a")))
	require.NoError(t, s.Write("sub/.b.json", []byte("{}")))

	items, err := s.Files("")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a.md", items[0].Path)
	assert.Empty(t, items[0].Checksum)
	assert.False(t, items[0].UpdatedAt.IsZero())

	listed, err := s.List("")
	require.NoError(t, err)
	assert.Equal(t, Checksum([]byte("a")), listed[0].Checksum)
}

func TestReadDirSortedAndFiltered(t *testing.T) {
	s := tempRoot(t)
	require.NoError(t, s.Write("b.md", []byte("b")))
	require.NoError(t, s.Write("a.md", []byte("a")))
	require.NoError(t, s.Write(".a.json", []byte("{}")))
	require.NoError(t, s.MkdirAll("Sub"))

	entries, err := s.ReadDir("")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"Sub", "a.md", "b.md"}, names)
}

func TestRelToleratesAbsolute(t *testing.T) {
	s := tempRoot(t)
	rel, err := s.Rel(filepath.Join(s.Root(), "Inbox", "a.md"))
	require.NoError(t, err)
	assert.Equal(t, "Inbox/a.md", rel)

	rel, err = s.Rel("Inbox/./a.md")
	require.NoError(t, err)
	assert.Equal(t, "Inbox/a.md", rel)

	_, err = s.Rel(filepath.Dir(s.Root()))
	assert.Error(t, err)
}

func TestTraversalBlocked(t *testing.T) {
	s := tempRoot(t)
	for _, p := range []string{"../../etc/passwd", "../outside.md", "/etc/shadow"} {
		_, err := s.Read(p)
		assert.Error(t, err, "read %q", p)
		assert.Error(t, s.Write(p, []byte("x")), "write %q", p)
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	s := tempRoot(t)
	require.NoError(t, s.Write("atomic.md", []byte("original")))
	require.NoError(t, s.Write("atomic.md", []byte("updated")))

	got, err := s.Read("atomic.md")
	require.NoError(t, err)
	assert.Equal(t, "updated", string(got))

	matches, _ := filepath.Glob(filepath.Join(s.root, TempPrefix+"*"))
	assert.Empty(t, matches)
}

func TestMoveFileAndCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.md")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	dst := filepath.Join(dir, "copy", "dst.md")
	require.NoError(t, CopyFile(src, dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	moved := filepath.Join(dir, "moved", "m.md")
	require.NoError(t, MoveFile(src, moved))
	_, err = os.Stat(src)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(moved)
	assert.NoError(t, err)
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestNewFS_FileNotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	_, err := NewFS(f)
	assert.Error(t, err)
}
