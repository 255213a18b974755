// Package testutil provides shared test helpers for setting up collections and databases.
package testutil

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ithil/pensieve/internal/collection"
	"github.com/ithil/pensieve/internal/index"
)

// FixedNow is the clock used by TestCollection.
var FixedNow = time.Date(2026, time.October, 15, 9, 30, 0, 0, time.UTC)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "pensieve-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestCollection initialises a collection in a temporary directory with
// stacks under ./Stacks, an Inbox and a Calendar. The clock is FixedNow
// unless an option overrides it.
func TestCollection(t *testing.T, opts ...collection.Option) *collection.Collection {
	t.Helper()
	root := t.TempDir()
	cfg := &collection.Config{
		Name:  "test",
		Paths: collection.Paths{Stacks: "./Stacks"},
		SpecialStacks: map[string]string{
			collection.RoleInbox:    "Inbox",
			collection.RoleCalendar: "Calendar",
		},
	}
	all := append([]collection.Option{
		collection.WithLogger(Logger()),
		collection.WithClock(func() time.Time { return FixedNow }),
	}, opts...)
	c, err := collection.Init(context.Background(), root, cfg, all...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// WriteNote writes content to rel under the stacks root and returns the note.
func WriteNote(t *testing.T, c *collection.Collection, rel, content string) *collection.Note {
	t.Helper()
	abs := filepath.Join(c.StacksRoot(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	n, err := c.NoteFromAbs(abs)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

// ReadSidecar returns the raw sidecar JSON of the note at rel, or "" when
// the note has no sidecar.
func ReadSidecar(t *testing.T, c *collection.Collection, rel string) string {
	t.Helper()
	dir, file := filepath.Split(filepath.FromSlash(rel))
	name := file[:len(file)-len(filepath.Ext(file))]
	data, err := os.ReadFile(filepath.Join(c.StacksRoot(), dir, "."+name+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ""
		}
		t.Fatal(err)
	}
	return string(data)
}
