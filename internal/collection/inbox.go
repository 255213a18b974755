package collection

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ithil/pensieve/internal/apperr"
	"github.com/ithil/pensieve/internal/storage"
)

// InboxFilenameLayout names notes sent to the inbox without a filename.
const InboxFilenameLayout = "2006-01-02 15,04,05"

// Inbox returns the configured inbox stack path ("" when unconfigured).
func (c *Collection) Inbox() string {
	return c.normalize(c.cfg.SpecialStacks[RoleInbox])
}

// SendText writes text as a new note in the inbox. An empty filename is
// derived from the current time.
func (c *Collection) SendText(text, filename string) (*Note, error) {
	if filename == "" {
		filename = c.now().Format(InboxFilenameLayout) + ".md"
	}
	return c.CreateNote(c.Inbox(), filename, text)
}

// SendFile copies an external file into the inbox, keeping its filename.
func (c *Collection) SendFile(src string) (*Note, error) {
	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("collection: send %s: %w", src, apperr.ErrMissingFile)
		}
		return nil, fmt.Errorf("collection: send %s: %w", src, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("collection: send %s: is a directory: %w", src, apperr.ErrMissingFile)
	}

	rel := path.Join(c.Inbox(), filepath.Base(src))
	if c.store.Exists(rel) {
		return nil, fmt.Errorf("collection: send %s: %w", rel, apperr.ErrAlreadyExists)
	}
	if err := c.checkSidecarFree(rel, ""); err != nil {
		return nil, err
	}
	abs, err := c.store.Abs(rel)
	if err != nil {
		return nil, err
	}
	if err := storage.CopyFile(src, abs); err != nil {
		return nil, err
	}
	c.logger.Info("collection: file sent to inbox", slog.String("path", rel))
	return c.noteAt(rel)
}

// CreateNote writes a new note into stack. It fails with ErrAlreadyExists
// when the path is taken.
func (c *Collection) CreateNote(stack, filename, content string) (*Note, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" || strings.ContainsAny(filename, `/\`) || storage.Hidden(filename) {
		return nil, fmt.Errorf("collection: filename %q: %w", filename, apperr.ErrInvalid)
	}
	stack = c.normalize(stack)
	if stack == "." {
		stack = ""
	}
	rel := path.Join(stack, filename)
	if err := c.checkSidecarFree(rel, ""); err != nil {
		return nil, err
	}
	if err := c.store.Create(rel, []byte(content)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("collection: create %s: %w", rel, apperr.ErrAlreadyExists)
		}
		return nil, err
	}
	c.logger.Debug("collection: note created", slog.String("path", rel))
	return c.noteAt(rel)
}
