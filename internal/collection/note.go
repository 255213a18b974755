package collection

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/ithil/pensieve/internal/apperr"
	"github.com/ithil/pensieve/internal/document"
	"github.com/ithil/pensieve/internal/models"
	"github.com/ithil/pensieve/internal/storage"
)

// Note extensions with a structured body.
const (
	ExtCanvas   = ".canvas"
	ExtTasklist = ".tasklist"
)

// Note is one content file in the collection. Its graph identity is its
// stacks-root-relative path.
type Note struct {
	c    *Collection
	rel  string
	name string
	ext  string
	kind models.Kind
}

// NoteFromAbs constructs a note from an absolute path inside the stacks root.
func (c *Collection) NoteFromAbs(abs string) (*Note, error) {
	rel, err := c.store.Rel(abs)
	if err != nil {
		return nil, err
	}
	return c.noteAt(rel)
}

// NoteByPath resolves an existing note. The boolean is false when the path
// does not name a visible regular file.
func (c *Collection) NoteByPath(rel string) (*Note, bool) {
	rel = c.normalize(rel)
	if rel == "" || rel == "." || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, "../") {
		return nil, false
	}
	if storage.Hidden(path.Base(rel)) {
		return nil, false
	}
	info, err := c.store.Stat(rel)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	n, err := c.noteAt(rel)
	if err != nil {
		return nil, false
	}
	return n, true
}

func (c *Collection) noteAt(rel string) (*Note, error) {
	name, ext := splitName(path.Base(rel))
	n := &Note{c: c, rel: rel, name: name, ext: ext}
	kind, err := c.detectKind(rel, ext)
	if err != nil {
		return nil, err
	}
	n.kind = kind
	return n, nil
}

// detectKind classifies by extension first and falls back to sniffing the
// first 512 bytes when the extension is unknown.
func (c *Collection) detectKind(rel, ext string) (models.Kind, error) {
	switch strings.ToLower(ext) {
	case ".md", ".markdown", ".txt":
		return models.KindText, nil
	case ExtCanvas:
		return models.KindCanvas, nil
	case ExtTasklist:
		return models.KindTasklist, nil
	}
	if k, ok := kindFromMIME(mime.TypeByExtension(strings.ToLower(ext))); ok {
		return k, nil
	}

	abs, err := c.store.Abs(rel)
	if err != nil {
		return "", err
	}
	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.KindBinary, nil
		}
		return "", fmt.Errorf("collection: sniff %s: %w", rel, err)
	}
	defer f.Close()
	head := make([]byte, 512)
	nRead, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("collection: sniff %s: %w", rel, err)
	}
	if k, ok := kindFromMIME(http.DetectContentType(head[:nRead])); ok {
		return k, nil
	}
	return models.KindBinary, nil
}

func kindFromMIME(mt string) (models.Kind, bool) {
	switch {
	case mt == "":
		return "", false
	case strings.HasPrefix(mt, "image/"):
		return models.KindImage, true
	case strings.HasPrefix(mt, "audio/"):
		return models.KindAudio, true
	case strings.HasPrefix(mt, "text/plain"), strings.HasPrefix(mt, "text/markdown"):
		return models.KindText, true
	}
	return "", false
}

// Collection returns the owning collection.
func (n *Note) Collection() *Collection { return n.c }

// Path returns the stacks-root-relative path, e.g. "Projects/b.md".
func (n *Note) Path() string { return n.rel }

// AbsPath returns the absolute content path.
func (n *Note) AbsPath() string {
	abs, _ := n.c.store.Abs(n.rel)
	return abs
}

// Name returns the filename without extension.
func (n *Note) Name() string { return n.name }

// Filename returns the filename with extension.
func (n *Note) Filename() string { return path.Base(n.rel) }

// Ext returns the filename extension including the dot.
func (n *Note) Ext() string { return n.ext }

// Kind returns the content kind.
func (n *Note) Kind() models.Kind { return n.kind }

// Stack returns the parent stack path ("" for notes at the root).
func (n *Note) Stack() string {
	dir := path.Dir(n.rel)
	if dir == "." {
		return ""
	}
	return dir
}

// InInbox reports whether the note's stack is the configured inbox.
func (n *Note) InInbox() bool {
	return n.c.isInboxPath(n.Stack())
}

// SidecarPath returns the stacks-root-relative sidecar path.
func (n *Note) SidecarPath() string { return sidecarRel(n.rel) }

// RawContent returns the whole file.
func (n *Note) RawContent() ([]byte, error) {
	data, err := n.c.store.Read(n.rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("collection: %s: %w", n.rel, apperr.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

// Content returns the whole file as text.
func (n *Note) Content() (string, error) {
	data, err := n.RawContent()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetContent overwrites the whole file.
func (n *Note) SetContent(content string) error {
	return n.SetRawContent([]byte(content))
}

// SetRawContent overwrites the whole file.
func (n *Note) SetRawContent(data []byte) error {
	return n.c.store.Write(n.rel, data)
}

// Canvas parses the note body as a canvas document.
func (n *Note) Canvas() (*document.Canvas, error) {
	if n.kind != models.KindCanvas {
		return nil, fmt.Errorf("collection: %s is a %s note, not a canvas", n.rel, n.kind)
	}
	data, err := n.RawContent()
	if err != nil {
		return nil, err
	}
	return document.ParseCanvas(data)
}

// SetCanvas overwrites the note body with a canvas document.
func (n *Note) SetCanvas(cv *document.Canvas) error {
	if n.kind != models.KindCanvas {
		return fmt.Errorf("collection: %s is a %s note, not a canvas", n.rel, n.kind)
	}
	data, err := cv.Marshal()
	if err != nil {
		return err
	}
	return n.SetRawContent(data)
}

// Tasklist parses the note body as a tasklist document.
func (n *Note) Tasklist() (*document.Tasklist, error) {
	if n.kind != models.KindTasklist {
		return nil, fmt.Errorf("collection: %s is a %s note, not a tasklist", n.rel, n.kind)
	}
	data, err := n.RawContent()
	if err != nil {
		return nil, err
	}
	return document.ParseTasklist(data)
}

// SetTasklist overwrites the note body with a tasklist document.
func (n *Note) SetTasklist(t *document.Tasklist) error {
	if n.kind != models.KindTasklist {
		return fmt.Errorf("collection: %s is a %s note, not a tasklist", n.rel, n.kind)
	}
	t.ModificationDate = n.c.now()
	data, err := t.Marshal()
	if err != nil {
		return err
	}
	return n.SetRawContent(data)
}
