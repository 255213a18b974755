package collection

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/ithil/pensieve/internal/apperr"
)

// normalize converts a stored or user-supplied path into the canonical
// slash-separated stacks-root-relative form. Absolute paths under the stacks
// root are made relative; other absolute paths are kept (cleaned) so that
// legacy entries still compare equal to themselves.
func (c *Collection) normalize(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		if rel, err := c.store.Rel(p); err == nil {
			return rel
		}
		return filepath.ToSlash(filepath.Clean(p))
	}
	cleaned := path.Clean(filepath.ToSlash(p))
	return strings.TrimPrefix(cleaned, "./")
}

// samePath compares two paths after normalization.
func (c *Collection) samePath(a, b string) bool {
	return c.normalize(a) == c.normalize(b)
}

// Normalize exposes the canonical path form used in sidecars.
func (c *Collection) Normalize(p string) string {
	return c.normalize(p)
}

func splitName(filename string) (name, ext string) {
	ext = path.Ext(filename)
	return strings.TrimSuffix(filename, ext), ext
}

// sidecarRel returns the sidecar path for a note path: <dir>/.<name>.json.
func sidecarRel(noteRel string) string {
	dir, file := path.Split(noteRel)
	name, _ := splitName(file)
	return path.Join(dir, "."+name+".json")
}

// sidecarSibling returns a note in rel's directory, other than rel and self,
// with the same stem. Such a note owns the sidecar rel would use.
func (c *Collection) sidecarSibling(rel, self string) (string, bool) {
	dir, file := path.Split(rel)
	stem, _ := splitName(file)
	entries, err := c.store.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		other := path.Join(dir, e.Name())
		if other == rel || other == self {
			continue
		}
		if name, _ := splitName(e.Name()); name == stem {
			return other, true
		}
	}
	return "", false
}

// checkSidecarFree fails with ErrAlreadyExists when another note would
// share rel's sidecar.
func (c *Collection) checkSidecarFree(rel, self string) error {
	if other, ok := c.sidecarSibling(rel, self); ok {
		return fmt.Errorf("collection: %s would share a sidecar with %s: %w", rel, other, apperr.ErrAlreadyExists)
	}
	return nil
}
