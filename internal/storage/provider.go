// Package storage defines the root-confined file-system abstraction that
// every collection operation goes through.
package storage

import (
	"io/fs"

	"github.com/ithil/pensieve/internal/models"
)

// Provider is the interface for file operations relative to a root directory.
type Provider interface {
	// Root returns the absolute root directory.
	Root() string
	// Abs resolves a root-relative path, rejecting traversal outside the root.
	Abs(rel string) (string, error)
	// Rel converts an absolute path under the root into a slash-separated relative path.
	Rel(abs string) (string, error)
	// List returns metadata for every visible file under dir (relative to root).
	List(dir string) ([]models.NoteMetadata, error)
	// Files is List without checksums.
	Files(dir string) ([]models.NoteMetadata, error)
	// ReadDir returns the visible entries of dir (relative to root), sorted by name.
	ReadDir(dir string) ([]fs.DirEntry, error)
	// Stat returns file info for path (relative to root).
	Stat(path string) (fs.FileInfo, error)
	// Exists reports whether path (relative to root) exists.
	Exists(path string) bool
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
	// Create writes content to a new file, failing with fs.ErrExist when
	// path (relative to root) is already taken.
	Create(path string, content []byte) error
	// Delete removes the file at path (relative to root).
	Delete(path string) error
	// Move renames oldPath to newPath (both relative to root).
	Move(oldPath, newPath string) error
	// MkdirAll creates dir (relative to root) and any missing parents.
	MkdirAll(dir string) error
}
