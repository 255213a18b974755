// Package port moves notes between collections through staging directories.
//
// A port is bound to exactly one destination collection. Sending a note to a
// port severs its relations in the source collection and moves the file into
// the port's staging directory. The destination drains the port when it is
// opened, copying each staged file into the port's target stack and then
// removing it. Delivery is at most once per file with no atomicity across
// the copy and the remove.
package port

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/ithil/pensieve/internal/apperr"
	"github.com/ithil/pensieve/internal/collection"
	"github.com/ithil/pensieve/internal/storage"
)

// RegistryFile holds the port table inside the ports directory.
const RegistryFile = "ports.json"

// Port is one registry entry.
type Port struct {
	ID             string `json:"-"`
	Name           string `json:"name"`
	TargetPath     string `json:"targetPath"`
	CollectionName string `json:"collectionName"`
}

// Validate validates the port entry.
func (p *Port) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.CollectionName, validation.Required),
	)
}

// Registry is the port table plus the staging directories beside it.
type Registry struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	ports map[string]*Port
}

// Load reads <dir>/ports.json. A missing file yields an empty registry.
func Load(dir string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{dir: dir, logger: logger, ports: map[string]*Port{}}

	data, err := os.ReadFile(filepath.Join(dir, RegistryFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r, nil
		}
		return nil, fmt.Errorf("port: read registry: %w", err)
	}
	var table map[string]*Port
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("port: parse registry: %w", err)
	}
	for id, p := range table {
		if p == nil {
			continue
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("port: entry %s: %w", id, err)
		}
		p.ID = id
		r.ports[id] = p
	}
	return r, nil
}

// Dir returns the ports directory.
func (r *Registry) Dir() string { return r.dir }

// StagingDir returns the staging directory of port id.
func (r *Registry) StagingDir(id string) string {
	return filepath.Join(r.dir, id)
}

// Ports returns every port sorted by name.
func (r *Registry) Ports() []*Port {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Port, 0, len(r.ports))
	for _, p := range r.ports {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns the port with the given id or name.
func (r *Registry) Get(idOrName string) (*Port, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.ports[idOrName]; ok {
		cp := *p
		return &cp, true
	}
	for _, p := range r.ports {
		if p.Name == idOrName {
			cp := *p
			return &cp, true
		}
	}
	return nil, false
}

// Add registers a new port and creates its staging directory.
func (r *Registry) Add(name, collectionName, targetPath string) (*Port, error) {
	p := &Port{ID: uuid.NewString(), Name: name, CollectionName: collectionName, TargetPath: targetPath}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("port: %w: %w", apperr.ErrInvalid, err)
	}
	if err := os.MkdirAll(r.StagingDir(p.ID), 0o755); err != nil {
		return nil, fmt.Errorf("port: create staging dir: %w", err)
	}

	r.mu.Lock()
	r.ports[p.ID] = p
	r.mu.Unlock()
	if err := r.Save(); err != nil {
		return nil, err
	}
	cp := *p
	return &cp, nil
}

// Remove unregisters a port. Its staging directory is left alone.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	if _, ok := r.ports[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("port: %s: %w", id, apperr.ErrNotFound)
	}
	delete(r.ports, id)
	r.mu.Unlock()
	return r.Save()
}

// Save writes the registry.
func (r *Registry) Save() error {
	r.mu.Lock()
	data, err := json.MarshalIndent(r.ports, "", " ")
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("port: marshal registry: %w", err)
	}
	return storage.WriteFileAtomic(filepath.Join(r.dir, RegistryFile), data)
}

// SendToPort severs every relation of n and moves it into the staging
// directory of the port named by idOrName.
func (r *Registry) SendToPort(n *collection.Note, idOrName string) error {
	p, ok := r.Get(idOrName)
	if !ok {
		return fmt.Errorf("port: %s: %w", idOrName, apperr.ErrNotFound)
	}
	dst := filepath.Join(r.StagingDir(p.ID), n.Filename())
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("port: %s already staged in %s: %w", n.Filename(), p.Name, apperr.ErrPortTransfer)
	}

	if err := n.RemoveAllRelations(); err != nil {
		return fmt.Errorf("port: sever %s: %w", n.Path(), err)
	}
	if err := storage.MoveFile(n.AbsPath(), dst); err != nil {
		return fmt.Errorf("port: stage %s: %v: %w", n.Path(), err, apperr.ErrPortTransfer)
	}
	r.logger.Info("port: note staged",
		slog.String("port", p.Name),
		slog.String("path", n.Path()))
	return nil
}

// EmptyPort delivers every file staged for c into the ports' target stacks.
// It keeps going past failures; each failure wraps apperr.ErrPortTransfer and
// the file stays staged unless only its removal failed.
func (r *Registry) EmptyPort(c *collection.Collection) error {
	var errs []error
	for _, p := range r.Ports() {
		if p.CollectionName != c.Name() {
			continue
		}
		entries, err := os.ReadDir(r.StagingDir(p.ID))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			errs = append(errs, fmt.Errorf("port: list %s: %v: %w", p.Name, err, apperr.ErrPortTransfer))
			continue
		}
		for _, e := range entries {
			if e.IsDir() || storage.Hidden(e.Name()) {
				continue
			}
			if err := r.deliver(c, p, e.Name()); err != nil {
				r.logger.Warn("port: transfer failed",
					slog.String("port", p.Name),
					slog.String("file", e.Name()),
					slog.String("error", err.Error()))
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) deliver(c *collection.Collection, p *Port, name string) error {
	src := filepath.Join(r.StagingDir(p.ID), name)
	rel := path.Join(c.Normalize(p.TargetPath), name)
	if c.Store().Exists(rel) {
		return fmt.Errorf("port: deliver %s: %s exists: %w", name, rel, apperr.ErrPortTransfer)
	}
	dst, err := c.Store().Abs(rel)
	if err != nil {
		return fmt.Errorf("port: deliver %s: %v: %w", name, err, apperr.ErrPortTransfer)
	}
	if err := storage.CopyFile(src, dst); err != nil {
		return fmt.Errorf("port: deliver %s: %v: %w", name, err, apperr.ErrPortTransfer)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("port: clear %s: %v: %w", name, err, apperr.ErrPortTransfer)
	}
	r.logger.Info("port: note delivered",
		slog.String("port", p.Name),
		slog.String("path", rel))
	return nil
}
