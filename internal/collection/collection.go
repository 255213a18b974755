// Package collection implements the note-graph store: a directory tree of
// stacks holding notes, where each note may carry a sidecar relation record
// of typed, bidirectional links to other notes.
//
// There is no central index. Referential integrity is kept by rewriting
// neighbor sidecars whenever a note's path changes or the note disappears.
// All graph mutations on one Collection are serialized by a single mutex that
// spans the full read-modify-write, including the neighbor-side writes.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ithil/pensieve/internal/apperr"
	"github.com/ithil/pensieve/internal/storage"
)

// Collection is an opened note collection.
type Collection struct {
	root   string // absolute collection root (holds .collection.json)
	cfg    *Config
	store  storage.Provider
	logger *slog.Logger
	now    func() time.Time
	vcs    VersionControl
	ranker Ranker
	ports  PortDrainer

	graphMu sync.Mutex // serializes every graph mutation

	cacheMu  sync.Mutex
	relCache map[string]relEntry
}

// Option configures a Collection at open time.
type Option func(*Collection)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collection) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the time source used for timestamps and date nodes.
func WithClock(now func() time.Time) Option {
	return func(c *Collection) {
		if now != nil {
			c.now = now
		}
	}
}

// WithVersionControl attaches the version-control collaborator.
func WithVersionControl(v VersionControl) Option {
	return func(c *Collection) { c.vcs = v }
}

// WithRanker replaces the fuzzy-match ranking collaborator.
func WithRanker(r Ranker) Option {
	return func(c *Collection) {
		if r != nil {
			c.ranker = r
		}
	}
}

// PortDrainer delivers notes staged for this collection. It runs once when
// the collection is opened.
type PortDrainer interface {
	EmptyPort(c *Collection) error
}

// WithPortDrainer injects the port registry that is drained on open.
func WithPortDrainer(p PortDrainer) Option {
	return func(c *Collection) { c.ports = p }
}

// Open finds the collection containing dir (walking upward) and opens it.
func Open(dir string, opts ...Option) (*Collection, error) {
	cfgPath, err := FindConfig(dir)
	if err != nil {
		return nil, err
	}
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}

	root := filepath.Dir(cfgPath)
	stacksRoot := resolveUnder(root, cfg.Paths.Stacks)
	if err := os.MkdirAll(stacksRoot, 0o755); err != nil {
		return nil, fmt.Errorf("collection: create stacks dir: %w", err)
	}
	store, err := storage.NewFS(stacksRoot)
	if err != nil {
		return nil, fmt.Errorf("collection: init storage: %w", err)
	}

	c := &Collection{
		root:     root,
		cfg:      cfg,
		store:    store,
		logger:   slog.Default(),
		now:      time.Now,
		ranker:   SubsequenceRanker{},
		relCache: make(map[string]relEntry),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger.Debug("collection: opened",
		slog.String("root", root),
		slog.String("stacks", stacksRoot))

	if c.ports != nil {
		if err := c.ports.EmptyPort(c); err != nil {
			c.logger.Warn("collection: emptying ports failed", slog.String("error", err.Error()))
		}
	}
	return c, nil
}

// Init creates a new collection at dir. It refuses when dir already lies
// inside a collection. Zero fields of cfg are filled from NewDefaultConfig.
func Init(ctx context.Context, dir string, cfg *Config, opts ...Option) (*Collection, error) {
	if existing, err := FindConfig(dir); err == nil {
		return nil, fmt.Errorf("collection: cannot init %s, found %s: %w", dir, existing, apperr.ErrConfigAlreadyExists)
	} else if !errors.Is(err, apperr.ErrConfigNotFound) {
		return nil, err
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("collection: resolve %s: %w", dir, err)
	}
	merged := mergeDefaults(cfg, filepath.Base(root), time.Now())
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("collection: invalid config: %w", err)
	}

	for _, p := range []string{root, merged.Paths.Stacks, merged.Paths.Archive, merged.Paths.Cache, merged.Paths.Templates} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(resolveUnder(root, p), 0o755); err != nil {
			return nil, fmt.Errorf("collection: create %s: %w", p, err)
		}
	}
	stacksRoot := resolveUnder(root, merged.Paths.Stacks)
	for _, rel := range merged.SpecialStacks {
		if err := os.MkdirAll(filepath.Join(stacksRoot, filepath.FromSlash(rel)), 0o755); err != nil {
			return nil, fmt.Errorf("collection: create special stack %s: %w", rel, err)
		}
	}
	if err := saveConfig(filepath.Join(root, ConfigFileName), merged); err != nil {
		return nil, err
	}

	c, err := Open(root, opts...)
	if err != nil {
		return nil, err
	}
	if merged.UseGit && c.vcs != nil {
		if err := c.vcs.Init(ctx); err != nil {
			return nil, fmt.Errorf("collection: vcs init: %w", err)
		}
		if err := c.Commit(ctx, "Initialize collection"); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func mergeDefaults(cfg *Config, name string, now time.Time) *Config {
	def := NewDefaultConfig(name, now)
	if cfg == nil {
		return def
	}
	out := *cfg
	if out.PVersion == "" {
		out.PVersion = def.PVersion
	}
	if out.Name == "" {
		out.Name = def.Name
	}
	if out.CreationDate.IsZero() {
		out.CreationDate = def.CreationDate
	}
	if out.Locale == "" {
		out.Locale = def.Locale
	}
	if out.Paths.Stacks == "" {
		out.Paths.Stacks = def.Paths.Stacks
	}
	if out.Paths.Archive == "" {
		out.Paths.Archive = def.Paths.Archive
	}
	if out.Paths.Cache == "" {
		out.Paths.Cache = def.Paths.Cache
	}
	if out.Paths.Templates == "" {
		out.Paths.Templates = def.Paths.Templates
	}
	if out.SpecialStacks == nil {
		out.SpecialStacks = def.SpecialStacks
	}
	if out.Tags == nil {
		out.Tags = def.Tags
	}
	return &out
}

// Root returns the absolute collection root.
func (c *Collection) Root() string { return c.root }

// StacksRoot returns the absolute directory all note paths are relative to.
func (c *Collection) StacksRoot() string { return c.store.Root() }

// Name returns the configured collection name.
func (c *Collection) Name() string { return c.cfg.Name }

// Config returns a copy of the collection configuration.
func (c *Collection) Config() Config {
	out := *c.cfg
	out.SpecialStacks = make(map[string]string, len(c.cfg.SpecialStacks))
	for k, v := range c.cfg.SpecialStacks {
		out.SpecialStacks[k] = v
	}
	return out
}

// Store returns the storage provider rooted at the stacks directory.
func (c *Collection) Store() storage.Provider { return c.store }

// Logger returns the collection logger.
func (c *Collection) Logger() *slog.Logger { return c.logger }

// Now returns the collection clock's current time.
func (c *Collection) Now() time.Time { return c.now() }

// TemplatesDir returns the absolute template directory.
func (c *Collection) TemplatesDir() string {
	p := c.cfg.Paths.Templates
	if p == "" {
		p = "./.templates"
	}
	return resolveUnder(c.root, p)
}

// SaveConfig persists the current configuration.
func (c *Collection) SaveConfig() error {
	return saveConfig(filepath.Join(c.root, ConfigFileName), c.cfg)
}
