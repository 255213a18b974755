package collection

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ithil/pensieve/internal/apperr"
	"github.com/ithil/pensieve/internal/storage"
)

// ConfigFileName is the collection marker file at the collection root.
const ConfigFileName = ".collection.json"

// PVersion is the on-disk format version written into new collections.
const PVersion = "0.2"

// Well-known special stack roles.
const (
	RoleInbox    = "inbox"
	RoleAnything = "anything"
	RoleAppendix = "appendix"
	RoleCalendar = "calendar"
)

// Config is the content of .collection.json.
type Config struct {
	PVersion      string            `json:"pVersion"`
	Name          string            `json:"name"`
	CreationDate  time.Time         `json:"creationDate"`
	UseGit        bool              `json:"useGit"`
	Locale        string            `json:"locale,omitempty"`
	Paths         Paths             `json:"paths"`
	SpecialStacks map[string]string `json:"specialStacks"`
	Tags          json.RawMessage   `json:"tags,omitempty"`
}

// Paths locates the collection directories relative to the collection root.
type Paths struct {
	Stacks    string `json:"stacks"`
	Archive   string `json:"archive,omitempty"`
	Cache     string `json:"cache,omitempty"`
	Templates string `json:"templates,omitempty"`
}

// Validate validates the collection configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Locale, validation.Length(2, 35)),
	); err != nil {
		return err
	}
	return c.Paths.Validate()
}

// Validate validates the path table.
func (p *Paths) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Stacks, validation.Required),
	)
}

// NewDefaultConfig returns the configuration written by Init when no
// overrides are given.
func NewDefaultConfig(name string, now time.Time) *Config {
	return &Config{
		PVersion:     PVersion,
		Name:         name,
		CreationDate: now,
		Locale:       "en",
		Paths: Paths{
			Stacks:    "./Stacks",
			Archive:   "./Archive",
			Cache:     "./.cache",
			Templates: "./.templates",
		},
		SpecialStacks: map[string]string{
			RoleInbox:    "Inbox",
			RoleCalendar: "Calendar",
		},
		Tags: json.RawMessage(`[]`),
	}
}

// FindConfig walks upward from dir and returns the path of the first
// .collection.json it finds.
func FindConfig(dir string) (string, error) {
	start, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("collection: resolve %s: %w", dir, err)
	}
	current := start
	for {
		candidate := filepath.Join(current, ConfigFileName)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("collection: stat %s: %w", candidate, err)
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("collection: no %s in %s or parent directories: %w", ConfigFileName, start, apperr.ErrConfigNotFound)
		}
		current = parent
	}
}

// LoadConfig reads and validates a collection config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("collection: read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("collection: parse config %s: %w", path, err)
	}
	if cfg.SpecialStacks == nil {
		cfg.SpecialStacks = map[string]string{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("collection: invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func saveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", " ")
	if err != nil {
		return fmt.Errorf("collection: marshal config: %w", err)
	}
	return storage.WriteFileAtomic(path, data)
}

// resolveUnder returns p joined to root unless p is already absolute.
func resolveUnder(root, p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}
