package collection

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/ithil/pensieve/internal/storage"
)

// StackStyleFile is the optional presentation sidecar inside a stack directory.
const StackStyleFile = ".stack.json"

// Stack is a directory node in the stack tree.
type Stack struct {
	c       *Collection
	rel     string
	isInbox bool
}

// Path returns the stacks-root-relative path ("" for the root).
func (s *Stack) Path() string { return s.rel }

// Name returns the last path element.
func (s *Stack) Name() string { return path.Base(s.rel) }

// IsInbox reports whether this stack is the configured inbox.
func (s *Stack) IsInbox() bool { return s.isInbox }

// Style returns the decoded "style" object of the stack's .stack.json,
// or nil when the stack has no style sidecar.
func (s *Stack) Style() (map[string]any, error) {
	data, err := s.c.store.Read(path.Join(s.rel, StackStyleFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var doc struct {
		Style map[string]any `json:"style"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("collection: parse %s: %w", StackStyleFile, err)
	}
	return doc.Style, nil
}

// SetStyle replaces the stack's style sidecar.
func (s *Stack) SetStyle(style map[string]any) error {
	data, err := json.MarshalIndent(map[string]any{"style": style}, "", " ")
	if err != nil {
		return fmt.Errorf("collection: marshal style: %w", err)
	}
	return s.c.store.Write(path.Join(s.rel, StackStyleFile), data)
}

// Listing is the content of one stack split into sub-stacks and notes.
type Listing struct {
	Stacks []*Stack
	Notes  []*Note
}

// Stacks lists the immediate children of the stack at rel. Hidden entries
// (sidecars, style files, temp files) are filtered out.
func (c *Collection) Stacks(rel string) (*Listing, error) {
	rel = c.normalize(rel)
	if rel == "." {
		rel = ""
	}
	entries, err := c.store.ReadDir(rel)
	if err != nil {
		return nil, err
	}
	out := &Listing{}
	for _, e := range entries {
		childRel := path.Join(rel, e.Name())
		if e.IsDir() {
			out.Stacks = append(out.Stacks, c.newStack(childRel))
			continue
		}
		if !e.Type().IsRegular() {
			continue
		}
		n, err := c.noteAt(childRel)
		if err != nil {
			return nil, err
		}
		out.Notes = append(out.Notes, n)
	}
	return out, nil
}

// ListOfStacks returns every stack below the root in pre-order.
func (c *Collection) ListOfStacks() ([]*Stack, error) {
	var out []*Stack
	var walk func(rel string) error
	walk = func(rel string) error {
		l, err := c.Stacks(rel)
		if err != nil {
			return err
		}
		for _, s := range l.Stacks {
			out = append(out, s)
			if err := walk(s.rel); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(""); err != nil {
		return nil, err
	}
	return out, nil
}

// StackByPath resolves a stack. The boolean is false when no such directory exists.
func (c *Collection) StackByPath(rel string) (*Stack, bool) {
	rel = c.normalize(rel)
	if rel == "." {
		rel = ""
	}
	if rel != "" && storage.Hidden(path.Base(rel)) {
		return nil, false
	}
	info, err := c.store.Stat(rel)
	if err != nil || !info.IsDir() {
		return nil, false
	}
	return c.newStack(rel), true
}

// SpecialStack resolves a configured role such as "inbox". The boolean is
// false when the role is unconfigured or its directory is missing.
func (c *Collection) SpecialStack(role string) (*Stack, bool) {
	rel, ok := c.cfg.SpecialStacks[role]
	if !ok {
		return nil, false
	}
	return c.StackByPath(rel)
}

func (c *Collection) newStack(rel string) *Stack {
	return &Stack{c: c, rel: rel, isInbox: c.isInboxPath(rel)}
}

func (c *Collection) isInboxPath(rel string) bool {
	inbox, ok := c.cfg.SpecialStacks[RoleInbox]
	return ok && c.normalize(inbox) == rel
}
