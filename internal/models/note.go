// Package models defines the wire types shared by the collection, index and API layers.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Kind classifies a note by its content format.
type Kind string

// Note kinds.
const (
	KindText     Kind = "text"
	KindCanvas   Kind = "canvas"
	KindTasklist Kind = "tasklist"
	KindImage    Kind = "image"
	KindAudio    Kind = "audio"
	KindBinary   Kind = "binary"
)

// IsTextual reports whether content of this kind is stored as UTF-8 text.
func (k Kind) IsTextual() bool {
	switch k {
	case KindText, KindCanvas, KindTasklist:
		return true
	}
	return false
}

// Edge is one entry of a relation list: a note path plus ordered edge properties.
// On disk it is encoded as a two-element array: ["Projects/b.md", ["ref"]].
type Edge struct {
	Path  string
	Props []string
}

// MarshalJSON encodes the edge as [path, props].
func (e Edge) MarshalJSON() ([]byte, error) {
	props := e.Props
	if props == nil {
		props = []string{}
	}
	return json.Marshal([]any{e.Path, props})
}

// UnmarshalJSON accepts [path, props], [path] and a bare "path" string.
func (e *Edge) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.Path)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("edge: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("edge: empty entry")
	}
	if err := json.Unmarshal(raw[0], &e.Path); err != nil {
		return fmt.Errorf("edge: path: %w", err)
	}
	e.Props = nil
	if len(raw) > 1 {
		if err := json.Unmarshal(raw[1], &e.Props); err != nil {
			return fmt.Errorf("edge: props: %w", err)
		}
	}
	return nil
}

// RelationRecord is the content of a note's sidecar file.
type RelationRecord struct {
	Links     []Edge `json:"links,omitempty"`
	Backlinks []Edge `json:"backlinks,omitempty"`
}

// IsEmpty reports whether the record carries no edges. An empty record is
// logically absent and is never written to disk.
func (r *RelationRecord) IsEmpty() bool {
	return r == nil || (len(r.Links) == 0 && len(r.Backlinks) == 0)
}

// Clone returns a deep copy of the record.
func (r *RelationRecord) Clone() *RelationRecord {
	if r == nil {
		return &RelationRecord{}
	}
	return &RelationRecord{
		Links:     cloneEdges(r.Links),
		Backlinks: cloneEdges(r.Backlinks),
	}
}

// Neighbors returns the de-duplicated set of paths referenced by either list,
// in first-seen order.
func (r *RelationRecord) Neighbors() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, list := range [][]Edge{r.Links, r.Backlinks} {
		for _, e := range list {
			if _, ok := seen[e.Path]; ok {
				continue
			}
			seen[e.Path] = struct{}{}
			out = append(out, e.Path)
		}
	}
	return out
}

func cloneEdges(in []Edge) []Edge {
	if in == nil {
		return nil
	}
	out := make([]Edge, len(in))
	for i, e := range in {
		out[i] = Edge{Path: e.Path, Props: append([]string(nil), e.Props...)}
	}
	return out
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
