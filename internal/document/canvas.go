// Package document parses and rewrites the structured note bodies: canvases
// (spatial boards whose elements may reference other notes) and tasklists.
package document

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Element types.
const (
	ElementText = "text"
	ElementNote = "note"
)

// Canvas is the JSON body of a canvas note. Fields this package does not
// model are kept in Extra and written back unchanged.
type Canvas struct {
	Title    string
	Elements []Element
	Edges    []json.RawMessage
	Style    json.RawMessage
	Extra    map[string]json.RawMessage
}

// Element is one item placed on a canvas. Note elements carry Path, text
// elements carry Text. Dates stay raw so any encoding survives a rewrite.
type Element struct {
	ID               string
	Type             string
	Text             string
	Path             string
	X                float64
	Y                float64
	Width            float64
	Height           float64
	CreationDate     json.RawMessage
	ModificationDate json.RawMessage
	Extra            map[string]json.RawMessage
}

// NewCanvas returns an empty canvas.
func NewCanvas(title string) *Canvas {
	return &Canvas{
		Title:    title,
		Elements: []Element{},
		Edges:    []json.RawMessage{},
		Style:    json.RawMessage(`{}`),
	}
}

// ParseCanvas decodes a canvas body. An empty body is an empty canvas.
// Only malformed JSON fails; a known field of an unexpected shape is kept
// as an unknown field.
func ParseCanvas(data []byte) (*Canvas, error) {
	if len(data) == 0 {
		return NewCanvas(""), nil
	}
	var c Canvas
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("document: parse canvas: %w", err)
	}
	return &c, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Canvas) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	takeField(raw, "title", &c.Title)
	var elements []Element
	if takeField(raw, "elements", &elements) {
		c.Elements = elements
	}
	takeField(raw, "edges", &c.Edges)
	if v, ok := raw["style"]; ok {
		c.Style = v
		delete(raw, "style")
	}
	if c.Elements == nil {
		c.Elements = []Element{}
	}
	if c.Edges == nil {
		c.Edges = []json.RawMessage{}
	}
	c.Extra = raw
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c Canvas) MarshalJSON() ([]byte, error) {
	out := cloneRaw(c.Extra)
	if err := putField(out, "title", c.Title); err != nil {
		return nil, err
	}
	elements := c.Elements
	if elements == nil {
		elements = []Element{}
	}
	if err := putField(out, "elements", elements); err != nil {
		return nil, err
	}
	edges := c.Edges
	if edges == nil {
		edges = []json.RawMessage{}
	}
	if err := putField(out, "edges", edges); err != nil {
		return nil, err
	}
	if len(c.Style) > 0 {
		out["style"] = c.Style
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. Elements that are not JSON
// objects fail; everything else is accepted.
func (e *Element) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	takeField(raw, "id", &e.ID)
	takeField(raw, "type", &e.Type)
	takeField(raw, "text", &e.Text)
	takeField(raw, "path", &e.Path)
	takeField(raw, "x", &e.X)
	takeField(raw, "y", &e.Y)
	takeField(raw, "width", &e.Width)
	takeField(raw, "height", &e.Height)
	if v, ok := raw["creationDate"]; ok {
		e.CreationDate = v
		delete(raw, "creationDate")
	}
	if v, ok := raw["modificationDate"]; ok {
		e.ModificationDate = v
		delete(raw, "modificationDate")
	}
	e.Extra = raw
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e Element) MarshalJSON() ([]byte, error) {
	out := cloneRaw(e.Extra)
	fields := []struct {
		key  string
		val  any
		omit bool
	}{
		{"id", e.ID, false},
		{"type", e.Type, false},
		{"text", e.Text, e.Text == ""},
		{"path", e.Path, e.Path == ""},
		{"x", e.X, false},
		{"y", e.Y, false},
		{"width", e.Width, false},
		{"height", e.Height, false},
	}
	for _, f := range fields {
		if f.omit {
			continue
		}
		if err := putField(out, f.key, f.val); err != nil {
			return nil, err
		}
	}
	if len(e.CreationDate) > 0 {
		out["creationDate"] = e.CreationDate
	}
	if len(e.ModificationDate) > 0 {
		out["modificationDate"] = e.ModificationDate
	}
	return json.Marshal(out)
}

// takeField decodes raw[key] into dst and removes it from raw. A value of
// the wrong shape stays in raw untouched. It reports whether dst was set.
func takeField(raw map[string]json.RawMessage, key string, dst any) bool {
	v, ok := raw[key]
	if !ok {
		return false
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return false
	}
	delete(raw, key)
	return true
}

// putField sets key unless an undecoded value already occupies it.
func putField(out map[string]json.RawMessage, key string, v any) error {
	if _, taken := out[key]; taken {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	out[key] = b
	return nil
}

func cloneRaw(m map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(m)+10)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Timestamp encodes t as a canvas date: millisecond ISO 8601 in UTC.
func Timestamp(t time.Time) json.RawMessage {
	b, _ := json.Marshal(t.UTC().Format("2006-01-02T15:04:05.000Z"))
	return b
}

// restamp encodes now in the same shape as prev: epoch milliseconds when
// prev is a number, ISO 8601 otherwise.
func restamp(prev json.RawMessage, now time.Time) json.RawMessage {
	var ms float64
	if len(prev) > 0 && json.Unmarshal(prev, &ms) == nil {
		return json.RawMessage(strconv.FormatInt(now.UnixMilli(), 10))
	}
	return Timestamp(now)
}

// Marshal encodes the canvas with stable indentation.
func (c *Canvas) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("document: marshal canvas: %w", err)
	}
	return data, nil
}

// AddNote places a note reference on the canvas and returns the new element.
func (c *Canvas) AddNote(path string, x, y, width, height float64, now time.Time) Element {
	el := Element{
		ID:               uuid.NewString(),
		Type:             ElementNote,
		Path:             path,
		X:                x,
		Y:                y,
		Width:            width,
		Height:           height,
		CreationDate:     Timestamp(now),
		ModificationDate: Timestamp(now),
	}
	c.Elements = append(c.Elements, el)
	return el
}

// AddText places a text element on the canvas and returns it.
func (c *Canvas) AddText(text string, x, y, width, height float64, now time.Time) Element {
	el := Element{
		ID:               uuid.NewString(),
		Type:             ElementText,
		Text:             text,
		X:                x,
		Y:                y,
		Width:            width,
		Height:           height,
		CreationDate:     Timestamp(now),
		ModificationDate: Timestamp(now),
	}
	c.Elements = append(c.Elements, el)
	return el
}

// References returns the paths referenced by note elements, in element order.
func (c *Canvas) References() []string {
	var out []string
	for _, el := range c.Elements {
		if el.Path != "" {
			out = append(out, el.Path)
		}
	}
	return out
}

// PlaceholderText is the text left in place of an element whose note was deleted.
func PlaceholderText(oldPath string) string {
	return "Deleted note: " + oldPath
}

// RewriteReference repoints every element whose path matches oldPath to
// newPath. When newPath is empty the referenced note is gone and the element
// becomes a text placeholder at the same position, keeping its id.
// match decides path equality so callers can tolerate legacy path shapes.
// It reports whether any element changed.
func (c *Canvas) RewriteReference(oldPath, newPath string, match func(a, b string) bool, now time.Time) bool {
	if match == nil {
		match = func(a, b string) bool { return a == b }
	}
	changed := false
	for i := range c.Elements {
		el := &c.Elements[i]
		if el.Path == "" || !match(el.Path, oldPath) {
			continue
		}
		if newPath == "" {
			el.Type = ElementText
			el.Text = PlaceholderText(oldPath)
			el.Path = ""
		} else {
			el.Path = newPath
		}
		el.ModificationDate = restamp(el.ModificationDate, now)
		changed = true
	}
	return changed
}
