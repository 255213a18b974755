package document

import (
	"encoding/json"
	"fmt"
	"time"
)

// Tasklist is the JSON body of a tasklist note. List items are kept opaque.
type Tasklist struct {
	Title            string            `json:"title"`
	CreationDate     time.Time         `json:"creationDate"`
	ModificationDate time.Time         `json:"modificationDate"`
	List             []json.RawMessage `json:"list"`
}

// NewTasklist returns an empty tasklist stamped with now.
func NewTasklist(title string, now time.Time) *Tasklist {
	return &Tasklist{
		Title:            title,
		CreationDate:     now,
		ModificationDate: now,
		List:             []json.RawMessage{},
	}
}

// ParseTasklist decodes a tasklist body.
func ParseTasklist(data []byte) (*Tasklist, error) {
	var t Tasklist
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("document: parse tasklist: %w", err)
	}
	if t.List == nil {
		t.List = []json.RawMessage{}
	}
	return &t, nil
}

// Marshal encodes the tasklist.
func (t *Tasklist) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("document: marshal tasklist: %w", err)
	}
	return data, nil
}
