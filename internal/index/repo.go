package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ithil/pensieve/internal/apperr"
	"github.com/ithil/pensieve/internal/models"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	Path      string      `json:"path"`
	Stack     string      `json:"stack"`
	Kind      models.Kind `json:"kind"`
	Title     string      `json:"title"`
	Checksum  string      `json:"checksum"`
	Tags      []string    `json:"tags"`
	Excerpt   string      `json:"excerpt"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// GraphNode is a vertex of the relation graph.
type GraphNode struct {
	ID    string      `json:"id"`
	Title string      `json:"title"`
	Kind  models.Kind `json:"kind"`
	Stack string      `json:"stack"`
}

// GraphLink is a directed edge of the relation graph.
type GraphLink struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Props  []string `json:"props"`
}

// Sort orders accepted by ListNotes.
const (
	SortUpdated = "updated"
	SortTitle   = "title"
	SortPath    = "path"
)

// ListQuery filters and pages ListNotes.
type ListQuery struct {
	Limit  int
	Offset int
	// Stack restricts results to notes in the stack or any of its sub-stacks.
	Stack string
	Tag   string
	Kind  models.Kind
	Sort  string
}

// UpsertNote inserts or replaces a note, its FTS entry, and its outgoing
// relations within a transaction.
func (db *DB) UpsertNote(n NoteRow, body string, links []models.Edge) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, _ := json.Marshal(tags)
	kind := n.Kind
	if kind == "" {
		kind = models.KindText
	}

	// Body is kept in the notes table for the LIKE fallback search.
	_, err = tx.Exec(`
		INSERT INTO notes (path, stack, kind, title, checksum, tags, body, excerpt, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			stack      = excluded.stack,
			kind       = excluded.kind,
			title      = excluded.title,
			checksum   = excluded.checksum,
			tags       = excluded.tags,
			body       = excluded.body,
			excerpt    = excluded.excerpt,
			updated_at = excluded.updated_at
	`, n.Path, n.Stack, string(kind), n.Title, n.Checksum, string(tagsJSON), body, n.Excerpt, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, n.Path, n.Title, body, tags); err != nil {
		return err
	}
	if err := replaceRelations(tx, n.Path, links); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceRelations swaps the stored outgoing edges of source for links,
// keeping their order.
func (db *DB) ReplaceRelations(source string, links []models.Edge) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if err := replaceRelations(tx, source, links); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceRelations(tx *sql.Tx, source string, links []models.Edge) error {
	if _, err := tx.Exec(`DELETE FROM relations WHERE source = ?`, source); err != nil {
		return fmt.Errorf("index: clear relations: %w", err)
	}
	if len(links) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO relations (source, target, props, position) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare relation insert: %w", err)
	}
	defer stmt.Close()
	for i, e := range links {
		props := e.Props
		if props == nil {
			props = []string{}
		}
		propsJSON, _ := json.Marshal(props)
		if _, err := stmt.Exec(source, e.Path, string(propsJSON), i); err != nil {
			return fmt.Errorf("index: insert relation: %w", err)
		}
	}
	return nil
}

// DeleteNote removes a note, its FTS entry, and its outgoing relations.
func (db *DB) DeleteNote(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(tx, path); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM relations WHERE source = ?`, path); err != nil {
		return fmt.Errorf("index: delete relations: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM notes WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a note, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM notes WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

const noteColumns = `path, stack, kind, title, checksum, tags, excerpt, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (NoteRow, error) {
	var (
		n        NoteRow
		kind     string
		tagsJSON string
	)
	if err := s.Scan(&n.Path, &n.Stack, &kind, &n.Title, &n.Checksum, &tagsJSON, &n.Excerpt, &n.UpdatedAt); err != nil {
		return NoteRow{}, err
	}
	n.Kind = models.Kind(kind)
	if err := json.Unmarshal([]byte(tagsJSON), &n.Tags); err != nil || n.Tags == nil {
		n.Tags = []string{}
	}
	return n, nil
}

// GetNote returns the indexed row for path, or apperr.ErrNotFound.
func (db *DB) GetNote(path string) (*NoteRow, error) {
	n, err := scanNote(db.conn.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	return &n, nil
}

// ListNotes returns one page of notes matching q together with the total
// number of matches.
func (db *DB) ListNotes(q ListQuery) ([]NoteRow, int, error) {
	var (
		where []string
		args  []any
	)
	if q.Stack != "" {
		stack := strings.Trim(q.Stack, "/")
		where = append(where, `(stack = ? OR stack LIKE ?)`)
		args = append(args, stack, stack+"/%")
	}
	if q.Tag != "" {
		tag, _ := json.Marshal(q.Tag)
		where = append(where, `tags LIKE ?`)
		args = append(args, "%"+string(tag)+"%")
	}
	if q.Kind != "" {
		where = append(where, `kind = ?`)
		args = append(args, string(q.Kind))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count notes: %w", err)
	}

	order := "updated_at DESC, path"
	switch q.Sort {
	case SortTitle:
		order = "title COLLATE NOCASE, path"
	case SortPath:
		order = "path"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := max(q.Offset, 0)

	rows, err := db.conn.Query(`SELECT `+noteColumns+` FROM notes`+clause+
		` ORDER BY `+order+` LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list notes: %w", err)
	}
	defer rows.Close()

	out := []NoteRow{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

// AllPaths returns every indexed note path.
func (db *DB) AllPaths() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT path FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}

// AllChecksums maps every indexed path to its stored checksum.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Links returns the outgoing edges of source in stored order.
func (db *DB) Links(source string) ([]models.Edge, error) {
	return db.edges(`SELECT target, props FROM relations WHERE source = ? ORDER BY position`, source)
}

// Backlinks returns the edges pointing at target, keyed by their source.
func (db *DB) Backlinks(target string) ([]models.Edge, error) {
	return db.edges(`SELECT source, props FROM relations WHERE target = ? ORDER BY source`, target)
}

func (db *DB) edges(query, arg string) ([]models.Edge, error) {
	rows, err := db.conn.Query(query, arg)
	if err != nil {
		return nil, fmt.Errorf("index: edges: %w", err)
	}
	defer rows.Close()

	var out []models.Edge
	for rows.Next() {
		var (
			e         models.Edge
			propsJSON string
		)
		if err := rows.Scan(&e.Path, &propsJSON); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(propsJSON), &e.Props)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Graph returns every indexed note and every edge whose target is indexed.
func (db *DB) Graph() ([]GraphNode, []GraphLink, error) {
	nodeRows, err := db.conn.Query(`SELECT path, title, kind, stack FROM notes ORDER BY path`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph nodes: %w", err)
	}
	defer nodeRows.Close()
	nodes := []GraphNode{}
	for nodeRows.Next() {
		var (
			n    GraphNode
			kind string
		)
		if err := nodeRows.Scan(&n.ID, &n.Title, &kind, &n.Stack); err != nil {
			return nil, nil, err
		}
		n.Kind = models.Kind(kind)
		nodes = append(nodes, n)
	}
	if err := nodeRows.Err(); err != nil {
		return nil, nil, err
	}

	linkRows, err := db.conn.Query(`
		SELECT r.source, r.target, r.props
		FROM relations r
		JOIN notes n ON n.path = r.target
		ORDER BY r.source, r.position
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph links: %w", err)
	}
	defer linkRows.Close()
	links := []GraphLink{}
	for linkRows.Next() {
		var (
			l         GraphLink
			propsJSON string
		)
		if err := linkRows.Scan(&l.Source, &l.Target, &propsJSON); err != nil {
			return nil, nil, err
		}
		if err := json.Unmarshal([]byte(propsJSON), &l.Props); err != nil || l.Props == nil {
			l.Props = []string{}
		}
		links = append(links, l)
	}
	return nodes, links, linkRows.Err()
}
