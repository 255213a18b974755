package index

import (
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/ithil/pensieve/internal/apperr"
	"github.com/ithil/pensieve/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "pensieve-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func edge(p string, props ...string) models.Edge {
	if props == nil {
		props = []string{}
	}
	return models.Edge{Path: p, Props: props}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&count); err != nil {
		t.Fatalf("notes table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM relations`).Scan(&count); err != nil {
		t.Fatalf("relations table missing: %v", err)
	}
}

func TestUpsertAndGetNote(t *testing.T) {
	db := testDB(t)
	row := NoteRow{
		Path:      "Inbox/hello.md",
		Stack:     "Inbox",
		Kind:      models.KindText,
		Title:     "Hello World",
		Checksum:  "abc123",
		Tags:      []string{"go", "test"},
		Excerpt:   "This is a hello",
		UpdatedAt: time.Now(),
	}
	if err := db.UpsertNote(row, "This is a hello world note.", nil); err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}
	cs, err := db.GetChecksum("Inbox/hello.md")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}

	got, err := db.GetNote("Inbox/hello.md")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got.Title != "Hello World" || got.Stack != "Inbox" || got.Kind != models.KindText {
		t.Errorf("unexpected row %+v", got)
	}
	if !reflect.DeepEqual(got.Tags, []string{"go", "test"}) {
		t.Errorf("tags = %v", got.Tags)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetNote("missing.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRelationsKeepOrderAndProps(t *testing.T) {
	db := testDB(t)
	links := []models.Edge{edge("c.md"), edge("b.md", "ref", "date")}
	if err := db.UpsertNote(NoteRow{Path: "a.md", Checksum: "1"}, "body", links); err != nil {
		t.Fatal(err)
	}
	got, err := db.Links("a.md")
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	if !reflect.DeepEqual(got, links) {
		t.Errorf("links = %+v, want %+v", got, links)
	}

	bl, err := db.Backlinks("b.md")
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}
	if len(bl) != 1 || bl[0].Path != "a.md" || !reflect.DeepEqual(bl[0].Props, []string{"ref", "date"}) {
		t.Errorf("backlinks = %+v", bl)
	}
}

func TestReplaceRelations(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "a.md", Checksum: "1"}, "body", []models.Edge{edge("x.md")})

	if err := db.ReplaceRelations("a.md", []models.Edge{edge("y.md")}); err != nil {
		t.Fatalf("ReplaceRelations: %v", err)
	}
	if bl, _ := db.Backlinks("x.md"); len(bl) != 0 {
		t.Error("old relation should be removed")
	}
	if bl, _ := db.Backlinks("y.md"); len(bl) != 1 {
		t.Error("new relation should exist")
	}
}

func TestDeleteNote(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "del.md", Checksum: "x"}, "body", []models.Edge{edge("target.md")})

	if err := db.DeleteNote("del.md"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	cs, _ := db.GetChecksum("del.md")
	if cs != "" {
		t.Errorf("deleted note still has checksum %q", cs)
	}
	bl, _ := db.Backlinks("target.md")
	if len(bl) != 0 {
		t.Errorf("expected 0 backlinks after delete, got %d", len(bl))
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestListNotes_FiltersAndPages(t *testing.T) {
	db := testDB(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []NoteRow{
		{Path: "Projects/a.md", Stack: "Projects", Title: "Alpha", Tags: []string{"work"}, UpdatedAt: base},
		{Path: "Projects/Sub/b.md", Stack: "Projects/Sub", Title: "beta", Tags: []string{"work", "idea"}, UpdatedAt: base.Add(time.Hour)},
		{Path: "Inbox/c.canvas", Stack: "Inbox", Kind: models.KindCanvas, Title: "Gamma", UpdatedAt: base.Add(2 * time.Hour)},
	}
	for _, r := range rows {
		if err := db.UpsertNote(r, "", nil); err != nil {
			t.Fatal(err)
		}
	}

	got, total, err := db.ListNotes(ListQuery{})
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if total != 3 || paths(got)[0] != "Inbox/c.canvas" {
		t.Errorf("default order by updated desc: total=%d got=%v", total, paths(got))
	}

	got, total, _ = db.ListNotes(ListQuery{Stack: "Projects", Sort: SortTitle})
	if total != 2 || !reflect.DeepEqual(paths(got), []string{"Projects/a.md", "Projects/Sub/b.md"}) {
		t.Errorf("stack filter: total=%d got=%v", total, paths(got))
	}

	got, total, _ = db.ListNotes(ListQuery{Tag: "idea"})
	if total != 1 || got[0].Path != "Projects/Sub/b.md" {
		t.Errorf("tag filter: total=%d got=%v", total, paths(got))
	}

	got, _, _ = db.ListNotes(ListQuery{Kind: models.KindCanvas})
	if len(got) != 1 || got[0].Kind != models.KindCanvas {
		t.Errorf("kind filter: %v", paths(got))
	}

	got, total, _ = db.ListNotes(ListQuery{Sort: SortPath, Limit: 1, Offset: 1})
	if total != 3 || !reflect.DeepEqual(paths(got), []string{"Projects/Sub/b.md"}) {
		t.Errorf("paging: total=%d got=%v", total, paths(got))
	}
}

func TestGraph_DropsDanglingTargets(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "a.md", Title: "A"}, "", []models.Edge{edge("b.md", "ref"), edge("gone.md")})
	_ = db.UpsertNote(NoteRow{Path: "b.md", Title: "B"}, "", nil)

	nodes, links, err := db.Graph()
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if len(nodes) != 2 {
		t.Errorf("nodes = %+v", nodes)
	}
	want := []GraphLink{{Source: "a.md", Target: "b.md", Props: []string{"ref"}}}
	if !reflect.DeepEqual(links, want) {
		t.Errorf("links = %+v, want %+v", links, want)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "s.md", Title: "Search Me", Checksum: "1", UpdatedAt: time.Now()}, "uniqueword appears here", nil)

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "s.md" {
		t.Errorf("search results = %+v, want 1 hit for s.md", results)
	}
}

func paths(rows []NoteRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Path
	}
	return out
}
