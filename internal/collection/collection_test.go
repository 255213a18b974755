package collection_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ithil/pensieve/internal/apperr"
	"github.com/ithil/pensieve/internal/collection"
	"github.com/ithil/pensieve/internal/models"
	"github.com/ithil/pensieve/internal/testutil"
)

func TestOpen_WalksUpToConfig(t *testing.T) {
	c := testutil.TestCollection(t)
	deep := filepath.Join(c.StacksRoot(), "Inbox")

	opened, err := collection.Open(deep, collection.WithLogger(testutil.Logger()))
	require.NoError(t, err)
	assert.Equal(t, c.Root(), opened.Root())
	assert.Equal(t, "test", opened.Name())
	assert.Equal(t, filepath.Join(c.Root(), "Stacks"), opened.StacksRoot())
}

func TestOpen_NoConfig(t *testing.T) {
	_, err := collection.Open(t.TempDir())
	assert.ErrorIs(t, err, apperr.ErrConfigNotFound)
}

func TestInit_RefusesNestedCollection(t *testing.T) {
	c := testutil.TestCollection(t)
	_, err := collection.Init(context.Background(), filepath.Join(c.Root(), "nested"), nil)
	assert.ErrorIs(t, err, apperr.ErrConfigAlreadyExists)
}

func TestInit_WritesDefaults(t *testing.T) {
	root := filepath.Join(t.TempDir(), "brain")
	c, err := collection.Init(context.Background(), root, nil, collection.WithLogger(testutil.Logger()))
	require.NoError(t, err)

	cfg := c.Config()
	assert.Equal(t, "brain", cfg.Name)
	assert.Equal(t, collection.PVersion, cfg.PVersion)
	assert.Equal(t, "./Stacks", cfg.Paths.Stacks)
	assert.Equal(t, "Inbox", cfg.SpecialStacks[collection.RoleInbox])
	assert.DirExists(t, filepath.Join(root, "Stacks", "Inbox"))
	assert.DirExists(t, filepath.Join(root, "Archive"))
	assert.FileExists(t, filepath.Join(root, collection.ConfigFileName))
}

type fakeVCS struct {
	inits   int
	changes []collection.Change
	added   []string
	removed []string
	commits []string
}

func (f *fakeVCS) Init(context.Context) error { f.inits++; return nil }
func (f *fakeVCS) Status(context.Context) ([]collection.Change, error) {
	return f.changes, nil
}
func (f *fakeVCS) Add(_ context.Context, p ...string) error    { f.added = append(f.added, p...); return nil }
func (f *fakeVCS) Remove(_ context.Context, p ...string) error { f.removed = append(f.removed, p...); return nil }
func (f *fakeVCS) Commit(_ context.Context, msg string) error {
	f.commits = append(f.commits, msg)
	f.changes = nil
	return nil
}

func TestInit_WithGitCommits(t *testing.T) {
	v := &fakeVCS{changes: []collection.Change{{Path: ".collection.json"}}}
	cfg := &collection.Config{UseGit: true}
	c, err := collection.Init(context.Background(), t.TempDir(), cfg,
		collection.WithLogger(testutil.Logger()), collection.WithVersionControl(v))
	require.NoError(t, err)
	assert.Equal(t, 1, v.inits)
	assert.Equal(t, []string{"Initialize collection"}, v.commits)

	v.changes = []collection.Change{{Path: "Stacks/a.md"}, {Path: "Stacks/old.md", Deleted: true}}
	require.NoError(t, c.Commit(context.Background(), "edit"))
	assert.Equal(t, []string{".collection.json", "Stacks/a.md"}, v.added)
	assert.Equal(t, []string{"Stacks/old.md"}, v.removed)

	require.NoError(t, c.Commit(context.Background(), "nothing"))
	assert.Len(t, v.commits, 2)
}

func TestStacks_ListingHidesSidecars(t *testing.T) {
	c := testutil.TestCollection(t)
	a := testutil.WriteNote(t, c, "Inbox/a.md", "")
	testutil.WriteNote(t, c, "Inbox/Sub/b.md", "")
	testutil.WriteNote(t, c, "c.md", "")
	require.NoError(t, a.AddLink("c.md", nil))

	l, err := c.Stacks("Inbox")
	require.NoError(t, err)
	require.Len(t, l.Stacks, 1)
	assert.Equal(t, "Inbox/Sub", l.Stacks[0].Path())
	require.Len(t, l.Notes, 1)
	assert.Equal(t, "Inbox/a.md", l.Notes[0].Path())
	assert.True(t, l.Notes[0].InInbox())

	all, err := c.ListOfStacks()
	require.NoError(t, err)
	var paths []string
	for _, s := range all {
		paths = append(paths, s.Path())
	}
	assert.Equal(t, []string{"Calendar", "Inbox", "Inbox/Sub"}, paths)

	inbox, ok := c.SpecialStack(collection.RoleInbox)
	require.True(t, ok)
	assert.True(t, inbox.IsInbox())
	_, ok = c.SpecialStack(collection.RoleAppendix)
	assert.False(t, ok)
	_, ok = c.StackByPath("Nope")
	assert.False(t, ok)
}

func TestStackStyle(t *testing.T) {
	c := testutil.TestCollection(t)
	s, ok := c.StackByPath("Inbox")
	require.True(t, ok)

	style, err := s.Style()
	require.NoError(t, err)
	assert.Nil(t, style)

	require.NoError(t, s.SetStyle(map[string]any{"color": "teal"}))
	style, err = s.Style()
	require.NoError(t, err)
	assert.Equal(t, "teal", style["color"])
}

func TestNoteKinds(t *testing.T) {
	c := testutil.TestCollection(t)
	cases := map[string]models.Kind{
		"a.md":         models.KindText,
		"b.txt":        models.KindText,
		"c.canvas":     models.KindCanvas,
		"d.tasklist":   models.KindTasklist,
		"e.png":        models.KindImage,
		"f.mp3":        models.KindAudio,
		"g.bin":        models.KindBinary,
		"noext-pixels": models.KindImage,
	}
	for rel, want := range cases {
		content := "x"
		switch rel {
		case "noext-pixels":
			content = "\x89PNG\r\n\x1a\n0000"
		case "f.mp3":
			content = "ID3\x03\x00\x00\x00"
		case "g.bin":
			content = "\x00\x01\x02\x03"
		}
		n := testutil.WriteNote(t, c, rel, content)
		assert.Equal(t, want, n.Kind(), rel)
	}
}

func TestTasklistRoundTrip(t *testing.T) {
	c := testutil.TestCollection(t)
	n := testutil.WriteNote(t, c, "todo.tasklist", `{"title":"todo","list":[{"done":false}]}`)

	tl, err := n.Tasklist()
	require.NoError(t, err)
	assert.Equal(t, "todo", tl.Title)
	require.NoError(t, n.SetTasklist(tl))

	tl, err = n.Tasklist()
	require.NoError(t, err)
	assert.Len(t, tl.List, 1)
	assert.Equal(t, testutil.FixedNow, tl.ModificationDate.UTC())

	_, err = testutil.WriteNote(t, c, "plain.md", "").Canvas()
	assert.Error(t, err)
}

func TestDateNode_Idempotent(t *testing.T) {
	c := testutil.TestCollection(t)
	day := time.Date(2026, time.October, 15, 18, 0, 0, 0, time.UTC)

	_, ok := c.DateNode(collection.RoleCalendar, day)
	assert.False(t, ok)

	n1, err := c.CreateDateNode(collection.RoleCalendar, day)
	require.NoError(t, err)
	assert.Equal(t, "Calendar/2026/10/15.md", n1.Path())
	require.NoError(t, n1.SetContent("# Thursday, October 15, 2026\n\nnotes\n"))

	n2, err := c.CreateDateNode(collection.RoleCalendar, day)
	require.NoError(t, err)
	assert.Equal(t, n1.Path(), n2.Path())
	body, err := n2.Content()
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(body, "# Thursday, October 15, 2026"))
	assert.Contains(t, body, "notes")

	got, ok := c.DateNode(collection.RoleCalendar, day)
	require.True(t, ok)
	assert.Equal(t, n1.Path(), got.Path())
}

func TestDateNode_UnconfiguredRoleIsStackPath(t *testing.T) {
	c := testutil.TestCollection(t)
	n, err := c.CreateDateNode("Journal", time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "Journal/2024/03/01.md", n.Path())
	body, err := n.Content()
	require.NoError(t, err)
	assert.Equal(t, "# Friday, March 1, 2024\n", body)
}

func TestFormatDateHeading(t *testing.T) {
	day := time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "Thursday, October 15, 2026", collection.FormatDateHeading("en", day))
	assert.Equal(t, "Thursday, October 15, 2026", collection.FormatDateHeading("en-GB", day))
	assert.Equal(t, "Donnerstag, 15. Oktober 2026", collection.FormatDateHeading("de-AT", day))
	assert.Equal(t, "jeudi 15 octobre 2026", collection.FormatDateHeading("fr", day))
	assert.Equal(t, "Thursday, October 15, 2026", collection.FormatDateHeading("not a tag", day))
}

func TestSendText_DefaultFilename(t *testing.T) {
	c := testutil.TestCollection(t)
	n, err := c.SendText("hello", "")
	require.NoError(t, err)
	assert.Equal(t, "Inbox/2026-10-15 09,30,00.md", n.Path())
	assert.True(t, n.InInbox())

	_, err = c.SendText("again", "")
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
}

func TestSendFile(t *testing.T) {
	c := testutil.TestCollection(t)
	src := filepath.Join(t.TempDir(), "scan.png")
	require.NoError(t, os.WriteFile(src, []byte("\x89PNG\r\n\x1a\n"), 0o644))

	n, err := c.SendFile(src)
	require.NoError(t, err)
	assert.Equal(t, "Inbox/scan.png", n.Path())
	assert.Equal(t, models.KindImage, n.Kind())
	assert.FileExists(t, src)

	_, err = c.SendFile(filepath.Join(t.TempDir(), "gone.md"))
	assert.ErrorIs(t, err, apperr.ErrMissingFile)
}

func TestCreateNote_Validates(t *testing.T) {
	c := testutil.TestCollection(t)
	_, err := c.CreateNote("Projects", "../escape.md", "")
	assert.Error(t, err)
	_, err = c.CreateNote("Projects", ".hidden.md", "")
	assert.Error(t, err)

	n, err := c.CreateNote("Projects", "ok.md", "body")
	require.NoError(t, err)
	assert.Equal(t, "Projects", n.Stack())
}

func TestWalks(t *testing.T) {
	c := testutil.TestCollection(t)
	a := testutil.WriteNote(t, c, "Inbox/alpha.md", "The quick brown fox")
	testutil.WriteNote(t, c, "Projects/beta.md", "lazy dog")
	testutil.WriteNote(t, c, "Projects/photo.png", "\x89PNG\r\n\x1a\n fox")
	require.NoError(t, a.AddLink("Projects/beta.md", nil))

	all, err := c.AllNotes()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	found, err := c.Search("FOX")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Inbox/alpha.md", found[0].Path())

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(a.AbsPath(), past, past))
	recent, err := c.RecentNotes(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	for _, n := range recent {
		assert.NotEqual(t, "Inbox/alpha.md", n.Path())
	}

	fuzzy, err := c.FuzzySearch("pjbeta", 5)
	require.NoError(t, err)
	require.NotEmpty(t, fuzzy)
	assert.Equal(t, "Projects/beta.md", fuzzy[0].Path())
}

func TestResolveLinkTarget_AmbiguousBasename(t *testing.T) {
	c := testutil.TestCollection(t)
	testutil.WriteNote(t, c, "P/x.md", "")
	testutil.WriteNote(t, c, "P/x.canvas", "")
	testutil.WriteNote(t, c, "P/y.md", "")

	_, ok := c.ResolveLinkTarget("P/x")
	assert.False(t, ok)
	n, ok := c.ResolveLinkTarget("P/y")
	require.True(t, ok)
	assert.Equal(t, "P/y.md", n.Path())
	_, ok = c.ResolveLinkTarget("../outside.md")
	assert.False(t, ok)
}

func TestCheckAndRepair(t *testing.T) {
	c := testutil.TestCollection(t)
	testutil.WriteNote(t, c, "a.md", "")
	testutil.WriteNote(t, c, "b.md", "")
	testutil.WriteNote(t, c, "c.md", "")
	writeSidecar(t, c, "a.md", `{"links":[["b.md",["p"]],["gone.md",[]]]}`)
	writeSidecar(t, c, "c.md", `{"backlinks":[["b.md",["q"]]]}`)

	found, err := c.Check()
	require.NoError(t, err)
	kinds := map[collection.InconsistencyKind]int{}
	for _, inc := range found {
		kinds[inc.Kind]++
	}
	assert.Equal(t, 1, kinds[collection.MissingBacklink])
	assert.Equal(t, 1, kinds[collection.DanglingLink])
	assert.Equal(t, 1, kinds[collection.MissingLink])

	repaired, err := c.Repair()
	require.NoError(t, err)
	assert.Len(t, repaired, 3)

	left, err := c.Check()
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.JSONEq(t, `{"links":[["b.md",["p"]]]}`, testutil.ReadSidecar(t, c, "a.md"))
	assert.JSONEq(t, `{"links":[["c.md",["q"]]],"backlinks":[["a.md",["p"]]]}`, testutil.ReadSidecar(t, c, "b.md"))
}

func TestSubsequenceRanker(t *testing.T) {
	r := collection.SubsequenceRanker{}
	corpus := []string{"xbxextxa.md", "Inbox/alpha.md", "beta.md"}
	got := r.Rank("beta", corpus)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Index)
	assert.Equal(t, 0, got[1].Index)
	assert.Empty(t, r.Rank("zzz", corpus))
}

// lastFirst ranks every entry, in reverse corpus order.
type lastFirst struct{}

func (lastFirst) Rank(_ string, corpus []string) []collection.Match {
	out := make([]collection.Match, 0, len(corpus))
	for i := len(corpus) - 1; i >= 0; i-- {
		out = append(out, collection.Match{Index: i})
	}
	return out
}

func TestWithRanker(t *testing.T) {
	c := testutil.TestCollection(t, collection.WithRanker(lastFirst{}))
	testutil.WriteNote(t, c, "Inbox/a.md", "a")
	testutil.WriteNote(t, c, "Inbox/b.md", "b")

	all, err := c.AllNotes()
	require.NoError(t, err)
	got, err := c.FuzzySearch("anything", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, all[len(all)-1].Path(), got[0].Path())
}
