package collection_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ithil/pensieve/internal/apperr"
	"github.com/ithil/pensieve/internal/document"
	"github.com/ithil/pensieve/internal/models"
	"github.com/ithil/pensieve/internal/testutil"
)

func TestRename_MovesSidecarAndRepointsNeighbors(t *testing.T) {
	c := testutil.TestCollection(t)
	a := testutil.WriteNote(t, c, "a.md", "")
	b := testutil.WriteNote(t, c, "Projects/b.md", "")
	require.NoError(t, a.AddLink("Projects/b.md", []string{"ref", "todo"}))

	require.NoError(t, b.Rename("plan"))

	assert.Equal(t, "Projects/plan.md", b.Path())
	assert.Equal(t, "plan", b.Name())
	links, err := a.Links()
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "Projects/plan.md", links[0].Path)
	assert.Equal(t, []string{"ref", "todo"}, links[0].Props)

	assert.Empty(t, testutil.ReadSidecar(t, c, "Projects/b.md"))
	assert.JSONEq(t, `{"backlinks":[["a.md",["ref","todo"]]]}`, testutil.ReadSidecar(t, c, "Projects/plan.md"))
}

func TestRename_TargetTaken(t *testing.T) {
	c := testutil.TestCollection(t)
	b := testutil.WriteNote(t, c, "b.md", "")
	testutil.WriteNote(t, c, "c.md", "")

	err := b.Rename("c")
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
	assert.Equal(t, "b.md", b.Path())
}

func TestRename_OrphanSidecarBlocks(t *testing.T) {
	c := testutil.TestCollection(t)
	b := testutil.WriteNote(t, c, "b.md", "")
	require.NoError(t, os.WriteFile(filepath.Join(c.StacksRoot(), ".c.json"), []byte(`{"links":[]}`), 0o644))

	err := b.Rename("c")
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
	assert.FileExists(t, filepath.Join(c.StacksRoot(), "b.md"))
}

func TestRename_SelfLinkFollows(t *testing.T) {
	c := testutil.TestCollection(t)
	a := testutil.WriteNote(t, c, "a.md", "")
	require.NoError(t, a.AddLink("a.md", []string{"self"}))

	require.NoError(t, a.Rename("z"))

	rec, err := a.Relations()
	require.NoError(t, err)
	assert.Equal(t, []string{"z.md"}, edgePaths(rec.Links))
	assert.Equal(t, []string{"z.md"}, edgePaths(rec.Backlinks))
}

func TestSendToStack_BacklinkSideRepointed(t *testing.T) {
	c := testutil.TestCollection(t)
	a := testutil.WriteNote(t, c, "Inbox/a.md", "")
	testutil.WriteNote(t, c, "b.md", "")
	require.NoError(t, a.AddLink("b.md", nil))

	require.NoError(t, a.SendToStack("Done/2026"))

	assert.Equal(t, "Done/2026/a.md", a.Path())
	assert.False(t, a.InInbox())
	back, err := reload(t, c, "b.md").Backlinks()
	require.NoError(t, err)
	assert.Equal(t, []string{"Done/2026/a.md"}, edgePaths(back))
}

func TestDelete_PrunesNeighbors(t *testing.T) {
	c := testutil.TestCollection(t)
	a := testutil.WriteNote(t, c, "a.md", "")
	b := testutil.WriteNote(t, c, "b.md", "")
	x := testutil.WriteNote(t, c, "x.md", "")
	require.NoError(t, a.AddLink("b.md", []string{"p"}))
	require.NoError(t, a.AddLink("x.md", nil))
	require.NoError(t, b.AddLink("x.md", nil))

	require.NoError(t, b.Delete())

	assert.NoFileExists(t, filepath.Join(c.StacksRoot(), "b.md"))
	assert.Empty(t, testutil.ReadSidecar(t, c, "b.md"))
	links, err := a.Links()
	require.NoError(t, err)
	assert.Equal(t, []string{"x.md"}, edgePaths(links))
	back, err := x.Backlinks()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md"}, edgePaths(back))

	assert.ErrorIs(t, b.Delete(), apperr.ErrNotFound)
}

func TestRemoveAllRelations(t *testing.T) {
	c := testutil.TestCollection(t)
	a := testutil.WriteNote(t, c, "a.md", "")
	b := testutil.WriteNote(t, c, "b.md", "")
	testutil.WriteNote(t, c, "x.md", "")
	require.NoError(t, a.AddLink("b.md", nil))
	require.NoError(t, b.AddLink("x.md", nil))

	require.NoError(t, b.RemoveAllRelations())

	assert.FileExists(t, b.AbsPath())
	assert.Empty(t, testutil.ReadSidecar(t, c, "b.md"))
	assert.Empty(t, testutil.ReadSidecar(t, c, "a.md"))
	assert.Empty(t, testutil.ReadSidecar(t, c, "x.md"))
}

func newBoard(title string, refs ...string) *document.Canvas {
	cv := document.NewCanvas(title)
	for i, r := range refs {
		cv.AddNote(r, float64(i*100), 20, 200, 100, testutil.FixedNow)
	}
	return cv
}

func TestCanvas_RepointAndPlaceholder(t *testing.T) {
	c := testutil.TestCollection(t)
	b := testutil.WriteNote(t, c, "b.md", "")
	testutil.WriteNote(t, c, "other.md", "")

	cv := newBoard("board", "b.md", "other.md")
	data, err := cv.Marshal()
	require.NoError(t, err)
	board := testutil.WriteNote(t, c, "Boards/board.canvas", string(data))
	require.Equal(t, models.KindCanvas, board.Kind())
	id := cv.Elements[0].ID

	require.NoError(t, b.SendToStack("Archive"))

	got, err := board.Canvas()
	require.NoError(t, err)
	assert.Equal(t, "Archive/b.md", got.Elements[0].Path)
	assert.Equal(t, "other.md", got.Elements[1].Path)

	require.NoError(t, b.Delete())

	got, err = board.Canvas()
	require.NoError(t, err)
	el := got.Elements[0]
	assert.Equal(t, id, el.ID)
	assert.Equal(t, document.ElementText, el.Type)
	assert.Equal(t, document.PlaceholderText("Archive/b.md"), el.Text)
	assert.Empty(t, el.Path)
	assert.Equal(t, float64(0), el.X)
	assert.Equal(t, "other.md", got.Elements[1].Path)
}

func TestSendToStack_CanvasKeepsForeignFields(t *testing.T) {
	c := testutil.TestCollection(t)
	b := testutil.WriteNote(t, c, "Projects/b.md", "")
	testutil.WriteNote(t, c, "board.canvas", `{"version":3,"title":"b","elements":[`+
		`{"id":"1","type":"note","path":"Projects/b.md","color":"red","creationDate":"2026-01-01T00:00:00.000Z"}],"edges":[]}`)
	testutil.WriteNote(t, c, "epoch.canvas", `{"elements":[`+
		`{"id":"1","type":"note","path":"Projects/b.md","creationDate":1700000000000,"modificationDate":1700000000000}]}`)

	require.NoError(t, b.SendToStack("Archive"))

	data, err := os.ReadFile(filepath.Join(c.StacksRoot(), "board.canvas"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 3.0, doc["version"])
	el := doc["elements"].([]any)[0].(map[string]any)
	assert.Equal(t, "Archive/b.md", el["path"])
	assert.Equal(t, "red", el["color"])
	assert.Equal(t, "2026-01-01T00:00:00.000Z", el["creationDate"])

	epoch, ok := c.NoteByPath("epoch.canvas")
	require.True(t, ok)
	cv, err := epoch.Canvas()
	require.NoError(t, err)
	assert.Equal(t, []string{"Archive/b.md"}, cv.References())
	assert.Equal(t, "1700000000000", string(cv.Elements[0].CreationDate))
}

func TestCreateNote_RefusesSharedSidecar(t *testing.T) {
	c := testutil.TestCollection(t)
	testutil.WriteNote(t, c, "Projects/a.md", "")

	_, err := c.CreateNote("Projects", "a.canvas", "{}")
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
	assert.NoFileExists(t, filepath.Join(c.StacksRoot(), "Projects", "a.canvas"))

	_, err = c.CreateNote("Other", "a.canvas", "{}")
	assert.NoError(t, err)
}

func TestSendFile_RefusesSharedSidecar(t *testing.T) {
	c := testutil.TestCollection(t)
	testutil.WriteNote(t, c, "Inbox/photo.md", "")
	src := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(src, []byte("png"), 0o644))

	_, err := c.SendFile(src)
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
}

func TestSendToStack_RefusesSharedSidecar(t *testing.T) {
	c := testutil.TestCollection(t)
	a := testutil.WriteNote(t, c, "a.md", "")
	testutil.WriteNote(t, c, "Archive/a.canvas", "{}")
	require.NoError(t, a.AddLink("Archive/a.canvas", []string{"ref"}))

	err := a.SendToStack("Archive")
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
	assert.Equal(t, "a.md", a.Path())
	links, err := a.Links()
	require.NoError(t, err)
	assert.Len(t, links, 1)
}
