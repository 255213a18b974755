package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ithil/pensieve/internal/collection"
	"github.com/ithil/pensieve/internal/noteservice"
	"github.com/ithil/pensieve/internal/template"
	"github.com/ithil/pensieve/internal/testutil"
)

func testServer(t *testing.T) (*Server, *collection.Collection) {
	t.Helper()
	c := testutil.TestCollection(t)
	svc := noteservice.NewService(c, testutil.TestDB(t), nil, nil, testutil.Logger())
	return New(svc, "test"), c
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are invoked
	// by name.
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"search_notes":   srv.searchNotes,
		"read_note":      srv.readNote,
		"create_note":    srv.createNote,
		"list_stack":     srv.listStack,
		"get_relations":  srv.getRelations,
		"add_link":       srv.addLink,
		"remove_link":    srv.removeLink,
		"move_note":      srv.moveNote,
		"date_node":      srv.dateNode,
		"list_templates": srv.listTemplates,
		"run_template":   srv.runTemplate,
		"send_text":      srv.sendText,
		"import_asset":   srv.importAsset,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadNote(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_note", map[string]any{
		"stack":    "Projects",
		"filename": "test.md",
		"content":  "# Test\nHello",
	})
	if text := resultText(r); text != "created: Projects/test.md" {
		t.Errorf("create result = %q", text)
	}

	r = callTool(t, srv, "read_note", map[string]any{"path": "Projects/test.md"})
	if text := resultText(r); text != "# Test\nHello" {
		t.Errorf("read result = %q", text)
	}

	r = callTool(t, srv, "create_note", map[string]any{"filename": "test.md", "content": "x", "stack": "Projects"})
	if !r.IsError {
		t.Error("expected error for duplicate note")
	}
}

func TestCreateNoteDefaultsToInbox(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "create_note", map[string]any{"filename": "idea.md", "content": "x"})
	if text := resultText(r); text != "created: Inbox/idea.md" {
		t.Errorf("create result = %q", text)
	}
}

func TestListStack(t *testing.T) {
	srv, c := testServer(t)
	testutil.WriteNote(t, c, "Projects/a.md", "a")
	testutil.WriteNote(t, c, "Projects/Sub/b.md", "b")

	r := callTool(t, srv, "list_stack", map[string]any{"path": "Projects"})
	if text := resultText(r); text != "Projects/Sub/\nProjects/a.md" {
		t.Errorf("list = %q", text)
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]any{"path": "Inbox/nope.md"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestLinksAndRelations(t *testing.T) {
	srv, c := testServer(t)
	testutil.WriteNote(t, c, "Inbox/a.md", "a")
	testutil.WriteNote(t, c, "Projects/b.md", "b")

	r := callTool(t, srv, "add_link", map[string]any{"source": "Inbox/a.md", "target": "Projects/b.md", "props": "ref, idea"})
	if r.IsError {
		t.Fatalf("add_link: %s", resultText(r))
	}

	r = callTool(t, srv, "get_relations", map[string]any{"path": "Projects/b.md"})
	var rel noteservice.Relations
	if err := json.Unmarshal([]byte(resultText(r)), &rel); err != nil {
		t.Fatal(err)
	}
	if len(rel.Backlinks) != 1 || rel.Backlinks[0].Path != "Inbox/a.md" {
		t.Fatalf("backlinks = %+v", rel.Backlinks)
	}
	if got := strings.Join(rel.Backlinks[0].Props, ","); got != "ref,idea" {
		t.Errorf("props = %q", got)
	}

	r = callTool(t, srv, "move_note", map[string]any{"path": "Projects/b.md", "stack": "Archive"})
	if text := resultText(r); text != "moved: Archive/b.md" {
		t.Fatalf("move = %q", text)
	}

	r = callTool(t, srv, "remove_link", map[string]any{"source": "Inbox/a.md", "target": "Archive/b.md"})
	if r.IsError {
		t.Fatalf("remove_link: %s", resultText(r))
	}
	r = callTool(t, srv, "get_relations", map[string]any{"path": "Inbox/a.md"})
	rel = noteservice.Relations{}
	_ = json.Unmarshal([]byte(resultText(r)), &rel)
	if len(rel.Links) != 0 {
		t.Errorf("links after remove = %+v", rel.Links)
	}
}

func TestSearchNotes(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_note", map[string]any{"filename": "garden.md", "content": "tomatoes and basil"})

	r := callTool(t, srv, "search_notes", map[string]any{"query": "basil"})
	if !strings.Contains(resultText(r), "Inbox/garden.md") {
		t.Errorf("search = %q", resultText(r))
	}

	r = callTool(t, srv, "search_notes", map[string]any{"query": "grdn", "fuzzy": true})
	if !strings.Contains(resultText(r), "Inbox/garden.md") {
		t.Errorf("fuzzy search = %q", resultText(r))
	}
}

func TestDateNode(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "date_node", map[string]any{"date": "2024-03-01"})
	if !r.IsError {
		t.Error("lookup without create should fail for a missing day")
	}
	r = callTool(t, srv, "date_node", map[string]any{"date": "2024-03-01", "create": true})
	if text := resultText(r); text != "Calendar/2024/03/01.md" {
		t.Errorf("date node = %q", text)
	}
	r = callTool(t, srv, "date_node", map[string]any{"date": "01.03.2024"})
	if !r.IsError {
		t.Error("expected error for malformed date")
	}
}

func TestRunTemplate(t *testing.T) {
	srv, c := testServer(t)
	tpl := &template.Template{Title: "Idea", Type: template.TypeText, Enabled: true,
		Generator: `args: topic: string
response: {status: "done", payload: {title: args.topic, content: "# \(args.topic)\n"}}`}
	if err := template.NewStore(c.TemplatesDir()).Save(tpl); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "list_templates", map[string]any{})
	if !strings.Contains(resultText(r), tpl.ID) {
		t.Errorf("templates = %q", resultText(r))
	}

	r = callTool(t, srv, "run_template", map[string]any{"id": tpl.ID, "args": `{"topic":"Bees"}`})
	if text := resultText(r); text != "created: Inbox/Bees.md" {
		t.Errorf("run = %q", text)
	}

	r = callTool(t, srv, "run_template", map[string]any{"id": tpl.ID, "args": `not json`})
	if !r.IsError {
		t.Error("expected error for malformed args")
	}
}

func TestSendText(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "send_text", map[string]any{"text": "remember the milk"})
	if text := resultText(r); text != "created: Inbox/2026-10-15 09,30,00.md" {
		t.Errorf("send text = %q", text)
	}
}

func TestImportAssetDataURI(t *testing.T) {
	srv, c := testServer(t)
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	r := callTool(t, srv, "import_asset", map[string]any{"url": uri, "filename": "../pixel.png"})
	if text := resultText(r); text != "created: Inbox/pixel.png" {
		t.Fatalf("import = %q", text)
	}
	if _, ok := c.NoteByPath("Inbox/pixel.png"); !ok {
		t.Error("imported asset not in inbox")
	}

	r = callTool(t, srv, "import_asset", map[string]any{"url": uri, "filename": "pixel.gif"})
	if !r.IsError {
		t.Error("expected error for content/extension mismatch")
	}
}

func TestImportAssetBlockedHost(t *testing.T) {
	srv, _ := testServer(t)
	for _, u := range []string{"http://127.0.0.1/x.png", "http://169.254.169.254/latest", "file:///etc/passwd"} {
		r := callTool(t, srv, "import_asset", map[string]any{"url": u})
		if !r.IsError {
			t.Errorf("%s should be refused", u)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"photo.png":        "photo.png",
		"../../etc/x.png":  "x.png",
		".hidden.png":      "hidden.png",
		"weird$name!.jpg":  "weird_name_.jpg",
		"summer trip.jpeg": "summer trip.jpeg",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
