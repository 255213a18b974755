// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes pensieve tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ithil/pensieve/internal/collection"
	"github.com/ithil/pensieve/internal/noteservice"
)

const contractURI = "pensieve://note-format"

// Server wraps the MCP server with pensieve tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all pensieve tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Pensieve",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note titles, bodies and tags. "+
			"Set fuzzy to match note names by subsequence instead."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithBoolean("fuzzy", mcp.Description("Rank note names by fuzzy match")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note. Text, canvas and tasklist notes return their content; "+
			"other kinds return their metadata."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the stacks root (e.g. Projects/plan.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note inside a stack. Read the contract first via "+
			"the get_note_contract tool or the "+contractURI+" resource."),
		mcp.WithString("stack", mcp.Description("Stack path (empty for the inbox)")),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Filename including extension (e.g. idea.md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note content")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the pensieve note format contract. "+
			"Call this before creating notes or links to ensure correct structure."),
	), s.getNoteContract)

	s.mcp.AddTool(mcp.NewTool("list_stack",
		mcp.WithDescription("List the sub-stacks and notes of a stack."),
		mcp.WithString("path", mcp.Description("Stack path (empty for the root)")),
	), s.listStack)

	s.mcp.AddTool(mcp.NewTool("get_relations",
		mcp.WithDescription("Return the ordered links and the backlinks of a note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Note path")),
	), s.getRelations)

	s.mcp.AddTool(mcp.NewTool("add_link",
		mcp.WithDescription("Link source to target. The backlink on target is maintained automatically."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source note path")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target note path")),
		mcp.WithString("props", mcp.Description("Comma-separated link properties")),
	), s.addLink)

	s.mcp.AddTool(mcp.NewTool("remove_link",
		mcp.WithDescription("Remove the link from source to target and its backlink."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source note path")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target note path")),
	), s.removeLink)

	s.mcp.AddTool(mcp.NewTool("move_note",
		mcp.WithDescription("Send a note to another stack. Links pointing at it are rewritten."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Note path")),
		mcp.WithString("stack", mcp.Required(), mcp.Description("Destination stack")),
	), s.moveNote)

	s.mcp.AddTool(mcp.NewTool("date_node",
		mcp.WithDescription("Look up, or create, the date note of a day in a date stack."),
		mcp.WithString("date", mcp.Required(), mcp.Description("Date as YYYY-MM-DD")),
		mcp.WithString("role", mcp.Description("Special-stack role (default calendar)")),
		mcp.WithBoolean("create", mcp.Description("Create the note when missing")),
	), s.dateNode)

	s.mcp.AddTool(mcp.NewTool("list_templates",
		mcp.WithDescription("List the note templates of the collection."),
	), s.listTemplates)

	s.mcp.AddTool(mcp.NewTool("run_template",
		mcp.WithDescription("Run a template and create the note it generates."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Template id")),
		mcp.WithString("args", mcp.Description("Template arguments as a JSON object")),
	), s.runTemplate)

	s.mcp.AddTool(mcp.NewTool("send_text",
		mcp.WithDescription("Drop a text note into the inbox."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Note text")),
		mcp.WithString("filename", mcp.Description("Optional filename (defaults to a timestamp)")),
	), s.sendText)

	s.mcp.AddTool(mcp.NewTool("import_asset",
		mcp.WithDescription("Download an image or PDF (http/https URL or base64 data URI) into the inbox."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Source URL or data URI")),
		mcp.WithString("filename", mcp.Description("Optional filename")),
	), s.importAsset)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Note Format Contract",
			mcp.WithResourceDescription("How pensieve stores notes, stacks and relations."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if req.GetBool("fuzzy", false) {
		refs, err := s.svc.FuzzySearch(ctx, query, 20)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(refs), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.GetNote(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	if d.Kind.IsTextual() {
		return mcp.NewToolResultText(d.Content), nil
	}
	d.HTML = ""
	return jsonResult(d), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.CreateNote(ctx, req.GetString("stack", ""), filename, []byte(content))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", d.Path)), nil
}

func (s *Server) listStack(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	listing, err := s.svc.Stacks(ctx, req.GetString("path", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var b strings.Builder
	for _, st := range listing.Stacks {
		fmt.Fprintf(&b, "%s/\n", st.Path)
	}
	for _, n := range listing.Notes {
		fmt.Fprintf(&b, "%s\n", n.Path)
	}
	return mcp.NewToolResultText(strings.TrimSuffix(b.String(), "\n")), nil
}

func (s *Server) getRelations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rel, err := s.svc.Relations(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rel), nil
}

func (s *Server) addLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rel, err := s.svc.AddLink(ctx, source, target, splitProps(req.GetString("props", "")))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rel), nil
}

func splitProps(raw string) []string {
	props := []string{}
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			props = append(props, p)
		}
	}
	return props
}

func (s *Server) removeLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rel, err := s.svc.RemoveLink(ctx, source, target)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rel), nil
}

func (s *Server) moveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stack, err := req.RequireString("stack")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	moved, err := s.svc.MoveNote(ctx, path, stack)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved: %s", moved)), nil
}

func (s *Server) dateNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	date, err := time.ParseInLocation(time.DateOnly, raw, time.Local)
	if err != nil {
		return mcp.NewToolResultError("date must be YYYY-MM-DD"), nil
	}
	role := req.GetString("role", collection.RoleCalendar)
	d, err := s.svc.DateNode(ctx, role, date, req.GetBool("create", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(d.Path), nil
}

func (s *Server) listTemplates(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.svc.Templates(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	type entry struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Type  string `json:"type"`
	}
	out := make([]entry, 0, len(list))
	for _, t := range list {
		if t.Enabled {
			out = append(out, entry{ID: t.ID, Title: t.Title, Type: t.Type})
		}
	}
	return jsonResult(out), nil
}

func (s *Server) runTemplate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var args map[string]any
	if raw := req.GetString("args", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("args must be a JSON object: %v", err)), nil
		}
	}
	d, err := s.svc.RunTemplate(ctx, id, args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", d.Path)), nil
}

func (s *Server) sendText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.SendText(ctx, text, req.GetString("filename", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", d.Path)), nil
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
