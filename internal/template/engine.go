package template

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/ithil/pensieve/internal/apperr"
	"github.com/ithil/pensieve/internal/collection"
)

// Response statuses.
const (
	StatusDone  = "done"
	StatusError = "error"
)

// DateProp is the edge property on links from generated notes to date nodes.
const DateProp = "date"

// capabilities declares the filled fields so generators may reference them
// without declaring them. Appended so an optional package clause stays first.
const capabilities = "\nargs: _\nclock: _\ncollection: _\n"

// Callback receives the outcome of one execution.
type Callback func(note *collection.Note, err error)

type response struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Payload payload `json:"payload"`
}

type payload struct {
	Content   string   `json:"content"`
	Filename  string   `json:"filename"`
	Title     string   `json:"title"`
	Stack     string   `json:"stack"`
	Dates     []string `json:"dates"`
	DateRole  string   `json:"dateRole"`
	Relations []any    `json:"relations"`
}

// Engine runs templates against one collection.
type Engine struct {
	c      *collection.Collection
	store  *Store
	logger *slog.Logger
}

// NewEngine returns an engine over the collection's template directory.
func NewEngine(c *collection.Collection, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = c.Logger()
	}
	return &Engine{c: c, store: NewStore(c.TemplatesDir()), logger: logger}
}

// Store returns the template store.
func (e *Engine) Store() *Store { return e.store }

// Execute runs tpl and reports the created note or the failure to callback
// exactly once.
func (e *Engine) Execute(ctx context.Context, tpl *Template, args map[string]any, callback Callback) {
	note, err := e.Run(ctx, tpl, args)
	if callback != nil {
		callback(note, err)
	}
}

// Run evaluates the generator, writes the resulting note and wires the
// requested date nodes and relations.
func (e *Engine) Run(ctx context.Context, tpl *Template, args map[string]any) (*collection.Note, error) {
	if !tpl.Enabled {
		return nil, fmt.Errorf("template: %s is disabled: %w", tpl.ID, apperr.ErrTemplateExecution)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := e.c.Now()
	resp, err := e.evaluate(tpl, args, now)
	if err != nil {
		return nil, err
	}
	switch resp.Status {
	case StatusDone:
	case StatusError:
		msg := resp.Message
		if msg == "" {
			msg = "generator reported an error"
		}
		return nil, fmt.Errorf("template: %s: %s: %w", tpl.ID, msg, apperr.ErrTemplateExecution)
	default:
		return nil, fmt.Errorf("template: %s: unknown status %q: %w", tpl.ID, resp.Status, apperr.ErrTemplateExecution)
	}

	p := resp.Payload
	stack := firstNonEmpty(p.Stack, tpl.Stack, e.c.Inbox())
	filename := p.Filename
	if filename == "" && p.Title != "" {
		filename = p.Title + tpl.Ext()
	}
	if filename == "" {
		filename = now.Format(collection.InboxFilenameLayout) + tpl.Ext()
	}

	note, err := e.c.CreateNote(stack, filename, p.Content)
	if err != nil {
		return nil, err
	}
	e.logger.Info("template: note created",
		slog.String("template", tpl.ID),
		slog.String("path", note.Path()))

	dates := p.Dates
	if len(dates) == 0 && tpl.FromDate {
		dates = []string{now.Format(time.DateOnly)}
	}
	role := firstNonEmpty(p.DateRole, collection.RoleCalendar)
	for _, ds := range dates {
		d, err := time.ParseInLocation(time.DateOnly, ds, now.Location())
		if err != nil {
			return note, fmt.Errorf("template: %s: date %q: %w", tpl.ID, ds, apperr.ErrTemplateExecution)
		}
		dn, err := e.c.CreateDateNode(role, d)
		if err != nil {
			return note, err
		}
		if err := note.AddLink(dn.Path(), []string{DateProp}); err != nil {
			return note, err
		}
	}

	for _, raw := range p.Relations {
		target, props, err := parseRelation(raw)
		if err != nil {
			return note, fmt.Errorf("template: %s: %w", tpl.ID, err)
		}
		if n, ok := e.c.ResolveLinkTarget(target); ok {
			target = n.Path()
		}
		if err := note.AddLink(target, props); err != nil {
			return note, err
		}
	}
	return note, nil
}

func (e *Engine) evaluate(tpl *Template, args map[string]any, now time.Time) (*response, error) {
	fail := func(stage string, err error) error {
		return fmt.Errorf("template: %s: %s: %v: %w", tpl.ID, stage, err, apperr.ErrTemplateExecution)
	}
	if args == nil {
		args = map[string]any{}
	}
	snapshot, err := e.snapshot()
	if err != nil {
		return nil, err
	}

	cctx := cuecontext.New()
	v := cctx.CompileString(tpl.Generator+capabilities, cue.Filename(tpl.ID+".cue"))
	if err := v.Err(); err != nil {
		return nil, fail("compile", err)
	}
	v = v.FillPath(cue.ParsePath("args"), args)
	v = v.FillPath(cue.ParsePath("clock"), clockValue(now))
	v = v.FillPath(cue.ParsePath("collection"), snapshot)
	if err := v.Validate(); err != nil {
		return nil, fail("fill", err)
	}

	rv := v.LookupPath(cue.ParsePath("response"))
	if !rv.Exists() {
		return nil, fail("evaluate", fmt.Errorf("no response field"))
	}
	if err := rv.Validate(cue.Concrete(true)); err != nil {
		return nil, fail("evaluate", err)
	}
	var resp response
	if err := rv.Decode(&resp); err != nil {
		return nil, fail("decode", err)
	}
	return &resp, nil
}

func (e *Engine) snapshot() (map[string]any, error) {
	stacks, err := e.c.ListOfStacks()
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(stacks))
	for _, s := range stacks {
		paths = append(paths, s.Path())
	}
	special := map[string]any{}
	for k, v := range e.c.Config().SpecialStacks {
		special[k] = v
	}
	return map[string]any{
		"name":          e.c.Name(),
		"specialStacks": special,
		"stacks":        paths,
	}, nil
}

func clockValue(now time.Time) map[string]any {
	return map[string]any{
		"now":     now.Format(time.RFC3339),
		"date":    now.Format(time.DateOnly),
		"year":    now.Year(),
		"month":   int(now.Month()),
		"day":     now.Day(),
		"weekday": now.Weekday().String(),
	}
}

// parseRelation accepts "path" or ["path", prop...].
func parseRelation(raw any) (string, []string, error) {
	switch r := raw.(type) {
	case string:
		return r, nil, nil
	case []any:
		if len(r) == 0 {
			return "", nil, fmt.Errorf("empty relation: %w", apperr.ErrTemplateExecution)
		}
		target, ok := r[0].(string)
		if !ok {
			return "", nil, fmt.Errorf("relation target %v is not a string: %w", r[0], apperr.ErrTemplateExecution)
		}
		props := make([]string, 0, len(r)-1)
		for _, p := range r[1:] {
			s, ok := p.(string)
			if !ok {
				return "", nil, fmt.Errorf("relation property %v is not a string: %w", p, apperr.ErrTemplateExecution)
			}
			props = append(props, s)
		}
		return target, props, nil
	}
	return "", nil, fmt.Errorf("relation %v has unsupported shape: %w", raw, apperr.ErrTemplateExecution)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
