package index

import (
	"log/slog"
	"strings"

	"github.com/ithil/pensieve/internal/collection"
	"github.com/ithil/pensieve/internal/document"
	"github.com/ithil/pensieve/internal/models"
	"github.com/ithil/pensieve/internal/parser"
	"github.com/ithil/pensieve/internal/storage"
)

// Sync walks the collection and brings the index up to date:
//   - new/changed notes are parsed and upserted
//   - unchanged notes get their relations refreshed from the sidecar
//   - notes removed from disk are deleted from the index
func Sync(db *DB, c *collection.Collection, logger *slog.Logger) error {
	metas, err := c.Store().List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		n, ok := c.NoteByPath(m.Path)
		if !ok {
			continue
		}
		if checksums[m.Path] == m.Checksum {
			if err := indexRelations(db, n); err != nil {
				logger.Warn("sync: relations failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			}
			continue
		}
		if err := IndexNote(db, n); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteNote(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexNote reads n and its sidecar and upserts both into the DB.
func IndexNote(db *DB, n *collection.Note) error {
	data, err := n.RawContent()
	if err != nil {
		return err
	}
	links, err := n.Links()
	if err != nil {
		return err
	}
	row, body := describe(n, data)
	if info, err := n.Collection().Store().Stat(n.Path()); err == nil {
		row.UpdatedAt = info.ModTime()
	}
	return db.UpsertNote(row, body, links)
}

func indexRelations(db *DB, n *collection.Note) error {
	links, err := n.Links()
	if err != nil {
		return err
	}
	return db.ReplaceRelations(n.Path(), links)
}

// describe derives the indexed row and the searchable body from the raw
// content of n according to its kind.
func describe(n *collection.Note, data []byte) (NoteRow, string) {
	row := NoteRow{
		Path:     n.Path(),
		Stack:    n.Stack(),
		Kind:     n.Kind(),
		Title:    n.Name(),
		Checksum: storage.Checksum(data),
		Tags:     []string{},
	}
	var body string

	switch n.Kind() {
	case models.KindText:
		res, err := parser.Parse(data)
		if err != nil {
			// Broken frontmatter: index the raw text.
			body = string(data)
			break
		}
		body = res.Body
		row.Excerpt = res.Excerpt
		if res.Tags != nil {
			row.Tags = res.Tags
		}
		if res.Title != "" {
			row.Title = res.Title
		}

	case models.KindCanvas:
		cv, err := document.ParseCanvas(data)
		if err != nil {
			break
		}
		var texts []string
		for _, el := range cv.Elements {
			if el.Type == document.ElementText && el.Text != "" {
				texts = append(texts, el.Text)
			}
		}
		body = strings.Join(texts, "\n")
		row.Excerpt = truncate(strings.Join(texts, " "), parser.ExcerptLength)
		if cv.Title != "" {
			row.Title = cv.Title
		}

	case models.KindTasklist:
		tl, err := document.ParseTasklist(data)
		if err != nil {
			break
		}
		items := make([]string, 0, len(tl.List))
		for _, raw := range tl.List {
			items = append(items, string(raw))
		}
		body = strings.Join(items, "\n")
		if tl.Title != "" {
			row.Title = tl.Title
		}
	}
	return row, body
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
