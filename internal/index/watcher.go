package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ithil/pensieve/internal/collection"
	"github.com/ithil/pensieve/internal/storage"
)

// EventKind names a watcher notification.
type EventKind string

// Watcher notifications.
const (
	EventAdd    EventKind = "add"
	EventChange EventKind = "change"
	EventUnlink EventKind = "unlink"
)

// Event is one watcher notification. Note is a fresh handle for add and
// change events and nil for unlink.
type Event struct {
	Kind EventKind
	Path string
	Note *collection.Note
}

// EventCallback is called after a watcher-driven index change.
type EventCallback func(Event)

// Watch starts an fsnotify watcher on the stacks root of c and processes
// change events until ctx is cancelled. It calls cb (if non-nil) once per
// successful index mutation, without coalescing.
//
// New directories created at runtime are automatically added to the watch
// list. A sidecar write invalidates the owning note's memoized relations and
// is reported as a change of that note. Rename events trigger a
// reconciliation pass that removes stale index entries.
func Watch(ctx context.Context, db *DB, c *collection.Collection, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := c.StacksRoot()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	emit := func(ev Event) {
		if cb != nil {
			cb(ev)
		}
	}

	// reconcileTimer is used to debounce rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(db, c, logger, emit)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name
			base := filepath.Base(absPath)
			if strings.HasPrefix(base, storage.TempPrefix) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if storage.Hidden(base) {
						continue
					}
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					indexNewDir(db, c, absPath, logger, emit)
					continue
				}
			}

			rel, relErr := c.Store().Rel(absPath)
			if relErr != nil {
				continue
			}

			if storage.Hidden(base) {
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					sidecarChanged(db, c, rel, logger, emit)
				}
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				n, noteErr := c.NoteFromAbs(absPath)
				if noteErr != nil {
					logger.Warn("watcher: open failed", slog.String("path", rel), slog.String("error", noteErr.Error()))
					continue
				}
				if idxErr := IndexNote(db, n); idxErr != nil {
					logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
					continue
				}
				kind := EventChange
				if ev.Op&fsnotify.Create != 0 {
					kind = EventAdd
				}
				logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", string(kind)))
				emit(Event{Kind: kind, Path: n.Path(), Note: n})

			case ev.Op&fsnotify.Remove != 0:
				if delErr := db.DeleteNote(rel); delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
					continue
				}
				c.InvalidateRelations(rel)
				logger.Debug("watcher: deleted", slog.String("path", rel))
				emit(Event{Kind: EventUnlink, Path: rel})

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only. The new
				// path arrives as a separate Create event when it stays
				// within a watched dir.
				if delErr := db.DeleteNote(rel); delErr != nil {
					logger.Warn("watcher: rename delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
				} else {
					c.InvalidateRelations(rel)
					logger.Debug("watcher: rename old deleted", slog.String("path", rel))
					emit(Event{Kind: EventUnlink, Path: rel})
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// sidecarChanged refreshes the relations of the note owning the sidecar at
// rel. Other hidden files are ignored.
func sidecarChanged(db *DB, c *collection.Collection, rel string, logger *slog.Logger, emit EventCallback) {
	n, ok := c.NoteForSidecar(rel)
	if !ok {
		return
	}
	c.InvalidateRelations(n.Path())
	if err := indexRelations(db, n); err != nil {
		logger.Warn("watcher: relations failed", slog.String("path", n.Path()), slog.String("error", err.Error()))
		return
	}
	logger.Debug("watcher: relations refreshed", slog.String("path", n.Path()))
	emit(Event{Kind: EventChange, Path: n.Path(), Note: n})
}

// reconcile does a lightweight sync using batch lookups: it removes index
// entries without a file on disk and indexes on-disk files that are missing
// or changed.
func reconcile(db *DB, c *collection.Collection, logger *slog.Logger, emit EventCallback) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}

	metas, err := c.Store().List("")
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if delErr := db.DeleteNote(p); delErr == nil {
				c.InvalidateRelations(p)
				logger.Debug("reconcile: removed stale", slog.String("path", p))
				emit(Event{Kind: EventUnlink, Path: p})
			}
		}
	}

	for p, cs := range disk {
		prev, known := checksums[p]
		if known && prev == cs {
			continue
		}
		n, ok := c.NoteByPath(p)
		if !ok {
			continue
		}
		if idxErr := IndexNote(db, n); idxErr == nil {
			logger.Debug("reconcile: indexed", slog.String("path", p))
			kind := EventChange
			if !known {
				kind = EventAdd
			}
			emit(Event{Kind: kind, Path: p, Note: n})
		}
	}
}

// indexNewDir indexes the notes already present in a newly created directory.
func indexNewDir(db *DB, c *collection.Collection, dirPath string, logger *slog.Logger, emit EventCallback) {
	_ = filepath.WalkDir(dirPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if storage.Hidden(d.Name()) {
			if d.IsDir() && p != dirPath {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		n, noteErr := c.NoteFromAbs(p)
		if noteErr != nil {
			return nil
		}
		if idxErr := IndexNote(db, n); idxErr == nil {
			logger.Debug("watcher: indexed from new dir", slog.String("path", n.Path()))
			emit(Event{Kind: EventAdd, Path: n.Path(), Note: n})
		}
		return nil
	})
}

// addDirsRecursive adds root and all its visible subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && storage.Hidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
