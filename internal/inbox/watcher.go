// Package inbox watches a hot folder and submits new or changed Markdown
// files for import.
package inbox

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/mdimport/internal/checksum"
	"github.com/starford/mdimport/internal/importer"
	"github.com/starford/mdimport/internal/models"
	"github.com/starford/mdimport/internal/storage"
)

const defaultDebounce = 500 * time.Millisecond

// Submitter accepts batch submissions.
type Submitter interface {
	Submit(ctx context.Context, req models.BatchRequest) (*models.BatchResponse, error)
}

// SubmitCallback is called after a batch has been accepted.
type SubmitCallback func(taskID string, files []string)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before pending files are flushed.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithConfig sets the import policy used for submissions.
func WithConfig(cfg models.ImportConfig) Option {
	return func(w *Watcher) { w.cfg = cfg }
}

// WithArchive moves submitted files into dir (relative to the root).
// dir should start with a dot so scans skip it.
func WithArchive(dir string) Option {
	return func(w *Watcher) { w.archive = dir }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// WithCallback registers cb to run after each accepted submission.
func WithCallback(cb SubmitCallback) Option {
	return func(w *Watcher) { w.onSubmit = cb }
}

// Watcher turns file system events under root into import submissions.
// It is not safe for concurrent use; Run owns it.
type Watcher struct {
	source    storage.Provider
	root      string
	submitter Submitter
	cfg       models.ImportConfig
	debounce  time.Duration
	archive   string
	log       *slog.Logger
	onSubmit  SubmitCallback

	seen map[string]string // path -> checksum of last submitted content
}

// New creates a Watcher over source, whose files live under root.
func New(source storage.Provider, root string, submitter Submitter, opts ...Option) *Watcher {
	w := &Watcher{
		source:    source,
		root:      root,
		submitter: submitter,
		cfg:       models.DefaultImportConfig(),
		debounce:  defaultDebounce,
		log:       slog.Default(),
		seen:      make(map[string]string),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run submits files already present, then watches root until ctx is
// cancelled. New directories are added to the watch list as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: new watcher: %w", err)
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, w.root); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", w.root, err)
	}
	w.log.Info("inbox: started", slog.String("path", w.root))

	if docs, err := w.source.Scan(""); err != nil {
		w.log.Warn("inbox: initial scan failed", slog.String("error", err.Error()))
	} else {
		paths := make([]string, 0, len(docs))
		for _, d := range docs {
			paths = append(paths, d.Path)
		}
		w.Flush(ctx, paths)
	}

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			timerCh = timer.C
		} else {
			timer.Reset(w.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.log.Info("inbox: stopped")
			return nil

		case <-timerCh:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			w.Flush(ctx, paths)

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			rel, relErr := filepath.Rel(w.root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if hidden(rel) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(fw, ev.Name); addErr != nil {
						w.log.Warn("inbox: add new dir failed",
							slog.String("path", rel),
							slog.String("error", addErr.Error()))
						continue
					}
					if docs, scanErr := w.source.Scan(rel); scanErr == nil {
						for _, d := range docs {
							pending[d.Path] = struct{}{}
						}
						schedule()
					}
					continue
				}
			}

			if !storage.IsMarkdown(rel) {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				pending[rel] = struct{}{}
				schedule()
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(pending, rel)
				delete(w.seen, rel)
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// Flush reads paths, drops files whose content was already submitted, and
// submits the valid remainder as one batch. It returns the task id, or ""
// when nothing was submitted.
func (w *Watcher) Flush(ctx context.Context, paths []string) string {
	docs := make([]models.RawDocument, 0, len(paths))
	sums := make(map[string]string, len(paths))
	for _, p := range paths {
		data, err := w.source.Read(p)
		if err != nil {
			w.log.Warn("inbox: read failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		if checksum.Matches(w.seen[p], data) {
			continue
		}
		sums[p] = checksum.Sum(data)
		docs = append(docs, models.RawDocument{
			Name:    path.Base(p),
			Path:    p,
			Content: string(data),
			Size:    int64(len(data)),
		})
	}
	if len(docs) == 0 {
		return ""
	}

	var valid []models.ImportRecord
	for _, rec := range importer.ProcessDocuments(docs) {
		if v := importer.Validate(rec); !v.Valid {
			w.log.Warn("inbox: invalid file skipped",
				slog.String("file", rec.Path),
				slog.String("error", strings.Join(v.Errors, "; ")))
			continue
		}
		valid = append(valid, rec)
	}
	if len(valid) == 0 {
		return ""
	}

	resp, err := w.submitter.Submit(ctx, importer.NewBatchRequest(valid, w.cfg))
	if err != nil {
		w.log.Error("inbox: submit failed", slog.String("error", err.Error()))
		return ""
	}

	files := make([]string, len(valid))
	for i, rec := range valid {
		files[i] = rec.Path
		w.seen[rec.Path] = sums[rec.Path]
		if w.archive != "" {
			if err := w.source.Move(rec.Path, path.Join(w.archive, rec.Path)); err != nil {
				w.log.Warn("inbox: archive failed", slog.String("path", rec.Path), slog.String("error", err.Error()))
			}
		}
	}
	w.log.Info("inbox: submitted",
		slog.String("task_id", resp.TaskID),
		slog.Int("files", len(files)))
	if w.onSubmit != nil {
		w.onSubmit(resp.TaskID, files)
	}
	return resp.TaskID
}

// hidden reports whether any path segment starts with a dot.
func hidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
