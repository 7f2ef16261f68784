// Package ingest runs batch import tasks against the article store and
// tracks their progress.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/mdimport/internal/apperr"
	"github.com/starford/mdimport/internal/index"
	"github.com/starford/mdimport/internal/models"
	"github.com/starford/mdimport/internal/progress"
)

const (
	defaultRetention = time.Hour
	defaultCacheSize = 1024
	defaultCacheTTL  = 10 * time.Minute
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("ingest: runner closed")

// Observer receives a snapshot after every progress change.
type Observer func(taskID string, p models.ImportProgress)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithRetention sets how long finished tasks stay queryable.
func WithRetention(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.retention = d
		}
	}
}

// WithObserver registers a progress observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithBatchSize sets the chunk size used when a submission leaves it unset.
func WithBatchSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithCache sets the size and TTL of the category and tag id caches.
func WithCache(size int, ttl time.Duration) Option {
	return func(r *Runner) {
		if size > 0 {
			r.cacheSize = size
		}
		if ttl > 0 {
			r.cacheTTL = ttl
		}
	}
}

type task struct {
	id       string
	mu       sync.Mutex
	progress models.ImportProgress
	results  []models.ImportResult
	cancel   bool
	started  time.Time
	finished time.Time
}

func (t *task) snapshot() models.ImportProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress.Clone()
}

// Runner accepts batch submissions and imports them asynchronously.
type Runner struct {
	store     index.ArticleStore
	log       *slog.Logger
	retention time.Duration
	batchSize int
	cacheSize int
	cacheTTL  time.Duration
	observers []Observer

	categories *nameCache
	tags       *nameCache

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	tasks  map[string]*task
	closed bool
}

var _ progress.Service = (*Runner)(nil)

// NewRunner creates a Runner writing to store.
func NewRunner(store index.ArticleStore, opts ...Option) *Runner {
	r := &Runner{
		store:     store,
		log:       slog.Default(),
		retention: defaultRetention,
		batchSize: models.DefaultBatchSize,
		cacheSize: defaultCacheSize,
		cacheTTL:  defaultCacheTTL,
		tasks:     make(map[string]*task),
	}
	for _, o := range opts {
		o(r)
	}
	r.categories = newNameCache("category", r.cacheSize, r.cacheTTL, store.CategoryID, store.EnsureCategory)
	r.tags = newNameCache("tag", r.cacheSize, r.cacheTTL, store.TagID, store.EnsureTag)
	r.ctx, r.stop = context.WithCancel(context.Background())
	return r
}

// Submit registers a task and starts importing req.Files in the background.
// The returned progress has status importing.
func (r *Runner) Submit(_ context.Context, req models.BatchRequest) (*models.BatchResponse, error) {
	if err := req.Config.Validate(); err != nil {
		return nil, fmt.Errorf("ingest: config: %w: %w", apperr.ErrInvalidInput, err)
	}
	if len(req.Files) == 0 {
		return nil, fmt.Errorf("ingest: no files: %w", apperr.ErrInvalidInput)
	}

	t := &task{
		id:      uuid.NewString(),
		started: time.Now(),
		progress: models.ImportProgress{
			Total:  len(req.Files),
			Status: models.StatusImporting,
			Errors: []models.FileError{},
		},
	}
	files := make([]models.ImportRecord, len(req.Files))
	copy(files, req.Files)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.tasks[t.id] = t
	r.wg.Add(1)
	r.mu.Unlock()

	r.log.Info("import task started", "task_id", t.id, "total", len(files), "mode", req.Config.Mode)
	snap := t.snapshot()
	r.publish(t.id, snap)

	go r.process(t, files, req.Config)
	return &models.BatchResponse{TaskID: t.id, Progress: snap}, nil
}

// Progress returns a copy of the task's current progress.
func (r *Runner) Progress(_ context.Context, taskID string) (*models.ImportProgress, error) {
	t, err := r.task(taskID)
	if err != nil {
		return nil, err
	}
	p := t.snapshot()
	return &p, nil
}

// Results returns the per-file outcomes recorded so far.
func (r *Runner) Results(_ context.Context, taskID string) ([]models.ImportResult, error) {
	t, err := r.task(taskID)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.ImportResult, len(t.results))
	copy(out, t.results)
	return out, nil
}

// Cancel asks the task to stop before its next file. The status becomes
// cancelled once the worker observes the request.
func (r *Runner) Cancel(_ context.Context, taskID string) error {
	t, err := r.task(taskID)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.progress.Status.Terminal() {
		return fmt.Errorf("ingest: task %s is %s: %w", taskID, t.progress.Status, apperr.ErrTaskFinished)
	}
	t.cancel = true
	r.log.Info("import task cancel requested", "task_id", taskID)
	return nil
}

// ImportOne imports a single record synchronously.
func (r *Runner) ImportOne(ctx context.Context, rec models.ImportRecord, cfg models.ImportConfig) (models.ImportResult, error) {
	if err := cfg.Validate(); err != nil {
		return models.ImportResult{}, fmt.Errorf("ingest: config: %w: %w", apperr.ErrInvalidInput, err)
	}
	res := r.importRecord(ctx, rec, cfg)
	importRecordsTotal.WithLabelValues(string(res.Status)).Inc()
	return res, nil
}

// Run evicts finished tasks older than the retention period until ctx is
// done, then stops running tasks and waits for them.
func (r *Runner) Run(ctx context.Context) error {
	interval := min(r.retention, time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return nil
		case now := <-ticker.C:
			if n := r.evictExpired(now); n > 0 {
				r.log.Debug("evicted finished tasks", "count", n)
			}
		}
	}
}

// Close cancels running tasks and waits for their workers to exit.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.stop()
	r.wg.Wait()
}

func (r *Runner) task(id string) (*task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("ingest: task %s: %w", id, apperr.ErrNotFound)
	}
	return t, nil
}

func (r *Runner) evictExpired(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, t := range r.tasks {
		t.mu.Lock()
		expired := !t.finished.IsZero() && now.Sub(t.finished) >= r.retention
		t.mu.Unlock()
		if expired {
			delete(r.tasks, id)
			n++
		}
	}
	return n
}

func (r *Runner) publish(id string, p models.ImportProgress) {
	for _, o := range r.observers {
		o(id, p)
	}
}

func (r *Runner) process(t *task, files []models.ImportRecord, cfg models.ImportConfig) {
	defer r.wg.Done()
	size := cfg.BatchSize
	if size <= 0 {
		size = r.batchSize
	}

	status := models.StatusCompleted
loop:
	for start := 0; start < len(files); start += size {
		batch := files[start:min(start+size, len(files))]
		for _, rec := range batch {
			if !r.beginFile(t, rec) {
				status = models.StatusCancelled
				break loop
			}
			res := r.importRecord(r.ctx, rec, cfg)
			importRecordsTotal.WithLabelValues(string(res.Status)).Inc()
			r.publish(t.id, r.recordResult(t, res))
		}
		r.log.Debug("import batch done", "task_id", t.id, "processed", start+len(batch))
	}

	t.mu.Lock()
	t.progress.Status = status
	t.progress.CurrentFile = ""
	t.finished = time.Now()
	snap := t.progress.Clone()
	elapsed := t.finished.Sub(t.started)
	t.mu.Unlock()

	importTasksTotal.WithLabelValues(string(status)).Inc()
	importDuration.Observe(elapsed.Seconds())
	r.log.Info("import task finished",
		"task_id", t.id,
		"status", status,
		"processed", snap.Processed,
		"success", snap.Success,
		"failed", snap.Failed,
		"skipped", snap.Skipped,
		"duration", elapsed,
	)
	r.publish(t.id, snap)
}

// beginFile marks rec as the current file. It reports false when the task
// was cancelled or the runner is shutting down.
func (r *Runner) beginFile(t *task, rec models.ImportRecord) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel || r.ctx.Err() != nil {
		return false
	}
	t.progress.CurrentFile = fileLabel(rec)
	return true
}

func (r *Runner) recordResult(t *task, res models.ImportResult) models.ImportProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := &t.progress
	p.Processed++
	switch res.Status {
	case models.RecordSuccess:
		p.Success++
	case models.RecordSkipped:
		p.Skipped++
		p.Errors = append(p.Errors, models.FileError{File: res.File, Error: res.Message})
	default:
		p.Failed++
		p.Errors = append(p.Errors, models.FileError{File: res.File, Error: res.Message})
	}
	t.results = append(t.results, res)
	return p.Clone()
}
