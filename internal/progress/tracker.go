// Package progress mirrors the state of an import task running on a remote
// ingestion service.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/mdimport/internal/models"
)

// DefaultPollInterval is the delay between two progress requests.
const DefaultPollInterval = time.Second

// ErrInvalidState is returned when an operation does not fit the current state.
var ErrInvalidState = errors.New("progress: invalid state")

// Service is the remote side of an import task.
type Service interface {
	Submit(ctx context.Context, req models.BatchRequest) (*models.BatchResponse, error)
	Progress(ctx context.Context, taskID string) (*models.ImportProgress, error)
	Cancel(ctx context.Context, taskID string) error
}

// Tracker is a state machine idle -> scanning -> importing -> completed|cancelled.
//
// Completion is never decided locally: the tracker only moves to a terminal
// state when the service reports one.
type Tracker struct {
	svc      Service
	interval time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	status     models.ProgressStatus
	taskID     string
	snapshot   models.ImportProgress
	submitting bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithLogger sets the logger used for poll failures.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTracker creates an idle tracker.
func NewTracker(svc Service, opts ...Option) *Tracker {
	t := &Tracker{
		svc:      svc,
		interval: DefaultPollInterval,
		logger:   slog.Default(),
		status:   models.StatusIdle,
		snapshot: models.ImportProgress{Status: models.StatusIdle, Errors: []models.FileError{}},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Status returns the current state.
func (t *Tracker) Status() models.ProgressStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// TaskID returns the identifier of the submitted task, if any.
func (t *Tracker) TaskID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.taskID
}

// Snapshot returns the last progress received.
func (t *Tracker) Snapshot() models.ImportProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot.Clone()
}

// BeginScan marks that the caller is collecting files.
func (t *Tracker) BeginScan() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != models.StatusIdle || t.submitting {
		return fmt.Errorf("%w: scan from %s", ErrInvalidState, t.status)
	}
	t.status = models.StatusScanning
	t.snapshot.Status = models.StatusScanning
	return nil
}

// Reset returns a tracker that is not importing to idle.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == models.StatusImporting || t.submitting {
		return fmt.Errorf("%w: reset while importing", ErrInvalidState)
	}
	t.status = models.StatusIdle
	t.taskID = ""
	t.snapshot = models.ImportProgress{Status: models.StatusIdle, Errors: []models.FileError{}}
	return nil
}

// Submit sends the batch and enters importing once a task ID comes back.
// Submission errors are returned to the caller and leave the state unchanged.
// Only one submission may be in flight.
func (t *Tracker) Submit(ctx context.Context, req models.BatchRequest) (string, error) {
	t.mu.Lock()
	if t.submitting {
		t.mu.Unlock()
		return "", fmt.Errorf("%w: submit already in flight", ErrInvalidState)
	}
	if t.status != models.StatusIdle && t.status != models.StatusScanning {
		st := t.status
		t.mu.Unlock()
		return "", fmt.Errorf("%w: submit from %s", ErrInvalidState, st)
	}
	t.submitting = true
	t.mu.Unlock()

	resp, err := t.svc.Submit(ctx, req)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.submitting = false
	if err != nil {
		return "", fmt.Errorf("progress: submit: %w", err)
	}
	if resp.TaskID == "" {
		return "", fmt.Errorf("progress: submit: empty task id")
	}
	t.taskID = resp.TaskID
	t.status = models.StatusImporting
	t.snapshot = resp.Progress.Clone()
	t.snapshot.Status = models.StatusImporting
	return resp.TaskID, nil
}

// Cancel asks the service to cancel the task. The tracker keeps polling
// until the service reports the cancelled state.
func (t *Tracker) Cancel(ctx context.Context) error {
	t.mu.Lock()
	id, st := t.taskID, t.status
	t.mu.Unlock()
	if st != models.StatusImporting {
		return fmt.Errorf("%w: cancel from %s", ErrInvalidState, st)
	}
	if err := t.svc.Cancel(ctx, id); err != nil {
		return fmt.Errorf("progress: cancel: %w", err)
	}
	return nil
}

// Watch polls the service every interval and hands each snapshot to onUpdate
// unchanged. It returns the first terminal snapshot. A failed poll is logged
// and retried on the next tick with no backoff and no retry limit. Watch
// returns ctx.Err() when ctx ends first; the task keeps running remotely.
func (t *Tracker) Watch(ctx context.Context, onUpdate func(models.ImportProgress)) (models.ImportProgress, error) {
	t.mu.Lock()
	id, st := t.taskID, t.status
	t.mu.Unlock()
	if st != models.StatusImporting {
		return models.ImportProgress{}, fmt.Errorf("%w: watch from %s", ErrInvalidState, st)
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return t.Snapshot(), ctx.Err()
		case <-ticker.C:
		}

		p, err := t.svc.Progress(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return t.Snapshot(), ctx.Err()
			}
			failures++
			t.logger.Warn("progress poll failed",
				slog.String("task_id", id),
				slog.Int("consecutive_failures", failures),
				slog.String("error", err.Error()))
			continue
		}
		failures = 0

		snap := p.Clone()
		t.mu.Lock()
		t.snapshot = snap
		if snap.Status.Terminal() {
			t.status = snap.Status
		}
		t.mu.Unlock()

		if onUpdate != nil {
			onUpdate(snap.Clone())
		}
		if snap.Status.Terminal() {
			return snap, nil
		}
	}
}
