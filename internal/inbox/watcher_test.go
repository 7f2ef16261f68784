package inbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/starford/mdimport/internal/models"
	"github.com/starford/mdimport/internal/storage"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	reqs []models.BatchRequest
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, req models.BatchRequest) (*models.BatchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.reqs = append(f.reqs, req)
	return &models.BatchResponse{TaskID: "task-" + string(rune('0'+len(f.reqs)))}, nil
}

func (f *fakeSubmitter) requests() []models.BatchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.BatchRequest, len(f.reqs))
	copy(out, f.reqs)
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func inboxEnv(t *testing.T, files map[string]string) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		writeFile(t, dir, rel, content)
	}
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return fs.Root(), fs
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFlush_SubmitsValidFiles(t *testing.T) {
	root, fs := inboxEnv(t, map[string]string{
		"go/chan.md": "---\ntitle: Channels\n---\nbody",
		"blank.md":   "",
	})
	sub := &fakeSubmitter{}
	cfg := models.DefaultImportConfig()
	cfg.Mode = models.ModeUpdate

	var cbTask string
	var cbFiles []string
	w := New(fs, root, sub, WithConfig(cfg), WithLogger(quietLogger()), WithCallback(func(id string, files []string) {
		cbTask, cbFiles = id, files
	}))

	id := w.Flush(context.Background(), []string{"go/chan.md", "blank.md", "missing.md"})
	if id != "task-1" {
		t.Fatalf("task id = %q", id)
	}
	reqs := sub.requests()
	if len(reqs) != 1 || len(reqs[0].Files) != 1 {
		t.Fatalf("requests = %+v", reqs)
	}
	rec := reqs[0].Files[0]
	if rec.Title != "Channels" || rec.Category != "go" {
		t.Errorf("record = %+v", rec)
	}
	if reqs[0].Config.Mode != models.ModeUpdate {
		t.Errorf("mode = %q", reqs[0].Config.Mode)
	}
	if cbTask != "task-1" || len(cbFiles) != 1 || cbFiles[0] != "go/chan.md" {
		t.Errorf("callback = %q %v", cbTask, cbFiles)
	}
}

func TestFlush_SkipsUnchanged(t *testing.T) {
	root, fs := inboxEnv(t, map[string]string{"a.md": "# A\ntext"})
	sub := &fakeSubmitter{}
	w := New(fs, root, sub, WithLogger(quietLogger()))
	ctx := context.Background()

	if id := w.Flush(ctx, []string{"a.md"}); id == "" {
		t.Fatal("first flush should submit")
	}
	if id := w.Flush(ctx, []string{"a.md"}); id != "" {
		t.Errorf("unchanged flush submitted %q", id)
	}
	writeFile(t, root, "a.md", "# A\nchanged")
	if id := w.Flush(ctx, []string{"a.md"}); id == "" {
		t.Error("changed content should be submitted")
	}
	if n := len(sub.requests()); n != 2 {
		t.Errorf("submissions = %d, want 2", n)
	}
}

func TestFlush_SubmitErrorRetries(t *testing.T) {
	root, fs := inboxEnv(t, map[string]string{"a.md": "# A\ntext"})
	sub := &fakeSubmitter{err: errors.New("down")}
	w := New(fs, root, sub, WithLogger(quietLogger()))
	ctx := context.Background()

	if id := w.Flush(ctx, []string{"a.md"}); id != "" {
		t.Fatalf("flush with failing submitter = %q", id)
	}
	sub.mu.Lock()
	sub.err = nil
	sub.mu.Unlock()
	if id := w.Flush(ctx, []string{"a.md"}); id == "" {
		t.Error("file should be retried after a failed submit")
	}
}

func TestFlush_Archive(t *testing.T) {
	root, fs := inboxEnv(t, map[string]string{"x/a.md": "# A\ntext"})
	w := New(fs, root, &fakeSubmitter{}, WithArchive(".imported"), WithLogger(quietLogger()))

	if id := w.Flush(context.Background(), []string{"x/a.md"}); id == "" {
		t.Fatal("expected submission")
	}
	if _, err := os.Stat(filepath.Join(root, ".imported", "x", "a.md")); err != nil {
		t.Errorf("archived file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "x", "a.md")); !os.IsNotExist(err) {
		t.Errorf("source file should be gone, stat err = %v", err)
	}
}

func TestHidden(t *testing.T) {
	for p, want := range map[string]bool{".": false, "a.md": false, ".imported/a.md": true, "x/.git/y.md": true} {
		if got := hidden(p); got != want {
			t.Errorf("hidden(%q) = %v", p, got)
		}
	}
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestRun_PicksUpExistingAndNewFiles(t *testing.T) {
	root, fs := inboxEnv(t, map[string]string{"old.md": "# Old\nbody"})
	sub := &fakeSubmitter{}
	w := New(fs, root, sub, WithDebounce(50*time.Millisecond), WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return len(sub.requests()) == 1
	}, "existing file not submitted on start")

	writeFile(t, root, "sub/new.md", "# New\nbody")

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return len(sub.requests()) >= 2
	}, "new file not submitted by watcher")

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}

	var paths []string
	for _, r := range sub.requests() {
		for _, f := range r.Files {
			paths = append(paths, f.Path)
		}
	}
	sort.Strings(paths)
	if len(paths) != 2 || paths[0] != "old.md" || paths[1] != "sub/new.md" {
		t.Errorf("submitted paths = %v", paths)
	}
}
