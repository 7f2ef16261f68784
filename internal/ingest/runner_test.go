package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/mdimport/internal/apperr"
	"github.com/starford/mdimport/internal/index"
	"github.com/starford/mdimport/internal/models"
	"github.com/starford/mdimport/internal/progress"
	"github.com/starford/mdimport/internal/testutil"
)

func record(name, title, category string, tags ...string) models.ImportRecord {
	return models.ImportRecord{
		ID:       name + "_id",
		Name:     name,
		Path:     "notes/" + category + "/" + name,
		Content:  "body of " + title,
		Title:    title,
		Category: category,
		Tags:     tags,
		Selected: true,
		Status:   models.RecordPending,
	}
}

func waitDone(t *testing.T, r *Runner, id string) models.ImportProgress {
	t.Helper()
	var last models.ImportProgress
	require.Eventually(t, func() bool {
		p, err := r.Progress(context.Background(), id)
		if err != nil {
			return false
		}
		last = *p
		return p.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return last
}

func newRunner(t *testing.T, store index.ArticleStore, opts ...Option) *Runner {
	t.Helper()
	r := NewRunner(store, opts...)
	t.Cleanup(r.Close)
	return r
}

func TestSubmit_ImportsAll(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()

	var mu sync.Mutex
	var checker progress.Checker
	var violations []error
	observer := func(_ string, p models.ImportProgress) {
		mu.Lock()
		defer mu.Unlock()
		if err := checker.Observe(p); err != nil {
			violations = append(violations, err)
		}
	}
	r := newRunner(t, db, WithObserver(observer))

	cfg := models.DefaultImportConfig()
	cfg.BatchSize = 2
	resp, err := r.Submit(ctx, models.BatchRequest{
		Files: []models.ImportRecord{
			record("a.md", "Alpha", "backend", "go", "sql"),
			record("b.md", "Beta", "backend", "go"),
			record("c.md", "Gamma", "frontend"),
		},
		Config: cfg,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.TaskID)
	assert.Equal(t, models.StatusImporting, resp.Progress.Status)
	assert.Equal(t, 3, resp.Progress.Total)

	p := waitDone(t, r, resp.TaskID)
	assert.Equal(t, models.StatusCompleted, p.Status)
	assert.Equal(t, 3, p.Processed)
	assert.Equal(t, 3, p.Success)
	assert.Empty(t, p.Errors)
	assert.Empty(t, p.CurrentFile)

	mu.Lock()
	assert.Empty(t, violations)
	mu.Unlock()

	cats, err := db.Categories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 2)

	a, err := db.FindArticleByTitle(ctx, "Alpha")
	require.NoError(t, err)
	full, err := db.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "sql"}, full.Tags)
	assert.Equal(t, 1, full.Status)
	require.NotNil(t, full.CategoryID)
	assert.Equal(t, cats["backend"], *full.CategoryID)
	assert.Equal(t, "notes/backend/a.md", full.SourcePath)
	assert.NotEmpty(t, full.Checksum)

	results, err := r.Results(ctx, resp.TaskID)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a.md_id", results[0].RecordID)
	assert.Equal(t, a.ID, results[0].ArticleID)
}

func TestSubmit_InvalidAndDuplicate(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	_, err := db.CreateArticle(ctx, index.ArticleRow{Title: "Existing", Content: "old"}, nil)
	require.NoError(t, err)

	r := newRunner(t, db)
	empty := record("e.md", "Empty", "x")
	empty.Content = "   "
	resp, err := r.Submit(ctx, models.BatchRequest{
		Files:  []models.ImportRecord{record("dup.md", "Existing", "x"), empty, record("ok.md", "Fresh", "x")},
		Config: models.DefaultImportConfig(),
	})
	require.NoError(t, err)

	p := waitDone(t, r, resp.TaskID)
	assert.Equal(t, 3, p.Processed)
	assert.Equal(t, 1, p.Success)
	assert.Equal(t, 2, p.Skipped)
	assert.Equal(t, 0, p.Failed)
	assert.Equal(t, []models.FileError{
		{File: "dup.md", Error: MsgAlreadyExists},
		{File: "e.md", Error: "empty content"},
	}, p.Errors)
}

func TestSubmit_UpdateAndOverwrite(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	created := time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)
	origID, err := db.CreateArticle(ctx, index.ArticleRow{Title: "Same", Content: "old", CreatedAt: created}, nil)
	require.NoError(t, err)
	r := newRunner(t, db)

	cfg := models.DefaultImportConfig()
	cfg.Mode = models.ModeUpdate
	rec := record("s.md", "Same", "x")
	resp, err := r.Submit(ctx, models.BatchRequest{Files: []models.ImportRecord{rec}, Config: cfg})
	require.NoError(t, err)
	waitDone(t, r, resp.TaskID)

	a, err := db.GetArticle(ctx, origID)
	require.NoError(t, err)
	assert.Equal(t, "body of Same", a.Content)
	assert.True(t, a.CreatedAt.Equal(created))

	cfg.Mode = models.ModeOverwrite
	resp, err = r.Submit(ctx, models.BatchRequest{Files: []models.ImportRecord{rec}, Config: cfg})
	require.NoError(t, err)
	p := waitDone(t, r, resp.TaskID)
	assert.Equal(t, 1, p.Success)

	_, err = db.GetArticle(ctx, origID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	found, err := db.FindArticleByTitle(ctx, "Same")
	require.NoError(t, err)
	assert.NotEqual(t, origID, found.ID)
}

func TestImportOne_FailedOverwriteKeepsArticle(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	origID, err := db.CreateArticle(ctx, index.ArticleRow{Title: "Kept", Content: "old"}, nil)
	require.NoError(t, err)
	r := newRunner(t, db)

	cfg := models.DefaultImportConfig()
	cfg.Mode = models.ModeOverwrite
	cfg.CategoryMapping = map[string]int64{"backend": 9999}
	res, err := r.ImportOne(ctx, record("k.md", "Kept", "backend"), cfg)
	require.NoError(t, err)
	assert.Equal(t, models.RecordError, res.Status)
	assert.NotEmpty(t, res.Message)

	a, err := db.GetArticle(ctx, origID)
	require.NoError(t, err)
	assert.Equal(t, "old", a.Content)
}

func TestSubmit_RejectsBadInput(t *testing.T) {
	r := newRunner(t, testutil.TestDB(t))
	ctx := context.Background()

	_, err := r.Submit(ctx, models.BatchRequest{Config: models.DefaultImportConfig()})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	cfg := models.DefaultImportConfig()
	cfg.Mode = "merge"
	_, err = r.Submit(ctx, models.BatchRequest{Files: []models.ImportRecord{record("a.md", "A", "x")}, Config: cfg})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestCategoryResolution(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	mapped, err := db.EnsureCategory(ctx, "mapped-target")
	require.NoError(t, err)
	fallback, err := db.EnsureCategory(ctx, "fallback")
	require.NoError(t, err)
	r := newRunner(t, db)

	cfg := models.DefaultImportConfig()
	cfg.CreateCategories = false
	cfg.CategoryMapping = map[string]int64{"docs": mapped}
	cfg.DefaultCategoryID = &fallback

	id, err := r.resolveCategory(ctx, "docs", cfg)
	require.NoError(t, err)
	assert.Equal(t, mapped, *id)

	id, err = r.resolveCategory(ctx, "unknown", cfg)
	require.NoError(t, err)
	assert.Equal(t, fallback, *id)

	cfg.CreateCategories = true
	id, err = r.resolveCategory(ctx, "uncategorized", cfg)
	require.NoError(t, err)
	assert.Equal(t, fallback, *id)
	_, err = db.CategoryID(ctx, "uncategorized")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	cfg.DefaultCategoryID = nil
	id, err = r.resolveCategory(ctx, "uncategorized", cfg)
	require.NoError(t, err)
	assert.Nil(t, id)

	id, err = r.resolveCategory(ctx, "brand-new", cfg)
	require.NoError(t, err)
	stored, err := db.CategoryID(ctx, "brand-new")
	require.NoError(t, err)
	assert.Equal(t, stored, *id)
}

func TestTagResolution(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	known, err := db.EnsureTag(ctx, "known")
	require.NoError(t, err)
	r := newRunner(t, db)

	cfg := models.DefaultImportConfig()
	cfg.CreateTags = false
	cfg.TagMapping = map[string]int64{"alias": known}

	ids, err := r.resolveTags(ctx, []string{"known", "alias", "missing", " "}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int64{known}, ids)

	cfg.CreateTags = true
	ids, err = r.resolveTags(ctx, []string{"missing"}, cfg)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	created, err := db.TagID(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, created, ids[0])
}

func TestPreserveTime(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	r := newRunner(t, db)

	rec := record("t.md", "Timed", "x")
	ct := "2022-06-01"
	bad := "last tuesday"
	rec.CreateTime = &ct
	rec.UpdateTime = &bad

	cfg := models.DefaultImportConfig()
	cfg.PreserveTime = true
	res, err := r.ImportOne(ctx, rec, cfg)
	require.NoError(t, err)
	require.Equal(t, models.RecordSuccess, res.Status)

	a, err := db.GetArticle(ctx, res.ArticleID)
	require.NoError(t, err)
	want, _ := time.ParseInLocation("2006-01-02", ct, time.Local)
	assert.True(t, a.CreatedAt.Equal(want), "created_at = %v", a.CreatedAt)
	assert.WithinDuration(t, time.Now(), a.UpdatedAt, time.Minute)
}

func TestParseTimeLayouts(t *testing.T) {
	r := NewRunner(testutil.TestDB(t))
	for _, v := range []string{"2023-01-02 03:04:05", "2023-01-02T03:04:05Z", "2023-01-02"} {
		s := v
		assert.False(t, r.parseTime(&s, "f.md").IsZero(), v)
	}
	assert.True(t, r.parseTime(nil, "f.md").IsZero())
}

func TestImportOne_SourceURL(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	r := newRunner(t, db)

	rec := record("u.md", "Linked", "x")
	url := "https://example.com/post"
	rec.OriginalURL = &url
	res, err := r.ImportOne(ctx, rec, models.DefaultImportConfig())
	require.NoError(t, err)

	a, err := db.GetArticle(ctx, res.ArticleID)
	require.NoError(t, err)
	assert.Equal(t, url, a.SourceURL)

	res, err = r.ImportOne(ctx, rec, models.DefaultImportConfig())
	require.NoError(t, err)
	assert.Equal(t, models.RecordSkipped, res.Status)
	assert.Equal(t, MsgAlreadyExists, res.Message)
}

// gateStore blocks the first CreateArticle until released.
type gateStore struct {
	*index.DB
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (g *gateStore) CreateArticle(ctx context.Context, a index.ArticleRow, tagIDs []int64) (int64, error) {
	g.once.Do(func() {
		close(g.started)
		<-g.release
	})
	return g.DB.CreateArticle(ctx, a, tagIDs)
}

func TestCancel(t *testing.T) {
	store := &gateStore{DB: testutil.TestDB(t), started: make(chan struct{}), release: make(chan struct{})}
	r := newRunner(t, store)
	ctx := context.Background()

	resp, err := r.Submit(ctx, models.BatchRequest{
		Files:  []models.ImportRecord{record("1.md", "One", "x"), record("2.md", "Two", "x"), record("3.md", "Three", "x")},
		Config: models.DefaultImportConfig(),
	})
	require.NoError(t, err)

	<-store.started
	require.NoError(t, r.Cancel(ctx, resp.TaskID))
	p, err := r.Progress(ctx, resp.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusImporting, p.Status)
	close(store.release)

	final := waitDone(t, r, resp.TaskID)
	assert.Equal(t, models.StatusCancelled, final.Status)
	assert.Equal(t, 1, final.Processed)
	assert.Equal(t, 1, final.Success)

	assert.ErrorIs(t, r.Cancel(ctx, resp.TaskID), apperr.ErrTaskFinished)
	assert.ErrorIs(t, r.Cancel(ctx, "nope"), apperr.ErrNotFound)
}

func TestProgressIsCopy(t *testing.T) {
	db := testutil.TestDB(t)
	r := newRunner(t, db)
	ctx := context.Background()
	resp, err := r.Submit(ctx, models.BatchRequest{
		Files:  []models.ImportRecord{record("e.md", "", "x")},
		Config: models.DefaultImportConfig(),
	})
	require.NoError(t, err)
	p := waitDone(t, r, resp.TaskID)
	require.Len(t, p.Errors, 1)

	p.Errors[0].Error = "mutated"
	again, err := r.Progress(ctx, resp.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "missing title", again.Errors[0].Error)

	_, err = r.Progress(ctx, "unknown")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestEvictExpired(t *testing.T) {
	r := newRunner(t, testutil.TestDB(t), WithRetention(time.Minute))
	ctx := context.Background()
	resp, err := r.Submit(ctx, models.BatchRequest{
		Files:  []models.ImportRecord{record("a.md", "A", "x")},
		Config: models.DefaultImportConfig(),
	})
	require.NoError(t, err)
	waitDone(t, r, resp.TaskID)

	assert.Equal(t, 0, r.evictExpired(time.Now()))
	assert.Equal(t, 1, r.evictExpired(time.Now().Add(2*time.Minute)))
	_, err = r.Progress(ctx, resp.TaskID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSubmitAfterClose(t *testing.T) {
	r := NewRunner(testutil.TestDB(t))
	r.Close()
	_, err := r.Submit(context.Background(), models.BatchRequest{
		Files:  []models.ImportRecord{record("a.md", "A", "x")},
		Config: models.DefaultImportConfig(),
	})
	assert.ErrorIs(t, err, ErrClosed)
}
