package importer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/mdimport/internal/models"
	"github.com/starford/mdimport/internal/parser"
)

func doc(path, content string) models.RawDocument {
	return models.RawDocument{
		Name:    parser.Filename(path),
		Path:    path,
		Content: content,
		Size:    int64(len(content)),
	}
}

func TestProcessDocument_FullRecord(t *testing.T) {
	content := "---\n" +
		"title: \"Go Channels\"\n" +
		"tags: [go, concurrency]\n" +
		"categories: backend\n" +
		"date: 2023-05-01 10:00:00\n" +
		"updated: 2023-06-01\n" +
		"source: https://example.com/go\n" +
		"---\n" +
		"Channels are #typed conduits."

	rec := ProcessDocument(doc("notes/golang/02-channels.md", content))

	assert.True(t, strings.HasPrefix(rec.ID, "notes/golang/02-channels.md_"))
	assert.Equal(t, "02-channels.md", rec.Name)
	assert.Equal(t, int64(len(content)), rec.Size)
	assert.Equal(t, "Channels are #typed conduits.", rec.Content)
	assert.Equal(t, "Go Channels", rec.Title)
	assert.Equal(t, "golang", rec.Category)
	assert.ElementsMatch(t, []string{"go", "concurrency", "backend", "typed"}, rec.Tags)
	require.NotNil(t, rec.CreateTime)
	assert.Equal(t, "2023-05-01 10:00:00", *rec.CreateTime)
	require.NotNil(t, rec.UpdateTime)
	assert.Equal(t, "2023-06-01", *rec.UpdateTime)
	require.NotNil(t, rec.OriginalURL)
	assert.Equal(t, "https://example.com/go", *rec.OriginalURL)
	assert.True(t, rec.Selected)
	assert.Equal(t, models.RecordPending, rec.Status)
	assert.Equal(t, "Go Channels", rec.Frontmatter["title"])
}

func TestProcessDocument_Fallbacks(t *testing.T) {
	rec := ProcessDocument(doc("03-my-post.md", "plain text"))

	assert.Equal(t, "my-post", rec.Title)
	assert.Equal(t, parser.Uncategorized, rec.Category)
	assert.Empty(t, rec.Tags)
	assert.Empty(t, rec.Frontmatter)
	assert.Nil(t, rec.CreateTime)
	assert.Nil(t, rec.UpdateTime)
	assert.Nil(t, rec.OriginalURL)
}

func TestProcessDocuments_PreservesOrderAndUniqueIDs(t *testing.T) {
	docs := []models.RawDocument{
		doc("a/one.md", "# One\nx"),
		doc("b/two.md", "---\nbroken\n---\n"),
		doc("a/one.md", "# One again\ny"),
	}
	recs := ProcessDocuments(docs)

	require.Len(t, recs, 3)
	assert.Equal(t, "One", recs[0].Title)
	assert.Equal(t, "two", recs[1].Title)
	assert.Equal(t, "One again", recs[2].Title)
	assert.NotEqual(t, recs[0].ID, recs[2].ID)
}

func TestProcessDocumentsParallel_MatchesSequential(t *testing.T) {
	var docs []models.RawDocument
	for i := 0; i < 50; i++ {
		docs = append(docs, doc(fmt.Sprintf("dir%d/file-%d.md", i%3, i), fmt.Sprintf("# Title %d\nbody #tag%d", i, i)))
	}

	recs, err := ProcessDocumentsParallel(context.Background(), docs, 4)
	require.NoError(t, err)
	require.Len(t, recs, len(docs))
	for i, r := range recs {
		assert.Equal(t, docs[i].Path, r.Path)
		assert.Equal(t, fmt.Sprintf("Title %d", i), r.Title)
		assert.Equal(t, fmt.Sprintf("dir%d", i%3), r.Category)
	}
}

func TestProcessDocumentsParallel_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ProcessDocumentsParallel(ctx, []models.RawDocument{doc("a.md", "x"), doc("b.md", "y")}, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateSummary(t *testing.T) {
	recs := ProcessDocuments([]models.RawDocument{
		doc("docs/backend/a.md", "# A\n#go"),
		doc("docs/backend/b.md", "# B\n#sql"),
		doc("docs/frontend/c.md", "# C\n#css"),
		doc("docs/ops/d.md", "# D\n#k8s"),
		doc("e.md", "# E"),
	})
	recs[3].Selected = false
	recs[4].Selected = false

	s := GenerateSummary(recs)

	assert.Equal(t, 5, s.TotalFiles)
	assert.Equal(t, 3, s.SelectedFiles)
	assert.Equal(t, 3, s.EstimatedArticles)
	assert.Equal(t, []string{"backend", "frontend"}, s.Categories)
	assert.Equal(t, []string{"css", "go", "sql"}, s.Tags)
}

func TestGenerateSummary_Empty(t *testing.T) {
	s := GenerateSummary(nil)
	assert.Zero(t, s.TotalFiles)
	assert.NotNil(t, s.Categories)
	assert.NotNil(t, s.Tags)
}

func TestNewBatchRequest_OnlySelected(t *testing.T) {
	recs := ProcessDocuments([]models.RawDocument{doc("a.md", "# A\nx"), doc("b.md", "# B\ny")})
	recs[0].Selected = false
	cfg := models.DefaultImportConfig()

	req := NewBatchRequest(recs, cfg)

	require.Len(t, req.Files, 1)
	assert.Equal(t, "B", req.Files[0].Title)
	assert.Equal(t, cfg.Mode, req.Config.Mode)
}

func TestDeselectInvalid(t *testing.T) {
	recs := ProcessDocuments([]models.RawDocument{
		doc("ok.md", "# Fine\ncontent"),
		doc("empty.md", "---\ntitle: Empty\n---\n   \n"),
	})

	n := DeselectInvalid(recs)

	assert.Equal(t, 1, n)
	assert.True(t, recs[0].Selected)
	assert.False(t, recs[1].Selected)
	assert.Equal(t, MsgEmptyContent, recs[1].Error)
}

func TestApplyValidation(t *testing.T) {
	recs := ProcessDocuments([]models.RawDocument{doc("a.md", "# A\nx"), doc("b.md", "# B\ny"), doc("c.md", "# C\nz")})
	recs[2].Selected = false
	rep := models.ValidationReport{InvalidFiles: []models.ImportRecord{
		{ID: recs[1].ID, Error: "title too long"},
		{ID: recs[2].ID, Error: "ignored"},
		{ID: "unknown", Error: "nope"},
	}}

	n := ApplyValidation(recs, rep)

	assert.Equal(t, 1, n)
	assert.True(t, recs[0].Selected)
	assert.False(t, recs[1].Selected)
	assert.Equal(t, "title too long", recs[1].Error)
	assert.Empty(t, recs[2].Error)
}

func TestApplyResults(t *testing.T) {
	recs := ProcessDocuments([]models.RawDocument{doc("a.md", "# A\nx"), doc("b.md", "# B\ny"), doc("c.md", "# C\nz")})
	results := []models.ImportResult{
		{RecordID: recs[0].ID, File: "a.md", Status: models.RecordSuccess},
		{RecordID: recs[2].ID, File: "c.md", Status: models.RecordSkipped, Message: "article already exists"},
		{RecordID: "unknown", File: "zzz.md", Status: models.RecordError},
	}

	n := ApplyResults(recs, results)

	assert.Equal(t, 2, n)
	assert.Equal(t, models.RecordSuccess, recs[0].Status)
	assert.Equal(t, models.RecordPending, recs[1].Status)
	assert.Equal(t, models.RecordSkipped, recs[2].Status)
	assert.Equal(t, "article already exists", recs[2].Error)
}
