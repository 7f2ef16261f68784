//go:build sqlite_fts5

package index

import (
	"context"
	"testing"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM articles_fts`).Scan(&count); err != nil {
		t.Fatalf("articles_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	tag, _ := db.EnsureTag(ctx, "search")
	id, err := db.CreateArticle(ctx, ArticleRow{Title: "FTS Article", Content: "Imports are indexed for powerful full-text search."}, []int64{tag})
	if err != nil {
		t.Fatalf("CreateArticle: %v", err)
	}

	results, err := db.Search(ctx, "powerful", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ID != id {
		t.Errorf("id = %d, want %d", results[0].ID, id)
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id, _ := db.CreateArticle(ctx, ArticleRow{Title: "Gone", Content: "vanishing content"}, nil)
	_ = db.DeleteArticle(ctx, id)

	results, _ := db.Search(ctx, "vanishing", 10)
	if len(results) != 0 {
		t.Errorf("deleted article still in FTS index: %+v", results)
	}
}

func TestFTS5_UpdateReplacesContent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id, _ := db.CreateArticle(ctx, ArticleRow{Title: "Old", Content: "original text"}, nil)
	_ = db.UpdateArticle(ctx, ArticleRow{ID: id, Title: "New", Content: "replacement text"}, nil)

	results, _ := db.Search(ctx, "original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search(ctx, "replacement", 10)
	if len(results) != 1 || results[0].Title != "New" {
		t.Errorf("FTS not updated: %+v", results)
	}
}
