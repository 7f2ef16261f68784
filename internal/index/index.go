package index

import (
	"context"
)

// ArticleStore defines the article store operations used by the ingestion
// runner. Consumers should depend on this interface rather than the concrete
// *DB type to facilitate testing with fakes.
type ArticleStore interface {
	FindArticleByTitle(ctx context.Context, title string) (*ArticleRow, error)
	CreateArticle(ctx context.Context, a ArticleRow, tagIDs []int64) (int64, error)
	UpdateArticle(ctx context.Context, a ArticleRow, tagIDs []int64) error
	ReplaceArticle(ctx context.Context, oldID int64, a ArticleRow, tagIDs []int64) (int64, error)
	CategoryID(ctx context.Context, name string) (int64, error)
	EnsureCategory(ctx context.Context, name string) (int64, error)
	TagID(ctx context.Context, name string) (int64, error)
	EnsureTag(ctx context.Context, name string) (int64, error)
}

// Verify *DB satisfies ArticleStore at compile time.
var _ ArticleStore = (*DB)(nil)
