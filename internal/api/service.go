package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"runtime"

	"github.com/starford/mdimport/internal/apperr"
	"github.com/starford/mdimport/internal/importer"
	"github.com/starford/mdimport/internal/index"
	"github.com/starford/mdimport/internal/ingest"
	"github.com/starford/mdimport/internal/models"
	"github.com/starford/mdimport/internal/storage"
)

// Service coordinates the scan source, the ingestion runner and the article
// index for the API layer.
type Service struct {
	source  storage.Provider
	runner  *ingest.Runner
	db      *index.DB
	workers int
}

// NewService creates a new API service. source may be nil, which disables
// directory scans.
func NewService(source storage.Provider, runner *ingest.Runner, db *index.DB) *Service {
	return &Service{source: source, runner: runner, db: db, workers: runtime.GOMAXPROCS(0)}
}

// Scan reads every Markdown file under dir and runs the pipeline over them.
func (s *Service) Scan(ctx context.Context, dir string) ([]models.ImportRecord, error) {
	if s.source == nil {
		return nil, fmt.Errorf("api: scan root not configured: %w", apperr.ErrInvalidInput)
	}
	docs, err := s.source.Scan(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("api: directory %q: %w", dir, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return importer.ProcessDocumentsParallel(ctx, docs, s.workers)
}

// Process runs already-read documents through the pipeline.
func (s *Service) Process(ctx context.Context, docs []models.RawDocument) ([]models.ImportRecord, error) {
	return importer.ProcessDocumentsParallel(ctx, docs, s.workers)
}

// Articles searches the index when query is set and lists recent articles
// otherwise.
func (s *Service) Articles(ctx context.Context, query string, limit int) (any, error) {
	if query != "" {
		results, err := s.db.Search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		return SearchResponse{Results: results}, nil
	}
	items, total, err := s.db.ListArticles(ctx, limit, 0)
	if err != nil {
		return nil, err
	}
	return ArticleListResponse{Articles: items, Total: total}, nil
}
