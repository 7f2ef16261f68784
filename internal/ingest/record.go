package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/mdimport/internal/apperr"
	"github.com/starford/mdimport/internal/checksum"
	"github.com/starford/mdimport/internal/importer"
	"github.com/starford/mdimport/internal/index"
	"github.com/starford/mdimport/internal/models"
	"github.com/starford/mdimport/internal/parser"
)

// MsgAlreadyExists is reported for files skipped in skip mode.
const MsgAlreadyExists = "article already exists"

// Frontmatter time layouts accepted when preserving timestamps.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

func fileLabel(rec models.ImportRecord) string {
	if rec.Name != "" {
		return rec.Name
	}
	return rec.Path
}

// importRecord writes one record to the store according to cfg. Failures
// are reported in the result rather than returned.
func (r *Runner) importRecord(ctx context.Context, rec models.ImportRecord, cfg models.ImportConfig) models.ImportResult {
	res := models.ImportResult{RecordID: rec.ID, File: fileLabel(rec), Title: rec.Title}

	if v := importer.Validate(rec); !v.Valid {
		res.Status = models.RecordSkipped
		res.Message = v.Errors[0]
		return res
	}

	fail := func(err error) models.ImportResult {
		r.log.Warn("import file failed", "file", res.File, "err", err)
		res.Status = models.RecordError
		res.Message = err.Error()
		return res
	}

	existing, err := r.store.FindArticleByTitle(ctx, rec.Title)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return fail(err)
	}
	if existing != nil && cfg.Mode == models.ModeSkip {
		res.Status = models.RecordSkipped
		res.Message = MsgAlreadyExists
		return res
	}

	categoryID, err := r.resolveCategory(ctx, rec.Category, cfg)
	if err != nil {
		return fail(err)
	}
	tagIDs, err := r.resolveTags(ctx, rec.Tags, cfg)
	if err != nil {
		return fail(err)
	}

	row := index.ArticleRow{
		Title:      rec.Title,
		Content:    rec.Content,
		CategoryID: categoryID,
		Status:     cfg.DefaultStatus,
		SourcePath: rec.Path,
		Checksum:   checksum.String(rec.Content),
	}
	if rec.OriginalURL != nil {
		row.SourceURL = *rec.OriginalURL
	}
	if cfg.PreserveTime {
		row.CreatedAt = r.parseTime(rec.CreateTime, res.File)
		row.UpdatedAt = r.parseTime(rec.UpdateTime, res.File)
	}

	switch {
	case existing != nil && cfg.Mode == models.ModeUpdate:
		row.ID = existing.ID
		if err := r.store.UpdateArticle(ctx, row, tagIDs); err != nil {
			return fail(err)
		}
		res.ArticleID = existing.ID
	case existing != nil && cfg.Mode == models.ModeOverwrite:
		id, err := r.store.ReplaceArticle(ctx, existing.ID, row, tagIDs)
		if err != nil {
			return fail(err)
		}
		res.ArticleID = id
	default:
		id, err := r.store.CreateArticle(ctx, row, tagIDs)
		if err != nil {
			return fail(err)
		}
		res.ArticleID = id
	}
	res.Status = models.RecordSuccess
	return res
}

// resolveCategory maps a category name to an id: explicit mapping, then the
// store (creating it if allowed), then the configured default.
func (r *Runner) resolveCategory(ctx context.Context, name string, cfg models.ImportConfig) (*int64, error) {
	name = strings.TrimSpace(name)
	if id, ok := cfg.CategoryMapping[name]; ok {
		return &id, nil
	}
	if name != "" {
		create := cfg.CreateCategories && name != parser.Uncategorized
		id, err := r.categories.resolve(ctx, name, create)
		if err == nil {
			return &id, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("ingest: category %q: %w", name, err)
		}
	}
	return cfg.DefaultCategoryID, nil
}

// resolveTags maps tag names to ids. Unknown tags are dropped unless
// creation is allowed.
func (r *Runner) resolveTags(ctx context.Context, names []string, cfg models.ImportConfig) ([]int64, error) {
	seen := make(map[int64]struct{}, len(names))
	out := make([]int64, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, ok := cfg.TagMapping[name]
		if !ok {
			var err error
			id, err = r.tags.resolve(ctx, name, cfg.CreateTags)
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("ingest: tag %q: %w", name, err)
			}
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// parseTime returns the zero time for absent or unparseable values, which
// lets the store stamp the current time.
func (r *Runner) parseTime(v *string, file string) time.Time {
	if v == nil || strings.TrimSpace(*v) == "" {
		return time.Time{}
	}
	s := strings.TrimSpace(*v)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.UTC()
		}
	}
	r.log.Warn("unparseable timestamp, using now", "file", file, "value", s)
	return time.Time{}
}
