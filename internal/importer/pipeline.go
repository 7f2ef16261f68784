// Package importer turns raw Markdown documents into import records and
// prepares them for submission.
package importer

import (
	"context"
	"sort"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mdimport/internal/models"
	"github.com/starford/mdimport/internal/parser"
)

// ProcessDocument runs one document through frontmatter extraction and
// field inference. It never fails; bad input yields a record that later
// fails validation.
func ProcessDocument(doc models.RawDocument) models.ImportRecord {
	fm, body := parser.ParseFrontmatter(doc.Content)
	times := parser.ExtractTimeInfo(fm)

	return models.ImportRecord{
		ID:          doc.Path + "_" + ulid.Make().String(),
		Name:        doc.Name,
		Path:        doc.Path,
		Size:        doc.Size,
		Content:     body,
		Frontmatter: fm,
		Title:       parser.ExtractTitle(fm, body, doc.Name),
		Category:    parser.ExtractCategory(doc.Path),
		Tags:        parser.ExtractTags(fm, body),
		CreateTime:  times.CreateTime,
		UpdateTime:  times.UpdateTime,
		OriginalURL: parser.ExtractOriginalURL(fm),
		Selected:    true,
		Status:      models.RecordPending,
	}
}

// ProcessDocuments maps documents to records, preserving order.
func ProcessDocuments(docs []models.RawDocument) []models.ImportRecord {
	out := make([]models.ImportRecord, len(docs))
	for i, doc := range docs {
		out[i] = ProcessDocument(doc)
	}
	return out
}

// ProcessDocumentsParallel is ProcessDocuments spread over at most workers
// goroutines. Order is preserved. It only fails when ctx is done.
func ProcessDocumentsParallel(ctx context.Context, docs []models.RawDocument, workers int) ([]models.ImportRecord, error) {
	if workers <= 1 {
		return ProcessDocuments(docs), nil
	}
	out := make([]models.ImportRecord, len(docs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range docs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			out[i] = ProcessDocument(docs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateSummary aggregates the record list. Categories and tags are
// collected from selected records only, sorted.
func GenerateSummary(records []models.ImportRecord) models.Summary {
	categories := make(map[string]struct{})
	tags := make(map[string]struct{})
	selected := 0
	for _, r := range records {
		if !r.Selected {
			continue
		}
		selected++
		categories[r.Category] = struct{}{}
		for _, t := range r.Tags {
			tags[t] = struct{}{}
		}
	}
	return models.Summary{
		TotalFiles:        len(records),
		SelectedFiles:     selected,
		Categories:        sortedKeys(categories),
		Tags:              sortedKeys(tags),
		EstimatedArticles: selected,
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Selected returns the records marked for submission.
func Selected(records []models.ImportRecord) []models.ImportRecord {
	out := make([]models.ImportRecord, 0, len(records))
	for _, r := range records {
		if r.Selected {
			out = append(out, r)
		}
	}
	return out
}

// DeselectInvalid clears Selected on every record that fails validation and
// returns how many were deselected.
func DeselectInvalid(records []models.ImportRecord) int {
	n := 0
	for i := range records {
		if !records[i].Selected {
			continue
		}
		if res := Validate(records[i]); !res.Valid {
			records[i].Selected = false
			records[i].Error = res.Errors[0]
			n++
		}
	}
	return n
}

// ApplyValidation deselects the records a validation report lists as
// invalid and copies its error onto them. It returns how many were
// deselected.
func ApplyValidation(records []models.ImportRecord, rep models.ValidationReport) int {
	invalid := make(map[string]string, len(rep.InvalidFiles))
	for _, r := range rep.InvalidFiles {
		invalid[r.ID] = r.Error
	}
	n := 0
	for i := range records {
		msg, ok := invalid[records[i].ID]
		if !ok || !records[i].Selected {
			continue
		}
		records[i].Selected = false
		records[i].Error = msg
		n++
	}
	return n
}

// NewBatchRequest builds the submission payload from the selected records.
func NewBatchRequest(records []models.ImportRecord, cfg models.ImportConfig) models.BatchRequest {
	return models.BatchRequest{Files: Selected(records), Config: cfg}
}

// ApplyResults copies per-file outcomes back onto the matching records.
// Records are matched by ID. It returns the number of records updated.
func ApplyResults(records []models.ImportRecord, results []models.ImportResult) int {
	byID := make(map[string]models.ImportResult, len(results))
	for _, res := range results {
		if res.RecordID != "" {
			byID[res.RecordID] = res
		}
	}
	n := 0
	for i := range records {
		res, ok := byID[records[i].ID]
		if !ok {
			continue
		}
		records[i].Status = res.Status
		records[i].Error = res.Message
		n++
	}
	return n
}
