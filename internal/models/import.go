// Package models defines the domain types shared by the import pipeline,
// the ingestion runner, and their transports.
package models

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// RawDocument is one input file as supplied by a scan or an upload.
type RawDocument struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Content string `json:"content"`
	Size    int64  `json:"size"`
}

// RecordStatus tracks an ImportRecord through submission.
type RecordStatus string

const (
	RecordPending RecordStatus = "pending"
	RecordSuccess RecordStatus = "success"
	RecordError   RecordStatus = "error"
	RecordSkipped RecordStatus = "skipped"
)

// ImportRecord is the normalized representation of one source document.
//
// Frontmatter values are either string or []string when produced by the
// parser; after a JSON round trip lists arrive as []any.
type ImportRecord struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Path        string         `json:"path"`
	Size        int64          `json:"size"`
	Content     string         `json:"content"`
	Frontmatter map[string]any `json:"frontmatter"`
	Title       string         `json:"title"`
	Category    string         `json:"category"`
	Tags        []string       `json:"tags"`
	CreateTime  *string        `json:"createTime,omitempty"`
	UpdateTime  *string        `json:"updateTime,omitempty"`
	OriginalURL *string        `json:"originalUrl,omitempty"`
	Selected    bool           `json:"selected"`
	Status      RecordStatus   `json:"status"`
	Error       string         `json:"error,omitempty"`
}

// ImportMode decides what happens when an article with the same title exists.
type ImportMode string

const (
	ModeSkip      ImportMode = "skip"
	ModeOverwrite ImportMode = "overwrite"
	ModeUpdate    ImportMode = "update"
)

// DefaultBatchSize is used when ImportConfig.BatchSize is zero.
const DefaultBatchSize = 10

// ImportConfig is the caller-supplied policy for one batch submission.
type ImportConfig struct {
	Mode              ImportMode       `json:"mode" yaml:"mode"`
	CreateCategories  bool             `json:"createCategories" yaml:"create_categories"`
	CreateTags        bool             `json:"createTags" yaml:"create_tags"`
	DefaultStatus     int              `json:"defaultStatus" yaml:"default_status"`
	CategoryMapping   map[string]int64 `json:"categoryMapping,omitempty" yaml:"category_mapping"`
	TagMapping        map[string]int64 `json:"tagMapping,omitempty" yaml:"tag_mapping"`
	PreserveTime      bool             `json:"preserveTime" yaml:"preserve_time"`
	BatchSize         int              `json:"batchSize" yaml:"batch_size"`
	DefaultCategoryID *int64           `json:"defaultCategoryId,omitempty" yaml:"default_category_id"`
}

// DefaultImportConfig mirrors the defaults of the upload form.
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		Mode:             ModeSkip,
		CreateCategories: true,
		CreateTags:       true,
		DefaultStatus:    1,
		BatchSize:        DefaultBatchSize,
	}
}

// Validate validates the import configuration.
func (c ImportConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Mode, validation.Required, validation.In(ModeSkip, ModeOverwrite, ModeUpdate)),
		validation.Field(&c.DefaultStatus, validation.In(0, 1)),
		validation.Field(&c.BatchSize, validation.Min(0), validation.Max(500)),
	)
}

// ProgressStatus is the lifecycle state of an import task.
type ProgressStatus string

const (
	StatusIdle      ProgressStatus = "idle"
	StatusScanning  ProgressStatus = "scanning"
	StatusImporting ProgressStatus = "importing"
	StatusCompleted ProgressStatus = "completed"
	StatusCancelled ProgressStatus = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s ProgressStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// FileError names a file that was skipped or failed during a task.
type FileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// ImportProgress is a snapshot of an in-flight or finished task.
type ImportProgress struct {
	Total       int            `json:"total"`
	Processed   int            `json:"processed"`
	Success     int            `json:"success"`
	Failed      int            `json:"failed"`
	Skipped     int            `json:"skipped"`
	CurrentFile string         `json:"currentFile,omitempty"`
	Status      ProgressStatus `json:"status"`
	Errors      []FileError    `json:"errors"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (p ImportProgress) Clone() ImportProgress {
	out := p
	out.Errors = make([]FileError, len(p.Errors))
	copy(out.Errors, p.Errors)
	return out
}

// ImportResult is the outcome of importing one file.
type ImportResult struct {
	RecordID  string       `json:"recordId,omitempty"`
	File      string       `json:"file"`
	Title     string       `json:"title"`
	ArticleID int64        `json:"articleId,omitempty"`
	Status    RecordStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
}

// Summary aggregates a record list for display before submission.
type Summary struct {
	TotalFiles        int      `json:"totalFiles"`
	SelectedFiles     int      `json:"selectedFiles"`
	Categories        []string `json:"categories"`
	Tags              []string `json:"tags"`
	EstimatedArticles int      `json:"estimatedArticles"`
}

// ValidationReport is returned by the validate endpoint.
type ValidationReport struct {
	Total        int            `json:"total"`
	Valid        int            `json:"valid"`
	Invalid      int            `json:"invalid"`
	ValidFiles   []ImportRecord `json:"validFiles"`
	InvalidFiles []ImportRecord `json:"invalidFiles"`
}

// BatchRequest is the submission payload for the ingestion service.
type BatchRequest struct {
	Files  []ImportRecord `json:"files"`
	Config ImportConfig   `json:"config"`
}

// BatchResponse is returned once a task has been accepted.
type BatchResponse struct {
	TaskID   string         `json:"taskId"`
	Progress ImportProgress `json:"progress"`
}

// SingleRequest imports one record synchronously.
type SingleRequest struct {
	FileInfo ImportRecord `json:"fileInfo"`
	Config   ImportConfig `json:"config"`
}
