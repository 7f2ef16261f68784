package importer

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mdimport/internal/models"
)

// Limits checked by Validate, counted in characters.
const (
	MaxTitleLength   = 200
	MaxContentLength = 100000
)

// Validation messages in check order.
const (
	MsgMissingTitle   = "missing title"
	MsgEmptyContent   = "empty content"
	MsgTitleTooLong   = "title too long"
	MsgContentTooLong = "content too long"
)

// ValidationResult reports whether a record can be imported.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

type check struct {
	value string
	rule  validation.Rule
	msg   string
}

// Validate runs every check against the record and collects the failures
// in a fixed order. Only the first message is shown in compact views.
func Validate(r models.ImportRecord) ValidationResult {
	checks := []check{
		{strings.TrimSpace(r.Title), validation.Required, MsgMissingTitle},
		{strings.TrimSpace(r.Content), validation.Required, MsgEmptyContent},
		{r.Title, validation.RuneLength(0, MaxTitleLength), MsgTitleTooLong},
		{r.Content, validation.RuneLength(0, MaxContentLength), MsgContentTooLong},
	}

	errs := []string{}
	for _, c := range checks {
		if err := validation.Validate(c.value, c.rule); err != nil {
			errs = append(errs, c.msg)
		}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// Report splits records into valid and invalid sets.
func Report(records []models.ImportRecord) models.ValidationReport {
	rep := models.ValidationReport{
		Total:        len(records),
		ValidFiles:   []models.ImportRecord{},
		InvalidFiles: []models.ImportRecord{},
	}
	for _, r := range records {
		res := Validate(r)
		if res.Valid {
			rep.ValidFiles = append(rep.ValidFiles, r)
			continue
		}
		r.Error = strings.Join(res.Errors, "; ")
		rep.InvalidFiles = append(rep.InvalidFiles, r)
	}
	rep.Valid = len(rep.ValidFiles)
	rep.Invalid = len(rep.InvalidFiles)
	return rep
}
