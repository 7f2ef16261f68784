package api

import (
	"github.com/starford/mdimport/internal/index"
	"github.com/starford/mdimport/internal/models"
)

// Response is the envelope every API response is wrapped in. Code is 200 on
// success and mirrors the HTTP status otherwise.
type Response struct {
	Code    int    `json:"code" example:"200" validate:"required"`
	Message string `json:"message" example:"success" validate:"required"`
	Data    any    `json:"data"`
}

// ImportRecord is the normalized record type (aliased from the domain layer).
type ImportRecord = models.ImportRecord

// BatchRequest is the request body for POST /api/import/batch.
type BatchRequest = models.BatchRequest

// BatchResponse is returned when a batch has been accepted.
type BatchResponse = models.BatchResponse

// SingleRequest is the request body for POST /api/import/single.
type SingleRequest = models.SingleRequest

// ImportProgress is a task progress snapshot.
type ImportProgress = models.ImportProgress

// ArticleListResponse wraps a page of recent articles.
type ArticleListResponse struct {
	Articles []index.ArticleRow `json:"articles" validate:"required"`
	Total    int                `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}
