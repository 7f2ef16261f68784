// Package importclient is an HTTP client for the ingestion service API.
package importclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/mdimport/internal/models"
	"github.com/starford/mdimport/internal/progress"
)

// Sentinel errors.
var (
	ErrUnauthorized = errors.New("importclient: unauthorized")
	ErrTaskNotFound = errors.New("importclient: task not found")
)

// APIError is a non-success envelope returned by the service.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("importclient: api error %d (http %d): %s", e.Code, e.Status, e.Message)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to the /api/import endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

var _ progress.Service = (*Client)(nil)

// New creates a client for the service at baseURL (e.g. http://localhost:8080).
// An empty token sends no Authorization header.
func New(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		logger:     logger.With(slog.String("component", "import_client")),
	}
}

// Submit starts a batch import task.
func (c *Client) Submit(ctx context.Context, req models.BatchRequest) (*models.BatchResponse, error) {
	var out models.BatchResponse
	if err := c.do(ctx, http.MethodPost, "/api/import/batch", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Progress fetches the current snapshot of a task.
func (c *Client) Progress(ctx context.Context, taskID string) (*models.ImportProgress, error) {
	var out models.ImportProgress
	if err := c.do(ctx, http.MethodGet, "/api/import/progress/"+url.PathEscape(taskID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel requests cancellation of a task.
func (c *Client) Cancel(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/api/import/cancel/"+url.PathEscape(taskID), nil, nil)
}

// Results fetches per-file outcomes of a task.
func (c *Client) Results(ctx context.Context, taskID string) ([]models.ImportResult, error) {
	var out []models.ImportResult
	if err := c.do(ctx, http.MethodGet, "/api/import/results/"+url.PathEscape(taskID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate asks the service to validate records.
func (c *Client) Validate(ctx context.Context, records []models.ImportRecord) (*models.ValidationReport, error) {
	var out models.ValidationReport
	if err := c.do(ctx, http.MethodPost, "/api/import/validate", records, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("importclient: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("importclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("importclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("importclient: decode %s (http %d): %w", path, resp.StatusCode, err)
	}
	if env.Code != http.StatusOK {
		if env.Code == http.StatusNotFound || resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, env.Message)
		}
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("importclient: decode data of %s: %w", path, err)
	}
	c.logger.Debug("request done", slog.String("method", method), slog.String("path", path))
	return nil
}
