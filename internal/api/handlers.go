package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mdimport/internal/apperr"
	"github.com/starford/mdimport/internal/importer"
	"github.com/starford/mdimport/internal/models"
	"github.com/starford/mdimport/internal/storage"
)

const (
	maxJSONBytes          = 32 << 20
	defaultMaxUploadBytes = 50 << 20
	msgTaskNotFound       = "task not found"
)

// Handler holds API route handlers.
type Handler struct {
	svc            *Service
	maxUploadBytes int64
}

// NewHandler creates a new Handler. maxUploadBytes <= 0 selects 50 MB.
func NewHandler(svc *Service, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{svc: svc, maxUploadBytes: maxUploadBytes}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// taskError maps runner errors for task endpoints.
func taskError(w http.ResponseWriter, op, taskID string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, msgTaskNotFound)
	case errors.Is(err, apperr.ErrTaskFinished):
		writeError(w, http.StatusConflict, "task already finished")
	default:
		slog.Error(op+" failed", slog.String("task_id", taskID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Scan handles GET /api/import/scan.
//
//	@Summary		Scan a directory under the scan root and parse every Markdown file
//	@Tags			import
//	@Produce		json
//	@Param			directory	query		string	false	"Directory relative to the scan root"
//	@Success		200			{object}	Response{data=[]ImportRecord}
//	@Failure		400			{object}	Response
//	@Failure		404			{object}	Response
//	@Security		BearerAuth
//	@Router			/import/scan [get]
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("directory")
	records, err := h.svc.Scan(r.Context(), dir)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrPathTraversal), errors.Is(err, apperr.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, apperr.ErrNotFound):
			writeError(w, http.StatusNotFound, "directory not found")
		default:
			slog.Error("scan failed", slog.String("path", dir), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeOK(w, records)
}

// Upload handles POST /api/import/upload.
//
//	@Summary		Parse uploaded Markdown files
//	@Tags			import
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			files	formData	file	true	"Markdown files (.md)"
//	@Param			paths	formData	[]string	false	"Relative path of each file, in order"
//	@Success		200		{object}	Response{data=[]ImportRecord}
//	@Failure		400		{object}	Response
//	@Security		BearerAuth
//	@Router			/import/upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "files too large or invalid multipart")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "missing 'files' field in multipart form")
		return
	}

	paths := r.MultipartForm.Value["paths"]
	docs := make([]models.RawDocument, 0, len(headers))
	for i, fh := range headers {
		raw := rawFilename(fh)
		if i < len(paths) && paths[i] != "" {
			raw = paths[i]
		}
		rel, err := cleanUploadPath(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid file path "+raw)
			return
		}
		if !storage.IsMarkdown(rel) {
			slog.Debug("upload skipped non-markdown file", slog.String("file", rel))
			continue
		}
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read "+fh.Filename)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read "+fh.Filename)
			return
		}
		docs = append(docs, models.RawDocument{
			Name:    path.Base(rel),
			Path:    rel,
			Content: string(data),
			Size:    int64(len(data)),
		})
	}
	if len(docs) == 0 {
		writeError(w, http.StatusBadRequest, "no .md files uploaded")
		return
	}

	records, err := h.svc.Process(r.Context(), docs)
	if err != nil {
		writeError(w, http.StatusRequestTimeout, "request cancelled")
		return
	}
	writeOK(w, records)
}

// rawFilename returns the filename as sent by the client. FileHeader.Filename
// drops directories, which carry the category.
func rawFilename(fh *multipart.FileHeader) string {
	if _, params, err := mime.ParseMediaType(fh.Header.Get("Content-Disposition")); err == nil {
		if name := params["filename"]; name != "" {
			return name
		}
	}
	return fh.Filename
}

// cleanUploadPath normalises a client supplied relative path. Absolute paths
// and paths leaving the upload root are rejected.
func cleanUploadPath(p string) (string, error) {
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if p == "." || path.IsAbs(p) || p == ".." || strings.HasPrefix(p, "../") || (len(p) > 1 && p[1] == ':') {
		return "", apperr.ErrPathTraversal
	}
	return p, nil
}

// Validate handles POST /api/import/validate.
//
//	@Summary		Validate records and split them into valid and invalid sets
//	@Tags			import
//	@Accept			json
//	@Produce		json
//	@Param			body	body		[]ImportRecord	true	"Records"
//	@Success		200		{object}	Response{data=models.ValidationReport}
//	@Failure		400		{object}	Response
//	@Security		BearerAuth
//	@Router			/import/validate [post]
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var records []models.ImportRecord
	if !decodeJSON(w, r, &records) {
		return
	}
	writeOK(w, importer.Report(records))
}

// Summary handles POST /api/import/summary.
//
//	@Summary		Summarize records before submission
//	@Tags			import
//	@Accept			json
//	@Produce		json
//	@Param			body	body		[]ImportRecord	true	"Records"
//	@Success		200		{object}	Response{data=models.Summary}
//	@Failure		400		{object}	Response
//	@Security		BearerAuth
//	@Router			/import/summary [post]
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	var records []models.ImportRecord
	if !decodeJSON(w, r, &records) {
		return
	}
	writeOK(w, importer.GenerateSummary(records))
}

// Batch handles POST /api/import/batch.
//
//	@Summary		Start an asynchronous batch import
//	@Tags			import
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BatchRequest	true	"Files and import policy"
//	@Success		200		{object}	Response{data=BatchResponse}
//	@Failure		400		{object}	Response
//	@Security		BearerAuth
//	@Router			/import/batch [post]
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.svc.runner.Submit(r.Context(), req)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("submit batch failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "import service unavailable")
		return
	}
	writeOK(w, resp)
}

// Progress handles GET /api/import/progress/{taskId}.
//
//	@Summary		Get a task progress snapshot
//	@Tags			import
//	@Produce		json
//	@Param			taskId	path		string	true	"Task ID"
//	@Success		200		{object}	Response{data=ImportProgress}
//	@Failure		404		{object}	Response
//	@Security		BearerAuth
//	@Router			/import/progress/{taskId} [get]
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	p, err := h.svc.runner.Progress(r.Context(), taskID)
	if err != nil {
		taskError(w, "progress", taskID, err)
		return
	}
	writeOK(w, p)
}

// Results handles GET /api/import/results/{taskId}.
//
//	@Summary		Get per-file outcomes of a task
//	@Tags			import
//	@Produce		json
//	@Param			taskId	path		string	true	"Task ID"
//	@Success		200		{object}	Response{data=[]models.ImportResult}
//	@Failure		404		{object}	Response
//	@Security		BearerAuth
//	@Router			/import/results/{taskId} [get]
func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	results, err := h.svc.runner.Results(r.Context(), taskID)
	if err != nil {
		taskError(w, "results", taskID, err)
		return
	}
	writeOK(w, results)
}

// Cancel handles POST /api/import/cancel/{taskId}.
//
//	@Summary		Request cancellation of a running task
//	@Tags			import
//	@Produce		json
//	@Param			taskId	path		string	true	"Task ID"
//	@Success		200		{object}	Response
//	@Failure		404		{object}	Response
//	@Failure		409		{object}	Response
//	@Security		BearerAuth
//	@Router			/import/cancel/{taskId} [post]
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	if err := h.svc.runner.Cancel(r.Context(), taskID); err != nil {
		taskError(w, "cancel", taskID, err)
		return
	}
	writeOK(w, nil)
}

// Single handles POST /api/import/single.
//
//	@Summary		Import one record synchronously
//	@Tags			import
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SingleRequest	true	"Record and import policy"
//	@Success		200		{object}	Response{data=models.ImportResult}
//	@Failure		400		{object}	Response
//	@Security		BearerAuth
//	@Router			/import/single [post]
func (h *Handler) Single(w http.ResponseWriter, r *http.Request) {
	var req models.SingleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.runner.ImportOne(r.Context(), req.FileInfo, req.Config)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeOK(w, res)
}

// Articles handles GET /api/articles.
//
//	@Summary		Search imported articles or list the most recent ones
//	@Tags			articles
//	@Produce		json
//	@Param			q		query		string	false	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	Response{data=ArticleListResponse}
//	@Security		BearerAuth
//	@Router			/articles [get]
func (h *Handler) Articles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	data, err := h.svc.Articles(r.Context(), q, limit)
	if err != nil {
		slog.Error("articles failed", slog.String("query", q), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeOK(w, data)
}
