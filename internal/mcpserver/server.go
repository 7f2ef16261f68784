// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the import pipeline for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"path"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mdimport/internal/importer"
	"github.com/starford/mdimport/internal/index"
	"github.com/starford/mdimport/internal/models"
	"github.com/starford/mdimport/internal/storage"
)

const contractURI = "mdimport://contract"

// Searcher finds imported articles.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error)
}

// Server wraps the MCP server with import tools.
type Server struct {
	mcp    *server.MCPServer
	source storage.Provider
	db     Searcher
}

// Preview is the result of preview_document.
type Preview struct {
	Record     models.ImportRecord      `json:"record"`
	Validation importer.ValidationResult `json:"validation"`
}

// ScanReport is the result of scan_directory.
type ScanReport struct {
	Summary      models.Summary        `json:"summary"`
	InvalidFiles []models.ImportRecord `json:"invalidFiles"`
}

// New creates a new MCP server with all tools registered. source may be nil,
// in which case scan_directory reports an error.
func New(source storage.Provider, db Searcher) *Server {
	s := &Server{source: source, db: db}

	s.mcp = server.NewMCPServer(
		"mdimport",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("preview_document",
		mcp.WithDescription("Show how one Markdown document would be imported: inferred title, "+
			"category, tags, timestamps and validation errors."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Raw Markdown including any frontmatter")),
		mcp.WithString("path", mcp.Description("Relative path used for category and title fallback (e.g. backend/go.md)")),
	), s.previewDocument)

	s.mcp.AddTool(mcp.NewTool("scan_directory",
		mcp.WithDescription("Scan a directory under the scan root and summarise what an import would create."),
		mcp.WithString("directory", mcp.Description("Directory relative to the scan root (empty for all)")),
	), s.scanDirectory)

	s.mcp.AddTool(mcp.NewTool("search_articles",
		mcp.WithDescription("Full-text search through imported articles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchArticles)

	s.mcp.AddTool(mcp.NewTool("get_import_contract",
		mcp.WithDescription("Returns the rules used to turn Markdown files into articles."),
	), s.getImportContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Import Contract",
			mcp.WithResourceDescription("How frontmatter and body are mapped to article fields."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) previewDocument(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p := "untitled.md"
	if v, err := req.RequireString("path"); err == nil && v != "" {
		p = v
	}

	rec := importer.ProcessDocument(models.RawDocument{
		Name:    path.Base(p),
		Path:    p,
		Content: content,
		Size:    int64(len(content)),
	})
	rec.ID = uuid.NewString()
	return jsonResult(Preview{Record: rec, Validation: importer.Validate(rec)})
}

func (s *Server) scanDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.source == nil {
		return mcp.NewToolResultError("scan root is not configured"), nil
	}
	dir := ""
	if v, err := req.RequireString("directory"); err == nil {
		dir = v
	}
	docs, err := s.source.Scan(dir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	records, err := importer.ProcessDocumentsParallel(ctx, docs, 4)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	importer.DeselectInvalid(records)

	report := ScanReport{Summary: importer.GenerateSummary(records), InvalidFiles: []models.ImportRecord{}}
	for _, r := range records {
		if !r.Selected {
			r.Content = ""
			report.InvalidFiles = append(report.InvalidFiles, r)
		}
	}
	return jsonResult(report)
}

func (s *Server) searchArticles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.db.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no articles found"), nil
	}
	return jsonResult(results)
}

func (s *Server) getImportContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ImportContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     ImportContract,
		},
	}, nil
}
