// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Ansuz tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/inbox"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/pipeline"
	"github.com/starford/ansuz/internal/recordservice"
)

const formatURI = "ansuz://record-format"

// Processor submits sources to the pipeline and exposes their jobs.
type Processor interface {
	Submit(ctx context.Context, path string) (*pipeline.Job, error)
	Jobs() pipeline.JobStore
}

// Server wraps the MCP server with Ansuz tools.
type Server struct {
	mcp     *server.MCPServer
	records *recordservice.Service
	proc    Processor
	inbox   *inbox.Inbox
}

// New creates a new MCP server with all Ansuz tools registered. in may be
// nil, which leaves upload_source unregistered.
func New(records *recordservice.Service, proc Processor, in *inbox.Inbox) *Server {
	s := &Server{records: records, proc: proc, inbox: in}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("process_document",
		mcp.WithDescription("Turn a PDF, Markdown or text file on the server into literature, "+
			"permanent and map records. Returns the job; set wait to block until it finishes."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the source file")),
		mcp.WithBoolean("wait", mcp.Description("Wait for the job to finish before returning")),
	), s.processDocument)

	s.mcp.AddTool(mcp.NewTool("get_job",
		mcp.WithDescription("Get the status, current stage and result of a processing job."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Job ID returned by process_document")),
	), s.getJob)

	s.mcp.AddTool(mcp.NewTool("search_records",
		mcp.WithDescription("Search records by full text, or by meaning when mode is semantic."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithString("mode", mcp.Description("text (default) or semantic"), mcp.Enum("text", "semantic")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchRecords)

	s.mcp.AddTool(mcp.NewTool("read_record",
		mcp.WithDescription("Read a record with its typed links and backlinks."),
		mcp.WithString("ref", mcp.Required(), mcp.Description("Record ID or vault path (e.g. 03-Permanent/concepts/Spacing-Effect.md)")),
	), s.readRecord)

	s.mcp.AddTool(mcp.NewTool("list_records",
		mcp.WithDescription("List records, optionally filtered by kind and domain."),
		mcp.WithString("kind", mcp.Description("literature, permanent or map"), mcp.Enum("literature", "permanent", "map")),
		mcp.WithString("domain", mcp.Description("Domain to filter by")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
	), s.listRecords)

	s.mcp.AddTool(mcp.NewTool("list_maps",
		mcp.WithDescription("List maps of content with their member counts."),
	), s.listMaps)

	s.mcp.AddTool(mcp.NewTool("get_record_format",
		mcp.WithDescription("Returns the Ansuz record format: frontmatter fields, link types and managed regions."),
	), s.getRecordFormat)

	if in != nil {
		s.mcp.AddTool(mcp.NewTool("upload_source",
			mcp.WithDescription("Download a source from an http(s) URL or a base64 data URI into the inbox "+
				"and submit it for processing. Supported: pdf, md, markdown, txt."),
			mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:<mime>;base64,<data> URI")),
			mcp.WithString("filename", mcp.Description("Optional file name; derived from the URL when empty")),
		), s.uploadSource)
	}

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Record Format",
			mcp.WithResourceDescription("Frontmatter schema and managed regions of Ansuz records."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRecordFormatResource,
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

func (s *Server) searchRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", 20)

	var results []index.SearchResult
	switch mode := req.GetString("mode", "text"); mode {
	case "text":
		results, err = s.records.Search(ctx, query, limit)
	case "semantic":
		if !s.records.SemanticAvailable() {
			return mcp.NewToolResultError("semantic search is not configured"), nil
		}
		results, err = s.records.Similar(ctx, query, limit)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown mode %q", mode)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no records found"), nil
	}
	return jsonResult(results)
}

func (s *Server) readRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("ref")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.records.Get(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", ref)), nil
	}
	return jsonResult(rec)
}

func (s *Server) listRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, total, err := s.records.List(ctx, index.RecordFilter{
		Kind:   req.GetString("kind", ""),
		Domain: req.GetString("domain", ""),
		Limit:  req.GetInt("limit", 50),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"records": rows, "total": total})
}

func (s *Server) listMaps(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	maps, err := s.records.Maps(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(maps) == 0 {
		return mcp.NewToolResultText("no maps yet"), nil
	}
	return jsonResult(maps)
}

func (s *Server) getRecordFormat(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RecordFormatContract), nil
}

func (s *Server) readRecordFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     RecordFormatContract,
		},
	}, nil
}
