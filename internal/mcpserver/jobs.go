package mcpserver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ansuz/internal/extractor"
	"github.com/starford/ansuz/internal/inbox"
	"github.com/starford/ansuz/internal/pipeline"
)

var (
	pollInterval = 250 * time.Millisecond
	inboxFetch   = inbox.Fetch
)

func (s *Server) processDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return mcp.NewToolResultError(fmt.Sprintf("not a readable file: %s", path)), nil
	}
	if !extractor.Supported(filepath.Ext(path)) {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported file type %q (pdf, md, markdown, txt)", filepath.Ext(path))), nil
	}
	return s.submit(ctx, path, req.GetBool("wait", false))
}

func (s *Server) getJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	job, err := s.proc.Jobs().Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("job not found: %s", id)), nil
	}
	return jsonResult(job)
}

func (s *Server) uploadSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, name, err := inboxFetch(ctx, rawURL)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if v := req.GetString("filename", ""); v != "" {
		name = v
	}
	saved, err := s.inbox.Save(name, bytes.NewReader(data))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.submit(ctx, saved, false)
}

func (s *Server) submit(ctx context.Context, path string, wait bool) (*mcp.CallToolResult, error) {
	job, err := s.proc.Submit(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if wait {
		if job, err = s.await(ctx, job.ID); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	return jsonResult(job)
}

// await polls the job store until the job is finished or ctx is done.
func (s *Server) await(ctx context.Context, id string) (*pipeline.Job, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		job, err := s.proc.Jobs().Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Finished() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for job %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}
