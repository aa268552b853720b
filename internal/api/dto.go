package api

import (
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/pipeline"
	"github.com/starford/ansuz/internal/recordservice"
)

// ProcessRequest is the request body for submitting a source.
type ProcessRequest struct {
	Path string `json:"path" example:"/inbox/paper.pdf" validate:"required"`
}

// JobResponse is a submitted or finished job.
type JobResponse = pipeline.Job

// JobListResponse wraps job listings.
type JobListResponse struct {
	Jobs []*pipeline.Job `json:"jobs" validate:"required"`
}

// RecordDetail is the full record response type (aliased from the domain layer).
type RecordDetail = recordservice.RecordDetail

// RecordListItem is a lightweight item in a list response.
type RecordListItem = recordservice.RecordListItem

// RecordListResponse wraps paginated record listings.
type RecordListResponse struct {
	Records []RecordListItem `json:"records" validate:"required"`
	Total   int              `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Mode    string               `json:"mode" example:"text"`
	Results []index.SearchResult `json:"results" validate:"required"`
}

// MapListResponse wraps map summaries.
type MapListResponse struct {
	Maps []recordservice.MapSummary `json:"maps" validate:"required"`
}

// GraphResponse wraps the knowledge graph.
type GraphResponse struct {
	Nodes []index.GraphNode `json:"nodes" validate:"required"`
	Links []index.GraphLink `json:"links" validate:"required"`
}

// SourceUploadResponse is returned after a source is stored and submitted.
type SourceUploadResponse struct {
	Filename string        `json:"filename" example:"paper.pdf" validate:"required"`
	Size     int64         `json:"size" example:"12345" validate:"required"`
	Job      *pipeline.Job `json:"job" validate:"required"`
}
