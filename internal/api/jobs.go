package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/extractor"
	"github.com/starford/ansuz/internal/inbox"
	"github.com/starford/ansuz/internal/pipeline"
)

// Processor submits sources to the pipeline and exposes their jobs.
type Processor interface {
	Submit(ctx context.Context, path string) (*pipeline.Job, error)
	Jobs() pipeline.JobStore
}

// JobHandler holds the write-side route handlers.
type JobHandler struct {
	proc  Processor
	inbox *inbox.Inbox
}

// NewJobHandler creates a JobHandler. in may be nil, which disables uploads.
func NewJobHandler(proc Processor, in *inbox.Inbox) *JobHandler {
	return &JobHandler{proc: proc, inbox: in}
}

// Process handles POST /api/process.
//
//	@Summary		Submit a source file on the server for processing
//	@Tags			jobs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ProcessRequest	true	"Source to process"
//	@Success		202		{object}	JobResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/process [post]
func (h *JobHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Path == "" {
		badRequest(w, "path is required")
		return
	}
	info, err := os.Stat(req.Path)
	if err != nil || info.IsDir() {
		badRequest(w, "path does not name a readable file")
		return
	}
	if !extractor.Supported(filepath.Ext(req.Path)) {
		badRequest(w, "unsupported file type (pdf, md, markdown, txt)")
		return
	}
	h.submit(w, r, req.Path, func(job *pipeline.Job) any { return job })
}

// UploadSource handles POST /api/sources (multipart/form-data, field "file").
//
//	@Summary		Upload a source document and submit it for processing
//	@Tags			jobs
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Source document"
//	@Success		202		{object}	SourceUploadResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources [post]
func (h *JobHandler) UploadSource(w http.ResponseWriter, r *http.Request) {
	if h.inbox == nil {
		respond(w, http.StatusNotFound, errorBody("uploads are disabled"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, inbox.MaxSourceSize+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		badRequest(w, "file too large or invalid multipart")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "missing 'file' field in multipart form")
		return
	}
	defer file.Close()

	saved, err := h.inbox.Save(header.Filename, file)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, inbox.ErrUnsupported) || errors.Is(err, inbox.ErrTooLarge) {
			status = http.StatusBadRequest
		}
		respond(w, status, errorBody(err.Error()))
		return
	}
	h.submit(w, r, saved, func(job *pipeline.Job) any {
		return SourceUploadResponse{Filename: filepath.Base(saved), Size: header.Size, Job: job}
	})
}

func (h *JobHandler) submit(w http.ResponseWriter, r *http.Request, path string, body func(*pipeline.Job) any) {
	job, err := h.proc.Submit(r.Context(), path)
	if err != nil {
		fail(w, r, "submit", err)
		return
	}
	w.Header().Set("Location", "/api/jobs/"+job.ID)
	respond(w, http.StatusAccepted, body(job))
}

// ListJobs handles GET /api/jobs.
//
//	@Summary		List recent jobs, newest first
//	@Tags			jobs
//	@Produce		json
//	@Success		200	{object}	JobListResponse
//	@Security		BearerAuth
//	@Router			/jobs [get]
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.proc.Jobs().List(r.Context())
	if err != nil {
		fail(w, r, "list jobs", err)
		return
	}
	if jobs == nil {
		jobs = []*pipeline.Job{}
	}
	respond(w, http.StatusOK, JobListResponse{Jobs: jobs})
}

// GetJob handles GET /api/jobs/{id}.
//
//	@Summary		Get a job with its result once finished
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"
//	@Success		200	{object}	JobResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/jobs/{id} [get]
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.proc.Jobs().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, "get job", err)
		return
	}
	respond(w, http.StatusOK, job)
}
