package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/inbox"
	"github.com/starford/ansuz/internal/recordservice"
)

// Deps are the collaborators of the API router.
type Deps struct {
	Records   *recordservice.Service
	Processor Processor
	// Inbox receives uploaded sources; nil disables POST /sources.
	Inbox *inbox.Inbox
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler

	AuthEnabled bool
	Token       string
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(d Deps) chi.Router {
	h := NewHandler(d.Records)
	jh := NewJobHandler(d.Processor, d.Inbox)

	r := chi.NewRouter()
	if d.AuthEnabled {
		r.Use(RequireToken(d.Token))
	}

	// Pipeline.
	r.Post("/process", jh.Process)
	r.Post("/sources", jh.UploadSource)
	r.Get("/jobs", jh.ListJobs)
	r.Get("/jobs/{id}", jh.GetJob)

	// Records.
	r.Get("/records", h.ListRecords)
	r.Get("/records/*", h.GetRecord)
	r.Get("/maps", h.Maps)

	// Search.
	r.Get("/search", h.Search)

	// Graph.
	r.Get("/graph", h.Graph)

	if d.Events != nil {
		r.Get("/events", d.Events.ServeHTTP)
	}

	return r
}
