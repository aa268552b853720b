package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/recordservice"
)

// Handler holds the read-side route handlers.
type Handler struct {
	svc *recordservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *recordservice.Service) *Handler {
	return &Handler{svc: svc}
}

// recordRef extracts the record ID or vault path from the URL. Supports
// encoded slashes from OpenAPI clients (e.g. 03-Permanent%2Fnote.md).
func recordRef(r *http.Request) string {
	raw := chi.URLParam(r, "*")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListRecords handles GET /api/records.
//
//	@Summary		List records with optional pagination and filtering
//	@Tags			records
//	@Produce		json
//	@Param			kind	query		string	false	"Record kind"	Enums(literature, permanent, map)
//	@Param			domain	query		string	false	"Filter by domain"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	RecordListResponse
//	@Security		BearerAuth
//	@Router			/records [get]
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.List(r.Context(), index.RecordFilter{
		Kind:   q.Get("kind"),
		Domain: q.Get("domain"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		fail(w, r, "list records", err)
		return
	}
	respond(w, http.StatusOK, RecordListResponse{Records: items, Total: total})
}

// GetRecord handles GET /api/records/*.
//
//	@Summary		Get a single record by ID or vault path
//	@Tags			records
//	@Produce		json
//	@Param			ref	path		string	true	"Record ID or path"
//	@Success		200	{object}	RecordDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{ref} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	ref := recordRef(r)
	if ref == "" {
		badRequest(w, "record id is required")
		return
	}
	rec, err := h.svc.Get(r.Context(), ref)
	if err != nil {
		fail(w, r, "get record", err)
		return
	}
	respond(w, http.StatusOK, rec)
}

// Search handles GET /api/search.
//
//	@Summary		Search records by text or by meaning
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			mode	query		string	false	"Search mode"	Enums(text, semantic)
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		badRequest(w, "query parameter 'q' is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "text"
	}

	var (
		results []index.SearchResult
		err     error
	)
	switch mode {
	case "text":
		results, err = h.svc.Search(r.Context(), q, limit)
	case "semantic":
		if !h.svc.SemanticAvailable() {
			badRequest(w, "semantic search is not configured")
			return
		}
		results, err = h.svc.Similar(r.Context(), q, limit)
	default:
		badRequest(w, "mode must be 'text' or 'semantic'")
		return
	}
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		respond(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	respond(w, http.StatusOK, SearchResponse{Mode: mode, Results: results})
}

// Maps handles GET /api/maps.
//
//	@Summary		List maps of content with member counts
//	@Tags			maps
//	@Produce		json
//	@Success		200	{object}	MapListResponse
//	@Security		BearerAuth
//	@Router			/maps [get]
func (h *Handler) Maps(w http.ResponseWriter, r *http.Request) {
	maps, err := h.svc.Maps(r.Context())
	if err != nil {
		fail(w, r, "list maps", err)
		return
	}
	respond(w, http.StatusOK, MapListResponse{Maps: maps})
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the knowledge graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, links, err := h.svc.Graph(r.Context())
	if err != nil {
		fail(w, r, "graph", err)
		return
	}
	respond(w, http.StatusOK, GraphResponse{Nodes: nodes, Links: links})
}
