package internal

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/ansuz/internal/api"
)

// newHTTPHandler mounts health checks, metrics and the API. events may be nil.
func newHTTPHandler(cfg *Config, c *components, events http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		health(w, nil)
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		health(w, c.db.Ping())
	})
	if c.prom != nil {
		r.Handle(cfg.Metrics.Path, c.prom.Handler())
	}

	r.Mount("/api", api.NewRouter(api.Deps{
		Records:     c.records,
		Processor:   c.orch,
		Inbox:       c.inbox,
		Events:      events,
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
	}))
	return r
}

func health(w http.ResponseWriter, err error) {
	status, body := http.StatusOK, map[string]string{"status": "ok"}
	if err != nil {
		status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
