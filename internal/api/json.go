package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/ansuz/internal/apperr"
)

const maxJSONBody = 1 << 20

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: encode response", slog.String("error", err.Error()))
	}
}

func errorBody(msg string) errResponse { return errResponse{Error: msg} }

func badRequest(w http.ResponseWriter, msg string) {
	respond(w, http.StatusBadRequest, errorBody(msg))
}

// fail maps domain errors onto status codes. Anything unrecognised is
// logged with the request ID and reported as 500.
func fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	var status int
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		respond(w, http.StatusNotFound, errorBody("not found"))
		return
	case errors.Is(err, apperr.ErrAlreadyExists), errors.Is(err, apperr.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	default:
		slog.Error("api: "+op,
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("error", err.Error()))
		respond(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	respond(w, status, errorBody(err.Error()))
}

// decodeBody reads a single JSON object of at most maxJSONBody bytes into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
