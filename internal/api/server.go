// Package api exposes the query pipeline over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saarthi-dev/saarthi/internal/pipeline"
	"github.com/saarthi-dev/saarthi/internal/scheme"
)

const maxQueryBodySize = 64 << 10

// QueryHandler runs one query through the pipeline. Implemented by
// pipeline.Orchestrator.
type QueryHandler interface {
	HandleQuery(ctx context.Context, userID, query, sessionID string) (pipeline.Result, error)
}

// Deps holds the API layer's dependencies.
type Deps struct {
	Pipeline QueryHandler
	// Metrics enables GET /metrics when true.
	Metrics bool
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	UserID    string `json:"user_id"`
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

// CitedScheme is one cited scheme in a query response.
type CitedScheme struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SourceURL string `json:"source_url"`
}

// QueryResponse is the body returned by POST /v1/query.
type QueryResponse struct {
	ResponseText string        `json:"response_text"`
	CitedSchemes []CitedScheme `json:"cited_schemes"`
	SessionID    string        `json:"session_id"`
	Degraded     bool          `json:"degraded,omitempty"`
}

// NewHandler builds the HTTP router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/v1/query", handleQuery(deps))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	if deps.Metrics {
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	}
	return r
}

func handleQuery(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxQueryBodySize)
		defer r.Body.Close()

		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		res, err := deps.Pipeline.HandleQuery(r.Context(), req.UserID, req.Query, req.SessionID)
		switch {
		case errors.Is(err, pipeline.ErrInvalidQuery):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query must not be empty")
			return
		case errors.Is(err, pipeline.ErrProfileNotFound):
			httpError(w, http.StatusNotFound, "invalid_request_error", "unknown user: %s", req.UserID)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "handling query: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(QueryResponse{
			ResponseText: res.ResponseText,
			CitedSchemes: citedSchemes(res.CitedSchemes),
			SessionID:    res.SessionID,
			Degraded:     res.Degraded,
		})
	}
}

func citedSchemes(schemes []scheme.Scheme) []CitedScheme {
	out := make([]CitedScheme, len(schemes))
	for i, sc := range schemes {
		out[i] = CitedScheme{ID: sc.ID, Name: sc.Name, SourceURL: sc.SourceURL}
	}
	return out
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
