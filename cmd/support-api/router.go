// Package main provides the API router setup.
package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/diyoloji/support-engine/internal/config"
	"github.com/diyoloji/support-engine/internal/ingest"
	"github.com/diyoloji/support-engine/internal/observability"
	"github.com/diyoloji/support-engine/pkg/engine"
)

// NewRouter creates the API router with all routes configured.
func NewRouter(eng *engine.Engine, cfg *config.Config, logger *observability.Logger) http.Handler {
	h := &handlers{engine: eng, logger: logger}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Server.WriteTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "support-engine"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ask", h.ask)
		r.Post("/ingest", h.ingest)
		r.Delete("/sessions/{sessionID}", h.clearSession)
	})
	return r
}

type handlers struct {
	engine *engine.Engine
	logger *observability.Logger
}

type askRequest struct {
	Query     string `json:"query"`
	ForceTool string `json:"force_tool,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type askResponse struct {
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
	Tool      string   `json:"tool"`
	Intent    string   `json:"intent"`
	Sentiment string   `json:"sentiment"`
	SessionID string   `json:"session_id"`
}

func (h *handlers) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	out, err := h.engine.Ask(r.Context(), req.Query, req.ForceTool, req.SessionID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Ask failed")
		writeError(w, http.StatusInternalServerError, "query processing failed")
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		Answer:    out.Answer,
		Citations: out.Citations,
		Tool:      out.Tool,
		Intent:    out.Intent,
		Sentiment: out.Sentiment,
		SessionID: req.SessionID,
	})
}

type ingestRequest struct {
	Records []ingest.Record `json:"records"`
}

func (h *handlers) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "records are required")
		return
	}

	result, err := h.engine.Ingest(r.Context(), req.Records, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Ingestion failed")
		writeError(w, http.StatusInternalServerError, "ingestion failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records":      result.Records,
		"chunks":       result.Chunks,
		"skipped":      result.Skipped,
		"per_category": result.PerCategory,
	})
}

func (h *handlers) clearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	deleted, err := h.engine.ClearSession(r.Context(), sessionID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Session clear failed")
		writeError(w, http.StatusInternalServerError, "session clear failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
