// Package api exposes the analysis service over HTTP and MCP. The HTTP
// surface is consumed by the CLI client; every route except /health sits
// behind bearer auth.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/counselai/counsel/internal/session"
	"github.com/counselai/counsel/internal/storage"
	"github.com/counselai/counsel/internal/team"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB
	maxUploadSize      = 20 << 20 // 20MB
)

// Deps holds the handler dependencies.
type Deps struct {
	Sessions *session.Manager
	History  *storage.Store
	Token    string
	Logger   *slog.Logger
}

// NewHandler builds the HTTP router.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/sessions", handleCreateSession(deps))
		r.Get("/sessions", handleListSessions(deps))
		r.Delete("/sessions/{id}", handleCloseSession(deps))
		r.Post("/sessions/{id}/documents", handleUploadDocument(deps))
		r.Post("/sessions/{id}/analyses", handleRunAnalysis(deps))

		r.Get("/documents", handleListDocuments(deps))
		r.Get("/analyses", handleListAnalyses(deps))
		r.Get("/analyses/{id}", handleGetAnalysis(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	OpenAIAPIKey string `json:"openai_api_key"`
	QdrantURL    string `json:"qdrant_url"`
	QdrantAPIKey string `json:"qdrant_api_key"`
}

// SessionResponse is the wire form of a session. The key never appears in
// full, only its display prefix.
type SessionResponse struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	Key       string `json:"key"`
}

func handleCreateSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		s, err := deps.Sessions.Create(r.Context(), session.Credentials{
			OpenAIKey: req.OpenAIAPIKey,
			QdrantURL: req.QdrantURL,
			QdrantKey: req.QdrantAPIKey,
		})
		if err != nil {
			faultError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(SessionResponse{
			ID:        s.ID,
			CreatedAt: s.CreatedAt.Format(time.RFC3339),
			Key:       s.KeyPrefix,
		})
	}
}

func handleListSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions := deps.Sessions.List()
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
		})

		out := make([]SessionResponse, len(sessions))
		for i, s := range sessions {
			out[i] = SessionResponse{
				ID:        s.ID,
				CreatedAt: s.CreatedAt.Format(time.RFC3339),
				Key:       s.KeyPrefix,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleCloseSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Sessions.Close(id)
		if errors.Is(err, session.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to close session: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "closed"})
	}
}

// DocumentResponse is the wire form of an ingested document.
type DocumentResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
}

func handleUploadDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Sessions.Get(chi.URLParam(r, "id"))
		if errors.Is(err, session.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required: %v", err)
			return
		}
		defer file.Close()

		name := header.Filename
		if name == "" {
			name = "document.pdf"
		}
		docID := documentID(name)

		chunks, err := s.Components.Pipeline.Ingest(r.Context(), file, docID)
		if err != nil {
			faultError(w, err)
			return
		}

		doc := storage.Document{
			ID:        docID,
			SessionID: s.ID,
			Name:      name,
			Chunks:    chunks,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.History.SaveDocument(doc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to record document: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(DocumentResponse{ID: docID, Name: name, Chunks: chunks})
	}
}

// documentID derives a stable ID from the document name so re-uploading the
// same file replaces its chunks instead of duplicating them.
func documentID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("counsel:document:"+name)).String()
}

type runAnalysisRequest struct {
	Mode  string `json:"mode"`
	Query string `json:"query"`
}

// AnalysisResponse is the wire form of a stored analysis.
type AnalysisResponse struct {
	ID              string `json:"id"`
	Mode            string `json:"mode"`
	Query           string `json:"query"`
	Analysis        string `json:"analysis"`
	KeyPoints       string `json:"key_points"`
	Recommendations string `json:"recommendations"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
	Error           string `json:"error,omitempty"`
}

func handleRunAnalysis(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Sessions.Get(chi.URLParam(r, "id"))
		if errors.Is(err, session.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req runAnalysisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		mode, err := team.ParseMode(req.Mode)
		if err != nil {
			faultError(w, err)
			return
		}

		result, runErr := s.Components.Team.Run(r.Context(), mode, req.Query)
		if result == nil {
			faultError(w, runErr)
			return
		}

		status := storage.AnalysisCompleted
		if runErr != nil {
			status = storage.AnalysisPartial
		}

		record := storage.Analysis{
			ID:              uuid.New().String(),
			SessionID:       s.ID,
			Mode:            string(result.Mode),
			Query:           result.Query,
			Analysis:        result.Analysis,
			KeyPoints:       result.KeyPoints,
			Recommendations: result.Recommendations,
			Status:          status,
			CreatedAt:       time.Now().UTC(),
		}
		if err := deps.History.SaveAnalysis(record); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to record analysis: %v", err)
			return
		}

		resp := analysisResponse(record)
		if runErr != nil {
			resp.Error = runErr.Error()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(resp)
	}
}

func analysisResponse(a storage.Analysis) AnalysisResponse {
	return AnalysisResponse{
		ID:              a.ID,
		Mode:            a.Mode,
		Query:           a.Query,
		Analysis:        a.Analysis,
		KeyPoints:       a.KeyPoints,
		Recommendations: a.Recommendations,
		Status:          a.Status,
		CreatedAt:       a.CreatedAt.Format(time.RFC3339),
	}
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		docs, err := deps.History.ListDocuments(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}

		out := make([]DocumentResponse, len(docs))
		for i, d := range docs {
			out[i] = DocumentResponse{ID: d.ID, Name: d.Name, Chunks: d.Chunks}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleListAnalyses(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		analyses, err := deps.History.ListAnalyses(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list analyses: %v", err)
			return
		}

		out := make([]AnalysisResponse, len(analyses))
		for i, a := range analyses {
			out[i] = analysisResponse(a)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleGetAnalysis(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		a, err := deps.History.GetAnalysis(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "analysis not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get analysis: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(analysisResponse(a))
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
