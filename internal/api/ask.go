package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sagelearn/sage/internal/engine"
	"github.com/sagelearn/sage/internal/jobs"
	"github.com/sagelearn/sage/internal/pipeline"
	"github.com/sagelearn/sage/internal/retrieval"
	"github.com/sagelearn/sage/internal/storage"
)

// Study corpora can be large; the ask body limit is sized for them.
const maxAskBodySize = 10 << 20 // 10MB

// HistoryStore reads the interaction archive. *storage.Store satisfies it.
type HistoryStore interface {
	RecentInteractions(limit int) ([]storage.Interaction, error)
	GetInteraction(id string) (storage.Interaction, error)
	CountInteractions() (int, error)
}

// Deps holds everything the HTTP surface needs.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Jobs         jobs.Store
	Answerer     *pipeline.Answerer
	Engine       engine.Engine
	Embedder     *retrieval.Embedder
	Archive      HistoryStore // optional; history endpoints report unavailable when nil
	Backend      string
	ChatModel    string
	EmbedModel   string
	Token        string // optional; empty disables bearer auth
	Version      string
	StartedAt    time.Time
}

// NewHandler builds the HTTP router. The liveness probe stays open even when
// a bearer token is configured.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Post("/ask", handleAsk(deps))
		r.Get("/status", handleServiceStatus(deps))
		r.Get("/status/{requestId}", handleJobStatus(deps))
		r.Get("/result/{requestId}", handleResult(deps))
		r.Get("/test", handleTest(deps))
		r.Get("/history", handleHistory(deps))
		r.Get("/history/{id}", handleHistoryItem(deps))
	})

	return r
}

type AskRequest struct {
	Question     string   `json:"question"`
	Context      string   `json:"context"`
	WeakConcepts []string `json:"weakConcepts"`
}

func handleAsk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxAskBodySize)
		defer r.Body.Close()

		var req AskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "invalid request body: %v", err)
			return
		}

		if strings.TrimSpace(req.Question) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request", "question is required")
			return
		}
		if strings.TrimSpace(req.Context) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request", "context is required")
			return
		}

		job := deps.Orchestrator.Submit(pipeline.Request{
			Question:     req.Question,
			Context:      req.Context,
			WeakConcepts: req.WeakConcepts,
		})

		respondJSON(w, http.StatusCreated, map[string]any{
			"success":   true,
			"requestId": job.ID,
		})
	}
}
