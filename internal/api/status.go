package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sagelearn/sage/internal/jobs"
	"github.com/sagelearn/sage/internal/pipeline"
)

// Built-in pair exercised by GET /test.
const (
	testQuestion = "What is machine learning?"
	testContext  = `# Study Notes: Machine Learning

Machine learning is a subset of artificial intelligence focused on algorithms
that learn patterns from data instead of following hand-written rules.

## Areas of Difficulty
- Gradient descent
- Overfitting

## Learning Progress
- Completed 2 of 6 modules
`
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleJobStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "requestId")

		job, err := deps.Jobs.Get(id)
		if errors.Is(err, jobs.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "unknown request id")
			return
		}

		resp := map[string]any{
			"success":  true,
			"status":   job.Status,
			"progress": job.Progress,
			"message":  job.Message,
		}
		if job.Error != "" {
			resp["error"] = job.Error
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

func handleResult(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "requestId")

		job, err := deps.Jobs.Get(id)
		if errors.Is(err, jobs.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "unknown request id")
			return
		}

		if job.Status != jobs.StatusCompleted {
			resp := map[string]any{
				"success": false,
				"status":  job.Status,
			}
			if job.Error != "" {
				resp["error"] = job.Error
			}
			respondJSON(w, http.StatusAccepted, resp)
			return
		}

		citations := job.Result.Citations
		if citations == nil {
			citations = []string{}
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"success":        true,
			"answer":         job.Result.Answer,
			"citations":      citations,
			"themes":         job.Result.Themes,
			"processingTime": job.Result.ProcessingTimeMs,
		})
	}
}

// handleTest runs the built-in question through the full pipeline
// synchronously, without creating a job.
func handleTest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		parsed, err := deps.Answerer.Answer(r.Context(), pipeline.Request{
			Question:     testQuestion,
			Context:      testContext,
			WeakConcepts: []string{"algorithms"},
		}, nil)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "pipeline test failed: %v", err)
			return
		}

		respondJSON(w, http.StatusOK, map[string]any{
			"success":        true,
			"answer":         parsed.Answer,
			"processingTime": time.Since(start).Milliseconds(),
		})
	}
}

func handleServiceStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		running := deps.Engine.IsRunning(r.Context())
		active, _ := deps.Jobs.Counts()

		interactions := 0
		if deps.Archive != nil {
			if n, err := deps.Archive.CountInteractions(); err == nil {
				interactions = n
			}
		}

		status := "ok"
		if !running {
			status = "degraded"
		}

		models := []string{deps.ChatModel}
		if deps.EmbedModel != deps.ChatModel {
			models = append(models, deps.EmbedModel)
		}

		respondJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"status":  status,
			"components": map[string]any{
				"engine": map[string]any{
					"running": running,
					"backend": deps.Backend,
					"models":  models,
				},
				"embedder": map[string]any{
					"ready":      deps.Embedder.Ready(),
					"dimensions": deps.Embedder.Dimensions(),
				},
				"jobs": map[string]any{
					"active": active,
				},
				"archive": map[string]any{
					"interactions": interactions,
				},
			},
			"uptime":  time.Since(deps.StartedAt).Round(time.Second).String(),
			"version": deps.Version,
		})
	}
}
