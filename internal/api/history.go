package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sagelearn/sage/internal/storage"
)

type historyItem struct {
	ID               string   `json:"id"`
	CreatedAt        string   `json:"createdAt"`
	Question         string   `json:"question"`
	Answer           string   `json:"answer"`
	Citations        []string `json:"citations"`
	Themes           string   `json:"themes"`
	Status           string   `json:"status"`
	Error            string   `json:"error,omitempty"`
	ProcessingTimeMs int64    `json:"processingTimeMs"`
}

func toHistoryItem(in storage.Interaction) historyItem {
	var citations []string
	if err := json.Unmarshal([]byte(in.Citations), &citations); err != nil || citations == nil {
		citations = []string{}
	}
	return historyItem{
		ID:               in.ID,
		CreatedAt:        in.CreatedAt.Format(time.RFC3339),
		Question:         in.Question,
		Answer:           in.Answer,
		Citations:        citations,
		Themes:           in.Themes,
		Status:           in.Status,
		Error:            in.Error,
		ProcessingTimeMs: in.ProcessingTimeMs,
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Archive == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "interaction archive is not configured")
			return
		}

		limit := parseIntParam(r, "limit", 20, 100)
		interactions, err := deps.Archive.RecentInteractions(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interactions: %v", err)
			return
		}

		items := make([]historyItem, 0, len(interactions))
		for _, in := range interactions {
			items = append(items, toHistoryItem(in))
		}

		respondJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"interactions": items,
		})
	}
}

func handleHistoryItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Archive == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "interaction archive is not configured")
			return
		}

		id := chi.URLParam(r, "id")
		in, err := deps.Archive.GetInteraction(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interaction not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get interaction: %v", err)
			return
		}

		respondJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"interaction": toHistoryItem(in),
		})
	}
}
