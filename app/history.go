package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aluiziolira/go-scrape-customers/models"
	"github.com/aluiziolira/go-scrape-customers/targets"
	"github.com/aluiziolira/go-scrape-customers/tracker"
)

// DefaultHistoryLimit is the number of entries /history returns.
const DefaultHistoryLimit = 50

type historyResponse struct {
	Success bool                  `json:"success"`
	History []models.HistoryEntry `json:"history"`
	Error   string                `json:"error,omitempty"`
}

// HistoryHandler serves recent run history as JSON, newest first. The
// optional target and limit query parameters narrow the result. Store
// failures yield an empty history with success=false rather than a 5xx.
func HistoryHandler(history *tracker.History, catalog *targets.Catalog) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var wanted []models.TargetID
		if raw := r.URL.Query().Get("target"); raw != "" {
			id, err := models.ParseTargetID(raw)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			wanted = []models.TargetID{id}
		} else {
			for _, tc := range catalog.All() {
				wanted = append(wanted, tc.ID)
			}
		}

		limit := DefaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > tracker.MaxHistory {
				http.Error(w, "limit must be between 1 and 100", http.StatusBadRequest)
				return
			}
			limit = n
		}

		resp := historyResponse{Success: true, History: []models.HistoryEntry{}}
		entries, err := history.Recent(r.Context(), wanted, limit)
		if err != nil {
			slog.Error("read history", slog.Any("error", err))
			resp = historyResponse{Success: false, History: []models.HistoryEntry{}, Error: err.Error()}
		} else if entries != nil {
			resp.History = entries
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Debug("write history response", slog.Any("error", err))
		}
	})
}
