package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/example/chronopact/internal/persistence"
)

type leaderboardSource interface {
	Leaderboard(ctx context.Context, limit int) ([]persistence.UserStats, error)
}

type LeaderboardHandler struct {
	source    leaderboardSource
	responder responder
}

func NewLeaderboardHandler(source leaderboardSource, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{source: source, responder: newResponder(logger)}
}

func (h *LeaderboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.source == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidLimit)
			return
		}
		limit = parsed
	}

	rows, err := h.source.Leaderboard(r.Context(), limit)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := leaderboardResponse{Entries: make([]leaderboardEntryDTO, 0, len(rows))}
	for i, row := range rows {
		resp.Entries = append(resp.Entries, leaderboardEntryDTO{
			Rank:           i + 1,
			UserID:         row.UserID,
			WastedMinutes:  row.WastedMinutes,
			WaitingMinutes: row.WaitingMinutes,
			Settled:        row.Settled,
			NoShows:        row.NoShows,
			UpdatedAt:      row.UpdatedAt,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

type leaderboardEntryDTO struct {
	Rank           int       `json:"rank"`
	UserID         string    `json:"user_id"`
	WastedMinutes  int       `json:"wasted_minutes"`
	WaitingMinutes int       `json:"waiting_minutes"`
	Settled        int       `json:"settled"`
	NoShows        int       `json:"no_shows"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type leaderboardResponse struct {
	Entries []leaderboardEntryDTO `json:"entries"`
}
