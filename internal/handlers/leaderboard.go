package handlers

import (
	"net/http"
	"strconv"
)

// GetLeaderboard handles GET /api/v1/leaderboard?limit=N. limit defaults
// to 50 (enforced by logic.QueryService) and is capped at 200 here to
// keep a single malformed query parameter from forcing an unbounded sort.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.errorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > 200 {
		limit = 200
	}

	entries, err := h.query.GetLeaderboard(r.Context(), limit)
	if err != nil {
		h.logger.Errorw("get leaderboard failed", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}

	h.jsonResponse(w, http.StatusOK, map[string]any{
		"leaderboard": entries,
	})
}
