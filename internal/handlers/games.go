package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rankforge/stats-api/internal/logic"
)

// GetGame handles GET /api/v1/games/{id}.
func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid game id")
		return
	}

	game, err := h.query.GetGame(r.Context(), id)
	if errors.Is(err, logic.ErrNotFound) {
		h.errorResponse(w, http.StatusNotFound, "game not found")
		return
	}
	if err != nil {
		h.logger.Errorw("get game failed", "game_id", id, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "failed to load game")
		return
	}

	h.jsonResponse(w, http.StatusOK, game)
}

// GetGameRounds handles GET /api/v1/games/{id}/rounds.
func (h *Handler) GetGameRounds(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid game id")
		return
	}

	rounds, err := h.query.GetRounds(r.Context(), id)
	if err != nil {
		h.logger.Errorw("get rounds failed", "game_id", id, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "failed to load rounds")
		return
	}

	h.jsonResponse(w, http.StatusOK, map[string]any{
		"game_id": id,
		"rounds":  rounds,
	})
}
