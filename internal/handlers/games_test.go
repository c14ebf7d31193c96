package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rankforge/stats-api/internal/logic"
	"github.com/rankforge/stats-api/internal/models"
)

func requestWithGameID(method, target, id string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestGetGame_InvalidIDBadRequest(t *testing.T) {
	h := &Handler{logger: zap.NewNop().Sugar(), query: &MockQueryService{}}

	req := requestWithGameID("GET", "/api/v1/games/abc", "abc")
	w := httptest.NewRecorder()

	h.GetGame(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("StatusCode = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestGetGame_NotFound(t *testing.T) {
	query := &MockQueryService{
		GetGameFunc: func(ctx context.Context, id int64) (*models.Game, error) {
			return nil, logic.ErrNotFound
		},
	}
	h := &Handler{logger: zap.NewNop().Sugar(), query: query}

	req := requestWithGameID("GET", "/api/v1/games/99", "99")
	w := httptest.NewRecorder()

	h.GetGame(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("StatusCode = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

func TestGetGame_Found(t *testing.T) {
	query := &MockQueryService{
		GetGameFunc: func(ctx context.Context, id int64) (*models.Game, error) {
			return &models.Game{ID: id, Map: "dm/mohdm1"}, nil
		},
	}
	h := &Handler{logger: zap.NewNop().Sugar(), query: query}

	req := requestWithGameID("GET", "/api/v1/games/7", "7")
	w := httptest.NewRecorder()

	h.GetGame(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestGetGameRounds_InvalidIDBadRequest(t *testing.T) {
	h := &Handler{logger: zap.NewNop().Sugar(), query: &MockQueryService{}}

	req := requestWithGameID("GET", "/api/v1/games/abc/rounds", "abc")
	w := httptest.NewRecorder()

	h.GetGameRounds(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("StatusCode = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestGetGameRounds_PropagatesQueryError(t *testing.T) {
	query := &MockQueryService{
		GetRoundsFunc: func(ctx context.Context, gameID int64) ([]models.GameEvent, error) {
			return nil, errors.New("boom")
		},
	}
	h := &Handler{logger: zap.NewNop().Sugar(), query: query}

	req := requestWithGameID("GET", "/api/v1/games/7/rounds", "7")
	w := httptest.NewRecorder()

	h.GetGameRounds(w, req)

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Fatalf("StatusCode = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}
}
