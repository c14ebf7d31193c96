package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/rankforge/stats-api/internal/models"
)

func TestGetLeaderboard_DefaultLimit(t *testing.T) {
	var gotLimit int
	query := &MockQueryService{
		GetLeaderboardFunc: func(ctx context.Context, limit int) ([]models.PlayerStatsSnapshot, error) {
			gotLimit = limit
			return nil, nil
		},
	}
	h := &Handler{logger: zap.NewNop().Sugar(), query: query}

	req := httptest.NewRequest("GET", "/api/v1/leaderboard", nil)
	w := httptest.NewRecorder()

	h.GetLeaderboard(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if gotLimit != 50 {
		t.Fatalf("limit = %d, want 50", gotLimit)
	}
}

func TestGetLeaderboard_InvalidLimitBadRequest(t *testing.T) {
	h := &Handler{logger: zap.NewNop().Sugar(), query: &MockQueryService{}}

	req := httptest.NewRequest("GET", "/api/v1/leaderboard?limit=not-a-number", nil)
	w := httptest.NewRecorder()

	h.GetLeaderboard(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("StatusCode = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestGetLeaderboard_LimitCappedAt200(t *testing.T) {
	var gotLimit int
	query := &MockQueryService{
		GetLeaderboardFunc: func(ctx context.Context, limit int) ([]models.PlayerStatsSnapshot, error) {
			gotLimit = limit
			return nil, nil
		},
	}
	h := &Handler{logger: zap.NewNop().Sugar(), query: query}

	req := httptest.NewRequest("GET", "/api/v1/leaderboard?limit=10000", nil)
	w := httptest.NewRecorder()

	h.GetLeaderboard(w, req)

	if gotLimit != 200 {
		t.Fatalf("limit = %d, want capped 200", gotLimit)
	}
}

func TestGetLeaderboard_QueryErrorInternalServerError(t *testing.T) {
	query := &MockQueryService{
		GetLeaderboardFunc: func(ctx context.Context, limit int) ([]models.PlayerStatsSnapshot, error) {
			return nil, errors.New("boom")
		},
	}
	h := &Handler{logger: zap.NewNop().Sugar(), query: query}

	req := httptest.NewRequest("GET", "/api/v1/leaderboard", nil)
	w := httptest.NewRecorder()

	h.GetLeaderboard(w, req)

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Fatalf("StatusCode = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}
}
