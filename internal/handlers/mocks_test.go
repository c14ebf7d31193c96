package handlers

import (
	"context"
	"errors"

	"github.com/rankforge/stats-api/internal/logic"
	"github.com/rankforge/stats-api/internal/models"
)

// MockIngestPool implements IngestPool for testing.
type MockIngestPool struct {
	SubmitFunc     func(serverIdentity string, lines []string) (*models.IngestJob, bool)
	GetJobFunc     func(id string) (*models.IngestJob, bool)
	QueueDepthFunc func() int
}

func (m *MockIngestPool) Submit(serverIdentity string, lines []string) (*models.IngestJob, bool) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(serverIdentity, lines)
	}
	return &models.IngestJob{ID: "mock-job", ServerID: serverIdentity, Status: models.JobQueued}, true
}

func (m *MockIngestPool) GetJob(id string) (*models.IngestJob, bool) {
	if m.GetJobFunc != nil {
		return m.GetJobFunc(id)
	}
	return nil, false
}

func (m *MockIngestPool) QueueDepth() int {
	if m.QueueDepthFunc != nil {
		return m.QueueDepthFunc()
	}
	return 0
}

// MockJobCache implements JobStatusCache for testing.
type MockJobCache struct {
	GetFunc func(ctx context.Context, id string) (*models.IngestJob, bool)
}

func (m *MockJobCache) Get(ctx context.Context, id string) (*models.IngestJob, bool) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, false
}

// MockJobStore implements JobStatusStore for testing.
type MockJobStore struct {
	GetJobFunc func(ctx context.Context, id string) (*models.IngestJob, error)
}

func (m *MockJobStore) GetJob(ctx context.Context, id string) (*models.IngestJob, error) {
	if m.GetJobFunc != nil {
		return m.GetJobFunc(ctx, id)
	}
	return nil, errors.New("not found")
}

// MockQueryService implements logic.GameQueryService for testing.
type MockQueryService struct {
	GetGameFunc        func(ctx context.Context, id int64) (*models.Game, error)
	GetRoundsFunc      func(ctx context.Context, gameID int64) ([]models.GameEvent, error)
	GetLeaderboardFunc func(ctx context.Context, limit int) ([]models.PlayerStatsSnapshot, error)
}

func (m *MockQueryService) GetGame(ctx context.Context, id int64) (*models.Game, error) {
	if m.GetGameFunc != nil {
		return m.GetGameFunc(ctx, id)
	}
	return nil, logic.ErrNotFound
}

func (m *MockQueryService) GetRounds(ctx context.Context, gameID int64) ([]models.GameEvent, error) {
	if m.GetRoundsFunc != nil {
		return m.GetRoundsFunc(ctx, gameID)
	}
	return nil, nil
}

func (m *MockQueryService) GetLeaderboard(ctx context.Context, limit int) ([]models.PlayerStatsSnapshot, error) {
	if m.GetLeaderboardFunc != nil {
		return m.GetLeaderboardFunc(ctx, limit)
	}
	return nil, nil
}
