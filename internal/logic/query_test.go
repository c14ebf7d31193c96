package logic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rankforge/stats-api/internal/models"
)

// MockPgPool and MockPgRows mirror the teacher's internal/logic/
// achievements_db_test.go fakes: narrow enough to hand-roll, wide
// enough to satisfy pgx.Rows without a live connection.
type MockPgPool struct {
	QueryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
}

func (m *MockPgPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return m.QueryFunc(ctx, sql, args...)
}

func (m *MockPgPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return m.QueryRowFunc(ctx, sql, args...)
}

// MockPgRow is a single-row pgx.Row fake. scanFn fills dest the way a
// real row's Scan would; err short-circuits it (e.g. pgx.ErrNoRows).
type MockPgRow struct {
	scanFn func(dest ...any) error
	err    error
}

func (r *MockPgRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return r.scanFn(dest...)
}

// MockPgRows plays back a fixed slice of scan functions, one per row.
type MockPgRows struct {
	rows []func(dest ...any) error
	curr int
	err  error
}

func (r *MockPgRows) Close()                                        {}
func (r *MockPgRows) Err() error                                    { return r.err }
func (r *MockPgRows) CommandTag() pgconn.CommandTag                 { return pgconn.CommandTag{} }
func (r *MockPgRows) FieldDescriptions() []pgconn.FieldDescription  { return nil }
func (r *MockPgRows) Values() ([]any, error)                        { return nil, nil }
func (r *MockPgRows) RawValues() [][]byte                           { return nil }
func (r *MockPgRows) Conn() *pgx.Conn                                { return nil }
func (r *MockPgRows) Next() bool {
	r.curr++
	return r.curr <= len(r.rows)
}
func (r *MockPgRows) Scan(dest ...any) error {
	return r.rows[r.curr-1](dest...)
}

func scanGame(g models.Game) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*int64) = g.ID
		*dest[1].(*string) = g.ServerIdentity
		*dest[2].(*time.Time) = g.GameOverTimestamp
		*dest[3].(*string) = g.Map
		*dest[4].(*string) = g.Mode
		*dest[5].(*int) = g.Score1
		*dest[6].(*int) = g.Score2
		*dest[7].(*float64) = g.DurationMinutes
		*dest[8].(*time.Time) = g.StartTime
		*dest[9].(*time.Time) = g.EndTime
		return nil
	}
}

func scanRound(e models.GameEvent) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*int64) = e.ID
		*dest[1].(*int64) = e.GameID
		*dest[2].(*models.EventKind) = e.Kind
		*dest[3].(*time.Time) = e.Timestamp
		*dest[4].(**int64) = e.RoundStartRef
		return nil
	}
}

func scanSnapshot(p models.PlayerStatsSnapshot) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = p.PlayerSteamID
		*dest[1].(*time.Time) = p.GameTimestamp
		*dest[2].(*int) = p.Kills
		*dest[3].(*int) = p.Deaths
		*dest[4].(*int) = p.Assists
		*dest[5].(*int) = p.HeadshotKills
		*dest[6].(*int) = p.RoundsPlayed
		*dest[7].(*float64) = p.DamageDealt
		*dest[8].(*int) = p.ClutchesWon
		*dest[9].(*int) = p.Rank
		*dest[10].(*string) = p.LastSeenNickname
		return nil
	}
}

func TestGetGame_Found(t *testing.T) {
	want := models.Game{ID: 7, ServerIdentity: "srv1", Map: "de_dust2", Mode: "casual", Score1: 16, Score2: 10}
	pg := &MockPgPool{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &MockPgRow{scanFn: scanGame(want)}
		},
	}
	svc := NewQueryService(pg)

	got, err := svc.GetGame(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	if got.ID != want.ID || got.Map != want.Map || got.Score1 != want.Score1 {
		t.Fatalf("GetGame = %+v, want %+v", got, want)
	}
}

func TestGetGame_NotFound(t *testing.T) {
	pg := &MockPgPool{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &MockPgRow{err: pgx.ErrNoRows}
		},
	}
	svc := NewQueryService(pg)

	_, err := svc.GetGame(context.Background(), 404)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetGame_WrapsOtherErrors(t *testing.T) {
	boom := errors.New("connection reset")
	pg := &MockPgPool{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &MockPgRow{err: boom}
		},
	}
	svc := NewQueryService(pg)

	_, err := svc.GetGame(context.Background(), 1)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want a wrapped non-ErrNotFound error", err)
	}
}

func TestGetRounds_OrderedByTimestamp(t *testing.T) {
	start := models.GameEvent{ID: 1, GameID: 5, Kind: models.EventKindRoundStart, Timestamp: time.Unix(100, 0)}
	ref := start.ID
	end := models.GameEvent{ID: 2, GameID: 5, Kind: models.EventKindRoundEnd, Timestamp: time.Unix(160, 0), RoundStartRef: &ref}

	pg := &MockPgPool{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			return &MockPgRows{rows: []func(dest ...any) error{scanRound(start), scanRound(end)}}, nil
		},
	}
	svc := NewQueryService(pg)

	rounds, err := svc.GetRounds(context.Background(), 5)
	if err != nil {
		t.Fatalf("GetRounds: %v", err)
	}
	if len(rounds) != 2 {
		t.Fatalf("len(rounds) = %d, want 2", len(rounds))
	}
	if rounds[0].Kind != models.EventKindRoundStart || rounds[1].Kind != models.EventKindRoundEnd {
		t.Fatalf("rounds = %+v, want start then end", rounds)
	}
	if rounds[1].RoundStartRef == nil || *rounds[1].RoundStartRef != start.ID {
		t.Fatalf("round end RoundStartRef = %v, want %d", rounds[1].RoundStartRef, start.ID)
	}
}

func TestGetRounds_QueryErrorPropagates(t *testing.T) {
	pg := &MockPgPool{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			return nil, errors.New("db down")
		},
	}
	svc := NewQueryService(pg)

	if _, err := svc.GetRounds(context.Background(), 1); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestGetLeaderboard_SortedDescendingByRank(t *testing.T) {
	low := models.PlayerStatsSnapshot{PlayerSteamID: "p1", Rank: 1200}
	high := models.PlayerStatsSnapshot{PlayerSteamID: "p2", Rank: 1800}
	mid := models.PlayerStatsSnapshot{PlayerSteamID: "p3", Rank: 1500}

	pg := &MockPgPool{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			return &MockPgRows{rows: []func(dest ...any) error{scanSnapshot(low), scanSnapshot(high), scanSnapshot(mid)}}, nil
		},
	}
	svc := NewQueryService(pg)

	board, err := svc.GetLeaderboard(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if len(board) != 3 {
		t.Fatalf("len(board) = %d, want 3", len(board))
	}
	if board[0].PlayerSteamID != "p2" || board[1].PlayerSteamID != "p3" || board[2].PlayerSteamID != "p1" {
		t.Fatalf("board order = %+v, want p2, p3, p1", board)
	}
}

func TestGetLeaderboard_TruncatesToLimit(t *testing.T) {
	snapshots := []func(dest ...any) error{
		scanSnapshot(models.PlayerStatsSnapshot{PlayerSteamID: "p1", Rank: 1000}),
		scanSnapshot(models.PlayerStatsSnapshot{PlayerSteamID: "p2", Rank: 2000}),
		scanSnapshot(models.PlayerStatsSnapshot{PlayerSteamID: "p3", Rank: 3000}),
	}
	pg := &MockPgPool{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			return &MockPgRows{rows: snapshots}, nil
		},
	}
	svc := NewQueryService(pg)

	board, err := svc.GetLeaderboard(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if len(board) != 1 {
		t.Fatalf("len(board) = %d, want 1", len(board))
	}
	if board[0].PlayerSteamID != "p3" {
		t.Fatalf("board[0] = %q, want p3 (highest rank)", board[0].PlayerSteamID)
	}
}

func TestGetLeaderboard_ZeroLimitDefaultsTo50(t *testing.T) {
	var snapshots []func(dest ...any) error
	for i := 0; i < 60; i++ {
		snapshots = append(snapshots, scanSnapshot(models.PlayerStatsSnapshot{PlayerSteamID: "p", Rank: 1000 + i}))
	}
	pg := &MockPgPool{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			return &MockPgRows{rows: snapshots}, nil
		},
	}
	svc := NewQueryService(pg)

	board, err := svc.GetLeaderboard(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if len(board) != 50 {
		t.Fatalf("len(board) = %d, want 50 (default limit)", len(board))
	}
}
