// Package logic implements the minimal read-side query surface (C10):
// the handful of lookups the query API needs against the schema C7
// writes. It deliberately does not grow into the teacher's full
// dashboard service set (PlayerStatsService, AdvancedStatsService,
// TournamentService, ...) — SPEC_FULL.md's query surface is three
// endpoints, and a service per dashboard widget has nowhere to attach.
//
// Grounded on the teacher's internal/logic/interfaces.go PgPool
// convention: a narrow interface over *pgxpool.Pool so the service can
// be tested against a fake without a live database.
package logic

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/rankforge/stats-api/internal/models"
)

// ErrNotFound is returned when a lookup has no matching row.
var ErrNotFound = errors.New("logic: not found")

// PgPool is the narrow slice of *pgxpool.Pool the query surface needs.
type PgPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GameQueryService is the interface the handlers package depends on,
// so handler tests can substitute a hand-rolled fake instead of a live
// pool (teacher's MockServerStatsService/MockPlayerStatsService shape
// in internal/handlers/mocks_test.go).
type GameQueryService interface {
	GetGame(ctx context.Context, id int64) (*models.Game, error)
	GetRounds(ctx context.Context, gameID int64) ([]models.GameEvent, error)
	GetLeaderboard(ctx context.Context, limit int) ([]models.PlayerStatsSnapshot, error)
}

// QueryService answers the read-only game/rounds/leaderboard lookups.
type QueryService struct {
	pg PgPool
}

// NewQueryService wraps an established pool.
func NewQueryService(pg PgPool) *QueryService {
	return &QueryService{pg: pg}
}

// GetGame returns the committed game row by surrogate id.
func (s *QueryService) GetGame(ctx context.Context, id int64) (*models.Game, error) {
	var g models.Game
	err := s.pg.QueryRow(ctx, `
		SELECT id, server_identity, game_over_timestamp, map, mode, score1, score2,
		       duration_minutes, start_time, end_time
		FROM game WHERE id = $1
	`, id).Scan(&g.ID, &g.ServerIdentity, &g.GameOverTimestamp, &g.Map, &g.Mode,
		&g.Score1, &g.Score2, &g.DurationMinutes, &g.StartTime, &g.EndTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("logic: get game: %w", err)
	}
	return &g, nil
}

// GetRounds returns every ROUND_START/ROUND_END event for a game,
// ordered by timestamp, so a caller can reconstruct round boundaries
// without replaying the log a second time.
func (s *QueryService) GetRounds(ctx context.Context, gameID int64) ([]models.GameEvent, error) {
	rows, err := s.pg.Query(ctx, `
		SELECT id, game_id, kind, timestamp, round_start_ref
		FROM game_event
		WHERE game_id = $1 AND kind IN ($2, $3)
		ORDER BY timestamp ASC
	`, gameID, models.EventKindRoundStart, models.EventKindRoundEnd)
	if err != nil {
		return nil, fmt.Errorf("logic: get rounds: %w", err)
	}
	defer rows.Close()

	var out []models.GameEvent
	for rows.Next() {
		var e models.GameEvent
		if err := rows.Scan(&e.ID, &e.GameID, &e.Kind, &e.Timestamp, &e.RoundStartRef); err != nil {
			return nil, fmt.Errorf("logic: scan round: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetLeaderboard returns the top limit players by Rank, read from each
// player's latest stats snapshot (highest game_timestamp); older
// snapshots are neither summed nor averaged.
func (s *QueryService) GetLeaderboard(ctx context.Context, limit int) ([]models.PlayerStatsSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pg.Query(ctx, `
		SELECT DISTINCT ON (player_steam_id)
		       player_steam_id, game_timestamp, kills, deaths, assists,
		       headshot_kills, rounds_played, damage_dealt, clutches_won, rank, last_seen_nickname
		FROM player_stats
		ORDER BY player_steam_id, game_timestamp DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("logic: leaderboard latest snapshots: %w", err)
	}
	defer rows.Close()

	var all []models.PlayerStatsSnapshot
	for rows.Next() {
		var p models.PlayerStatsSnapshot
		if err := rows.Scan(&p.PlayerSteamID, &p.GameTimestamp, &p.Kills, &p.Deaths, &p.Assists,
			&p.HeadshotKills, &p.RoundsPlayed, &p.DamageDealt, &p.ClutchesWon, &p.Rank, &p.LastSeenNickname); err != nil {
			return nil, fmt.Errorf("logic: scan leaderboard row: %w", err)
		}
		all = append(all, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Rank > all[j].Rank })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
