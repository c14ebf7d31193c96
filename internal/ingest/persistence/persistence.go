// Package persistence implements the persistence adapter (C7): the
// single transactional boundary where an accepted, fully-replayed
// match becomes durable rows.
//
// Grounded on the teacher's PgPool interface convention
// (internal/logic/interfaces.go) and pgxpool usage in
// internal/logic/server_tracking.go; the explicit pgx.Tx commit
// boundary is new — the teacher never needed a multi-statement
// transaction — but follows the same driver and error-inspection idiom.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rankforge/stats-api/internal/models"
)

// ErrAlreadyIngested is returned by CommitMatch when the game's natural
// key already exists — a non-error, steady-state outcome (spec §7).
var ErrAlreadyIngested = errors.New("persistence: game already ingested")

const naturalKeyConstraint = "game_natural_key"

const (
	maxCommitRetries     = 3
	commitRetryBaseDelay = 50 * time.Millisecond
)

var commitRetries = promauto.NewCounter(prometheus.CounterOpts{
	Name: "rankforge_commit_retries_total",
	Help: "Total number of match commit transactions retried after a transient database error",
})

// Adapter is the pgxpool-backed C7 persistence adapter.
type Adapter struct {
	pool *pgxpool.Pool
}

// New wraps an established pool.
func New(pool *pgxpool.Pool) *Adapter {
	return &Adapter{pool: pool}
}

// ExistsGame reports whether a game with this natural key has already
// been committed. Used by the state machine's acceptance evaluation;
// runs in its own short-lived query, never inside CommitMatch's
// transaction (spec §5: "readers use a separate short transaction").
func (a *Adapter) ExistsGame(serverIdentity string, gameOverTimestamp time.Time, mapName string) bool {
	var exists bool
	err := a.pool.QueryRow(context.Background(), `
		SELECT EXISTS(
			SELECT 1 FROM game
			WHERE server_identity = $1 AND game_over_timestamp = $2 AND map = $3
		)
	`, serverIdentity, gameOverTimestamp, mapName).Scan(&exists)
	if err != nil {
		// A read failure here must not silently admit a duplicate; treat
		// it as "exists" so the caller rejects rather than double-commits.
		return true
	}
	return exists
}

// CommitMatch persists one accepted match under a single transaction,
// in the insertion order spec §4.7 names: game, then events (with
// round_start_ref resolved from the local ordinal each ROUND_START was
// assigned), then accolades, then stats snapshots.
//
// A transient database error (connection loss, resource exhaustion —
// spec §7's TransientDbError) is retried up to maxCommitRetries times
// with exponential backoff before being surfaced as fatal; a natural-key
// collision or any other error returns immediately.
func (a *Adapter) CommitMatch(ctx context.Context, game models.Game, gameEvents []models.GameEvent, accolades []models.Accolade, stats []models.PlayerStatsSnapshot) (int64, error) {
	delay := commitRetryBaseDelay
	var lastErr error
	for attempt := 0; ; attempt++ {
		gameID, err := a.commitOnce(ctx, game, gameEvents, accolades, stats)
		if err == nil || errors.Is(err, ErrAlreadyIngested) {
			return gameID, err
		}
		if attempt >= maxCommitRetries || !isTransient(err) {
			return 0, err
		}
		lastErr = err
		commitRetries.Inc()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, lastErr
		}
		delay *= 2
	}
}

// isTransient classifies a commit failure as retryable. PgError classes
// 08 (connection exception), 53 (insufficient resources), 57 (operator
// intervention) and 58 (system error) are transient by Postgres's own
// taxonomy; a context deadline or cancellation is never retried, since
// the driver is already discarding that run's context on either. Any
// other error that doesn't carry a PgError (connection refused mid-Begin,
// a dropped connection) is assumed transient.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code[:2] {
		case "08", "53", "57", "58":
			return true
		default:
			return false
		}
	}
	return true
}

func (a *Adapter) commitOnce(ctx context.Context, game models.Game, gameEvents []models.GameEvent, accolades []models.Accolade, stats []models.PlayerStatsSnapshot) (int64, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("persistence: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	gameID, err := insertGame(ctx, tx, game)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == naturalKeyConstraint {
			return 0, ErrAlreadyIngested
		}
		return 0, fmt.Errorf("persistence: insert game: %w", err)
	}

	roundStartIDs, err := insertRoundStarts(ctx, tx, gameID, gameEvents)
	if err != nil {
		return 0, fmt.Errorf("persistence: insert round starts: %w", err)
	}

	if err := insertEvents(ctx, tx, gameID, gameEvents, roundStartIDs); err != nil {
		return 0, fmt.Errorf("persistence: insert events: %w", err)
	}

	if err := insertAccolades(ctx, tx, gameID, accolades); err != nil {
		return 0, fmt.Errorf("persistence: insert accolades: %w", err)
	}

	if err := insertStats(ctx, tx, gameID, stats); err != nil {
		return 0, fmt.Errorf("persistence: insert stats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("persistence: commit: %w", err)
	}
	return gameID, nil
}

func insertGame(ctx context.Context, tx pgx.Tx, g models.Game) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO game (server_identity, game_over_timestamp, map, mode, score1, score2, duration_minutes, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, g.ServerIdentity, g.GameOverTimestamp, g.Map, g.Mode, g.Score1, g.Score2, g.DurationMinutes, g.StartTime, g.EndTime).Scan(&id)
	return id, err
}

// insertRoundStarts inserts only the ROUND_START rows first, so their
// real surrogate ids exist before any in-round event's round_start_ref
// is resolved. Returns a map from the event's local ordinal ref to the
// inserted row's real id.
func insertRoundStarts(ctx context.Context, tx pgx.Tx, gameID int64, gameEvents []models.GameEvent) (map[int64]int64, error) {
	resolved := make(map[int64]int64)
	for _, e := range gameEvents {
		if e.Kind != models.EventKindRoundStart {
			continue
		}
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO game_event (game_id, kind, timestamp)
			VALUES ($1, $2, $3)
			RETURNING id
		`, gameID, e.Kind, e.Timestamp).Scan(&id)
		if err != nil {
			return nil, err
		}
		if e.RoundStartRef != nil {
			resolved[*e.RoundStartRef] = id
		}
	}
	return resolved, nil
}

// marshalScorecard encodes a ROUND_END event's per-player scorecard for
// the game_event.scorecard jsonb column. Every other event kind carries
// an empty Scorecard and marshals to a nil []byte, binding NULL.
func marshalScorecard(e models.GameEvent) ([]byte, error) {
	if len(e.Scorecard) == 0 {
		return nil, nil
	}
	return json.Marshal(e.Scorecard)
}

func insertEvents(ctx context.Context, tx pgx.Tx, gameID int64, gameEvents []models.GameEvent, roundStartIDs map[int64]int64) error {
	batch := &pgx.Batch{}
	queued := 0
	for _, e := range gameEvents {
		if e.Kind == models.EventKindRoundStart {
			continue // already inserted by insertRoundStarts
		}
		var ref *int64
		if e.RoundStartRef != nil {
			if id, ok := roundStartIDs[*e.RoundStartRef]; ok {
				ref = &id
			}
		}
		scorecard, err := marshalScorecard(e)
		if err != nil {
			return fmt.Errorf("persistence: marshal round-end scorecard: %w", err)
		}
		batch.Queue(`
			INSERT INTO game_event (
				game_id, kind, timestamp, round_start_ref,
				killer_steam_id, victim_steam_id, weapon, headshot,
				attacker_steam_id, damage, armor_damage, hitgroup, health_remaining,
				assister_steam_id, assist_kind, player_steam_id, bomb_site, scorecard
			) VALUES ($1,$2,$3,$4, $5,$6,$7,$8, $9,$10,$11,$12,$13, $14,$15,$16,$17,$18)
		`, gameID, e.Kind, e.Timestamp, ref,
			e.KillerSteamID, e.VictimSteamID, e.Weapon, e.Headshot,
			e.AttackerSteamID, e.Damage, e.ArmorDamage, e.Hitgroup, e.HealthRemaining,
			e.AssisterSteamID, e.AssistKind, e.PlayerSteamID, e.BombSite, scorecard)
		queued++
	}
	if queued == 0 {
		return nil
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func insertAccolades(ctx context.Context, tx pgx.Tx, gameID int64, accolades []models.Accolade) error {
	if len(accolades) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range accolades {
		batch.Queue(`
			INSERT INTO accolade (game_id, type, player_steam_id, player_slot, value, position, score)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, gameID, a.Type, a.PlayerSteamID, a.PlayerSlot, a.Value, a.Position, a.Score)
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for range accolades {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func insertStats(ctx context.Context, tx pgx.Tx, gameID int64, stats []models.PlayerStatsSnapshot) error {
	if len(stats) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, s := range stats {
		batch.Queue(`
			INSERT INTO player_stats (
				game_id, player_steam_id, game_timestamp, kills, deaths, assists,
				headshot_kills, rounds_played, damage_dealt, clutches_won, rank, last_seen_nickname
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, gameID, s.PlayerSteamID, s.GameTimestamp, s.Kills, s.Deaths, s.Assists,
			s.HeadshotKills, s.RoundsPlayed, s.DamageDealt, s.ClutchesWon, s.Rank, s.LastSeenNickname)
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for range stats {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// DeleteGame removes a game and its child rows in one transaction, in
// the reverse of the insertion order (spec §4.7).
func (a *Adapter) DeleteGame(ctx context.Context, gameID int64) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("persistence: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var endTime time.Time
	if err := tx.QueryRow(ctx, `SELECT end_time FROM game WHERE id = $1`, gameID).Scan(&endTime); err != nil {
		return fmt.Errorf("persistence: lookup game: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM player_stats WHERE game_timestamp = $1 AND game_id = $2`, endTime, gameID); err != nil {
		return fmt.Errorf("persistence: delete stats: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM accolade WHERE game_id = $1`, gameID); err != nil {
		return fmt.Errorf("persistence: delete accolades: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM game_event WHERE game_id = $1`, gameID); err != nil {
		return fmt.Errorf("persistence: delete events: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM game WHERE id = $1`, gameID); err != nil {
		return fmt.Errorf("persistence: delete game: %w", err)
	}
	return tx.Commit(ctx)
}
