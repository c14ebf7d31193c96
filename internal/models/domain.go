// Package models holds the persisted and in-flight domain types shared
// across the ingestion pipeline and the query surface.
package models

import "time"

// Team is a round participant's side.
type Team string

const (
	TeamAttackers Team = "attackers"
	TeamDefenders Team = "defenders"
	TeamNone      Team = ""
)

// Player identifies a match participant as carried by a log line.
type Player struct {
	SteamID string `json:"steam_id"`
	Name    string `json:"name"`
	Slot    int    `json:"slot"`
	Team    Team   `json:"team"`
	Bot     bool   `json:"bot"`
}

// IsBot reports whether the player is a non-human participant; bots are
// excluded from persisted stats and rating updates.
func (p Player) IsBot() bool {
	return p.Bot
}

// Position is a signed in-game coordinate triple. A failed coordinate
// parse yields a zero Position with Valid=false rather than failing the
// surrounding record.
type Position struct {
	X, Y, Z int
	Valid   bool
}

// Server identifies the log-emitting game server, registered out of
// band from ingestion. The pipeline only reads it to resolve the
// caller's server identity scope and to bump LastSeen.
type Server struct {
	ID        string    `json:"id"`
	AppID     string    `json:"app_server_id"`
	Name      string    `json:"name"`
	TokenHash string    `json:"-"`
	IsActive  bool      `json:"is_active"`
	LastSeen  time.Time `json:"last_seen"`
}

// Game is the surrogate-keyed, natural-keyed row for one completed,
// accepted match. Immutable once GAME_PROCESSED has committed it.
type Game struct {
	ID                 int64     `json:"id"`
	ServerIdentity     string    `json:"server_identity"`
	GameOverTimestamp  time.Time `json:"game_over_timestamp"`
	Map                string    `json:"map"`
	Mode               string    `json:"mode"`
	Score1             int       `json:"score1"`
	Score2             int       `json:"score2"`
	DurationMinutes    float64   `json:"duration_minutes"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
}

// NaturalKey returns the dedup identity of a match: (server identity,
// game-over timestamp, map). Re-ingesting a log with the same natural
// key must persist zero new rows (I4).
func (g Game) NaturalKey() (string, time.Time, string) {
	return g.ServerIdentity, g.GameOverTimestamp, g.Map
}

// EventKind discriminates GameEvent rows; dispatch is by tag, never by
// dynamic type assertion chains.
type EventKind string

const (
	EventKindKill             EventKind = "KILL"
	EventKindAttack           EventKind = "ATTACK"
	EventKindAssist           EventKind = "ASSIST"
	EventKindRoundStart       EventKind = "ROUND_START"
	EventKindRoundEnd         EventKind = "ROUND_END"
	EventKindGameOver         EventKind = "GAME_OVER"
	EventKindBombPlant        EventKind = "BOMB_PLANT"
	EventKindBombDefuseBegin  EventKind = "BOMB_DEFUSE_BEGIN"
	EventKindBombDefused      EventKind = "BOMB_DEFUSED"
	EventKindBombExploded     EventKind = "BOMB_EXPLODED"
)

// GameEvent is a persisted, discriminated row belonging to a Game.
// Every kind except ROUND_START and GAME_OVER carries a non-null
// RoundStartRef (I3); GAME_PROCESSED is synthetic and never persisted.
type GameEvent struct {
	ID            int64     `json:"id"`
	GameID        int64     `json:"game_id"`
	Kind          EventKind `json:"kind"`
	Timestamp     time.Time `json:"timestamp"`
	RoundStartRef *int64    `json:"round_start_ref,omitempty"`

	KillerSteamID string `json:"killer_steam_id,omitempty"`
	VictimSteamID string `json:"victim_steam_id,omitempty"`
	Weapon        string `json:"weapon,omitempty"`
	Headshot      bool   `json:"headshot,omitempty"`

	AttackerSteamID string  `json:"attacker_steam_id,omitempty"`
	Damage          int     `json:"damage,omitempty"`
	ArmorDamage     int     `json:"armor_damage,omitempty"`
	Hitgroup        string  `json:"hitgroup,omitempty"`
	HealthRemaining int     `json:"health_remaining,omitempty"`

	AssisterSteamID string `json:"assister_steam_id,omitempty"`
	AssistKind      string `json:"assist_kind,omitempty"` // "regular" | "flash"

	Scorecard []RoundScorecardEntry `json:"scorecard,omitempty"`

	PlayerSteamID string `json:"player_steam_id,omitempty"`
	BombSite      string `json:"bomb_site,omitempty"`
}

// AccoladeType names a server-awarded per-match per-player honor.
type AccoladeType string

// Accolade is a per-match per-player award. A (PlayerSteamID, Type)
// pair is unique within a single game.
type Accolade struct {
	ID            int64        `json:"id"`
	GameID        int64        `json:"game_id"`
	Type          AccoladeType `json:"type"`
	PlayerSteamID string       `json:"player_steam_id"`
	PlayerSlot    int          `json:"player_slot"`
	Value         float64      `json:"value"`
	Position      int          `json:"position"` // 1, 2, or 3
	Score         float64      `json:"score"`
}

// PlayerStatsSnapshot is a per-player-per-match stats row. The natural
// key (PlayerSteamID, GameTimestamp) is unique across all snapshots
// (I5/P5); a player accumulates one snapshot per match they appear in.
type PlayerStatsSnapshot struct {
	ID               int64     `json:"id"`
	GameID           int64     `json:"game_id"`
	PlayerSteamID    string    `json:"player_steam_id"`
	GameTimestamp    time.Time `json:"game_timestamp"`
	Kills            int       `json:"kills"`
	Deaths           int       `json:"deaths"`
	Assists          int       `json:"assists"`
	HeadshotKills    int       `json:"headshot_kills"`
	RoundsPlayed     int       `json:"rounds_played"`
	DamageDealt      float64   `json:"damage_dealt"`
	ClutchesWon      int       `json:"clutches_won"`
	Rank             int       `json:"rank"`
	LastSeenNickname string    `json:"last_seen_nickname"`
}

// IngestJob is the ambient unit of work the HTTP submission layer hands
// to the worker pool. It has no bearing on I1-I5; it exists only so
// the 202-style submission API has something to report status from.
type IngestJob struct {
	ID             string    `json:"id"`
	ServerID       string    `json:"server_id"`
	Status         JobStatus `json:"status"`
	GamesPersisted int       `json:"games_persisted"`
	Error          string    `json:"error,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
	CompletedAt    time.Time `json:"completed_at,omitempty"`
}

// JobStatus is the lifecycle state of an IngestJob.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)
