// Package events defines the tagged LogRecord variants produced by the
// line lexer and consumed by the match state machine and processor.
// Dispatch is by Kind; there is no polymorphic behavior at this layer.
package events

import (
	"time"

	"github.com/rankforge/stats-api/internal/models"
)

// Kind discriminates LogRecord variants.
type Kind string

const (
	KindKill             Kind = "kill"
	KindAttack           Kind = "attack"
	KindAssist           Kind = "assist"
	KindRoundStart       Kind = "round_start"
	KindRoundEnd         Kind = "round_end"
	KindGameOver         Kind = "game_over"
	KindAccolade         Kind = "accolade"
	KindBombPlant        Kind = "bomb_plant"
	KindBombDefuseBegin  Kind = "bomb_defuse_begin"
	KindBombDefused      Kind = "bomb_defused"
	KindBombExploded     Kind = "bomb_exploded"
	KindServerIdentity   Kind = "server_identity"
	KindGameProcessed    Kind = "game_processed" // synthetic, emitted by the state machine only
	KindUnrecognized     Kind = "unrecognized"
)

// LogRecord is one parsed line, tagged by Kind. Only the fields
// relevant to Kind are populated; the zero value of the rest is
// meaningless.
type LogRecord struct {
	Kind      Kind
	Timestamp time.Time

	// Kill
	Killer       models.Player
	Victim       models.Player
	Weapon       string
	Headshot     bool
	KillerPos    models.Position
	VictimPos    models.Position

	// Attack
	Attacker        models.Player
	Damage          int
	ArmorDamage     int
	Hitgroup        string
	HealthRemaining int
	AttackerPos     models.Position
	VictimAttackPos models.Position

	// Assist
	Assister   models.Player
	AssistKind string // "regular" | "flash"

	// RoundEnd
	Scorecard []models.RoundScorecardEntry

	// GameOver
	Map             string
	Mode            string
	Score1          int
	Score2          int
	DurationMinutes float64

	// Accolade
	AccoladeType   models.AccoladeType
	PlayerName     string
	PlayerSlot     int
	Value          float64
	Position       int
	Score          float64

	// BombPlant / BombDefuseBegin
	BombPlayer models.Player
	BombSite   string

	// ServerIdentity
	AppServerID string
}
