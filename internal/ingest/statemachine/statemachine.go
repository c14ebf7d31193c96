// Package statemachine implements the match state machine (C2): it
// wraps the lexer's output, tracks round-start offsets, decides
// accept/reject at each game-over, and drives the rewind that lets the
// driver replay exactly the accepted match's lines.
//
// Grounded directly on spec §4.2; no example in the pack implements
// this rewind-replay shape, so the state shape below is original to
// this package rather than adapted line-for-line from a teacher file.
package statemachine

import (
	"errors"
	"time"

	"github.com/rankforge/stats-api/internal/ingest/events"
	"github.com/rankforge/stats-api/internal/ingest/ingestctx"
	"github.com/rankforge/stats-api/internal/models"
)

// ErrNoServerIdentity is fatal: a game-over arrived before any
// ServerIdentity line set the job's server scope.
var ErrNoServerIdentity = errors.New("statemachine: game-over before server identity was established")

// ErrLogIncomplete is fatal: the game-over claims more rounds than
// round-starts were actually tracked.
var ErrLogIncomplete = errors.New("statemachine: fewer round-starts than the game-over's score total")

const minAccoladesToAccept = 6

// State is the match-state-machine's current mode.
type State int

const (
	// Tracking collects round-start offsets and ignores in-round
	// records until a game-over is accepted.
	Tracking State = iota
	// Playing replays an accepted match's own lines and emits every
	// in-round record to the processor.
	Playing
)

// GameOverChecker is the narrow persistence interface the state
// machine needs at acceptance time — whether a game with this natural
// key has already been committed.
type GameOverChecker interface {
	ExistsGame(serverIdentity string, gameOverTimestamp time.Time, mapName string) bool
}

// Step is the outcome of processing one line.
type Step struct {
	// Event is non-nil when a record should be forwarded to the
	// processor.
	Event *events.LogRecord
	// Rewind reports whether the driver must resume at NextCursor
	// instead of advancing to the next line. Set only on an accepted
	// game-over, and at most once per match.
	Rewind     bool
	NextCursor int
}

// Machine is the per-job match state machine. It is not safe for
// concurrent use; one Machine belongs to exactly one ingestion job.
type Machine struct {
	ctx     *ingestctx.Context
	checker GameOverChecker

	state          State
	roundStarts    []int
	matchEndCursor int
	accoladeRun    []events.LogRecord

	// slotIdentity resolves an accolade's bare slot number back to a
	// full player identity, since the ACCOLADE line itself carries no
	// steam id. Populated opportunistically from any record that names
	// a player, in either state.
	slotIdentity map[int]models.Player
}

// New builds a Machine over the given context and dedup checker.
func New(ctx *ingestctx.Context, checker GameOverChecker) *Machine {
	return &Machine{ctx: ctx, checker: checker, state: Tracking, slotIdentity: make(map[int]models.Player)}
}

// State reports the machine's current mode, mostly useful for tests.
func (m *Machine) State() State {
	return m.state
}

// Step processes the record lexed from line lineIdx and reports what
// the driver should do next. A non-nil error is always fatal for the
// job (ErrNoServerIdentity or ErrLogIncomplete).
func (m *Machine) Step(lineIdx int, rec events.LogRecord) (Step, error) {
	if rec.Kind == events.KindServerIdentity {
		m.ctx.ServerIdentity = rec.AppServerID
		return Step{}, nil
	}

	m.learnIdentities(rec)

	if m.state == Playing && lineIdx == m.matchEndCursor {
		processed := events.LogRecord{Kind: events.KindGameProcessed, Timestamp: rec.Timestamp}
		m.state = Tracking
		m.roundStarts = nil
		m.accoladeRun = nil
		m.matchEndCursor = 0
		return Step{Event: &processed}, nil
	}

	if m.state == Tracking {
		return m.stepTracking(lineIdx, rec)
	}
	return m.stepPlaying(lineIdx, rec)
}

func (m *Machine) stepTracking(lineIdx int, rec events.LogRecord) (Step, error) {
	switch rec.Kind {
	case events.KindRoundStart:
		m.roundStarts = append(m.roundStarts, lineIdx)
		m.accoladeRun = nil
		return Step{}, nil

	case events.KindAccolade:
		m.accoladeRun = append(m.accoladeRun, rec)
		return Step{}, nil

	case events.KindGameOver:
		return m.stepGameOver(lineIdx, rec)

	default:
		// Any other recognized or unrecognized line breaks the
		// contiguous accolade run and is otherwise ignored while
		// tracking (in-round records mean nothing until a match is
		// confirmed).
		m.accoladeRun = nil
		return Step{}, nil
	}
}

func (m *Machine) stepGameOver(lineIdx int, rec events.LogRecord) (Step, error) {
	if m.ctx.ServerIdentity == "" {
		return Step{}, ErrNoServerIdentity
	}

	accoladeCount := len(m.accoladeRun)
	accepted := accoladeCount >= minAccoladesToAccept &&
		!m.checker.ExistsGame(m.ctx.ServerIdentity, rec.Timestamp, rec.Map)

	if !accepted {
		m.roundStarts = nil
		m.accoladeRun = nil
		return Step{}, nil
	}

	total := rec.Score1 + rec.Score2
	if len(m.roundStarts) < total {
		return Step{}, ErrLogIncomplete
	}

	for _, a := range m.accoladeRun {
		m.ctx.QueueAccolade(m.accoladeFromRecord(a))
	}
	m.accoladeRun = nil

	rewindTo := m.roundStarts[len(m.roundStarts)-total] - 1
	m.matchEndCursor = lineIdx
	m.state = Playing

	event := rec
	return Step{Event: &event, Rewind: true, NextCursor: rewindTo}, nil
}

// learnIdentities records every player a record names, keyed by slot,
// so a later ACCOLADE line (which carries only a slot) can be resolved
// back to a steam id and bot flag.
func (m *Machine) learnIdentities(rec events.LogRecord) {
	switch rec.Kind {
	case events.KindKill:
		m.slotIdentity[rec.Killer.Slot] = rec.Killer
		m.slotIdentity[rec.Victim.Slot] = rec.Victim
	case events.KindAttack:
		m.slotIdentity[rec.Attacker.Slot] = rec.Attacker
		m.slotIdentity[rec.Victim.Slot] = rec.Victim
	case events.KindAssist:
		m.slotIdentity[rec.Assister.Slot] = rec.Assister
		m.slotIdentity[rec.Victim.Slot] = rec.Victim
	case events.KindBombPlant, events.KindBombDefuseBegin:
		m.slotIdentity[rec.BombPlayer.Slot] = rec.BombPlayer
	}
}

// accoladeFromRecord resolves an ACCOLADE record into a models.Accolade
// using whatever identity has been learned for its slot. An unresolved
// slot (no prior line named that player) still records the accolade
// under an empty steam id rather than dropping it.
func (m *Machine) accoladeFromRecord(rec events.LogRecord) models.Accolade {
	player := m.slotIdentity[rec.PlayerSlot]
	return models.Accolade{
		Type:          rec.AccoladeType,
		PlayerSteamID: player.SteamID,
		PlayerSlot:    rec.PlayerSlot,
		Value:         rec.Value,
		Position:      rec.Position,
		Score:         rec.Score,
	}
}

func (m *Machine) stepPlaying(_ int, rec events.LogRecord) (Step, error) {
	switch rec.Kind {
	case events.KindRoundStart, events.KindRoundEnd, events.KindKill, events.KindAttack,
		events.KindAssist, events.KindBombPlant, events.KindBombDefuseBegin,
		events.KindBombDefused, events.KindBombExploded:
		event := rec
		return Step{Event: &event}, nil
	default:
		// Accolade, GameOver-not-at-cursor, and Unrecognized lines
		// carry no meaning during a confirmed match's replay.
		return Step{}, nil
	}
}
