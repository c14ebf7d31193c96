// Package processor implements the event processor (C5): it consumes
// the state machine's event stream, mutates per-player running totals,
// triggers the rating engine at each round end, and assembles the
// provisional Game record that GAME_PROCESSED commits.
//
// Grounded on the teacher's switch-by-type dispatch in
// internal/worker/achievements.go (AchievementWorker.ProcessEvent),
// repurposed from achievement-unlock checks to stat accumulation.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rankforge/stats-api/internal/ingest/events"
	"github.com/rankforge/stats-api/internal/ingest/ingestctx"
	"github.com/rankforge/stats-api/internal/ingest/persistence"
	"github.com/rankforge/stats-api/internal/ingest/rating"
	"github.com/rankforge/stats-api/internal/models"
)

// startTimeBackoff is how far before the earliest observed round-end a
// match's start_time is estimated to be, absent an exact start marker.
const startTimeBackoff = 120 * time.Second
const noRoundsFallback = 2 * time.Hour

// Committer is the narrow persistence surface the processor needs at
// GAME_PROCESSED. Kept separate from the full persistence.Adapter
// interface so the processor can be tested against a stub.
type Committer interface {
	CommitMatch(ctx context.Context, game models.Game, gameEvents []models.GameEvent, accolades []models.Accolade, stats []models.PlayerStatsSnapshot) (int64, error)
}

// DirectoryResolver overrides a player's in-log nickname with their
// registered clan/forum identity when one exists (C12). Satisfied by
// *directory.Bridge; kept local so the processor package never imports
// database/sql or a MySQL driver directly.
type DirectoryResolver interface {
	ResolveName(ctx context.Context, steamID string) string
}

// Result reports what a GAME_PROCESSED commit did.
type Result struct {
	Committed bool
	GameID    int64
}

// Processor mutates one Context in response to the state machine's
// event stream. Not safe for concurrent use — one Processor per job.
type Processor struct {
	ctx       *ingestctx.Context
	committer Committer
	directory DirectoryResolver
}

// New builds a Processor over ctx, committing through adapter.
func New(ctx *ingestctx.Context, adapter Committer) *Processor {
	return &Processor{ctx: ctx, committer: adapter}
}

// SetDirectory wires the optional C12 nickname-resolution step. A nil
// or never-called SetDirectory leaves every PendingStats nickname as
// the in-log name.
func (p *Processor) SetDirectory(d DirectoryResolver) {
	p.directory = d
}

// Process consumes one event from the state machine. The returned
// Result is non-zero only for GAME_PROCESSED.
func (p *Processor) Process(ctxBg context.Context, rec events.LogRecord) (Result, error) {
	switch rec.Kind {
	case events.KindRoundStart:
		p.ctx.BeginRoundStart(rec.Timestamp)

	case events.KindKill:
		p.processKill(rec)

	case events.KindAttack:
		p.processAttack(rec)

	case events.KindAssist:
		p.processAssist(rec)

	case events.KindBombPlant, events.KindBombDefuseBegin, events.KindBombDefused, events.KindBombExploded:
		p.processBomb(rec)

	case events.KindRoundEnd:
		p.processRoundEnd(rec)

	case events.KindGameOver:
		p.processGameOver(rec)

	case events.KindGameProcessed:
		return p.processGameProcessed(ctxBg, rec)
	}

	return Result{}, nil
}

func (p *Processor) processKill(rec events.LogRecord) {
	ref := p.ctx.CurrentRoundStartRef()
	if !rec.Killer.IsBot() {
		s := p.ctx.RosterPlayer(rec.Killer.SteamID, rec.Killer.Name, rec.Killer.Bot)
		s.Kills++
		if rec.Headshot {
			s.HeadshotKills++
		}
	}
	if !rec.Victim.IsBot() {
		s := p.ctx.RosterPlayer(rec.Victim.SteamID, rec.Victim.Name, rec.Victim.Bot)
		s.Deaths++
	}
	p.ctx.PushEvent(models.GameEvent{
		Kind:          models.EventKindKill,
		Timestamp:     rec.Timestamp,
		RoundStartRef: refPtr(ref),
		KillerSteamID: rec.Killer.SteamID,
		VictimSteamID: rec.Victim.SteamID,
		Weapon:        rec.Weapon,
		Headshot:      rec.Headshot,
	})
}

func (p *Processor) processAttack(rec events.LogRecord) {
	ref := p.ctx.CurrentRoundStartRef()
	if !rec.Attacker.IsBot() {
		s := p.ctx.RosterPlayer(rec.Attacker.SteamID, rec.Attacker.Name, rec.Attacker.Bot)
		s.DamageDealt += float64(rec.Damage)
	}
	p.ctx.PushEvent(models.GameEvent{
		Kind:            models.EventKindAttack,
		Timestamp:       rec.Timestamp,
		RoundStartRef:   refPtr(ref),
		AttackerSteamID: rec.Attacker.SteamID,
		VictimSteamID:   rec.Victim.SteamID,
		Weapon:          rec.Weapon,
		Damage:          rec.Damage,
		ArmorDamage:     rec.ArmorDamage,
		Hitgroup:        rec.Hitgroup,
		HealthRemaining: rec.HealthRemaining,
	})
}

func (p *Processor) processAssist(rec events.LogRecord) {
	ref := p.ctx.CurrentRoundStartRef()
	if !rec.Assister.IsBot() {
		s := p.ctx.RosterPlayer(rec.Assister.SteamID, rec.Assister.Name, rec.Assister.Bot)
		s.Assists++
	}
	p.ctx.PushEvent(models.GameEvent{
		Kind:            models.EventKindAssist,
		Timestamp:       rec.Timestamp,
		RoundStartRef:   refPtr(ref),
		AssisterSteamID: rec.Assister.SteamID,
		VictimSteamID:   rec.Victim.SteamID,
		AssistKind:      rec.AssistKind,
	})
}

func (p *Processor) processBomb(rec events.LogRecord) {
	ref := p.ctx.CurrentRoundStartRef()
	var kind models.EventKind
	switch rec.Kind {
	case events.KindBombPlant:
		kind = models.EventKindBombPlant
	case events.KindBombDefuseBegin:
		kind = models.EventKindBombDefuseBegin
	case events.KindBombDefused:
		kind = models.EventKindBombDefused
	case events.KindBombExploded:
		kind = models.EventKindBombExploded
	}
	p.ctx.PushEvent(models.GameEvent{
		Kind:          kind,
		Timestamp:     rec.Timestamp,
		RoundStartRef: refPtr(ref),
		PlayerSteamID: rec.BombPlayer.SteamID,
		BombSite:      rec.BombSite,
	})
}

// processRoundEnd credits rounds_played to every non-bot scorecard
// participant, runs the rating engine across the round's roster, and
// snapshots the running totals.
func (p *Processor) processRoundEnd(rec events.LogRecord) {
	ref := p.ctx.CurrentRoundStartRef()
	p.ctx.NoteRoundEnd(rec.Timestamp)

	roundKills := make(map[string]int, len(rec.Scorecard))
	for _, entry := range rec.Scorecard {
		if entry.Bot {
			continue
		}
		s := p.ctx.RosterPlayer(entry.SteamID, entry.Name, entry.Bot)
		s.RoundsPlayed++
		roundKills[entry.SteamID] = entry.Kills
	}

	rating.ApplyRound(p.rosterRatings(), roundKills)

	p.ctx.PushEvent(models.GameEvent{
		Kind:          models.EventKindRoundEnd,
		Timestamp:     rec.Timestamp,
		RoundStartRef: refPtr(ref),
		Scorecard:     rec.Scorecard,
	})

	// The game timestamp isn't known until GAME_OVER in a forward scan,
	// but GAME_OVER fires before replay begins (see processGameOver) —
	// so every ROUND_END during replay already has CurrentGame set.
	if p.ctx.CurrentGame != nil {
		p.ctx.SnapshotRound(p.ctx.CurrentGame.GameOverTimestamp)
	}
}

// rosterRatings exposes the live roster as a map the rating engine can
// mutate in place.
func (p *Processor) rosterRatings() map[string]*models.PlayerStatsSnapshot {
	out := make(map[string]*models.PlayerStatsSnapshot)
	for _, id := range p.ctx.RosterOrder() {
		out[id] = p.ctx.RosterPlayer(id, "", false)
	}
	return out
}

// processGameOver fires on the FIRST sighting of the game-over line,
// before the driver rewinds to replay the match's own rounds. At this
// point no ROUND_END has been observed yet this pass, so start_time
// cannot be computed here; a provisional Game (everything but
// start_time) is stored on the context and finalized at
// GAME_PROCESSED once the replay has seen every round-end.
func (p *Processor) processGameOver(rec events.LogRecord) {
	p.ctx.CurrentGame = &models.Game{
		ServerIdentity:    p.ctx.ServerIdentity,
		GameOverTimestamp: rec.Timestamp,
		Map:               rec.Map,
		Mode:              rec.Mode,
		Score1:            rec.Score1,
		Score2:            rec.Score2,
		DurationMinutes:   rec.DurationMinutes,
		EndTime:           rec.Timestamp,
	}
	// Accolades already queued by the state machine carry no game_id —
	// the persistence adapter binds it once the game row's surrogate id
	// is known, inside the same commit transaction (spec §4.7 step 4).
}

func (p *Processor) processGameProcessed(ctxBg context.Context, rec events.LogRecord) (Result, error) {
	game := p.ctx.CurrentGame
	if game == nil {
		return Result{}, fmt.Errorf("processor: GAME_PROCESSED with no in-flight game")
	}

	if earliest := p.ctx.EarliestRoundEnd(); earliest != nil {
		game.StartTime = earliest.Add(-startTimeBackoff)
	} else {
		game.StartTime = game.EndTime.Add(-noRoundsFallback)
	}

	stats := make([]models.PlayerStatsSnapshot, 0, len(p.ctx.PendingStats))
	for _, s := range p.ctx.PendingStats {
		if p.directory != nil {
			if name := p.directory.ResolveName(ctxBg, s.PlayerSteamID); name != "" && name != s.PlayerSteamID {
				s.LastSeenNickname = name
			}
		}
		stats = append(stats, s)
	}

	gameID, err := p.committer.CommitMatch(ctxBg, *game, p.ctx.PendingEvents, p.ctx.PendingAccolades, stats)
	if err != nil {
		if errors.Is(err, persistence.ErrAlreadyIngested) {
			// Non-error steady-state outcome (spec §7): the match was
			// already committed by a prior ingestion of this log.
			p.ctx.Reset()
			return Result{Committed: false}, nil
		}
		return Result{}, err
	}

	p.ctx.Reset()
	return Result{Committed: true, GameID: gameID}, nil
}

func refPtr(v int64) *int64 {
	if v == 0 {
		return nil
	}
	r := v
	return &r
}
