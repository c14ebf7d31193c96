// Package ingestctx holds the per-job scratchpad the state machine and
// processor share while one ingestion request is in flight. A Context
// is never shared across goroutines and carries no persisted identity
// of its own until CommitMatch succeeds.
package ingestctx

import (
	"time"

	"github.com/rankforge/stats-api/internal/models"
)

// Context accumulates one in-flight match. round_start_ref values are
// local ordinals (1-based, in the order ROUND_START events are
// appended) rather than database identities; the persistence adapter
// maps them to real surrogate ids in insertion order at commit time.
type Context struct {
	ServerIdentity string

	CurrentGame          *models.Game
	currentRoundStartRef int64
	earliestRoundEnd     *time.Time

	PendingEvents    []models.GameEvent
	PendingAccolades []models.Accolade
	PendingStats     map[string]models.PlayerStatsSnapshot

	roster      map[string]*models.PlayerStatsSnapshot
	rosterBot   map[string]bool
	rosterOrder []string
}

// New returns an empty Context for one ingestion job.
func New() *Context {
	return &Context{
		roster:       make(map[string]*models.PlayerStatsSnapshot),
		rosterBot:    make(map[string]bool),
		PendingStats: make(map[string]models.PlayerStatsSnapshot),
	}
}

// Empty reports whether the context has no pending, uncommitted work.
// The driver discards a non-empty context on exit without committing.
func (c *Context) Empty() bool {
	return c.CurrentGame == nil && len(c.PendingEvents) == 0 && len(c.PendingAccolades) == 0 && len(c.roster) == 0
}

// Reset clears all in-flight match state while preserving the server
// identity, which persists across matches within the same job.
func (c *Context) Reset() {
	identity := c.ServerIdentity
	*c = *New()
	c.ServerIdentity = identity
}

// BeginRoundStart records a ROUND_START and returns the local ref new
// in-round events should be tagged with.
func (c *Context) BeginRoundStart(ts time.Time) int64 {
	c.currentRoundStartRef++
	ref := c.currentRoundStartRef
	c.PendingEvents = append(c.PendingEvents, models.GameEvent{
		Kind:          models.EventKindRoundStart,
		Timestamp:     ts,
		RoundStartRef: &ref,
	})
	return ref
}

// CurrentRoundStartRef is the local ref most recently opened by
// BeginRoundStart; zero before any ROUND_START has been seen.
func (c *Context) CurrentRoundStartRef() int64 {
	return c.currentRoundStartRef
}

// PushEvent appends an in-round event, already tagged with its
// round_start_ref by the caller.
func (c *Context) PushEvent(e models.GameEvent) {
	c.PendingEvents = append(c.PendingEvents, e)
}

// QueueAccolade stages an accolade ahead of the game id being known.
func (c *Context) QueueAccolade(a models.Accolade) {
	c.PendingAccolades = append(c.PendingAccolades, a)
}

// NoteRoundEnd records a round-end timestamp for start_time estimation.
func (c *Context) NoteRoundEnd(ts time.Time) {
	if c.earliestRoundEnd == nil || ts.Before(*c.earliestRoundEnd) {
		t := ts
		c.earliestRoundEnd = &t
	}
}

// EarliestRoundEnd returns the earliest ROUND_END timestamp observed
// this match, or nil if no round has ended yet.
func (c *Context) EarliestRoundEnd() *time.Time {
	return c.earliestRoundEnd
}

// RosterPlayer returns the live running snapshot for a player,
// creating it on first reference. Bot participants are still tracked
// transiently (events reference them) but are excluded when snapshots
// are flushed to PendingStats.
func (c *Context) RosterPlayer(steamID, nickname string, bot bool) *models.PlayerStatsSnapshot {
	s, ok := c.roster[steamID]
	if !ok {
		s = &models.PlayerStatsSnapshot{PlayerSteamID: steamID, LastSeenNickname: nickname}
		c.roster[steamID] = s
		c.rosterBot[steamID] = bot
		c.rosterOrder = append(c.rosterOrder, steamID)
	}
	if nickname != "" {
		s.LastSeenNickname = nickname
	}
	return s
}

// RosterOrder returns player steam ids in first-seen order, for
// deterministic rating-engine iteration.
func (c *Context) RosterOrder() []string {
	return c.rosterOrder
}

// SnapshotRound overwrites pending_stats from the live roster,
// excluding bots, stamped with the match's game timestamp. Called once
// per ROUND_END; later calls overwrite earlier ones per player, so the
// map holds each player's cumulative totals as of the last round seen.
func (c *Context) SnapshotRound(gameTimestamp time.Time) {
	for steamID, snap := range c.roster {
		if c.rosterBot[steamID] {
			continue
		}
		cp := *snap
		cp.GameTimestamp = gameTimestamp
		c.PendingStats[steamID] = cp
	}
}
