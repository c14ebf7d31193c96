// Package rating implements the pairwise Elo-style rating update
// applied at each round end (C6). It is stateless outside the roster
// handed to it, grounded directly on spec.md §4.6's formula — no
// example repo in the retrieved pack implements an Elo variant, so
// this package has no teacher precedent beyond the spec itself.
package rating

import (
	"math"

	"github.com/rankforge/stats-api/internal/models"
)

const (
	kFactor       = 32.0
	defaultRating = 1000.0
)

// ApplyRound updates every player's Rank in place. For every ordered
// pair (A, B) where A's kills this round exceed B's, A is scored a win
// over B and B a loss to A; equal round-kill counts contribute no
// adjustment. roundKills maps steam id to kills scored in this round;
// a player absent from roundKills (e.g. joined mid-round) is skipped.
func ApplyRound(roster map[string]*models.PlayerStatsSnapshot, roundKills map[string]int) {
	ids := make([]string, 0, len(roundKills))
	for id := range roundKills {
		if _, ok := roster[id]; ok {
			ids = append(ids, id)
		}
	}

	ratings := make(map[string]float64, len(ids))
	for _, id := range ids {
		r := float64(roster[id].Rank)
		if r == 0 {
			r = defaultRating
		}
		ratings[id] = r
	}

	deltas := make(map[string]float64, len(ids))
	for i, a := range ids {
		for j, b := range ids {
			if i == j {
				continue
			}
			if roundKills[a] <= roundKills[b] {
				continue
			}
			// a beat b this round.
			expectedA := expectedScore(ratings[a], ratings[b])
			deltas[a] += kFactor * (1 - expectedA)
			deltas[b] += kFactor * (0 - (1 - expectedA))
		}
	}

	for _, id := range ids {
		newRating := ratings[id] + deltas[id]
		roster[id].Rank = int(math.Round(newRating))
	}
}

// expectedScore is the logistic win probability of self over other
// under a 400-point Elo scale.
func expectedScore(self, other float64) float64 {
	return 1 / (1 + math.Pow(10, (other-self)/400))
}
