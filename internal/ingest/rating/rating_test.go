package rating

import (
	"testing"

	"github.com/rankforge/stats-api/internal/models"
)

func TestApplyRound_WinnerGainsLoserLoses(t *testing.T) {
	roster := map[string]*models.PlayerStatsSnapshot{
		"a": {PlayerSteamID: "a", Rank: 1000},
		"b": {PlayerSteamID: "b", Rank: 1000},
	}
	ApplyRound(roster, map[string]int{"a": 3, "b": 0})

	if roster["a"].Rank <= 1000 {
		t.Errorf("winner rank = %d, want > 1000", roster["a"].Rank)
	}
	if roster["b"].Rank >= 1000 {
		t.Errorf("loser rank = %d, want < 1000", roster["b"].Rank)
	}
	// Equal pre-round ratings: symmetric +/-16.
	if roster["a"].Rank-1000 != 1000-roster["b"].Rank {
		t.Errorf("expected symmetric adjustment, got a=%d b=%d", roster["a"].Rank, roster["b"].Rank)
	}
}

func TestApplyRound_TieNoAdjustment(t *testing.T) {
	roster := map[string]*models.PlayerStatsSnapshot{
		"a": {PlayerSteamID: "a", Rank: 1200},
		"b": {PlayerSteamID: "b", Rank: 1200},
	}
	ApplyRound(roster, map[string]int{"a": 2, "b": 2})

	if roster["a"].Rank != 1200 || roster["b"].Rank != 1200 {
		t.Errorf("tie should not adjust ratings, got a=%d b=%d", roster["a"].Rank, roster["b"].Rank)
	}
}

func TestApplyRound_UnratedPlayerDefaultsTo1000(t *testing.T) {
	roster := map[string]*models.PlayerStatsSnapshot{
		"a": {PlayerSteamID: "a"},
		"b": {PlayerSteamID: "b"},
	}
	ApplyRound(roster, map[string]int{"a": 1, "b": 0})

	if roster["a"].Rank != 1016 {
		t.Errorf("rank = %d, want 1016 (1000 + 32*0.5)", roster["a"].Rank)
	}
}

func TestApplyRound_PlayerNotInRoundKillsIsSkipped(t *testing.T) {
	roster := map[string]*models.PlayerStatsSnapshot{
		"a": {PlayerSteamID: "a", Rank: 1000},
		"c": {PlayerSteamID: "c", Rank: 1000},
	}
	ApplyRound(roster, map[string]int{"a": 2})
	if roster["a"].Rank != 1000 {
		t.Errorf("lone scorer with no opponent should not move, got %d", roster["a"].Rank)
	}
	if roster["c"].Rank != 1000 {
		t.Errorf("untouched player should not move, got %d", roster["c"].Rank)
	}
}
