package lexer

import (
	"strings"
	"testing"

	"github.com/rankforge/stats-api/internal/ingest/events"
)

func envelope_(log string) string {
	escaped := strings.ReplaceAll(log, `"`, `\"`)
	return `{"time":"2026-01-01T00:00:01Z","log":"` + escaped + `"}`
}

func TestLex_Kill(t *testing.T) {
	line := envelope_(`"Hiroshi<2><76561198000000001><attackers>" [10 20 30] killed "Yuta<5><76561198000000002><defenders>" [40 50 60] with "m4a1" (headshot)`)
	rec := Lex(line)

	if rec.Kind != events.KindKill {
		t.Fatalf("kind = %v, want kill", rec.Kind)
	}
	if rec.Killer.Name != "Hiroshi" || rec.Killer.SteamID != "76561198000000001" || rec.Killer.Slot != 2 {
		t.Errorf("killer = %+v", rec.Killer)
	}
	if rec.Victim.Name != "Yuta" || rec.Victim.SteamID != "76561198000000002" || rec.Victim.Slot != 5 {
		t.Errorf("victim = %+v", rec.Victim)
	}
	if rec.Weapon != "m4a1" || !rec.Headshot {
		t.Errorf("weapon/headshot = %s/%v", rec.Weapon, rec.Headshot)
	}
	if !rec.KillerPos.Valid || rec.KillerPos.X != 10 {
		t.Errorf("killer pos = %+v", rec.KillerPos)
	}
	if !rec.VictimPos.Valid || rec.VictimPos.Z != 60 {
		t.Errorf("victim pos = %+v", rec.VictimPos)
	}
}

func TestLex_Attack(t *testing.T) {
	line := envelope_(`"Hiroshi<2><76561198000000001><attackers>" [10 20 30] attacked "Yuta<5><76561198000000002><defenders>" [40 50 60] with "m4a1" (damage "27") (damage_armor "5") (health "73") (armor "95") (hitgroup "chest")`)
	rec := Lex(line)

	if rec.Kind != events.KindAttack {
		t.Fatalf("kind = %v, want attack", rec.Kind)
	}
	if rec.Attacker.SteamID != "76561198000000001" || rec.Victim.SteamID != "76561198000000002" {
		t.Errorf("attacker/victim = %+v / %+v", rec.Attacker, rec.Victim)
	}
	if rec.Damage != 27 || rec.ArmorDamage != 5 || rec.HealthRemaining != 73 {
		t.Errorf("damage/armorDamage/health = %d/%d/%d", rec.Damage, rec.ArmorDamage, rec.HealthRemaining)
	}
	if rec.Hitgroup != "chest" {
		t.Errorf("hitgroup = %s", rec.Hitgroup)
	}
	if !rec.VictimAttackPos.Valid || rec.VictimAttackPos.X != 40 {
		t.Errorf("victim pos = %+v", rec.VictimAttackPos)
	}
}

func TestLex_AttackTriedBeforeKill(t *testing.T) {
	line := envelope_(`"Hiroshi<2><76561198000000001><attackers>" [10 20 30] attacked "Yuta<5><76561198000000002><defenders>" [40 50 60] with "m4a1" (damage "100") (damage_armor "0") (health "0") (armor "0") (hitgroup "head")`)
	rec := Lex(line)
	if rec.Kind != events.KindAttack {
		t.Fatalf("an 'attacked' line must never match the kill pattern, got kind = %v", rec.Kind)
	}
}

func TestLex_Assist(t *testing.T) {
	line := envelope_(`"Hiroshi<2><76561198000000001><attackers>" flash-assisted killing "Yuta<5><76561198000000002><defenders>"`)
	rec := Lex(line)
	if rec.Kind != events.KindAssist {
		t.Fatalf("kind = %v, want assist", rec.Kind)
	}
	if rec.AssistKind != "flash" {
		t.Errorf("assist kind = %s, want flash", rec.AssistKind)
	}
}

func TestLex_RoundStartAndEnd(t *testing.T) {
	if rec := Lex(envelope_(`World triggered "Round_Start"`)); rec.Kind != events.KindRoundStart {
		t.Errorf("kind = %v, want round_start", rec.Kind)
	}
	if rec := Lex(envelope_(`World triggered "Round_End"`)); rec.Kind != events.KindRoundEnd {
		t.Errorf("kind = %v, want round_end", rec.Kind)
	}
}

func TestLex_GameOver(t *testing.T) {
	line := envelope_(`Game Over: objective mg_active dm score 7:3 after 18.50 min`)
	rec := Lex(line)
	if rec.Kind != events.KindGameOver {
		t.Fatalf("kind = %v, want game_over", rec.Kind)
	}
	if rec.Score1 != 7 || rec.Score2 != 3 {
		t.Errorf("score = %d:%d, want 7:3", rec.Score1, rec.Score2)
	}
	if rec.DurationMinutes != 18.5 {
		t.Errorf("duration = %f, want 18.5", rec.DurationMinutes)
	}
}

func TestLex_Accolade(t *testing.T) {
	line := envelope_(`ACCOLADE, FINAL: {most_kills},\tHiroshi<2>,\tVALUE: 24.000000,\tPOS: 1,\tSCORE: 24.000000`)
	rec := Lex(line)
	if rec.Kind != events.KindAccolade {
		t.Fatalf("kind = %v, want accolade", rec.Kind)
	}
	if string(rec.AccoladeType) != "most_kills" || rec.PlayerSlot != 2 || rec.Position != 1 {
		t.Errorf("accolade = %+v", rec)
	}
}

func TestLex_UnrecognizedLine(t *testing.T) {
	rec := Lex(envelope_(`some line nobody parses`))
	if rec.Kind != events.KindUnrecognized {
		t.Errorf("kind = %v, want unrecognized", rec.Kind)
	}
}

func TestLex_MalformedEnvelope(t *testing.T) {
	rec := Lex(`not json at all`)
	if rec.Kind != events.KindUnrecognized {
		t.Errorf("kind = %v, want unrecognized for malformed envelope", rec.Kind)
	}
}

func TestRawText_ExtractsLogFieldWithoutRecognizing(t *testing.T) {
	text, ok := RawText(envelope_("JSON_BEGIN"))
	if !ok || text != "JSON_BEGIN" {
		t.Fatalf("RawText = %q, %v, want JSON_BEGIN, true", text, ok)
	}
}

func TestRawText_MalformedEnvelopeReturnsFalse(t *testing.T) {
	if _, ok := RawText(`not json at all`); ok {
		t.Fatal("RawText should report false for a malformed envelope")
	}
}

func TestDecodeScorecard_JoinedFragmentsDecode(t *testing.T) {
	joined := `[{"steam_id":"steam1","name":"P1","slot":1,"team":"CT","kills":2,"deaths":0,"score":16,"bot":false},` +
		`{"steam_id":"steam2","name":"P2","slot":2,"team":"TERRORIST","kills":0,"deaths":2,"score":0,"bot":true}]`

	entries, err := DecodeScorecard(joined)
	if err != nil {
		t.Fatalf("DecodeScorecard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].SteamID != "steam1" || entries[0].Kills != 2 {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if !entries[1].Bot {
		t.Errorf("entries[1].Bot = false, want true")
	}
}

func TestDecodeScorecard_InvalidJSONErrors(t *testing.T) {
	if _, err := DecodeScorecard(`not json`); err == nil {
		t.Fatal("expected an error decoding non-JSON text")
	}
}

func TestLex_InvalidCoordinatesYieldInvalidPosition(t *testing.T) {
	line := envelope_(`"Hiroshi<2><76561198000000001><attackers>" [x y z] killed "Yuta<5><76561198000000002><defenders>" [40 50 60] with "m4a1"`)
	rec := Lex(line)
	if rec.Kind != events.KindKill {
		// A non-numeric coordinate invalidates only that position; the
		// kill itself is still recognized.
		t.Fatalf("kind = %v, want kill despite non-numeric coordinates", rec.Kind)
	}
	if rec.KillerPos.Valid {
		t.Errorf("killer pos = %+v, want Valid=false for non-numeric coordinates", rec.KillerPos)
	}
	if !rec.VictimPos.Valid || rec.VictimPos.X != 40 {
		t.Errorf("victim pos = %+v, want valid [40 50 60]", rec.VictimPos)
	}
}
