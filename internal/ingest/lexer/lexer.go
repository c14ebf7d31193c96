// Package lexer recognizes one raw game-server log line and yields a
// tagged events.LogRecord. Each recognizer is a regular expression over
// the inner log string; order of attempt matters where one pattern is
// a prefix of another (Attack is tried before Kill — "attacked" would
// otherwise be swallowed by patterns tolerant enough to match "killed").
//
// Grounded on the quoted "name<slot><steamid><team>" grammar and
// ordering technique used across the janstuemmel-csgo-log CS2 patterns
// and the objectives-before-kills dispatch in sandstorm-tracker's
// internal/parser/parser.go.
package lexer

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rankforge/stats-api/internal/ingest/events"
	"github.com/rankforge/stats-api/internal/models"
)

// envelope is the JSON wrapper every line arrives in.
type envelope struct {
	Time string `json:"time"`
	Log  string `json:"log"`
}

// ScorecardBeginMarker and ScorecardEndMarker bracket the per-round
// JSON scorecard block that follows a bare Round_End marker line (spec
// §6). Each is its own envelope line; every envelope line between them
// carries one fragment of the scorecard's JSON text rather than a
// recognizable game event, so the driver — which alone sees the full
// line sequence — accumulates them with RawText before handing the
// joined text to DecodeScorecard.
const (
	ScorecardBeginMarker = "JSON_BEGIN"
	ScorecardEndMarker   = "JSON_END"
)

// RawText extracts the "log" field of one envelope line without
// attempting to recognize it as a game event. Used by the driver to
// detect scorecard block markers and collect the raw JSON fragments
// between them.
func RawText(rawLine string) (text string, ok bool) {
	var env envelope
	if err := json.Unmarshal([]byte(rawLine), &env); err != nil {
		return "", false
	}
	return env.Log, true
}

// DecodeScorecard parses the joined text of a JSON_BEGIN/JSON_END
// block into the per-round participant list.
func DecodeScorecard(raw string) ([]models.RoundScorecardEntry, error) {
	var entries []models.RoundScorecardEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

const playerGroup = `"([^"<]+)<(\d+)><([^>]*)><([^>]*)>"`

var (
	serverIdentityPattern = regexp.MustCompile(`ResetBreakpadAppId: Setting dedicated server app id: (\d+)`)

	attackPattern = regexp.MustCompile(
		playerGroup + ` \[([^\s\]]+) ([^\s\]]+) ([^\s\]]+)\] attacked ` + playerGroup +
			` \[([^\s\]]+) ([^\s\]]+) ([^\s\]]+)\] with "([^"]+)" \(damage "(\d+)"\) \(damage_armor "(\d+)"\) \(health "(\d+)"\) \(armor "(\d+)"\) \(hitgroup "([^"]+)"\)`)

	killPattern = regexp.MustCompile(
		playerGroup + ` \[([^\s\]]+) ([^\s\]]+) ([^\s\]]+)\] killed ` + playerGroup +
			` \[([^\s\]]+) ([^\s\]]+) ([^\s\]]+)\] with "([^"]+)"(.*)$`)

	assistPattern = regexp.MustCompile(
		playerGroup + ` (flash-)?assisted killing ` + playerGroup)

	roundStartPattern = regexp.MustCompile(`World triggered "Round_Start"`)
	roundEndPattern   = regexp.MustCompile(`World triggered "Round_End"`)

	gameOverPattern = regexp.MustCompile(
		`Game Over: (\w+) mg_active (\w+) score (\d+):(\d+) after ([\d.]+) min`)

	accoladePattern = regexp.MustCompile(
		`ACCOLADE, FINAL: \{([^}]+)\},\t(.+)<(\d+)>,\tVALUE: ([\d.]+),\tPOS: (\d+),\tSCORE: ([\d.]+)`)

	bombPlantPattern = regexp.MustCompile(
		playerGroup + ` triggered "Planted_The_Bomb" at bombsite (A|B)`)

	bombDefuseBeginPattern = regexp.MustCompile(
		playerGroup + ` triggered "Begin_Bomb_Defuse_(With|Without)_Kit"`)

	bombDefusedPattern = regexp.MustCompile(`Team "CT" triggered "SFUI_Notice_Bomb_Defused"`)

	bombExplodedPattern = regexp.MustCompile(`Team "TERRORIST" triggered "SFUI_Notice_Target_Bombed"`)
)

// Lex recognizes one envelope line and returns the parsed timestamp and
// tagged record. Unrecognized or malformed lines return Kind
// Unrecognized and never an error — the lexer never fails the
// pipeline on a bad line.
func Lex(rawLine string) events.LogRecord {
	var env envelope
	if err := json.Unmarshal([]byte(rawLine), &env); err != nil {
		return events.LogRecord{Kind: events.KindUnrecognized}
	}

	ts, err := time.Parse(time.RFC3339Nano, env.Time)
	if err != nil {
		ts, err = time.Parse(time.RFC3339, env.Time)
		if err != nil {
			return events.LogRecord{Kind: events.KindUnrecognized}
		}
	}
	ts = ts.UTC()

	line := env.Log

	if m := serverIdentityPattern.FindStringSubmatch(line); m != nil {
		return events.LogRecord{Kind: events.KindServerIdentity, Timestamp: ts, AppServerID: m[1]}
	}

	// Attack is tried before Kill: "attacked" lines are a structural
	// superset of what a loose kill pattern might otherwise match.
	if m := attackPattern.FindStringSubmatch(line); m != nil {
		return lexAttack(ts, m)
	}

	if m := killPattern.FindStringSubmatch(line); m != nil {
		return lexKill(ts, m)
	}

	if m := assistPattern.FindStringSubmatch(line); m != nil {
		return lexAssist(ts, m)
	}

	if roundStartPattern.MatchString(line) {
		return events.LogRecord{Kind: events.KindRoundStart, Timestamp: ts}
	}

	if roundEndPattern.MatchString(line) {
		return events.LogRecord{Kind: events.KindRoundEnd, Timestamp: ts}
	}

	if m := gameOverPattern.FindStringSubmatch(line); m != nil {
		return lexGameOver(ts, m)
	}

	if m := accoladePattern.FindStringSubmatch(line); m != nil {
		return lexAccolade(ts, m)
	}

	if m := bombPlantPattern.FindStringSubmatch(line); m != nil {
		return lexBombPlant(ts, m)
	}

	if m := bombDefuseBeginPattern.FindStringSubmatch(line); m != nil {
		return lexBombDefuseBegin(ts, m)
	}

	if bombDefusedPattern.MatchString(line) {
		return events.LogRecord{Kind: events.KindBombDefused, Timestamp: ts}
	}

	if bombExplodedPattern.MatchString(line) {
		return events.LogRecord{Kind: events.KindBombExploded, Timestamp: ts}
	}

	return events.LogRecord{Kind: events.KindUnrecognized, Timestamp: ts}
}

func parsePlayer(name, slot, steamID, team string) models.Player {
	n, _ := strconv.Atoi(slot)
	return models.Player{
		Name:    name,
		Slot:    n,
		SteamID: steamID,
		Team:    parseTeam(team),
		Bot:     steamID == "BOT",
	}
}

func parseTeam(raw string) models.Team {
	switch raw {
	case "CT":
		return models.TeamDefenders
	case "TERRORIST":
		return models.TeamAttackers
	default:
		return models.TeamNone
	}
}

func parsePosition(xs, ys, zs string) models.Position {
	x, errX := strconv.Atoi(xs)
	y, errY := strconv.Atoi(ys)
	z, errZ := strconv.Atoi(zs)
	if errX != nil || errY != nil || errZ != nil {
		return models.Position{}
	}
	return models.Position{X: x, Y: y, Z: z, Valid: true}
}

func lexAttack(ts time.Time, m []string) events.LogRecord {
	attacker := parsePlayer(m[1], m[2], m[3], m[4])
	victim := parsePlayer(m[8], m[9], m[10], m[11])
	damage, _ := strconv.Atoi(m[16])
	armorDamage, _ := strconv.Atoi(m[17])
	health, _ := strconv.Atoi(m[18])

	return events.LogRecord{
		Kind:            events.KindAttack,
		Timestamp:       ts,
		Attacker:        attacker,
		Victim:          victim,
		Weapon:          m[15],
		Damage:          damage,
		ArmorDamage:     armorDamage,
		HealthRemaining: health,
		Hitgroup:        m[20],
		AttackerPos:     parsePosition(m[5], m[6], m[7]),
		VictimAttackPos: parsePosition(m[12], m[13], m[14]),
	}
}

func lexKill(ts time.Time, m []string) events.LogRecord {
	killer := parsePlayer(m[1], m[2], m[3], m[4])
	victim := parsePlayer(m[8], m[9], m[10], m[11])
	modifiers := m[16]

	return events.LogRecord{
		Kind:      events.KindKill,
		Timestamp: ts,
		Killer:    killer,
		Victim:    victim,
		Weapon:    m[15],
		Headshot:  strings.Contains(modifiers, "headshot"),
		KillerPos: parsePosition(m[5], m[6], m[7]),
		VictimPos: parsePosition(m[12], m[13], m[14]),
	}
}

func lexAssist(ts time.Time, m []string) events.LogRecord {
	assister := parsePlayer(m[1], m[2], m[3], m[4])
	victim := parsePlayer(m[6], m[7], m[8], m[9])
	kind := "regular"
	if m[5] != "" {
		kind = "flash"
	}
	return events.LogRecord{
		Kind:       events.KindAssist,
		Timestamp:  ts,
		Assister:   assister,
		Victim:     victim,
		AssistKind: kind,
	}
}

func lexGameOver(ts time.Time, m []string) events.LogRecord {
	score1, _ := strconv.Atoi(m[3])
	score2, _ := strconv.Atoi(m[4])
	duration, _ := strconv.ParseFloat(m[5], 64)
	return events.LogRecord{
		Kind:            events.KindGameOver,
		Timestamp:       ts,
		Mode:            m[1],
		Map:             m[2],
		Score1:          score1,
		Score2:          score2,
		DurationMinutes: duration,
	}
}

func lexAccolade(ts time.Time, m []string) events.LogRecord {
	slot, _ := strconv.Atoi(m[3])
	value, _ := strconv.ParseFloat(m[4], 64)
	position, _ := strconv.Atoi(m[5])
	score, _ := strconv.ParseFloat(m[6], 64)
	return events.LogRecord{
		Kind:         events.KindAccolade,
		Timestamp:    ts,
		AccoladeType: models.AccoladeType(m[1]),
		PlayerName:   m[2],
		PlayerSlot:   slot,
		Value:        value,
		Position:     position,
		Score:        score,
	}
}

func lexBombPlant(ts time.Time, m []string) events.LogRecord {
	player := parsePlayer(m[1], m[2], m[3], m[4])
	return events.LogRecord{
		Kind:       events.KindBombPlant,
		Timestamp:  ts,
		BombPlayer: player,
		BombSite:   m[5],
	}
}

func lexBombDefuseBegin(ts time.Time, m []string) events.LogRecord {
	player := parsePlayer(m[1], m[2], m[3], m[4])
	return events.LogRecord{
		Kind:       events.KindBombDefuseBegin,
		Timestamp:  ts,
		BombPlayer: player,
	}
}
