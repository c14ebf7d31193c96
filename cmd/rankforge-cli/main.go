// Command rankforge-cli is the operator tool: it can either submit a
// local log file to a running rankforge-server, or run the ingestion
// pipeline fully offline against a file for inspection, committing
// nothing.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rankforge/stats-api/internal/ingest/driver"
	"github.com/rankforge/stats-api/internal/models"
)

type submitRequest struct {
	ServerID string `json:"server_id"`
	Source   string `json:"source"`
}

// dryRunChecker never finds an existing game, so every match in the
// file is treated as new.
type dryRunChecker struct{}

func (dryRunChecker) ExistsGame(string, time.Time, string) bool { return false }

// dryRunCommitter counts matches instead of persisting them.
type dryRunCommitter struct {
	games []models.Game
}

func (c *dryRunCommitter) CommitMatch(_ context.Context, game models.Game, _ []models.GameEvent, _ []models.Accolade, _ []models.PlayerStatsSnapshot) (int64, error) {
	c.games = append(c.games, game)
	return int64(len(c.games)), nil
}

func main() {
	mode := flag.String("mode", "submit", "submit | dryrun")
	file := flag.String("file", "", "path to a raw log file, one JSON-enveloped line per entry")
	apiURL := flag.String("url", "http://localhost:8080/api/v1/ingest/submit", "ingest submit endpoint (submit mode)")
	token := flag.String("token", "", "server token (submit mode)")
	serverID := flag.String("server-id", "cli-server", "server_id field in the submission envelope (submit mode)")
	flag.Parse()

	if *file == "" {
		log.Fatal("missing -file")
	}
	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("read file: %v", err)
	}

	switch *mode {
	case "submit":
		runSubmit(*apiURL, *token, *serverID, raw)
	case "dryrun":
		runDryRun(raw)
	default:
		log.Fatalf("unknown -mode %q, want submit or dryrun", *mode)
	}
}

func runSubmit(apiURL, token, serverID string, raw []byte) {
	payload, err := json.Marshal(submitRequest{ServerID: serverID, Source: string(raw)})
	if err != nil {
		log.Fatalf("marshal submission: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Server-Token", token)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("send request: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("Status: %s\n", resp.Status)
	fmt.Printf("Response: %s\n", string(body))
}

func runDryRun(raw []byte) {
	var lines []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}

	committer := &dryRunCommitter{}
	d := driver.New(dryRunChecker{}, committer)

	summary, err := d.Run(context.Background(), lines)
	if err != nil {
		log.Fatalf("pipeline run failed: %v", err)
	}

	out := map[string]any{
		"lines_processed": summary.LinesProcessed,
		"games_committed": summary.GamesCommitted,
		"games":           committer.games,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode result: %v", err)
	}
}
