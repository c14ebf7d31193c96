// Command rankforge-seed posts a small sample match log to a running
// rankforge-server for manual smoke testing.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

type submitRequest struct {
	ServerID string `json:"server_id"`
	Source   string `json:"source"`
}

func main() {
	apiURL := flag.String("url", "http://localhost:8080/api/v1/ingest/submit", "ingest submit endpoint")
	token := flag.String("token", "seed-secret-123", "server token")
	serverID := flag.String("server-id", "seed-server-1", "server_id field in the submission envelope")
	flag.Parse()

	lines := sampleMatch()

	req := submitRequest{ServerID: *serverID, Source: strings.Join(lines, "\n")}
	payload, err := json.Marshal(req)
	if err != nil {
		log.Fatalf("marshal submission: %v", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, *apiURL, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Server-Token", *token)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		log.Fatalf("send request: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("Status: %s\n", resp.Status)
	fmt.Printf("Response: %s\n", string(body))
}

// sampleMatch returns a tiny fabricated match: one round with a kill,
// round end, and game over, in the exact grammar internal/ingest/lexer
// recognizes.
func sampleMatch() []string {
	now := time.Now().UTC()
	ts := func(offset time.Duration) string {
		return now.Add(offset).Format(time.RFC3339)
	}

	logLine := func(offset time.Duration, text string) string {
		env, _ := json.Marshal(map[string]string{
			"time": ts(offset),
			"log":  text,
		})
		return string(env)
	}

	return []string{
		logLine(0, `ResetBreakpadAppId: Setting dedicated server app id: 12345`),
		logLine(1*time.Second, `World triggered "Round_Start"`),
		logLine(30*time.Second, `"TestAttacker<2><attacker-steam-1><TERRORIST>" [100 50 0] killed "TestVictim<3><victim-steam-1><CT>" [120 60 0] with "ak47"`),
		logLine(60*time.Second, `World triggered "Round_End"`),
		logLine(60500*time.Millisecond, `JSON_BEGIN`),
		logLine(60600*time.Millisecond, `[{"steam_id":"attacker-steam-1","name":"TestAttacker","slot":2,"team":"TERRORIST","kills":1,"deaths":0,"score":16,"bot":false},`),
		logLine(60700*time.Millisecond, `{"steam_id":"victim-steam-1","name":"TestVictim","slot":3,"team":"CT","kills":0,"deaths":1,"score":0,"bot":false}]`),
		logLine(60800*time.Millisecond, `JSON_END`),
		logLine(61*time.Second, `Game Over: casual mg_active de_dust2 score 1:0 after 1.00 min`),
	}
}
