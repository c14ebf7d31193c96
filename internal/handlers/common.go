package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

type contextKey string

const serverIdentityKey contextKey = "server_identity"

// hashToken creates a SHA-256 hash of a presented server token for
// lookup against the servers table's stored hash.
func hashToken(token string) string {
	h := sha256.New()
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}

// Health reports process liveness only, no dependency checks.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// Ready reports whether every dependency the ingestion pipeline needs
// is reachable, and the current ingestion queue depth.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checks := map[string]bool{
		"postgres": h.pg.Ping(ctx) == nil,
		"redis":    h.redis.Ping(ctx).Err() == nil,
	}

	allHealthy := true
	for _, ok := range checks {
		if !ok {
			allHealthy = false
			break
		}
	}

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}
	h.jsonResponse(w, status, map[string]any{
		"ready":       allHealthy,
		"checks":      checks,
		"queue_depth": h.pool.QueueDepth(),
	})
}

// ServerAuthMiddleware resolves the caller's registered server_identity
// from its presented token and stores it in the request context. A
// server authenticates with the X-Server-Token header or a Bearer
// Authorization header; the header name is fixed here and does not
// follow config.ServerTokenHeader.
func (h *Handler) ServerAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Server-Token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if token == "" {
			h.errorResponse(w, http.StatusUnauthorized, "missing server token")
			return
		}

		ctx := r.Context()
		var serverIdentity string
		err := h.pg.QueryRow(ctx,
			`SELECT id FROM servers WHERE token_hash = $1 AND is_active = true`,
			hashToken(token),
		).Scan(&serverIdentity)
		if err != nil || serverIdentity == "" {
			h.errorResponse(w, http.StatusUnauthorized, "invalid server token")
			return
		}

		ctx = context.WithValue(ctx, serverIdentityKey, serverIdentity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func serverIdentityFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(serverIdentityKey).(string)
	return v, ok && v != ""
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}
