// Package cache implements the two optional Redis-backed fast paths:
// a dedup short-circuit in front of the Postgres exists_game check,
// and a mirror of IngestJob status transitions into a Redis hash so a
// status lookup never has to hit Postgres. Both are best-effort; a
// Redis failure falls back to (or simply skips past) the authoritative
// path, never blocking or failing ingestion.
//
// Grounded on the teacher's internal/worker/pool.go Redis pipeline
// usage (SETNX-style dedup, HSet for live state) and the redis.Cmdable
// embedding convention in internal/handlers/handlers_test.go's
// MockRedisClient, which is why these take redis.Cmdable rather than
// the concrete *redis.Client the teacher's PoolConfig uses.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rankforge/stats-api/internal/models"
)

const (
	dedupTTL         = 10 * time.Minute
	jobStatusTTL     = 24 * time.Hour
	redisCallTimeout = 500 * time.Millisecond
)

// GameOverChecker mirrors statemachine.GameOverChecker's single method;
// duplicated here so this package doesn't need to import statemachine
// just to describe the interface it decorates.
type GameOverChecker interface {
	ExistsGame(serverIdentity string, gameOverTimestamp time.Time, mapName string) bool
}

// DedupChecker wraps a GameOverChecker with a Redis SETNX fast-path.
// A hit (key already set) short-circuits to "already seen" without a
// Postgres round-trip; a miss or a Redis error falls through to next,
// which remains the source of truth (§4.7's unique constraint).
type DedupChecker struct {
	redis  redis.Cmdable
	next   GameOverChecker
	logger *zap.SugaredLogger
}

// NewDedupChecker wraps next with a Redis-backed dedup fast-path.
func NewDedupChecker(client redis.Cmdable, next GameOverChecker, logger *zap.SugaredLogger) *DedupChecker {
	return &DedupChecker{redis: client, next: next, logger: logger}
}

// ExistsGame satisfies statemachine.GameOverChecker.
func (d *DedupChecker) ExistsGame(serverIdentity string, gameOverTimestamp time.Time, mapName string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), redisCallTimeout)
	defer cancel()

	key := "rankforge:game:" + naturalKeyHash(serverIdentity, gameOverTimestamp, mapName)
	acquired, err := d.redis.SetNX(ctx, key, 1, dedupTTL).Result()
	if err != nil {
		d.logger.Warnw("redis dedup check failed, falling back to postgres", "error", err)
		return d.next.ExistsGame(serverIdentity, gameOverTimestamp, mapName)
	}
	if !acquired {
		return true
	}
	return d.next.ExistsGame(serverIdentity, gameOverTimestamp, mapName)
}

func naturalKeyHash(serverIdentity string, ts time.Time, mapName string) string {
	h := sha1.New()
	h.Write([]byte(serverIdentity))
	h.Write([]byte(ts.UTC().Format(time.RFC3339)))
	h.Write([]byte(mapName))
	return hex.EncodeToString(h.Sum(nil))
}

// StatusPublisher mirrors IngestJob status transitions into a Redis
// hash keyed by job id, so a hot status lookup never needs Postgres.
// The in-memory worker.Pool job table is consulted first;
// handlers.GetIngestJob reads this hash (via Get) only when that table
// does not know the job.
type StatusPublisher struct {
	redis  redis.Cmdable
	logger *zap.SugaredLogger
}

// NewStatusPublisher returns a publisher backed by client.
func NewStatusPublisher(client redis.Cmdable, logger *zap.SugaredLogger) *StatusPublisher {
	return &StatusPublisher{redis: client, logger: logger}
}

// Publish mirrors job's current status. Failures are logged and
// discarded; a lost status update never fails the ingestion job.
func (s *StatusPublisher) Publish(ctx context.Context, job *models.IngestJob) {
	ctx, cancel := context.WithTimeout(ctx, redisCallTimeout)
	defer cancel()

	key := "rankforge:job:" + job.ID
	pipe := s.redis.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		"status":          string(job.Status),
		"error":           job.Error,
		"games_persisted": job.GamesPersisted,
	})
	pipe.Expire(ctx, key, jobStatusTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warnw("redis job status publish failed", "job_id", job.ID, "error", err)
	}
}

// Get reads id's last mirrored status. ok is false on any miss — no
// hash (never published, or expired) or a Redis error — in which case
// the caller is expected to fall through to the Postgres tier.
func (s *StatusPublisher) Get(ctx context.Context, id string) (*models.IngestJob, bool) {
	ctx, cancel := context.WithTimeout(ctx, redisCallTimeout)
	defer cancel()

	vals, err := s.redis.HGetAll(ctx, "rankforge:job:"+id).Result()
	if err != nil || len(vals) == 0 {
		return nil, false
	}

	job := &models.IngestJob{ID: id, Status: models.JobStatus(vals["status"]), Error: vals["error"]}
	if n, err := strconv.Atoi(vals["games_persisted"]); err == nil {
		job.GamesPersisted = n
	}
	return job, true
}
