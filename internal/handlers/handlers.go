// Package handlers implements the HTTP surface: C9's ingestion
// submission endpoints and C10/C13's minimal read-only query surface.
//
// Grounded on the teacher's internal/handlers/handlers.go Handler/
// Config/New shape, trimmed from its eleven dashboard service fields
// down to what SPEC_FULL.md actually needs (the ingestion pool, the
// query service and the job-status lookup tiers) — the rest of the teacher's dashboard surface has
// no SPEC_FULL.md component to attach to (see DESIGN.md's dropped-
// modules ledger).
package handlers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rankforge/stats-api/internal/logic"
	"github.com/rankforge/stats-api/internal/models"
)

// MaxBodySize limits the size of an ingestion submission body.
const MaxBodySize = 8 * 1024 * 1024

// IngestPool is the C9 surface the handlers package depends on; kept
// narrow so handler tests can substitute a fake instead of a live
// *worker.Pool (teacher's IngestQueue convention in handlers.go).
type IngestPool interface {
	Submit(serverIdentity string, lines []string) (*models.IngestJob, bool)
	GetJob(id string) (*models.IngestJob, bool)
	QueueDepth() int
}

// JobStatusCache is the optional Redis fallback tier for GetIngestJob,
// consulted when the pool's own in-memory table doesn't know about the
// job (e.g. it ran against a different process replica).
type JobStatusCache interface {
	Get(ctx context.Context, id string) (*models.IngestJob, bool)
}

// JobStatusStore is the optional Postgres fallback tier, the final word
// on a job's status once both in-memory and Redis have forgotten it.
type JobStatusStore interface {
	GetJob(ctx context.Context, id string) (*models.IngestJob, error)
}

// Config wires a Handler's dependencies at startup.
type Config struct {
	Pool     IngestPool
	Query    logic.GameQueryService
	JobCache JobStatusCache
	JobStore JobStatusStore
	Postgres *pgxpool.Pool
	Redis    *redis.Client
	Logger   *zap.Logger
}

type Handler struct {
	pool     IngestPool
	query    logic.GameQueryService
	jobCache JobStatusCache
	jobStore JobStatusStore
	pg       *pgxpool.Pool
	redis    *redis.Client
	logger   *zap.SugaredLogger
	validate *validator.Validate
}

func New(cfg Config) *Handler {
	return &Handler{
		pool:     cfg.Pool,
		query:    cfg.Query,
		jobCache: cfg.JobCache,
		jobStore: cfg.JobStore,
		pg:       cfg.Postgres,
		redis:    cfg.Redis,
		logger:   cfg.Logger.Sugar(),
		validate: validator.New(),
	}
}
