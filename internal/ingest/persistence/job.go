package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rankforge/stats-api/internal/models"
)

// ErrJobNotFound is returned by GetJob when no row matches id.
var ErrJobNotFound = errors.New("persistence: job not found")

// PersistJob upserts job's current status row. Called fire-and-forget
// from worker.Pool at every status transition; an IngestJob is an
// ambient bookkeeping entity (§3), never part of I1-I5, so a write
// failure here is logged by the caller and never blocks ingestion.
func (a *Adapter) PersistJob(ctx context.Context, job models.IngestJob) error {
	var completedAt *time.Time
	if !job.CompletedAt.IsZero() {
		completedAt = &job.CompletedAt
	}
	var errText *string
	if job.Error != "" {
		errText = &job.Error
	}

	_, err := a.pool.Exec(ctx, `
		INSERT INTO ingest_job (id, server_id, status, games_persisted, error, submitted_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			games_persisted = EXCLUDED.games_persisted,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at
	`, job.ID, job.ServerID, job.Status, job.GamesPersisted, errText, job.SubmittedAt, completedAt)
	if err != nil {
		return fmt.Errorf("persistence: persist job: %w", err)
	}
	return nil
}

// GetJob is the Postgres fallback tier behind the worker pool's
// in-memory table and the Redis status mirror (§4.12): the system of
// record for a job submitted to a process that has since restarted.
func (a *Adapter) GetJob(ctx context.Context, id string) (*models.IngestJob, error) {
	var j models.IngestJob
	var errText *string
	var completedAt *time.Time

	err := a.pool.QueryRow(ctx, `
		SELECT id, server_id, status, games_persisted, error, submitted_at, completed_at
		FROM ingest_job WHERE id = $1
	`, id).Scan(&j.ID, &j.ServerID, &j.Status, &j.GamesPersisted, &errText, &j.SubmittedAt, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: get job: %w", err)
	}
	if errText != nil {
		j.Error = *errText
	}
	if completedAt != nil {
		j.CompletedAt = *completedAt
	}
	return &j, nil
}
