// Package worker implements the bounded-concurrency ingestion job pool
// (C9): it decouples HTTP submission from running a full C8 driver
// pass, queuing one job per submitted log batch and reporting back
// through an in-memory job status table.
//
// Grounded on the teacher's internal/worker/pool.go Pool struct
// almost line-for-line (NewPool/Start/Stop/Enqueue/QueueDepth),
// generalized from "batch DB writes of independent events" to "one
// job = one ingestion driver run over one match-shaped log batch".
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rankforge/stats-api/internal/cache"
	"github.com/rankforge/stats-api/internal/ingest/driver"
	"github.com/rankforge/stats-api/internal/ingest/processor"
	"github.com/rankforge/stats-api/internal/ingest/statemachine"
	"github.com/rankforge/stats-api/internal/models"
)

var (
	jobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rankforge_ingest_jobs_submitted_total",
		Help: "Total number of ingestion jobs accepted onto the queue",
	})
	jobsLoadShed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rankforge_ingest_jobs_load_shed_total",
		Help: "Total number of ingestion jobs rejected because the queue was full",
	})
	jobsSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rankforge_ingest_jobs_succeeded_total",
		Help: "Total number of ingestion jobs that completed without error",
	})
	jobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rankforge_ingest_jobs_failed_total",
		Help: "Total number of ingestion jobs that returned an error",
	})
	gamesCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rankforge_ingest_games_committed_total",
		Help: "Total number of matches committed across all ingestion jobs",
	})
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rankforge_ingest_queue_depth",
		Help: "Current depth of the ingestion job queue",
	})
	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rankforge_ingest_job_duration_seconds",
		Help:    "Duration of one ingestion driver run",
		Buckets: prometheus.DefBuckets,
	})
)

// PoolConfig configures the worker pool.
type PoolConfig struct {
	WorkerCount   int
	QueueSize     int
	IngestTimeout time.Duration
	MaxLogLines   int

	// Checker and Committer are shared across every job's own Driver
	// instance; both are safe for concurrent use (persistence.Adapter
	// is pgxpool-backed and pgxpool is itself connection-pooled).
	Checker   statemachine.GameOverChecker
	Committer processor.Committer

	// Sink is optional; a nil Sink disables C11 audit mirroring.
	Sink driver.Sink

	// Directory is optional; a nil Directory leaves player nicknames as
	// logged, skipping C12 clan-identity enrichment.
	Directory processor.DirectoryResolver

	// StatusPublisher is optional; a nil StatusPublisher disables the
	// Redis job-status mirror. Pool.GetJob reads only the in-memory
	// table either way.
	StatusPublisher *cache.StatusPublisher

	// Store is optional; a nil Store disables the Postgres persistence
	// tier for IngestJob rows (§3), leaving job status visible only to
	// the process that ran it (plus Redis, if StatusPublisher is set).
	Store JobStore

	Logger *zap.Logger
}

// JobStore is the narrow persistence.Adapter slice the pool needs to
// make IngestJob survive a process restart.
type JobStore interface {
	PersistJob(ctx context.Context, job models.IngestJob) error
}

type jobEnvelope struct {
	job   *models.IngestJob
	lines []string
}

// Pool runs submitted log batches through a fresh driver.Driver per
// job, bounded to WorkerCount concurrent runs.
type Pool struct {
	cfg    PoolConfig
	logger *zap.SugaredLogger

	jobQueue chan *jobEnvelope
	jobs     sync.Map // id -> *models.IngestJob

	eg     errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool creates a new worker pool. Call Start before Submit.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 8
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if cfg.IngestTimeout <= 0 {
		cfg.IngestTimeout = 90 * time.Second
	}
	if cfg.MaxLogLines <= 0 {
		cfg.MaxLogLines = 1_000_000
	}

	return &Pool{
		cfg:      cfg,
		logger:   cfg.Logger.Sugar(),
		jobQueue: make(chan *jobEnvelope, cfg.QueueSize),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		i := i
		p.eg.Go(func() error {
			p.worker(i)
			return nil
		})
	}

	go p.reportQueueDepth()

	p.logger.Infow("ingestion worker pool started",
		"workers", p.cfg.WorkerCount,
		"queueSize", p.cfg.QueueSize,
	)
}

// Stop cancels the pool's context (so running and still-queued jobs
// end with a cancellation error), closes the queue, and waits for
// every worker to exit.
func (p *Pool) Stop() {
	p.logger.Info("stopping ingestion worker pool...")
	p.cancel()
	close(p.jobQueue)
	p.eg.Wait()
	p.logger.Info("ingestion worker pool stopped")
}

// Submit queues serverIdentity's log lines as a new job and returns
// its tracking record. ok is false if the queue is full — the caller
// is expected to surface that as a 503 rather than block indefinitely.
func (p *Pool) Submit(serverIdentity string, lines []string) (job *models.IngestJob, ok bool) {
	job = &models.IngestJob{
		ID:          uuid.NewString(),
		ServerID:    serverIdentity,
		Status:      models.JobQueued,
		SubmittedAt: time.Now(),
	}
	p.jobs.Store(job.ID, job)

	env := &jobEnvelope{job: job, lines: lines}

	defer func() {
		if r := recover(); r != nil {
			// Sending on a closed queue (pool stopping mid-submit).
			ok = false
			job.Status = models.JobFailed
			job.Error = "ingestion pool is shutting down"
		}
	}()

	select {
	case p.jobQueue <- env:
		jobsSubmitted.Inc()
		p.publishStatus(job)
		return job, true
	default:
		jobsLoadShed.Inc()
		job.Status = models.JobFailed
		job.Error = "ingestion queue is full"
		return job, false
	}
}

// publishStatus mirrors job into Redis and Postgres when configured;
// a no-op on either tier left nil.
func (p *Pool) publishStatus(job *models.IngestJob) {
	if p.cfg.StatusPublisher != nil {
		p.cfg.StatusPublisher.Publish(context.Background(), job)
	}
	if p.cfg.Store != nil {
		if err := p.cfg.Store.PersistJob(context.Background(), *job); err != nil {
			p.logger.Warnw("persist job status failed", "job_id", job.ID, "error", err)
		}
	}
}

// GetJob returns the tracked status of a previously submitted job.
func (p *Pool) GetJob(id string) (*models.IngestJob, bool) {
	v, ok := p.jobs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*models.IngestJob), true
}

// QueueDepth returns the current queue size.
func (p *Pool) QueueDepth() int {
	return len(p.jobQueue)
}

func (p *Pool) worker(id int) {
	p.logger.Infow("ingestion worker started", "worker", id)

	for env := range p.jobQueue {
		p.runJob(env)
	}

	p.logger.Infow("ingestion worker stopped", "worker", id)
}

func (p *Pool) runJob(env *jobEnvelope) {
	job := env.job
	job.Status = models.JobRunning
	p.publishStatus(job)

	opts := []driver.Option{
		driver.WithTimeout(p.cfg.IngestTimeout),
		driver.WithMaxLines(p.cfg.MaxLogLines),
	}
	if p.cfg.Sink != nil {
		opts = append(opts, driver.WithAuditSink(p.cfg.Sink, job.ServerID))
	}
	if p.cfg.Directory != nil {
		opts = append(opts, driver.WithDirectory(p.cfg.Directory))
	}
	d := driver.New(p.cfg.Checker, p.cfg.Committer, opts...)

	start := time.Now()
	summary, err := d.Run(p.ctx, env.lines)
	jobDuration.Observe(time.Since(start).Seconds())

	job.CompletedAt = time.Now()
	job.GamesPersisted = summary.GamesCommitted
	gamesCommitted.Add(float64(summary.GamesCommitted))

	if err != nil {
		job.Status = models.JobFailed
		job.Error = err.Error()
		jobsFailed.Inc()
		p.publishStatus(job)
		p.logger.Errorw("ingestion job failed", "job_id", job.ID, "error", err, "lines_processed", summary.LinesProcessed)
		return
	}

	job.Status = models.JobSucceeded
	jobsSucceeded.Inc()
	p.publishStatus(job)
	p.logger.Infow("ingestion job succeeded", "job_id", job.ID, "games_committed", summary.GamesCommitted, "lines_processed", summary.LinesProcessed)
}

func (p *Pool) reportQueueDepth() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			queueDepth.Set(float64(len(p.jobQueue)))
		case <-p.ctx.Done():
			return
		}
	}
}
