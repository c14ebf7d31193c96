// Package audit implements the ClickHouse audit sink (C11): a
// fire-and-forget mirror of every recognized log line the lexer
// produces, independent of whether its match is ever accepted. Losing
// the audit stream never blocks or fails an ingestion run.
//
// Grounded on the teacher's internal/worker/pool.go processBatch/
// PrepareBatch batching shape, repurposed from "raw gameplay events"
// to "every recognized LogRecord, batched on a ticker".
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/rankforge/stats-api/internal/ingest/events"
)

const (
	defaultBufferSize  = 4096
	defaultFlushPeriod = 2 * time.Second
	defaultBatchSize   = 500
)

// record pairs a parsed line with the server it came from; the table
// is keyed by (server_identity, timestamp, kind) for rough dedup on
// re-ingestion, not enforced — the audit stream is best-effort only.
type record struct {
	serverIdentity string
	rec            events.LogRecord
	receivedAt     time.Time
}

// Sink batches recognized records and mirrors them into ClickHouse's
// parsed_log_records table. Never returns an error to its caller:
// Record is non-blocking and drops on a full buffer, logging a warning.
type Sink struct {
	conn   driver.Conn
	logger *zap.SugaredLogger
	buf    chan record

	batchSize int
	flushEach time.Duration

	done chan struct{}
}

// New builds a Sink over an established ClickHouse connection. conn
// may be nil, in which case every Record call is a silent no-op — this
// lets callers wire the sink unconditionally and only skip it when the
// ClickHouse dependency truly isn't configured.
func New(conn driver.Conn, logger *zap.Logger) *Sink {
	return &Sink{
		conn:      conn,
		logger:    logger.Sugar(),
		buf:       make(chan record, defaultBufferSize),
		batchSize: defaultBatchSize,
		flushEach: defaultFlushPeriod,
		done:      make(chan struct{}),
	}
}

// Record enqueues a parsed line for audit. Never blocks: a full buffer
// drops the record and logs a warning rather than applying backpressure
// to the ingestion pipeline that produced it.
func (s *Sink) Record(serverIdentity string, rec events.LogRecord) {
	if s == nil || s.conn == nil || rec.Kind == events.KindUnrecognized {
		return
	}
	select {
	case s.buf <- record{serverIdentity: serverIdentity, rec: rec, receivedAt: time.Now()}:
	default:
		s.logger.Warnw("audit sink buffer full, dropping record", "kind", rec.Kind)
	}
}

// Run drains the buffer until ctx is canceled, flushing on a ticker or
// when a batch fills up, whichever comes first.
func (s *Sink) Run(ctx context.Context) {
	defer close(s.done)
	if s.conn == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.flushEach)
	defer ticker.Stop()

	batch := make([]record, 0, s.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.write(ctx, batch); err != nil {
			s.logger.Warnw("audit sink flush failed, dropping batch", "error", err, "size", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case r := <-s.buf:
			batch = append(batch, r)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			flush()
			return
		}
	}
}

// Wait blocks until Run has returned, for use during graceful shutdown.
func (s *Sink) Wait() {
	if s == nil {
		return
	}
	<-s.done
}

func (s *Sink) write(ctx context.Context, batch []record) error {
	chBatch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO rankforge.parsed_log_records (
			timestamp, received_at, server_identity, kind, raw_json
		)
	`)
	if err != nil {
		return err
	}
	for _, r := range batch {
		payload, _ := json.Marshal(r.rec)
		if err := chBatch.Append(r.rec.Timestamp, r.receivedAt, r.serverIdentity, string(r.rec.Kind), string(payload)); err != nil {
			return err
		}
	}
	return chBatch.Send()
}
