// Package driver implements the ingestion driver (C8): it owns one
// pipeline instance (lexer + state machine + context + processor) per
// ingestion request, loads the byte source into a random-access line
// buffer, and runs the rewind-aware cursor loop spec §4.8 describes.
//
// Grounded on the teacher's internal/worker/pool.go orchestration
// shape (own a slice, loop, flush-on-completion), repurposed from
// "batch of independent events" to "ordered replay of one match's
// lines".
package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rankforge/stats-api/internal/ingest/events"
	"github.com/rankforge/stats-api/internal/ingest/ingestctx"
	"github.com/rankforge/stats-api/internal/ingest/lexer"
	"github.com/rankforge/stats-api/internal/ingest/processor"
	"github.com/rankforge/stats-api/internal/ingest/statemachine"
)

// ErrTimeout is returned when a run exceeds its wall-clock budget.
var ErrTimeout = errors.New("driver: ingestion exceeded wall-clock budget")

// ErrTooManyLines guards the in-memory rewind buffer against
// pathological inputs (spec §5 memory bound).
var ErrTooManyLines = errors.New("driver: log exceeds the configured line ceiling")

const defaultTimeout = 90 * time.Second
const defaultMaxLines = 1_000_000

// Summary reports the outcome of one Run.
type Summary struct {
	GamesCommitted int
	LinesProcessed int
}

// Sink receives every lexed record in one pass after all lines are
// lexed and scorecard blocks resolved, before replay begins,
// independent of whether its match is ultimately accepted (C11). Satisfied by
// *audit.Sink; kept as an interface here so the driver package never
// imports ClickHouse directly.
type Sink interface {
	Record(serverIdentity string, rec events.LogRecord)
}

// Driver runs one ingestion job end to end.
type Driver struct {
	machine   *statemachine.Machine
	processor *processor.Processor
	timeout   time.Duration
	maxLines  int
	sink      Sink
	identity  string
	directory processor.DirectoryResolver
}

// New builds a Driver over a fresh per-job Context, wired to checker
// for dedup and committer for the final persistence step.
func New(checker statemachine.GameOverChecker, committer processor.Committer, opts ...Option) *Driver {
	ctx := ingestctx.New()
	d := &Driver{
		machine:   statemachine.New(ctx, checker),
		processor: processor.New(ctx, committer),
		timeout:   defaultTimeout,
		maxLines:  defaultMaxLines,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.directory != nil {
		d.processor.SetDirectory(d.directory)
	}
	return d
}

// Option configures a Driver at construction.
type Option func(*Driver)

// WithTimeout overrides the default 90s wall-clock budget.
func WithTimeout(d time.Duration) Option {
	return func(drv *Driver) { drv.timeout = d }
}

// WithMaxLines overrides the default 1,000,000-line ceiling.
func WithMaxLines(n int) Option {
	return func(drv *Driver) { drv.maxLines = n }
}

// WithAuditSink mirrors every lexed record to sink once, before replay.
// identity labels the mirrored rows; it need not match a resolved
// ServerIdentity record, which may arrive later in the same run.
func WithAuditSink(sink Sink, identity string) Option {
	return func(drv *Driver) {
		drv.sink = sink
		drv.identity = identity
	}
}

// WithDirectory enables C12 nickname enrichment at GAME_PROCESSED.
func WithDirectory(d processor.DirectoryResolver) Option {
	return func(drv *Driver) {
		drv.directory = d
	}
}

// buildRecords lexes every line, then collapses a JSON_BEGIN/JSON_END
// scorecard block following a Round_End marker into that Round_End
// record's Scorecard field. The marker lines and the raw JSON fragments
// between them never become records of their own — they carry no game
// event, only data belonging to the Round_End that precedes them.
func buildRecords(lines []string) []events.LogRecord {
	records := make([]events.LogRecord, 0, len(lines))
	var lastRoundEnd *int
	var collecting bool
	var buf strings.Builder

	for _, line := range lines {
		text, ok := lexer.RawText(line)

		if ok && text == lexer.ScorecardBeginMarker {
			collecting = true
			buf.Reset()
			continue
		}
		if collecting {
			if ok && text == lexer.ScorecardEndMarker {
				collecting = false
				if lastRoundEnd != nil {
					if entries, err := lexer.DecodeScorecard(buf.String()); err == nil {
						records[*lastRoundEnd].Scorecard = entries
					}
					lastRoundEnd = nil
				}
				continue
			}
			if ok {
				buf.WriteString(text)
			}
			continue
		}

		rec := lexer.Lex(line)
		records = append(records, rec)
		if rec.Kind == events.KindRoundEnd {
			idx := len(records) - 1
			lastRoundEnd = &idx
		}
	}

	return records
}

// Run pulls every line from lines, feeds it through the pipeline, and
// reports how many matches were committed. On timeout or cancellation
// the in-flight context is discarded and never partially committed —
// commit only happens at GAME_PROCESSED, which requires a full replay.
func (d *Driver) Run(ctx context.Context, lines []string) (Summary, error) {
	if len(lines) > d.maxLines {
		return Summary{}, ErrTooManyLines
	}

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	records := buildRecords(lines)
	if d.sink != nil {
		for _, rec := range records {
			d.sink.Record(d.identity, rec)
		}
	}

	summary := Summary{}
	i := 0
	for i < len(records) {
		select {
		case <-runCtx.Done():
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				return summary, ErrTimeout
			}
			return summary, runCtx.Err()
		default:
		}

		step, err := d.machine.Step(i, records[i])
		if err != nil {
			return summary, fmt.Errorf("driver: line %d: %w", i, err)
		}

		if step.Event != nil {
			result, perr := d.processor.Process(runCtx, *step.Event)
			if perr != nil {
				return summary, fmt.Errorf("driver: line %d: %w", i, perr)
			}
			if result.Committed {
				summary.GamesCommitted++
			}
		}

		summary.LinesProcessed++
		if step.Rewind {
			i = step.NextCursor
			if i < 0 {
				i = 0
			}
			continue
		}
		i++
	}

	return summary, nil
}
