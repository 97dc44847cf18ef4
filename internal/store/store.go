// internal/store/store.go
package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/inputpipe/internal/config"
	"github.com/xkilldash9x/inputpipe/internal/input/observer"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

const createAcksTable = `
        CREATE TABLE IF NOT EXISTS input_acks (
            session_id  TEXT        NOT NULL,
            trace_id    BIGINT      NOT NULL,
            category    TEXT        NOT NULL,
            event_type  TEXT        NOT NULL,
            ack_state   TEXT        NOT NULL,
            latency_ms  DOUBLE PRECISION NOT NULL,
            components  JSONB       NOT NULL,
            acked_at    TIMESTAMPTZ NOT NULL
        );
    `

var ackColumns = []string{"session_id", "trace_id", "category", "event_type", "ack_state", "latency_ms", "components", "acked_at"}

// flushTimeout bounds the final flush once the run context is gone.
const flushTimeout = 5 * time.Second

// Journal persists resolved input events to Postgres for latency analysis.
// Record never blocks: when the buffer is full the record is counted as
// dropped.
type Journal struct {
	pool          DBPool
	log           *zap.Logger
	session       string
	batchSize     int
	flushInterval time.Duration
	records       chan observer.Record

	written atomic.Int64
	dropped atomic.Int64
}

var _ observer.Sink = (*Journal)(nil)

// New creates a journal for one session and verifies the connection.
func New(ctx context.Context, pool DBPool, cfg config.JournalConfig, session string, logger *zap.Logger) (*Journal, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 256
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &Journal{
		pool:          pool,
		log:           logger.Named("journal").With(zap.String("session_id", session)),
		session:       session,
		batchSize:     batch,
		flushInterval: interval,
		records:       make(chan observer.Record, batch*4),
	}, nil
}

// EnsureSchema creates the acks table if it does not exist.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.pool.Exec(ctx, createAcksTable); err != nil {
		return fmt.Errorf("failed to create input_acks table: %w", err)
	}
	return nil
}

// Record queues rec for the next flush.
func (j *Journal) Record(rec observer.Record) {
	select {
	case j.records <- rec:
	default:
		if j.dropped.Add(1) == 1 {
			j.log.Warn("Journal buffer full, dropping records.")
		}
	}
}

// Written returns how many rows reached the database.
func (j *Journal) Written() int64 { return j.written.Load() }

// Dropped returns how many records were lost to a full buffer or a failed flush.
func (j *Journal) Dropped() int64 { return j.dropped.Load() }

// Run flushes queued records every flush interval or whenever a full batch
// is waiting. Once ctx is done the remaining records are flushed and Run
// returns. Flush failures are logged and the batch is dropped.
func (j *Journal) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.flushInterval)
	defer ticker.Stop()

	batch := make([]observer.Record, 0, j.batchSize)
	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case rec := <-j.records:
					batch = append(batch, rec)
				default:
					break drain
				}
			}
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			j.flush(flushCtx, batch)
			cancel()
			j.log.Info("Journal stopped.", zap.Int64("written", j.Written()), zap.Int64("dropped", j.Dropped()))
			return nil
		case rec := <-j.records:
			batch = append(batch, rec)
			if len(batch) >= j.batchSize {
				j.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				j.flush(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

func (j *Journal) flush(ctx context.Context, batch []observer.Record) {
	if len(batch) == 0 {
		return
	}
	rows := make([][]any, 0, len(batch))
	for _, rec := range batch {
		components, err := json.Marshal(rec.Components)
		if err != nil {
			j.log.Error("Failed to encode latency components.", zap.Int64("trace_id", rec.TraceID), zap.Error(err))
			j.dropped.Add(1)
			continue
		}
		rows = append(rows, []any{
			j.session,
			rec.TraceID,
			rec.Category.String(),
			string(rec.Type),
			string(rec.State),
			float64(rec.Latency()) / float64(time.Millisecond),
			components,
			rec.AckedAt,
		})
	}

	n, err := j.pool.CopyFrom(ctx, pgx.Identifier{"input_acks"}, ackColumns, pgx.CopyFromRows(rows))
	if err != nil {
		j.dropped.Add(int64(len(rows)))
		j.log.Error("Failed to flush journal batch.", zap.Int("rows", len(rows)), zap.Error(err))
		return
	}
	j.written.Add(n)
	j.log.Debug("Flushed journal batch.", zap.Int64("rows", n))
}

// LatencySummary aggregates the acks of one event type.
type LatencySummary struct {
	EventType string
	AckState  string
	Count     int64
	MeanMs    float64
	MaxMs     float64
}

// Summarize reports per type and ack state latency for a session.
func (j *Journal) Summarize(ctx context.Context, session string) ([]LatencySummary, error) {
	return Summarize(ctx, j.pool, session)
}

// Summarize reports per type and ack state latency for a session.
func Summarize(ctx context.Context, pool DBPool, session string) ([]LatencySummary, error) {
	query := `
        SELECT event_type, ack_state, COUNT(*), AVG(latency_ms), MAX(latency_ms)
        FROM input_acks
        WHERE session_id = $1
        GROUP BY event_type, ack_state
        ORDER BY event_type ASC, ack_state ASC;
    `
	rows, err := pool.Query(ctx, query, session)
	if err != nil {
		return nil, fmt.Errorf("failed to query latency summary: %w", err)
	}
	defer rows.Close()

	var out []LatencySummary
	for rows.Next() {
		var s LatencySummary
		if err := rows.Scan(&s.EventType, &s.AckState, &s.Count, &s.MeanMs, &s.MaxMs); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
