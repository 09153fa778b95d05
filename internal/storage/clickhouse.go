package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// CreateTableSQL is the schema ClickHouseWriter inserts into.
const CreateTableSQL = `
CREATE TABLE IF NOT EXISTS analysis_events (
	interaction_id     String,
	tab_id             Int32,
	service            LowCardinality(String),
	url                String,
	stage              LowCardinality(String),
	timestamp          DateTime64(3),
	bias_score         Float32,
	bias_level         LowCardinality(String),
	privacy_score      Float32,
	privacy_level      LowCardinality(String),
	safety_score       Float32,
	safety_level       LowCardinality(String),
	transparency_score Float32,
	transparency_level LowCardinality(String),
	overall_score      Float32,
	rating             LowCardinality(String),
	details            Array(String)
) ENGINE = MergeTree
ORDER BY (service, timestamp)`

// ClickHouseWriter writes analysis events to ClickHouse asynchronously.
// Write() is non-blocking: events are buffered and batch-inserted in a
// background goroutine.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *AnalysisEvent
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger
}

// OpenClickHouse parses dsn, connects and pings. TLS is enabled by the DSN's
// secure=true parameter.
func OpenClickHouse(ctx context.Context, dsn string) (driver.Conn, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("OpenClickHouse: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("OpenClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("OpenClickHouse: %w", err)
	}
	return conn, nil
}

// NewClickHouseWriter ensures the events table exists and starts the
// background flush loop.
func NewClickHouseWriter(ctx context.Context, conn driver.Conn, logger *zap.Logger) (*ClickHouseWriter, error) {
	if err := conn.Exec(ctx, CreateTableSQL); err != nil {
		return nil, fmt.Errorf("NewClickHouseWriter: %w", err)
	}

	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *AnalysisEvent, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go w.flushLoop()
	return w, nil
}

// Write queues an event for async insertion.
// Non-blocking: drops the event if the buffer is full.
func (w *ClickHouseWriter) Write(event *AnalysisEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("interaction_id", event.InteractionID),
			zap.String("stage", event.Stage),
		)
	}
}

// Close signals the flush loop to drain remaining events, waits for it to
// finish (up to drainTimeout), and then returns. Safe to call once.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*AnalysisEvent, 0, flushBatch)

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case event := <-w.buffer:
					batch = append(batch, event)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(events []*AnalysisEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO analysis_events (
			interaction_id, tab_id, service, url, stage, timestamp,
			bias_score, bias_level, privacy_score, privacy_level,
			safety_score, safety_level, transparency_score, transparency_level,
			overall_score, rating, details
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range events {
		if err := batch.Append(
			e.InteractionID,
			e.TabID,
			e.Service,
			e.URL,
			e.Stage,
			e.Timestamp,
			e.BiasScore,
			e.BiasLevel,
			e.PrivacyScore,
			e.PrivacyLevel,
			e.SafetyScore,
			e.SafetyLevel,
			e.TransparencyScore,
			e.TransparencyLevel,
			e.OverallScore,
			e.Rating,
			e.Details,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("interaction_id", e.InteractionID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

// LogWriter is the fallback EventWriter when no ClickHouse is configured.
// It logs events as structured JSON via zap.
type LogWriter struct {
	logger *zap.Logger
}

func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *AnalysisEvent) {
	fields := []zap.Field{
		zap.String("interaction_id", event.InteractionID),
		zap.Int32("tab_id", event.TabID),
		zap.String("service", event.Service),
		zap.String("stage", event.Stage),
		zap.Float32("bias", event.BiasScore),
		zap.Float32("privacy", event.PrivacyScore),
		zap.Float32("transparency", event.TransparencyScore),
		zap.Float32("overall", event.OverallScore),
		zap.String("rating", event.Rating),
	}
	if event.SafetyLevel != "" {
		fields = append(fields, zap.Float32("safety", event.SafetyScore))
	}
	w.logger.Info("analysis_event", fields...)
}

func (w *LogWriter) Close() {}
