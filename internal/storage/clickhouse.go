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

// ClickHouseWriter writes security events to ClickHouse asynchronously.
// Write() is non-blocking: events are buffered and batch-inserted in a background goroutine.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *SecurityEvent
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger
}

// NewClickHouseWriter creates a ClickHouseWriter and starts the background flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	conn, err := OpenClickHouse(dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Exec(ctx, EventsTableDDL); err != nil {
		logger.Warn("clickhouse events table check failed", zap.Error(err))
	}
	return newClickHouseWriter(conn, logger), nil
}

// EventsTableDDL creates the guardrail event table if it does not exist.
const EventsTableDDL = `
CREATE TABLE IF NOT EXISTS guardrail_events (
	event_id        String,
	request_id      String,
	timestamp       DateTime64(3, 'UTC'),
	event_type      LowCardinality(String),
	severity        LowCardinality(String),
	guardrail_type  LowCardinality(String),
	profile         LowCardinality(String),
	client_id       String,
	message_index   UInt16,
	detected        String,
	payload_preview String,
	payload_hash    String,
	payload_size    UInt32
) ENGINE = MergeTree
ORDER BY (timestamp, event_id)
TTL toDateTime(timestamp) + INTERVAL 90 DAY`

// OpenClickHouse parses dsn, connects and pings. Secure DSNs (?secure=true)
// get TLS from ParseDSN.
func OpenClickHouse(dsn string) (driver.Conn, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("OpenClickHouse: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("OpenClickHouse: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("OpenClickHouse: ping: %w", err)
	}
	return conn, nil
}

func newClickHouseWriter(conn driver.Conn, logger *zap.Logger) *ClickHouseWriter {
	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *SecurityEvent, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go w.flushLoop()
	return w
}

// Write queues a security event for async insertion.
// Non-blocking: drops the event if the buffer is full.
func (w *ClickHouseWriter) Write(event *SecurityEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("request_id", event.RequestID),
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

	batch := make([]*SecurityEvent, 0, flushBatch)

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
			// Drain remaining events from buffer
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

func (w *ClickHouseWriter) flush(events []*SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO guardrail_events (
			event_id, request_id, timestamp, event_type,
			severity, guardrail_type, profile, client_id,
			message_index, detected,
			payload_preview, payload_hash, payload_size
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range events {
		if err := batch.Append(
			e.EventID,
			e.RequestID,
			e.Timestamp,
			string(e.Type),
			e.Severity,
			e.GuardrailType,
			e.Profile,
			e.ClientID,
			uint16(e.MessageIndex),
			e.Detected,
			e.PayloadPreview,
			e.PayloadHash,
			e.PayloadSize,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("request_id", e.RequestID),
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

// LogWriter is a fallback EventWriter for local development.
// It logs events as structured JSON to stdout via zap.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *SecurityEvent) {
	w.logger.Warn("security_event",
		zap.String("event_id", event.EventID),
		zap.String("request_id", event.RequestID),
		zap.String("event_type", string(event.Type)),
		zap.String("severity", event.Severity),
		zap.String("guardrail_type", event.GuardrailType),
		zap.String("profile", event.Profile),
		zap.String("client_id", event.ClientID),
		zap.Int("message_index", event.MessageIndex),
		zap.String("detected", event.Detected),
		zap.String("payload_hash", event.PayloadHash),
		zap.Uint32("payload_size", event.PayloadSize),
	)
}

func (w *LogWriter) Close() {}
