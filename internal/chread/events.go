package chread

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/triage-ai/portfolio-guard/internal/storage"
	"go.uber.org/zap"
)

// Reader provides read access to the ClickHouse guardrail_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	conn, err := storage.OpenClickHouse(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	return &Reader{conn: conn, logger: logger}, nil
}

// Ping checks the ClickHouse connection.
func (r *Reader) Ping(ctx context.Context) error {
	return r.conn.Ping(ctx)
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow represents a single row from the guardrail_events table.
type EventRow struct {
	EventID        string
	RequestID      string
	Timestamp      time.Time
	EventType      string
	Severity       string
	GuardrailType  string
	Profile        string
	ClientID       string
	MessageIndex   uint16
	Detected       string
	PayloadPreview string
	PayloadHash    string
	PayloadSize    uint32
}

const eventColumns = "event_id, request_id, timestamp, event_type, severity, guardrail_type, " +
	"profile, client_id, message_index, detected, payload_preview, payload_hash, payload_size"

func (e *EventRow) scanDest() []any {
	return []any{
		&e.EventID, &e.RequestID, &e.Timestamp, &e.EventType, &e.Severity, &e.GuardrailType,
		&e.Profile, &e.ClientID, &e.MessageIndex, &e.Detected, &e.PayloadPreview, &e.PayloadHash, &e.PayloadSize,
	}
}

// ListEventsParams holds filters and pagination for event listing.
type ListEventsParams struct {
	EventType     *string
	Severity      *string
	GuardrailType *string
	Profile       *string
	ClientID      *string
	StartTime     *time.Time
	EndTime       *time.Time
	Page          int
	PageSize      int
}

// filter builds the WHERE clause and named args for params.
func (p ListEventsParams) filter() (string, []any) {
	conditions := []string{"1 = 1"}
	var args []any

	add := func(column string, v *string) {
		if v == nil {
			return
		}
		conditions = append(conditions, fmt.Sprintf("%s = @%s", column, column))
		args = append(args, clickhouse.Named(column, *v))
	}
	add("event_type", p.EventType)
	add("severity", p.Severity)
	add("guardrail_type", p.GuardrailType)
	add("profile", p.Profile)
	add("client_id", p.ClientID)

	if p.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *p.StartTime))
	}
	if p.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *p.EndTime))
	}
	return strings.Join(conditions, " AND "), args
}

// ListEvents returns paginated, filtered guardrail events and the total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	where, args := params.filter()
	offset := (params.Page - 1) * params.PageSize

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM guardrail_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM guardrail_events WHERE %s ORDER BY timestamp DESC LIMIT @limit OFFSET @offset",
		eventColumns, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(e.scanDest()...); err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}

	return events, int(total), rows.Err()
}

// GetEvent returns a single event by ID, or nil if not found.
func (r *Reader) GetEvent(ctx context.Context, eventID string) (*EventRow, error) {
	rows, err := r.conn.Query(ctx,
		"SELECT "+eventColumns+" FROM guardrail_events WHERE event_id = @event_id LIMIT 1",
		clickhouse.Named("event_id", eventID),
	)
	if err != nil {
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var e EventRow
	if err := rows.Scan(e.scanDest()...); err != nil {
		return nil, fmt.Errorf("GetEvent scan: %w", err)
	}
	return &e, nil
}

// TimeSeriesBucket holds an hourly count.
type TimeSeriesBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// LabelCount holds a label (guardrail type, client) and its count.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// AnalyticsResult holds event aggregations over a time range.
type AnalyticsResult struct {
	Total          int                `json:"total"`
	BySeverity     map[string]int     `json:"by_severity"`
	EventsOverTime []TimeSeriesBucket `json:"events_over_time"`
	TopGuardrails  []LabelCount       `json:"top_guardrails"`
	TopClients     []LabelCount       `json:"top_clients"`
}

// GetAnalytics aggregates events over the last days days.
func (r *Reader) GetAnalytics(ctx context.Context, days int) (*AnalyticsResult, error) {
	rangeStart := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	baseArgs := []any{clickhouse.Named("range_start", rangeStart)}

	result := &AnalyticsResult{BySeverity: map[string]int{}}

	sevRows, err := r.conn.Query(ctx,
		"SELECT severity, count() FROM guardrail_events "+
			"WHERE timestamp >= @range_start GROUP BY severity",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics severity: %w", err)
	}
	defer func() { _ = sevRows.Close() }()
	for sevRows.Next() {
		var sev string
		var count uint64
		if err := sevRows.Scan(&sev, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics severity scan: %w", err)
		}
		result.BySeverity[sev] = int(count)
		result.Total += int(count)
	}

	hourRows, err := r.conn.Query(ctx,
		"SELECT toStartOfHour(timestamp) AS hour, count() FROM guardrail_events "+
			"WHERE timestamp >= @range_start GROUP BY hour ORDER BY hour",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics events_over_time: %w", err)
	}
	defer func() { _ = hourRows.Close() }()
	for hourRows.Next() {
		var hour time.Time
		var count uint64
		if err := hourRows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics events_over_time scan: %w", err)
		}
		result.EventsOverTime = append(result.EventsOverTime, TimeSeriesBucket{
			Hour:  hour.Format(time.RFC3339),
			Count: int(count),
		})
	}

	result.TopGuardrails, err = r.topLabels(ctx, "guardrail_type", rangeStart)
	if err != nil {
		return nil, err
	}
	result.TopClients, err = r.topLabels(ctx, "client_id", rangeStart)
	if err != nil {
		return nil, err
	}

	if result.EventsOverTime == nil {
		result.EventsOverTime = []TimeSeriesBucket{}
	}
	return result, nil
}

// topLabels returns the ten most frequent values of column. column is one of
// a fixed set of identifiers, never user input.
func (r *Reader) topLabels(ctx context.Context, column string, rangeStart time.Time) ([]LabelCount, error) {
	rows, err := r.conn.Query(ctx,
		fmt.Sprintf("SELECT %s AS label, count() AS n FROM guardrail_events "+
			"WHERE timestamp >= @range_start AND %s != '' "+
			"GROUP BY label ORDER BY n DESC LIMIT 10", column, column),
		clickhouse.Named("range_start", rangeStart),
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top %s: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	out := []LabelCount{}
	for rows.Next() {
		var label string
		var count uint64
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top %s scan: %w", column, err)
		}
		out = append(out, LabelCount{Label: label, Count: int(count)})
	}
	return out, rows.Err()
}
