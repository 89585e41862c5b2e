package storage

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventLog is the append-only security event recorder used by the pipeline.
// It keeps in-process counters by event type and severity and forwards each
// event to an EventWriter for persistence.
type EventLog struct {
	writer EventWriter
	now    func() time.Time

	mu      sync.Mutex
	started time.Time
	total   int
	counts  map[EventType]map[string]int
	last    time.Time
}

// Summary is a point-in-time copy of the counters.
type Summary struct {
	Since      time.Time                    `json:"since"`
	Total      int                          `json:"total"`
	Counts     map[EventType]map[string]int `json:"counts"`
	LastRecord *time.Time                   `json:"last_recorded_at,omitempty"`
}

// NewEventLog creates a log forwarding to writer. A nil writer keeps the
// counters only.
func NewEventLog(writer EventWriter) *EventLog {
	return &EventLog{
		writer:  writer,
		now:     time.Now,
		started: time.Now().UTC(),
		counts:  make(map[EventType]map[string]int),
	}
}

// Record counts the event and hands it to the writer. It fills EventID and
// Timestamp when unset. Never blocks on I/O.
func (l *EventLog) Record(e *SecurityEvent) {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}

	l.mu.Lock()
	bySeverity, ok := l.counts[e.Type]
	if !ok {
		bySeverity = make(map[string]int)
		l.counts[e.Type] = bySeverity
	}
	bySeverity[e.Severity]++
	l.total++
	l.last = e.Timestamp
	l.mu.Unlock()

	if l.writer != nil {
		l.writer.Write(e)
	}
}

// Snapshot returns a copy of the counters.
func (l *EventLog) Snapshot() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[EventType]map[string]int, len(l.counts))
	for t, bySeverity := range l.counts {
		cp := make(map[string]int, len(bySeverity))
		for s, n := range bySeverity {
			cp[s] = n
		}
		counts[t] = cp
	}
	s := Summary{Since: l.started, Total: l.total, Counts: counts}
	if !l.last.IsZero() {
		last := l.last
		s.LastRecord = &last
	}
	return s
}

// Close closes the underlying writer.
func (l *EventLog) Close() {
	if l.writer != nil {
		l.writer.Close()
	}
}
