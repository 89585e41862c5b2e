package storage

import (
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type memWriter struct {
	mu     sync.Mutex
	events []*SecurityEvent
	closed bool
}

func (w *memWriter) Write(e *SecurityEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, e)
}

func (w *memWriter) Close() { w.closed = true }

func TestEventLog_RecordCountsAndForwards(t *testing.T) {
	w := &memWriter{}
	log := NewEventLog(w)

	log.Record(&SecurityEvent{Type: EventPromptInjection, Severity: "high"})
	log.Record(&SecurityEvent{Type: EventPromptInjection, Severity: "high"})
	log.Record(&SecurityEvent{Type: EventValidationFailure, Severity: "low"})

	s := log.Snapshot()
	if s.Total != 3 {
		t.Errorf("expected total 3, got %d", s.Total)
	}
	if got := s.Counts[EventPromptInjection]["high"]; got != 2 {
		t.Errorf("expected 2 high prompt_injection, got %d", got)
	}
	if got := s.Counts[EventValidationFailure]["low"]; got != 1 {
		t.Errorf("expected 1 low validation_failure, got %d", got)
	}
	if s.LastRecord == nil {
		t.Error("expected last record time")
	}

	if len(w.events) != 3 {
		t.Fatalf("expected 3 forwarded events, got %d", len(w.events))
	}
	for _, e := range w.events {
		if e.EventID == "" || e.Timestamp.IsZero() {
			t.Errorf("event id and timestamp should be filled: %+v", e)
		}
	}

	log.Close()
	if !w.closed {
		t.Error("Close should close the writer")
	}
}

func TestEventLog_SnapshotIsCopy(t *testing.T) {
	log := NewEventLog(nil)
	log.Record(&SecurityEvent{Type: EventPromptInjection, Severity: "high"})

	s := log.Snapshot()
	s.Counts[EventPromptInjection]["high"] = 100

	if got := log.Snapshot().Counts[EventPromptInjection]["high"]; got != 1 {
		t.Errorf("snapshot mutation leaked into log: %d", got)
	}
}

func TestEventLog_EmptySnapshot(t *testing.T) {
	s := NewEventLog(nil).Snapshot()
	if s.Total != 0 || len(s.Counts) != 0 || s.LastRecord != nil {
		t.Errorf("expected empty summary, got %+v", s)
	}
}

func TestEventLog_ConcurrentRecord(t *testing.T) {
	log := NewEventLog(&memWriter{})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				log.Record(&SecurityEvent{Type: EventValidationFailure, Severity: "medium"})
			}
		}()
	}
	wg.Wait()

	if got := log.Snapshot().Total; got != 1000 {
		t.Errorf("expected 1000, got %d", got)
	}
}

func TestLogWriter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	w := NewLogWriter(zap.New(core))

	w.Write(&SecurityEvent{
		RequestID:      "req-1",
		Type:           EventPromptInjection,
		Severity:       "high",
		GuardrailType:  "prompt_injection",
		PayloadPreview: "secret payload text",
	})

	entries := logs.FilterMessage("security_event").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" || fields["event_type"] != "prompt_injection" {
		t.Errorf("unexpected fields: %v", fields)
	}
	if _, ok := fields["payload_preview"]; ok {
		t.Error("payload preview must not be logged")
	}
}

func TestTruncatePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		max     int
		want    int
	}{
		{"short", "hello", 500, 5},
		{"exact", strings.Repeat("a", 500), 500, 500},
		{"long", strings.Repeat("a", 501), 500, 500},
		{"multibyte", strings.Repeat("日", 600), 500, 500},
	}
	for _, tt := range tests {
		got := TruncatePayload(tt.payload, tt.max)
		if n := utf8.RuneCountInString(got); n != tt.want {
			t.Errorf("%s: expected %d runes, got %d", tt.name, tt.want, n)
		}
		if !utf8.ValidString(got) {
			t.Errorf("%s: produced invalid UTF-8", tt.name)
		}
	}
}

func TestHashPayload(t *testing.T) {
	// sha256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := HashPayload("abc"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
