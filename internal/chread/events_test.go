package chread

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/triage-ai/portfolio-guard/internal/storage"
	"go.uber.org/zap"
)

func strPtr(s string) *string { return &s }

func TestListEventsParams_Filter(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		params   ListEventsParams
		contains []string
		args     int
	}{
		{"no filters", ListEventsParams{}, []string{"1 = 1"}, 0},
		{"event type", ListEventsParams{EventType: strPtr("prompt_injection")}, []string{"event_type = @event_type"}, 1},
		{
			"several",
			ListEventsParams{Severity: strPtr("high"), ClientID: strPtr("1.2.3.4"), StartTime: &start},
			[]string{"severity = @severity", "client_id = @client_id", "timestamp >= @start_time"},
			3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := tt.params.filter()
			for _, c := range tt.contains {
				if !strings.Contains(where, c) {
					t.Errorf("expected %q in %q", c, where)
				}
			}
			if len(args) != tt.args {
				t.Errorf("expected %d args, got %d", tt.args, len(args))
			}
		})
	}
}

// TestReader_RoundTrip writes through ClickHouseWriter and reads it back.
// Requires CLICKHOUSE_DSN.
func TestReader_RoundTrip(t *testing.T) {
	dsn := os.Getenv("CLICKHOUSE_DSN")
	if dsn == "" {
		t.Skip("CLICKHOUSE_DSN not set")
	}
	logger := zap.NewNop()

	w, err := storage.NewClickHouseWriter(dsn, logger)
	if err != nil {
		t.Skipf("clickhouse unavailable: %v", err)
	}
	r, err := NewReader(dsn, logger)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	clientID := "test-" + uuid.NewString()
	log := storage.NewEventLog(w)
	log.Record(&storage.SecurityEvent{
		RequestID:     uuid.NewString(),
		Type:          storage.EventPromptInjection,
		Severity:      "high",
		GuardrailType: "prompt_injection",
		Profile:       "chat",
		ClientID:      clientID,
		Detected:      "Instruction override phrase",
	})
	log.Close() // drains the writer

	ctx := context.Background()
	events, total, err := r.ListEvents(ctx, ListEventsParams{ClientID: &clientID, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if total != 1 || len(events) != 1 {
		t.Fatalf("expected 1 event, got total=%d len=%d", total, len(events))
	}

	got, err := r.GetEvent(ctx, events[0].EventID)
	if err != nil || got == nil {
		t.Fatalf("GetEvent: %v %v", got, err)
	}
	if got.GuardrailType != "prompt_injection" {
		t.Errorf("unexpected guardrail type %q", got.GuardrailType)
	}

	missing, err := r.GetEvent(ctx, uuid.NewString())
	if err != nil || missing != nil {
		t.Errorf("expected nil for unknown event, got %v %v", missing, err)
	}
}
