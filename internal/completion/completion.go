// Package completion streams chat completions from a language model.
package completion

import (
	"context"
	"fmt"

	"github.com/triage-ai/portfolio-guard/internal/engine"
)

// Request is one completion call. Messages have already passed the guardrails.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []engine.Message
}

// Stream yields completion text fragments in order.
type Stream interface {
	// Recv returns the next fragment, or io.EOF once the completion is done.
	Recv() (string, error)
	Close() error
}

// Service opens completion streams.
type Service interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}

// APIError is a non-2xx response from the completion endpoint. Body is kept
// for logs only and must never be echoed to a caller.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("completion api returned status %d", e.StatusCode)
}
