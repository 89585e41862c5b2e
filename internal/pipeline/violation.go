package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/triage-ai/portfolio-guard/internal/engine"
)

// Violation is the wire envelope for every non-streaming failure. Guardrail
// is omitted for plain client or server errors.
type Violation struct {
	Error     string                  `json:"error"`
	Guardrail *engine.GuardrailDetail `json:"guardrail,omitempty"`
}

// Fixed client-facing messages. Nothing else is ever returned on failure.
const (
	msgMalformedJSON   = "Invalid JSON in request body."
	msgBodyTooLarge    = "Request body too large."
	msgBodyUnreadable  = "Could not read request body."
	msgInvalidShape    = "Invalid request: expected a non-empty messages array of {role, content} objects with role user or assistant."
	msgCompletionError = "Failed to generate a response. Please try again."
)

// RateLimitDetail builds the guardrail detail for a rate-limited request.
func RateLimitDetail(count, limit, retryAfter int) *engine.GuardrailDetail {
	return &engine.GuardrailDetail{
		Type:        engine.TypeRateLimit,
		Severity:    engine.SeverityMedium,
		Category:    "Rate Limiting",
		Explanation: "Each visitor can send a limited number of messages per minute. This keeps the assistant available for everyone and makes automated probing expensive.",
		Detected:    fmt.Sprintf("%d requests in the current window (limit %d per minute)", count, limit),
		Implementation: fmt.Sprintf(
			"Per-client fixed window counter keyed by forwarded IP: %d requests per 60 seconds, checked before the request body is read.", limit),
		Context: map[string]any{
			"currentCount": count,
			"limit":        limit,
			"retryAfter":   retryAfter,
		},
	}
}

// Rejection is a terminal pipeline decision.
type Rejection struct {
	Status int
	// RetryAfter is sent as the Retry-After header when > 0.
	RetryAfter int
	Body       Violation

	outcome string
}

// WriteRejection writes rej as a JSON response.
func WriteRejection(w http.ResponseWriter, rej *Rejection) {
	if rej.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(rej.RetryAfter))
	}
	writeJSON(w, rej.Status, rej.Body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
