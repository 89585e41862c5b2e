package api

import (
	"time"

	"github.com/triage-ai/portfolio-guard/internal/chread"
	"github.com/triage-ai/portfolio-guard/internal/engine"
	"github.com/triage-ai/portfolio-guard/internal/store"
)

// --- GET /api/guardrails ---

// GuardrailsResp lists the active rules for the public transparency panel.
type GuardrailsResp struct {
	Guardrails []engine.CatalogEntry `json:"guardrails"`
	RateLimit  RateLimitResp         `json:"rate_limit"`
}

// RateLimitResp describes the per-client request budget.
type RateLimitResp struct {
	Limit         int `json:"limit"`
	WindowSeconds int `json:"window_seconds"`
}

// --- Admin session ---

// LoginReq is the JSON body for POST /api/admin/login.
type LoginReq struct {
	Password string `json:"password"`
}

// LoginResp is returned on a successful login. The token itself only travels
// in the session cookie.
type LoginResp struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// --- Prompt versions ---

// CreatePromptReq is the JSON body for POST /api/admin/prompts/{agent_type}.
type CreatePromptReq struct {
	Prompt   string `json:"prompt"`
	Notes    string `json:"notes,omitempty"`
	Activate bool   `json:"activate,omitempty"`
}

// PromptVersionResp is a single prompt version.
type PromptVersionResp struct {
	ID          int64      `json:"id"`
	AgentType   string     `json:"agent_type"`
	Version     int        `json:"version"`
	Prompt      string     `json:"prompt"`
	Notes       string     `json:"notes,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}

// PromptListResp lists versions for one agent type, newest first.
type PromptListResp struct {
	AgentType string              `json:"agent_type"`
	Versions  []PromptVersionResp `json:"versions"`
}

func promptToResp(p *store.PromptVersion) PromptVersionResp {
	return PromptVersionResp{
		ID:          p.ID,
		AgentType:   p.AgentType,
		Version:     p.Version,
		Prompt:      p.Prompt,
		Notes:       p.Notes,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		ActivatedAt: p.ActivatedAt,
	}
}

// --- Security events ---

// SecurityEventResp is a single stored guardrail event.
type SecurityEventResp struct {
	EventID        string    `json:"event_id"`
	RequestID      string    `json:"request_id"`
	Timestamp      time.Time `json:"timestamp"`
	EventType      string    `json:"event_type"`
	Severity       string    `json:"severity"`
	GuardrailType  string    `json:"guardrail_type"`
	Profile        string    `json:"profile"`
	ClientID       string    `json:"client_id"`
	MessageIndex   int       `json:"message_index"`
	Detected       string    `json:"detected"`
	PayloadPreview string    `json:"payload_preview"`
	PayloadHash    string    `json:"payload_hash"`
	PayloadSize    int       `json:"payload_size"`
}

// EventListResp is the paginated response for GET /api/admin/security/events.
type EventListResp struct {
	Events   []SecurityEventResp `json:"events"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

func eventRowToResp(e chread.EventRow) SecurityEventResp {
	return SecurityEventResp{
		EventID:        e.EventID,
		RequestID:      e.RequestID,
		Timestamp:      e.Timestamp,
		EventType:      e.EventType,
		Severity:       e.Severity,
		GuardrailType:  e.GuardrailType,
		Profile:        e.Profile,
		ClientID:       e.ClientID,
		MessageIndex:   int(e.MessageIndex),
		Detected:       e.Detected,
		PayloadPreview: e.PayloadPreview,
		PayloadHash:    e.PayloadHash,
		PayloadSize:    int(e.PayloadSize),
	}
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
