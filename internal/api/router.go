package api

import (
	"context"
	"net/http"

	"github.com/triage-ai/portfolio-guard/internal/auth"
	"github.com/triage-ai/portfolio-guard/internal/chread"
	"github.com/triage-ai/portfolio-guard/internal/engine"
	"github.com/triage-ai/portfolio-guard/internal/metrics"
	"github.com/triage-ai/portfolio-guard/internal/pipeline"
	"github.com/triage-ai/portfolio-guard/internal/ratelimit"
	"github.com/triage-ai/portfolio-guard/internal/storage"
	"github.com/triage-ai/portfolio-guard/internal/store"
	"go.uber.org/zap"
)

// PromptStore is the prompt-version persistence used by the admin handlers.
type PromptStore interface {
	GetActiveVersion(ctx context.Context, agentType string) (*store.PromptVersion, error)
	ListVersions(ctx context.Context, agentType string) ([]*store.PromptVersion, error)
	CreateVersion(ctx context.Context, agentType, prompt, notes string, activate bool) (*store.PromptVersion, error)
	ActivateVersion(ctx context.Context, agentType string, version int) (*store.PromptVersion, error)
}

// EventReader is the ClickHouse read side behind the admin event views.
type EventReader interface {
	ListEvents(ctx context.Context, params chread.ListEventsParams) ([]chread.EventRow, int, error)
	GetEvent(ctx context.Context, eventID string) (*chread.EventRow, error)
	GetAnalytics(ctx context.Context, days int) (*chread.AnalyticsResult, error)
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Pipeline   *pipeline.Pipeline
	Classifier *engine.Classifier
	Events     *storage.EventLog
	Prompts    PromptStore // nil if Postgres unavailable
	Reader     EventReader // nil if ClickHouse unavailable
	Auth       auth.Authenticator
	Metrics    *metrics.Metrics
	Logger     *zap.Logger

	// ChatProfile and FitProfile default to the pipeline profiles.
	ChatProfile pipeline.Profile
	FitProfile  pipeline.Profile

	// LoginLimiter bounds failed admin logins per client. Default: 5/min in memory.
	LoginLimiter  ratelimit.Limiter
	SecureCookies bool
	AllowedOrigin string // Default: "*"
}

const defaultLoginAttempts = 5

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	deps.setDefaults()
	mux := http.NewServeMux()

	// AI-backed endpoints, each behind the guardrail pipeline
	mux.HandleFunc("POST /api/chat", deps.Pipeline.Handler(deps.ChatProfile))
	mux.HandleFunc("POST /api/fit-assessment", deps.Pipeline.Handler(deps.FitProfile))

	// Public transparency panel
	mux.HandleFunc("GET /api/guardrails", deps.handleGuardrails)

	// Admin session
	mux.HandleFunc("POST /api/admin/login", deps.handleLogin)
	mux.HandleFunc("POST /api/admin/logout", deps.handleLogout)

	// Prompt versions (admin)
	mux.HandleFunc("GET /api/admin/prompts/{agent_type}", deps.requireAdmin(deps.handleListPrompts))
	mux.HandleFunc("POST /api/admin/prompts/{agent_type}", deps.requireAdmin(deps.handleCreatePrompt))
	mux.HandleFunc("POST /api/admin/prompts/{agent_type}/{version}/activate", deps.requireAdmin(deps.handleActivatePrompt))

	// Security events (admin)
	mux.HandleFunc("GET /api/admin/security/summary", deps.requireAdmin(deps.handleSecuritySummary))
	mux.HandleFunc("GET /api/admin/security/events", deps.requireAdmin(deps.handleListEvents))
	mux.HandleFunc("GET /api/admin/security/events/{event_id}", deps.requireAdmin(deps.handleGetEvent))
	mux.HandleFunc("GET /api/admin/security/analytics", deps.requireAdmin(deps.handleGetAnalytics))

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	return corsMiddleware(requestID(requestLogging(mux, deps.Logger, deps.Metrics)), deps.AllowedOrigin)
}

func (d *Dependencies) setDefaults() {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.ChatProfile.Name == "" {
		d.ChatProfile = pipeline.ChatProfile
	}
	if d.FitProfile.Name == "" {
		d.FitProfile = pipeline.FitAssessmentProfile
	}
	if d.LoginLimiter == nil {
		d.LoginLimiter = ratelimit.NewMemory(defaultLoginAttempts)
	}
	if d.AllowedOrigin == "" {
		d.AllowedOrigin = "*"
	}
}

// agentTypes are the prompt keys the admin may manage.
func (d *Dependencies) agentTypes() []string {
	return []string{d.ChatProfile.AgentType, d.FitProfile.AgentType}
}

func (d *Dependencies) knownAgentType(agentType string) bool {
	for _, t := range d.agentTypes() {
		if t == agentType {
			return true
		}
	}
	return false
}
