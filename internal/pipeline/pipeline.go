// Package pipeline is the guardrail pipeline in front of every AI-backed
// endpoint: identify the client, enforce the rate limit, validate the body,
// classify user messages, then stream the completion.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/triage-ai/portfolio-guard/internal/completion"
	"github.com/triage-ai/portfolio-guard/internal/engine"
	"github.com/triage-ai/portfolio-guard/internal/metrics"
	"github.com/triage-ai/portfolio-guard/internal/ratelimit"
	"github.com/triage-ai/portfolio-guard/internal/storage"
	"github.com/triage-ai/portfolio-guard/internal/store"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes caps request bodies read by the pipeline.
const DefaultMaxBodyBytes = 1 << 20

const promptLookupTimeout = 2 * time.Second

// PromptSource returns the active system prompt version for an agent type,
// or nil when none is active.
type PromptSource interface {
	GetActiveVersion(ctx context.Context, agentType string) (*store.PromptVersion, error)
}

// Deps holds the collaborators of a Pipeline. Prompts and Metrics may be nil.
type Deps struct {
	Limiter      ratelimit.Limiter
	Classifier   *engine.Classifier
	Events       *storage.EventLog
	Prompts      PromptSource
	Completion   completion.Service
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
	MaxBodyBytes int64
}

// Pipeline runs the guardrail stages for one request at a time. It holds no
// per-request state; the limiter is the only shared mutable state.
type Pipeline struct {
	limiter      ratelimit.Limiter
	classifier   *engine.Classifier
	events       *storage.EventLog
	prompts      PromptSource
	completion   completion.Service
	metrics      *metrics.Metrics
	logger       *zap.Logger
	maxBodyBytes int64
}

// New creates a Pipeline.
func New(d Deps) *Pipeline {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if d.Events == nil {
		d.Events = storage.NewEventLog(nil)
	}
	return &Pipeline{
		limiter:      d.Limiter,
		classifier:   d.Classifier,
		events:       d.Events,
		prompts:      d.Prompts,
		completion:   d.Completion,
		metrics:      d.Metrics,
		logger:       d.Logger,
		maxBodyBytes: d.MaxBodyBytes,
	}
}

// RateLimit returns the per-window request quota.
func (p *Pipeline) RateLimit() int { return p.limiter.Limit() }

// Admission is an admitted request, ready to forward.
type Admission struct {
	RequestID string
	ClientID  string
	// Messages holds the request messages with user content replaced by its
	// sanitized form.
	Messages []engine.Message
}

// Admit runs every stage up to and including quota accounting. Exactly one
// of the results is non-nil. Quota is consumed only when the request is
// admitted.
func (p *Pipeline) Admit(ctx context.Context, clientID string, body io.Reader, profile Profile) (*Admission, *Rejection) {
	requestID := RequestIDFromContext(ctx)
	log := p.logger.With(
		zap.String("request_id", requestID),
		zap.String("client_id", clientID),
		zap.String("profile", profile.Name),
	)

	res := p.admit(ctx, log, requestID, clientID, body, profile)
	if res.rejection != nil {
		p.metrics.RecordRequest(profile.Name, res.rejection.outcome)
		return nil, res.rejection
	}

	p.limiter.Record(ctx, clientID)
	p.metrics.RecordRequest(profile.Name, metrics.OutcomeAdmitted)
	return &Admission{
		RequestID: requestID,
		ClientID:  clientID,
		Messages:  res.messages,
	}, nil
}

type admitResult struct {
	messages  []engine.Message
	rejection *Rejection
}

func (p *Pipeline) admit(ctx context.Context, log *zap.Logger, requestID, clientID string, body io.Reader, profile Profile) admitResult {
	// Rate limit is checked before the body is read to shed load cheaply.
	if p.limiter.IsLimited(ctx, clientID) {
		retry := p.limiter.SecondsUntilReset(ctx, clientID)
		count := p.limiter.Count(ctx, clientID)
		detail := RateLimitDetail(count, p.limiter.Limit(), retry)
		p.metrics.RecordRejection(profile.Name, string(detail.Type), string(detail.Severity))
		log.Info("rate limited", zap.Int("count", count), zap.Int("retry_after_s", retry))
		return admitResult{rejection: &Rejection{
			Status:     http.StatusTooManyRequests,
			RetryAfter: retry,
			Body: Violation{
				Error:     fmt.Sprintf("Too many requests. Please wait %d seconds before trying again.", retry),
				Guardrail: detail,
			},
			outcome: metrics.OutcomeRateLimited,
		}}
	}

	raw, err := io.ReadAll(io.LimitReader(body, p.maxBodyBytes+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return admitResult{rejection: plainRejection(msgBodyTooLarge, metrics.OutcomeMalformed)}
		}
		log.Warn("failed to read request body", zap.Error(err))
		return admitResult{rejection: plainRejection(msgBodyUnreadable, metrics.OutcomeMalformed)}
	}
	if int64(len(raw)) > p.maxBodyBytes {
		return admitResult{rejection: plainRejection(msgBodyTooLarge, metrics.OutcomeMalformed)}
	}

	req, err := parseRequest(raw)
	if err != nil {
		var pe *parseError
		if errors.As(err, &pe) && pe.malformed {
			log.Debug("malformed request body", zap.Error(err))
			return admitResult{rejection: plainRejection(msgMalformedJSON, metrics.OutcomeMalformed)}
		}
		log.Debug("invalid request shape", zap.Error(err))
		return admitResult{rejection: plainRejection(msgInvalidShape, metrics.OutcomeInvalidShape)}
	}

	start := time.Now()
	defer func() { p.metrics.ObserveClassify(profile.Name, time.Since(start)) }()

	for i, m := range req.Messages {
		// Assistant turns were produced by this service and are trusted.
		if m.Role != engine.RoleUser {
			continue
		}
		v := p.classifier.Classify(m.Content, profile.Profile)
		if !v.IsValid {
			p.recordViolation(requestID, clientID, profile, i, m.Content, v)
			log.Info("guardrail rejection",
				zap.String("guardrail_type", string(v.Detail.Type)),
				zap.String("severity", string(v.Severity)),
				zap.Int("message_index", i),
			)
			return admitResult{rejection: &Rejection{
				Status:  http.StatusBadRequest,
				Body:    Violation{Error: v.Reason, Guardrail: v.Detail},
				outcome: metrics.OutcomeRejected,
			}}
		}
		req.Messages[i].Content = v.SanitizedInput
	}

	return admitResult{messages: req.Messages}
}

func (p *Pipeline) recordViolation(requestID, clientID string, profile Profile, index int, content string, v engine.Verdict) {
	eventType := storage.EventValidationFailure
	if v.Detail.Type == engine.TypePromptInjection {
		eventType = storage.EventPromptInjection
	}
	p.events.Record(&storage.SecurityEvent{
		RequestID:      requestID,
		Type:           eventType,
		Severity:       string(v.Severity),
		GuardrailType:  string(v.Detail.Type),
		Profile:        profile.Name,
		ClientID:       clientID,
		MessageIndex:   index,
		Detected:       v.Detail.Detected,
		PayloadPreview: storage.TruncatePayload(content, storage.PayloadPreviewLength),
		PayloadHash:    storage.HashPayload(content),
		PayloadSize:    uint32(len(content)),
	})
	p.metrics.RecordRejection(profile.Name, string(v.Detail.Type), string(v.Severity))
}

func plainRejection(msg, outcome string) *Rejection {
	return &Rejection{
		Status:  http.StatusBadRequest,
		Body:    Violation{Error: msg},
		outcome: outcome,
	}
}

// SystemPrompt loads the active prompt for profile, falling back to the
// profile default when the store has none or fails.
func (p *Pipeline) SystemPrompt(ctx context.Context, profile Profile) string {
	if p.prompts == nil {
		return profile.DefaultPrompt
	}
	ctx, cancel := context.WithTimeout(ctx, promptLookupTimeout)
	defer cancel()

	pv, err := p.prompts.GetActiveVersion(ctx, profile.AgentType)
	if err != nil {
		p.logger.Warn("prompt lookup failed, using default prompt",
			zap.String("agent_type", profile.AgentType),
			zap.Error(err),
		)
		return profile.DefaultPrompt
	}
	if pv == nil || pv.Prompt == "" {
		return profile.DefaultPrompt
	}
	return pv.Prompt
}
