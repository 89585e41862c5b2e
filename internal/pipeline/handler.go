package pipeline

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/triage-ai/portfolio-guard/internal/completion"
	"github.com/triage-ai/portfolio-guard/internal/metrics"
	"go.uber.org/zap"
)

// Handler binds the pipeline to an HTTP endpoint for profile.
func (p *Pipeline) Handler(profile Profile) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, p.maxBodyBytes)
		defer func() { _ = r.Body.Close() }()

		adm, rej := p.Admit(r.Context(), ClientIdentity(r), r.Body, profile)
		if rej != nil {
			WriteRejection(w, rej)
			return
		}
		p.stream(w, r, adm, profile)
	}
}

// stream forwards an admitted request and pipes the completion back as
// plain text, flushing after every fragment. Quota is already consumed and
// is not returned if the client disconnects.
func (p *Pipeline) stream(w http.ResponseWriter, r *http.Request, adm *Admission, profile Profile) {
	ctx := r.Context()
	log := p.logger.With(
		zap.String("request_id", adm.RequestID),
		zap.String("profile", profile.Name),
	)

	req := completion.Request{
		Model:        profile.Model,
		SystemPrompt: p.SystemPrompt(ctx, profile),
		Messages:     adm.Messages,
	}

	start := time.Now()
	s, err := p.completion.Stream(ctx, req)
	if err != nil {
		p.failBeforeStream(w, log, profile, err)
		return
	}
	defer func() { _ = s.Close() }()

	// Read the first fragment before committing to a 200 so that an early
	// failure can still be reported as a JSON error.
	first, err := s.Recv()
	if err != nil && !errors.Is(err, io.EOF) {
		p.failBeforeStream(w, log, profile, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	fragments := 0
	for err == nil {
		if first != "" {
			if _, werr := io.WriteString(w, first); werr != nil {
				log.Info("client went away during stream", zap.Error(werr))
				return
			}
			_ = rc.Flush()
			fragments++
		}
		first, err = s.Recv()
	}
	if !errors.Is(err, io.EOF) {
		// Headers are gone; all that is left is to cut the stream short.
		p.metrics.RecordCompletionError(profile.Name, "stream")
		log.Error("completion stream failed", zap.Int("fragments", fragments), zap.Error(err))
		return
	}

	p.metrics.ObserveStream(profile.Name, time.Since(start))
	log.Debug("completion streamed", zap.Int("fragments", fragments), zap.Duration("duration", time.Since(start)))
}

func (p *Pipeline) failBeforeStream(w http.ResponseWriter, log *zap.Logger, profile Profile, err error) {
	p.metrics.RecordCompletionError(profile.Name, "open")
	p.metrics.RecordRequest(profile.Name, metrics.OutcomeCompletionError)

	var apiErr *completion.APIError
	if errors.As(err, &apiErr) {
		log.Error("completion request rejected",
			zap.Int("status", apiErr.StatusCode),
			zap.String("body", apiErr.Body),
		)
	} else {
		log.Error("completion request failed", zap.Error(err))
	}
	writeJSON(w, http.StatusInternalServerError, Violation{Error: msgCompletionError})
}
