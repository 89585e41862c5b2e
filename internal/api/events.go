package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/triage-ai/portfolio-guard/internal/chread"
	"github.com/triage-ai/portfolio-guard/internal/ratelimit"
	"go.uber.org/zap"
)

func (d *Dependencies) handleGuardrails(w http.ResponseWriter, _ *http.Request) {
	limit := ratelimit.DefaultLimit
	if d.Pipeline != nil {
		limit = d.Pipeline.RateLimit()
	}
	writeJSON(w, http.StatusOK, GuardrailsResp{
		Guardrails: d.Classifier.Catalog(d.ChatProfile.Profile, d.FitProfile.Profile),
		RateLimit: RateLimitResp{
			Limit:         limit,
			WindowSeconds: int(ratelimit.Window / time.Second),
		},
	})
}

func (d *Dependencies) handleSecuritySummary(w http.ResponseWriter, _ *http.Request) {
	if d.Events == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Event log not configured"})
		return
	}
	writeJSON(w, http.StatusOK, d.Events.Snapshot())
}

func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	params := chread.ListEventsParams{
		Page:     queryInt(q, "page", 1),
		PageSize: queryInt(q, "page_size", 50),
	}
	if params.PageSize > 200 {
		params.PageSize = 200
	}
	if params.PageSize < 1 {
		params.PageSize = 50
	}
	if params.Page < 1 {
		params.Page = 1
	}

	if v := q.Get("event_type"); v != "" {
		params.EventType = &v
	}
	if v := q.Get("severity"); v != "" {
		params.Severity = &v
	}
	if v := q.Get("guardrail_type"); v != "" {
		params.GuardrailType = &v
	}
	if v := q.Get("profile"); v != "" {
		params.Profile = &v
	}
	if v := q.Get("client_id"); v != "" {
		params.ClientID = &v
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}

	events, total, err := d.Reader.ListEvents(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list events"})
		return
	}

	resp := EventListResp{
		Events:   make([]SecurityEventResp, 0, len(events)),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	for _, e := range events {
		resp.Events = append(resp.Events, eventRowToResp(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	event, err := d.Reader.GetEvent(r.Context(), r.PathValue("event_id"))
	if err != nil {
		d.Logger.Error("failed to get event", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get event"})
		return
	}
	if event == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Event not found."})
		return
	}
	writeJSON(w, http.StatusOK, eventRowToResp(*event))
}

func (d *Dependencies) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	days := queryInt(r.URL.Query(), "days", 7)
	if days < 1 {
		days = 1
	}
	if days > 90 {
		days = 90
	}

	result, err := d.Reader.GetAnalytics(r.Context(), days)
	if err != nil {
		d.Logger.Error("failed to get analytics", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get analytics"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func queryInt(q interface{ Get(string) string }, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}
