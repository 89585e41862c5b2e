package api

import (
	"errors"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/triage-ai/portfolio-guard/internal/auth"
	"github.com/triage-ai/portfolio-guard/internal/pipeline"
	"go.uber.org/zap"
)

const maxPromptChars = 20000

func (d *Dependencies) handleLogin(w http.ResponseWriter, r *http.Request) {
	if d.Auth == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Admin access not configured"})
		return
	}

	client := pipeline.ClientIdentity(r)
	if d.LoginLimiter.IsLimited(r.Context(), client) {
		retry := d.LoginLimiter.SecondsUntilReset(r.Context(), client)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeJSON(w, http.StatusTooManyRequests, ErrorResp{Detail: "Too many login attempts"})
		return
	}

	var req LoginReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	token, s, err := d.Auth.Login(r.Context(), req.Password)
	switch {
	case errors.Is(err, auth.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Admin access not configured"})
		return
	case errors.Is(err, auth.ErrInvalidPassword):
		d.LoginLimiter.Record(r.Context(), client)
		d.Logger.Warn("admin login rejected", zap.String("client_id", client))
		writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Invalid password"})
		return
	case err != nil:
		d.Logger.Error("admin login failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Login failed"})
		return
	}

	d.setSessionCookie(w, token, s.ExpiresAt)
	writeJSON(w, http.StatusOK, LoginResp{ExpiresAt: s.ExpiresAt})
}

func (d *Dependencies) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil && d.Auth != nil {
		d.Auth.Logout(r.Context(), c.Value)
	}
	d.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// promptAgentType validates the {agent_type} path value, writing the error
// response itself when it fails.
func (d *Dependencies) promptAgentType(w http.ResponseWriter, r *http.Request) (string, bool) {
	if d.Prompts == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Prompt store not configured"})
		return "", false
	}
	agentType := r.PathValue("agent_type")
	if !d.knownAgentType(agentType) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Unknown agent type"})
		return "", false
	}
	return agentType, true
}

func (d *Dependencies) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	agentType, ok := d.promptAgentType(w, r)
	if !ok {
		return
	}

	versions, err := d.Prompts.ListVersions(r.Context(), agentType)
	if err != nil {
		d.Logger.Error("failed to list prompt versions", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list prompt versions"})
		return
	}

	resp := PromptListResp{AgentType: agentType, Versions: make([]PromptVersionResp, 0, len(versions))}
	for _, v := range versions {
		resp.Versions = append(resp.Versions, promptToResp(v))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	agentType, ok := d.promptAgentType(w, r)
	if !ok {
		return
	}

	var req CreatePromptReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if n := utf8.RuneCountInString(req.Prompt); n == 0 || n > maxPromptChars {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "prompt must be 1-20000 characters"})
		return
	}

	pv, err := d.Prompts.CreateVersion(r.Context(), agentType, req.Prompt, req.Notes, req.Activate)
	if err != nil {
		d.Logger.Error("failed to create prompt version", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create prompt version"})
		return
	}
	d.Logger.Info("prompt version created",
		zap.String("agent_type", agentType),
		zap.Int("version", pv.Version),
		zap.Bool("active", pv.IsActive),
	)
	writeJSON(w, http.StatusCreated, promptToResp(pv))
}

func (d *Dependencies) handleActivatePrompt(w http.ResponseWriter, r *http.Request) {
	agentType, ok := d.promptAgentType(w, r)
	if !ok {
		return
	}
	version, err := strconv.Atoi(r.PathValue("version"))
	if err != nil || version < 1 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "version must be a positive integer"})
		return
	}

	pv, err := d.Prompts.ActivateVersion(r.Context(), agentType, version)
	if err != nil {
		d.Logger.Error("failed to activate prompt version", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to activate prompt version"})
		return
	}
	if pv == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Prompt version not found."})
		return
	}
	d.Logger.Info("prompt version activated", zap.String("agent_type", agentType), zap.Int("version", version))
	writeJSON(w, http.StatusOK, promptToResp(pv))
}
