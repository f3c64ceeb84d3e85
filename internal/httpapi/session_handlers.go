package httpapi

import (
	"net/http"
	"strings"
	"time"

	"retailgate.org/internal/access"
	"retailgate.org/internal/audit"
	"retailgate.org/internal/auth"
)

type createSessionResponse struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	BranchID  string    `json:"branch_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type logOperationRequest struct {
	Operation      string `json:"operation"`
	ResourceType   string `json:"resource_type"`
	TargetBranchID string `json:"target_branch_id,omitempty"`
	Success        *bool  `json:"success,omitempty"`
}

type reportResponse struct {
	SessionID            string                      `json:"session_id"`
	UserID               string                      `json:"user_id"`
	BranchID             string                      `json:"branch_id"`
	DurationSeconds      float64                     `json:"duration_seconds"`
	TotalOperations      int                         `json:"total_operations"`
	OperationsByResource map[access.ResourceType]int `json:"operations_by_resource"`
	IsActive             bool                        `json:"is_active"`
	LastActivity         time.Time                   `json:"last_activity"`
}

func (a *API) sessionsConfigured(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	if a.deps.Sessions == nil {
		writeError(w, r, http.StatusServiceUnavailable, "sessions not configured")
		return auth.Principal{}, false
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}
	return principal, true
}

// ownsSession reports whether id names a session held by principal.
func (a *API) ownsSession(principal auth.Principal, id string) bool {
	if a.deps.Sessions == nil {
		return false
	}
	s, ok := a.deps.Sessions.Session(id)
	return ok && s.UserID == principal.UserID
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.sessionsConfigured(w, r)
	if !ok {
		return
	}
	id, err := a.deps.Sessions.CreateSession(principal.UserID, principal.BranchID)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	s, _ := a.deps.Sessions.Session(id)
	_ = audit.LogEvent(r.Context(), "session.created", map[string]any{
		"session_id": id,
		"branch_id":  principal.BranchID,
	})
	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: id,
		UserID:    principal.UserID,
		BranchID:  principal.BranchID,
		ExpiresAt: s.LastActivity.Add(a.deps.Sessions.Timeout()),
	})
}

func (a *API) endSession(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.sessionsConfigured(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if !a.ownsSession(principal, id) || !a.deps.Sessions.EndSession(id) {
		writeError(w, r, http.StatusNotFound, "session not found")
		return
	}
	_ = audit.LogEvent(r.Context(), "session.ended", map[string]any{"session_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// logOperation answers 204 whatever the state of the session; only a
// malformed body is rejected.
func (a *API) logOperation(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.sessionsConfigured(w, r)
	if !ok {
		return
	}
	var in logOperationRequest
	if err := decodeJSON(r, &in); err != nil {
		a.handleBodyError(w, r, err)
		return
	}
	op, err := access.ParseOperation(in.Operation)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	rt, err := access.ParseResourceType(in.ResourceType)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	success := true
	if in.Success != nil {
		success = *in.Success
	}
	id := r.PathValue("id")
	if a.ownsSession(principal, id) {
		a.deps.Sessions.LogAccess(id, op, rt, strings.TrimSpace(in.TargetBranchID), success)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) sessionReport(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.sessionsConfigured(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if !a.ownsSession(principal, id) {
		writeError(w, r, http.StatusNotFound, "session not found")
		return
	}
	rep, found := a.deps.Sessions.SessionReport(id)
	if !found {
		writeError(w, r, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{
		SessionID:            rep.SessionID,
		UserID:               rep.UserID,
		BranchID:             rep.BranchID,
		DurationSeconds:      rep.Duration.Seconds(),
		TotalOperations:      rep.TotalOperations,
		OperationsByResource: rep.OperationsByResource,
		IsActive:             rep.IsActive,
		LastActivity:         rep.LastActivity,
	})
}

func (a *API) sessionValid(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.sessionsConfigured(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	valid := a.ownsSession(principal, id) && a.deps.Sessions.ValidateSession(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"valid":      valid,
	})
}
