package httpapi

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"retailgate.org/internal/access"
	"retailgate.org/internal/auth"
	"retailgate.org/internal/branches"
	"retailgate.org/internal/obs"
	"retailgate.org/internal/ratelimit"
)

type accessCheckRequest struct {
	TargetBranchID string `json:"target_branch_id"`
	Operation      string `json:"operation"`
	ResourceType   string `json:"resource_type"`
	SessionID      string `json:"session_id,omitempty"`
}

type accessCheckResponse struct {
	Result    access.Result       `json:"result"`
	RateLimit *ratelimit.Decision `json:"rate_limit,omitempty"`
	AuditID   string              `json:"audit_id,omitempty"`
}

// decision is everything learned while authorizing one request.
type decision struct {
	principal auth.Principal
	req       access.Request
	bctx      access.BranchContext
	result    access.Result
	limit     *ratelimit.Decision
	auditID   string
}

func (a *API) checkAccess(w http.ResponseWriter, r *http.Request) {
	var in accessCheckRequest
	if err := decodeJSON(r, &in); err != nil {
		a.handleBodyError(w, r, err)
		return
	}
	d, ok := a.authorize(w, r, in)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, accessCheckResponse{Result: d.result, RateLimit: d.limit, AuditID: d.auditID})
}

// authorize runs rate limiting, branch resolution and the access decision for
// in. It writes the error response itself and reports false when the request
// cannot proceed. A policy denial is not an error.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, in accessCheckRequest) (decision, bool) {
	ctx := r.Context()
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return decision{}, false
	}
	op, err := access.ParseOperation(in.Operation)
	if err != nil {
		a.handleError(w, r, err)
		return decision{}, false
	}
	rt, err := access.ParseResourceType(in.ResourceType)
	if err != nil {
		a.handleError(w, r, err)
		return decision{}, false
	}
	target := strings.TrimSpace(in.TargetBranchID)
	if target == "" {
		target = principal.BranchID
	}

	d := decision{principal: principal}
	if a.deps.Limiter != nil {
		lim := a.deps.Limiter.Check(ctx, principal.BranchID, principal.UserID, op)
		d.limit = &lim
		setRateLimitHeaders(w, lim)
		if !lim.Allowed {
			retry := int(math.Ceil(lim.ResetTime.Sub(a.now()).Seconds()))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded for "+string(op))
			return decision{}, false
		}
	}

	if a.deps.Branches == nil {
		writeError(w, r, http.StatusServiceUnavailable, "branch directory not configured")
		return decision{}, false
	}
	bctx, err := branches.Resolve(ctx, a.deps.Branches, principal.UserID, principal.BranchID, principal.PermissionList())
	if err != nil {
		a.handleError(w, r, err)
		return decision{}, false
	}
	d.bctx = bctx
	d.req = access.Request{
		UserID:          principal.UserID,
		UserRole:        principal.Role,
		CurrentBranchID: principal.BranchID,
		TargetBranchID:  target,
		Operation:       op,
		ResourceType:    rt,
		Timestamp:       a.now(),
	}
	d.result = a.deps.Engine.CheckAccess(d.req, bctx)
	obs.ObserveDecision(d.result.Outcome().String(), string(d.result.RestrictionLevel), string(rt))

	if sid := strings.TrimSpace(in.SessionID); sid != "" && a.ownsSession(principal, sid) {
		a.deps.Sessions.LogAccess(sid, op, rt, target, d.result.Allowed)
	}
	if d.result.AuditRequired {
		d.auditID = a.writeAudit(ctx, d, nil)
	}
	return d, true
}

// writeAudit hands the decision to the audit sink. Sink failures are logged
// and never fail the request.
func (a *API) writeAudit(ctx context.Context, d decision, metadata map[string]any) string {
	if a.deps.Audit == nil {
		return ""
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["target_branch_id"] = d.req.TargetBranchID
	metadata["user_role"] = d.req.UserRole
	rec := a.deps.Mediator.CreateAuditLog(d.req.UserID, d.req.CurrentBranchID, d.req.Operation, d.req.ResourceType, d.result, metadata)
	if err := a.deps.Audit.Write(ctx, rec); err != nil {
		a.logger.Warn("audit sink write failed",
			zap.String("audit_id", rec.ID),
			zap.String("request_id", RequestIDFromContext(ctx)),
			zap.Error(err),
		)
	}
	return rec.ID
}

func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetTime.Unix(), 10))
}

func (a *API) handleBodyError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		a.handleError(w, r, err)
		return
	}
	writeError(w, r, http.StatusBadRequest, err.Error())
}
