package httpapi

import (
	"net/http"
	"strings"

	"retailgate.org/internal/access"
	"retailgate.org/internal/auth"
	"retailgate.org/internal/branches"
	"retailgate.org/internal/dataaccess"
	"retailgate.org/internal/scope"
)

type responseOptions struct {
	SortBy         string `json:"sort_by,omitempty"`
	SortOrder      string `json:"sort_order,omitempty"`
	IncludeSummary bool   `json:"include_summary,omitempty"`
}

type filterRequest struct {
	accessCheckRequest
	Data []dataaccess.Row `json:"data"`
}

type processRequest struct {
	accessCheckRequest
	responseOptions
	Data []dataaccess.Row `json:"data"`
}

type fetchRequest struct {
	accessCheckRequest
	responseOptions
	Filters map[string]any `json:"filters,omitempty"`
	Limit   int            `json:"limit,omitempty"`
}

type scopeRequest struct {
	BranchIDs    []string       `json:"branch_ids"`
	ResourceType string         `json:"resource_type"`
	Filters      map[string]any `json:"filters,omitempty"`
}

type scopeResponse struct {
	Query scope.Query `json:"query"`
	Where string      `json:"where"`
	Args  []any       `json:"args"`
}

type dataResponse struct {
	dataaccess.Response
	AuditID string `json:"audit_id,omitempty"`
}

// filterData applies a server-side decision to rows supplied by the caller.
func (a *API) filterData(w http.ResponseWriter, r *http.Request) {
	var in filterRequest
	if err := decodeJSON(r, &in); err != nil {
		a.handleBodyError(w, r, err)
		return
	}
	d, ok := a.authorize(w, r, in.accessCheckRequest)
	if !ok {
		return
	}
	out := a.deps.Mediator.FilterByAccess(in.Data, d.result, d.req.ResourceType)
	writeJSON(w, http.StatusOK, out)
}

func (a *API) processData(w http.ResponseWriter, r *http.Request) {
	var in processRequest
	if err := decodeJSON(r, &in); err != nil {
		a.handleBodyError(w, r, err)
		return
	}
	d, ok := a.authorize(w, r, in.accessCheckRequest)
	if !ok {
		return
	}
	opts, err := a.responseOptions(r, in.responseOptions)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	resp := a.deps.Mediator.ProcessAPIResponse(in.Data, d.result, d.req.ResourceType, opts)
	writeJSON(w, http.StatusOK, dataResponse{Response: resp, AuditID: d.auditID})
}

// fetchData reads the target branch's rows from the row source. Denied
// requests never reach the store.
func (a *API) fetchData(w http.ResponseWriter, r *http.Request) {
	if a.deps.Rows == nil {
		writeError(w, r, http.StatusServiceUnavailable, "row source not configured")
		return
	}
	var in fetchRequest
	if err := decodeJSON(r, &in); err != nil {
		a.handleBodyError(w, r, err)
		return
	}
	if strings.TrimSpace(in.Operation) == "" {
		in.Operation = string(access.OpView)
	}
	d, ok := a.authorize(w, r, in.accessCheckRequest)
	if !ok {
		return
	}
	opts, err := a.responseOptions(r, in.responseOptions)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	var rows []dataaccess.Row
	if d.result.Allowed {
		q := a.deps.Mediator.BuildBranchQuery([]string{d.req.TargetBranchID}, d.req.ResourceType, in.Filters)
		rows, err = a.deps.Rows.Rows(r.Context(), d.req.ResourceType, q, in.Limit)
		if err != nil {
			a.handleError(w, r, err)
			return
		}
	}
	resp := a.deps.Mediator.ProcessAPIResponse(rows, d.result, d.req.ResourceType, opts)
	writeJSON(w, http.StatusOK, dataResponse{Response: resp, AuditID: d.auditID})
}

// queryScope returns the scope a caller may run for the requested branches.
// Without branches.view_all the request is narrowed to the caller's own and
// accessible branches; an empty intersection matches nothing.
func (a *API) queryScope(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var in scopeRequest
	if err := decodeJSON(r, &in); err != nil {
		a.handleBodyError(w, r, err)
		return
	}
	rt, err := access.ParseResourceType(in.ResourceType)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	if a.deps.Branches == nil {
		writeError(w, r, http.StatusServiceUnavailable, "branch directory not configured")
		return
	}
	bctx, err := branches.Resolve(r.Context(), a.deps.Branches, principal.UserID, principal.BranchID, principal.PermissionList())
	if err != nil {
		a.handleError(w, r, err)
		return
	}

	allowed := branches.ScopeIDs(bctx)
	ids := allowed
	if len(in.BranchIDs) > 0 {
		if bctx.HasPermission(access.PermViewAllBranches) {
			ids = in.BranchIDs
		} else {
			ids = intersect(in.BranchIDs, allowed)
		}
	}
	q := a.deps.Mediator.BuildBranchQuery(ids, rt, in.Filters)
	where, args := q.SQL("", 0)
	if args == nil {
		args = []any{}
	}
	writeJSON(w, http.StatusOK, scopeResponse{Query: q, Where: where, Args: args})
}

func (a *API) listBranches(w http.ResponseWriter, r *http.Request) {
	lister, ok := a.deps.Branches.(branches.Lister)
	if !ok {
		writeError(w, r, http.StatusServiceUnavailable, "branch listing not supported")
		return
	}
	list, err := lister.List(r.Context())
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	if list == nil {
		list = []access.Branch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"branches": list})
}

func (a *API) responseOptions(r *http.Request, in responseOptions) (dataaccess.Options, error) {
	opts := dataaccess.Options{
		SortBy:         strings.TrimSpace(in.SortBy),
		SortOrder:      strings.TrimSpace(in.SortOrder),
		IncludeSummary: in.IncludeSummary,
	}
	if !opts.IncludeSummary {
		return opts, nil
	}
	if lister, ok := a.deps.Branches.(branches.Lister); ok {
		names, err := branches.Names(r.Context(), lister)
		if err != nil {
			return dataaccess.Options{}, err
		}
		opts.BranchNames = names
	}
	return opts, nil
}

func intersect(want, allowed []string) []string {
	set := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}
	out := []string{}
	for _, id := range want {
		if _, ok := set[strings.TrimSpace(id)]; ok {
			out = append(out, strings.TrimSpace(id))
		}
	}
	return out
}
