package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"retailgate.org/internal/access"
	"retailgate.org/internal/auth"
)

// streamDecisions serves audited access decisions as Server-Sent Events.
// Callers without branches.view_all, from the token or a stored grant, only
// see their own branch.
func (a *API) streamDecisions(w http.ResponseWriter, r *http.Request) {
	if a.deps.Stream == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	viewAll, err := a.hasPermission(r, principal, access.PermViewAllBranches)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	branchID := principal.BranchID
	if viewAll {
		branchID = strings.TrimSpace(r.URL.Query().Get("branch_id"))
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := a.deps.Stream.Subscribe(r.Context(), branchID)

	_, _ = w.Write([]byte(": stream started\n\n"))
	if err := rc.Flush(); err != nil {
		return
	}
	for rec := range ch {
		payload, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("event: decision\ndata: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
