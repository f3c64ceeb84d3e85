package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"retailgate.org/internal/auth"
	"retailgate.org/internal/branches"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if a.deps.Verifier == nil {
			writeError(w, r, http.StatusServiceUnavailable, "authentication not configured")
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="retailgate"`)
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := a.deps.Verifier.ParseAndValidate(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="retailgate", error="invalid_token"`)
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), claims.Principal())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission rejects callers lacking perm. Stored branch grants count
// alongside the token's own permissions.
func (a *API) requirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="retailgate"`)
				writeError(w, r, http.StatusUnauthorized, "authentication required")
				return
			}
			granted, err := a.hasPermission(r, principal, perm)
			if err != nil {
				a.handleError(w, r, err)
				return
			}
			if !granted {
				writeError(w, r, http.StatusForbidden, "missing permission "+perm)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// hasPermission checks the principal's effective permissions: the token
// claim first, then the grants stored for the user at their current branch.
func (a *API) hasPermission(r *http.Request, principal auth.Principal, perm string) (bool, error) {
	if principal.HasPermission(perm) {
		return true, nil
	}
	if a.deps.Branches == nil {
		return false, nil
	}
	bctx, err := branches.Resolve(r.Context(), a.deps.Branches, principal.UserID, principal.BranchID, principal.PermissionList())
	if err != nil {
		return false, err
	}
	return bctx.HasPermission(perm), nil
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
