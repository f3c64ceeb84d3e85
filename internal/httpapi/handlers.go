// Package httpapi exposes the access core over HTTP and gRPC health.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"retailgate.org/internal/access"
	"retailgate.org/internal/audit"
	"retailgate.org/internal/auth"
	"retailgate.org/internal/branches"
	"retailgate.org/internal/dataaccess"
	"retailgate.org/internal/obs"
	"retailgate.org/internal/ratelimit"
	"retailgate.org/internal/scope"
	"retailgate.org/internal/session"
	"retailgate.org/internal/stream"
)

const serviceName = "retailgate-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings the backing stores that are configured.
type ReadyProbe struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// RowSource fetches branch-scoped rows for a resource type.
type RowSource interface {
	Rows(ctx context.Context, rt access.ResourceType, q scope.Query, limit int) ([]map[string]any, error)
}

// Deps are the collaborators the API serves.
type Deps struct {
	Engine   *access.Engine
	Sessions *session.Registry
	Mediator *dataaccess.Mediator
	Limiter  *ratelimit.Limiter
	Branches branches.Source
	Verifier *auth.Verifier
	Audit    audit.Sink
	Rows     RowSource
	Ready    readinessChecker
	// Stream, when set, backs GET /v1/audit/stream. Records reach it through
	// the Audit sink.
	Stream *stream.Stream
}

// Option tunes the API.
type Option func(*API)

// WithClientRateLimit sets the per-client token bucket.
func WithClientRateLimit(perSecond float64, burst int) Option {
	return func(a *API) {
		if perSecond > 0 && burst > 0 {
			a.ratePerSec = perSecond
			a.rateBurst = burst
		}
	}
}

// WithAllowedOrigins sets the CORS allow list.
func WithAllowedOrigins(origins ...string) Option {
	return func(a *API) { a.origins = origins }
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

// WithLogger sets the logger for request and collaborator failures.
func WithLogger(l *zap.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock injects the time source used for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *API) {
		if now != nil {
			a.now = now
		}
	}
}

// API is the HTTP layer.
type API struct {
	mux     *http.ServeMux
	deps    Deps
	version string

	ratePerSec float64
	rateBurst  int
	origins    []string
	maxBody    int64
	logger     *zap.Logger
	now        func() time.Time
}

func New(version string, deps Deps, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		deps:       deps,
		version:    version,
		ratePerSec: 50,
		rateBurst:  100,
		maxBody:    1 << 20,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = obs.Logger()
	}
	if a.deps.Mediator == nil {
		a.deps.Mediator = dataaccess.NewMediator()
	}
	if a.deps.Engine == nil {
		a.deps.Engine = access.NewEngine(access.DefaultConfig())
	}
	if a.deps.Ready == nil {
		a.deps.Ready = ReadyProbe{}
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/access/check", a.checkAccess)

	a.mux.HandleFunc("POST /v1/sessions", a.createSession)
	a.mux.HandleFunc("DELETE /v1/sessions/{id}", a.endSession)
	a.mux.HandleFunc("POST /v1/sessions/{id}/operations", a.logOperation)
	a.mux.HandleFunc("GET /v1/sessions/{id}/report", a.sessionReport)
	a.mux.HandleFunc("GET /v1/sessions/{id}/valid", a.sessionValid)

	a.mux.HandleFunc("POST /v1/data/filter", a.filterData)
	a.mux.HandleFunc("POST /v1/data/process", a.processData)
	a.mux.HandleFunc("POST /v1/data/fetch", a.fetchData)
	a.mux.HandleFunc("POST /v1/query/scope", a.queryScope)
	a.mux.HandleFunc("GET /v1/audit/stream", a.streamDecisions)
	a.mux.Handle("GET /v1/branches", a.requirePermission(access.PermViewAllBranches)(http.HandlerFunc(a.listBranches)))

	return a
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(a.origins...)(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	cfg := a.deps.Engine.Config()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    a.now().Format(time.RFC3339),
		"version": a.version,
		"policy": map[string]any{
			"allow_cross_branch_access":                 cfg.AllowCrossBranchAccess,
			"require_approval_for_sensitive_operations": cfg.RequireApprovalForSensitiveOperations,
			"audit_all_operations":                      cfg.AuditAllOperations,
		},
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
