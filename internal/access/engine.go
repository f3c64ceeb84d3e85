// Package access decides whether a caller may touch another branch's data and
// at what restriction level.
package access

// Reasons returned by the engine.
const (
	ReasonSameBranch        = "same branch access"
	ReasonSuperAdmin        = "super admin access"
	ReasonCrossBranchOff    = "cross-branch access disabled"
	ReasonNotAccessible     = "branch not accessible"
	ReasonStrictIsolation   = "strict data isolation enforced"
	ReasonPartialView       = "partial access to shared data"
	ReasonApprovalRequired  = "operation requires approval"
	ReasonOperationDenied   = "operation not allowed"
	ReasonSharedView        = "shared branch full view"
	ReasonSensitiveApproval = "sensitive operation requires approval"
	ReasonSharedAccess      = "shared branch access"
	ReasonUnknownIsolation  = "unknown isolation level"
)

// Config holds the policy switches consulted by the engine.
type Config struct {
	// EnforceDataIsolation is carried for completeness; the decision order never
	// consults it.
	EnforceDataIsolation                  bool
	AllowCrossBranchAccess                bool
	RequireApprovalForSensitiveOperations bool
	AuditAllOperations                    bool
}

// DefaultConfig is the policy applied when nothing is configured.
func DefaultConfig() Config {
	return Config{
		EnforceDataIsolation:                  true,
		AllowCrossBranchAccess:                true,
		RequireApprovalForSensitiveOperations: true,
		AuditAllOperations:                    false,
	}
}

// Engine evaluates cross-branch requests. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine returns an engine bound to cfg.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the policy the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}

// CheckAccess returns the decision for req under bctx. Same inputs always yield
// the same result.
func (e *Engine) CheckAccess(req Request, bctx BranchContext) Result {
	res := e.decide(req, bctx)
	if e.cfg.AuditAllOperations {
		res.AuditRequired = true
	}
	return res
}

func (e *Engine) decide(req Request, bctx BranchContext) Result {
	if req.CurrentBranchID == req.TargetBranchID {
		return Grant(ReasonSameBranch, false)
	}
	if bctx.HasPermission(PermViewAllBranches) {
		return Grant(ReasonSuperAdmin, true)
	}
	if !e.cfg.AllowCrossBranchAccess {
		return Deny(ReasonCrossBranchOff, RestrictionFull, false)
	}
	target, ok := bctx.Accessible(req.TargetBranchID)
	if !ok {
		return Deny(ReasonNotAccessible, RestrictionFull, false)
	}

	switch target.IsolationLevel {
	case IsolationStrict:
		return Deny(ReasonStrictIsolation, RestrictionFull, false)
	case IsolationPartial:
		return e.decidePartial(req)
	case IsolationShared:
		return decideShared(req, target)
	default:
		return Deny(ReasonUnknownIsolation, RestrictionFull, false)
	}
}

func (e *Engine) decidePartial(req Request) Result {
	if req.Operation == OpView && (req.ResourceType == ResourceStock || req.ResourceType == ResourceReports) {
		fields, _ := AllowedFieldsFor(req.ResourceType)
		return GrantPartial(ReasonPartialView, fields, true)
	}
	if e.cfg.RequireApprovalForSensitiveOperations {
		return Deny(ReasonApprovalRequired, RestrictionPartial, true)
	}
	return Deny(ReasonOperationDenied, RestrictionPartial, false)
}

// decideShared keeps non-sensitive writes allowed at partial restriction without a
// field whitelist. Pending policy review.
func decideShared(req Request, target Branch) Result {
	switch {
	case req.Operation == OpView && target.AllowsAllReports():
		return Grant(ReasonSharedView, true)
	case req.Operation.Sensitive():
		return Deny(ReasonSensitiveApproval, RestrictionPartial, true)
	default:
		return GrantPartial(ReasonSharedAccess, nil, true)
	}
}
