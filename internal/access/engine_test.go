package access

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(target Branch, perms ...string) BranchContext {
	return BranchContext{
		CurrentBranch:      Branch{ID: "br-home", Code: "HOME", Name: "Home", IsolationLevel: IsolationPartial},
		AccessibleBranches: []Branch{target},
		Permissions:        perms,
	}
}

func request(target string, op Operation, rt ResourceType) Request {
	return Request{
		UserID:          "user-1",
		UserRole:        "manager",
		CurrentBranchID: "br-home",
		TargetBranchID:  target,
		Operation:       op,
		ResourceType:    rt,
		Timestamp:       time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestCheckAccessSameBranchBypass(t *testing.T) {
	engine := NewEngine(Config{AllowCrossBranchAccess: false})
	for _, lvl := range []IsolationLevel{IsolationStrict, IsolationPartial, IsolationShared} {
		for _, op := range Operations {
			home := Branch{ID: "br-home", IsolationLevel: lvl}
			bctx := BranchContext{CurrentBranch: home}
			res := engine.CheckAccess(request("br-home", op, ResourceSales), bctx)
			assert.True(t, res.Allowed, "isolation=%s op=%s", lvl, op)
			assert.Equal(t, RestrictionNone, res.RestrictionLevel)
			assert.Equal(t, ReasonSameBranch, res.Reason)
			assert.Equal(t, Granted, res.Outcome())
		}
	}
}

func TestCheckAccessSuperAdmin(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	strict := Branch{ID: "br-2", IsolationLevel: IsolationStrict}
	res := engine.CheckAccess(request("br-2", OpDelete, ResourceEmployees), testContext(strict, PermViewAllBranches))
	assert.True(t, res.Allowed)
	assert.Equal(t, RestrictionNone, res.RestrictionLevel)
	assert.True(t, res.AuditRequired)
	assert.Equal(t, ReasonSuperAdmin, res.Reason)
}

func TestCheckAccessCrossBranchDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowCrossBranchAccess = false
	engine := NewEngine(cfg)
	shared := Branch{ID: "br-2", IsolationLevel: IsolationShared}
	res := engine.CheckAccess(request("br-2", OpView, ResourceStock), testContext(shared))
	assert.False(t, res.Allowed)
	assert.Equal(t, RestrictionFull, res.RestrictionLevel)
	assert.Equal(t, ReasonCrossBranchOff, res.Reason)
}

func TestCheckAccessBranchNotAccessible(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	shared := Branch{ID: "br-2", IsolationLevel: IsolationShared}
	res := engine.CheckAccess(request("br-9", OpView, ResourceStock), testContext(shared))
	assert.False(t, res.Allowed)
	assert.Equal(t, RestrictionFull, res.RestrictionLevel)
	assert.Equal(t, ReasonNotAccessible, res.Reason)
}

func TestCheckAccessStrictIsolation(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	strict := Branch{ID: "br-2", IsolationLevel: IsolationStrict, ReportCategories: []string{"all"}}
	for _, op := range Operations {
		for _, rt := range ResourceTypes {
			res := engine.CheckAccess(request("br-2", op, rt), testContext(strict))
			assert.False(t, res.Allowed, "op=%s rt=%s", op, rt)
			assert.Equal(t, RestrictionFull, res.RestrictionLevel)
			assert.Equal(t, Denied, res.Outcome())
		}
	}
}

func TestCheckAccessPartialWhitelist(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	partial := Branch{ID: "br-2", IsolationLevel: IsolationPartial}

	res := engine.CheckAccess(request("br-2", OpView, ResourceStock), testContext(partial))
	require.True(t, res.Allowed)
	assert.Equal(t, RestrictionPartial, res.RestrictionLevel)
	assert.True(t, res.AuditRequired)
	assert.Equal(t, []string{"category", "productId", "productName", "quantity", "status"}, res.AllowedFields.Sorted())

	res = engine.CheckAccess(request("br-2", OpView, ResourceReports), testContext(partial))
	require.True(t, res.Allowed)
	assert.Equal(t, []string{"aggregated", "summary", "totals"}, res.AllowedFields.Sorted())
	fields, ok := res.Fields()
	assert.True(t, ok)
	assert.True(t, fields.Has("totals"))
}

func TestCheckAccessPartialDenialWithApproval(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	partial := Branch{ID: "br-2", IsolationLevel: IsolationPartial}
	res := engine.CheckAccess(request("br-2", OpDelete, ResourceSales), testContext(partial))
	assert.False(t, res.Allowed)
	assert.Equal(t, RestrictionPartial, res.RestrictionLevel)
	assert.True(t, res.RequiresApproval)
	assert.Nil(t, res.AllowedFields)
}

func TestCheckAccessPartialDenialWithoutApproval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireApprovalForSensitiveOperations = false
	engine := NewEngine(cfg)
	partial := Branch{ID: "br-2", IsolationLevel: IsolationPartial}
	res := engine.CheckAccess(request("br-2", OpView, ResourceCustomers), testContext(partial))
	assert.False(t, res.Allowed)
	assert.Equal(t, RestrictionPartial, res.RestrictionLevel)
	assert.False(t, res.RequiresApproval)
	assert.Equal(t, ReasonOperationDenied, res.Reason)
}

func TestCheckAccessShared(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	open := Branch{ID: "br-2", IsolationLevel: IsolationShared, ReportCategories: []string{"sales", "All"}}
	closed := Branch{ID: "br-2", IsolationLevel: IsolationShared, ReportCategories: []string{"sales"}}

	res := engine.CheckAccess(request("br-2", OpView, ResourceCustomers), testContext(open))
	assert.Equal(t, Granted, res.Outcome())
	assert.True(t, res.AuditRequired)

	for _, op := range []Operation{OpDelete, OpTransfer} {
		res = engine.CheckAccess(request("br-2", op, ResourceStock), testContext(open))
		assert.False(t, res.Allowed)
		assert.Equal(t, RestrictionPartial, res.RestrictionLevel)
		assert.True(t, res.RequiresApproval)
	}

	res = engine.CheckAccess(request("br-2", OpView, ResourceCustomers), testContext(closed))
	assert.Equal(t, GrantedPartial, res.Outcome())
	_, hasFields := res.Fields()
	assert.False(t, hasFields)

	res = engine.CheckAccess(request("br-2", OpUpdate, ResourceStock), testContext(open))
	assert.True(t, res.Allowed)
	assert.Equal(t, RestrictionPartial, res.RestrictionLevel)
	assert.True(t, res.AuditRequired)
}

func TestCheckAccessUnknownIsolationDenies(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	odd := Branch{ID: "br-2", IsolationLevel: IsolationLevel("federated")}
	res := engine.CheckAccess(request("br-2", OpView, ResourceStock), testContext(odd))
	assert.False(t, res.Allowed)
	assert.Equal(t, RestrictionFull, res.RestrictionLevel)
}

func TestCheckAccessAuditAllOperations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AuditAllOperations = true
	engine := NewEngine(cfg)
	res := engine.CheckAccess(request("br-home", OpView, ResourceSales), BranchContext{})
	assert.True(t, res.AuditRequired)
}

func TestCheckAccessIsPure(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	partial := Branch{ID: "br-2", IsolationLevel: IsolationPartial}
	bctx := testContext(partial)
	req := request("br-2", OpView, ResourceStock)
	first := engine.CheckAccess(req, bctx)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, engine.CheckAccess(req, bctx))
	}

	first.AllowedFields["leak"] = struct{}{}
	again := engine.CheckAccess(req, bctx)
	assert.False(t, again.AllowedFields.Has("leak"), "whitelist must not be shared between results")
}

func TestParseEnums(t *testing.T) {
	op, err := ParseOperation(" View ")
	require.NoError(t, err)
	assert.Equal(t, OpView, op)

	_, err = ParseOperation("archive")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	rt, err := ParseResourceType("STOCK")
	require.NoError(t, err)
	assert.Equal(t, ResourceStock, rt)

	_, err = ParseIsolationLevel("open")
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.ErrorIs(t, Request{CurrentBranchID: "a"}.Validate(), ErrInvalidInput)
	assert.NoError(t, request("b", OpView, ResourceStock).Validate())
}

func TestResultJSON(t *testing.T) {
	res := GrantPartial(ReasonPartialView, NewFieldSet("b", "a"), true)
	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"allowed":true,"reason":"partial access to shared data","restriction_level":"partial","allowed_fields":["a","b"],"audit_required":true}`, string(raw))

	var back Result
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.AllowedFields.Has("a"))

	denied := Deny("x", RestrictionNone, false)
	assert.Equal(t, RestrictionFull, denied.RestrictionLevel)
}
