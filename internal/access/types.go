package access

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidInput reports an unknown enum value or a malformed request.
var ErrInvalidInput = errors.New("access: invalid input")

// Operation is the action a caller wants to perform on branch data.
type Operation string

const (
	OpView     Operation = "view"
	OpCreate   Operation = "create"
	OpUpdate   Operation = "update"
	OpDelete   Operation = "delete"
	OpTransfer Operation = "transfer"
	OpReport   Operation = "report"
)

// Operations lists every known operation.
var Operations = []Operation{OpView, OpCreate, OpUpdate, OpDelete, OpTransfer, OpReport}

// ParseOperation normalizes s and rejects unknown operations.
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	switch op {
	case OpView, OpCreate, OpUpdate, OpDelete, OpTransfer, OpReport:
		return op, nil
	}
	return "", fmt.Errorf("%w: unknown operation %q", ErrInvalidInput, s)
}

// Sensitive reports whether the operation moves or destroys data.
func (o Operation) Sensitive() bool {
	return o == OpDelete || o == OpTransfer
}

// ResourceType is the business data category a request targets.
type ResourceType string

const (
	ResourceSales     ResourceType = "sales"
	ResourceStock     ResourceType = "stock"
	ResourceCustomers ResourceType = "customers"
	ResourceEmployees ResourceType = "employees"
	ResourceReports   ResourceType = "reports"
	ResourceSettings  ResourceType = "settings"
)

// ResourceTypes lists every known resource type.
var ResourceTypes = []ResourceType{
	ResourceSales, ResourceStock, ResourceCustomers, ResourceEmployees, ResourceReports, ResourceSettings,
}

// ParseResourceType normalizes s and rejects unknown resource types.
func ParseResourceType(s string) (ResourceType, error) {
	rt := ResourceType(strings.ToLower(strings.TrimSpace(s)))
	switch rt {
	case ResourceSales, ResourceStock, ResourceCustomers, ResourceEmployees, ResourceReports, ResourceSettings:
		return rt, nil
	}
	return "", fmt.Errorf("%w: unknown resource type %q", ErrInvalidInput, s)
}

// IsolationLevel governs how visible a branch's data is to other branches.
type IsolationLevel string

const (
	IsolationStrict  IsolationLevel = "strict"
	IsolationPartial IsolationLevel = "partial"
	IsolationShared  IsolationLevel = "shared"
)

// ParseIsolationLevel normalizes s and rejects unknown levels.
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	lvl := IsolationLevel(strings.ToLower(strings.TrimSpace(s)))
	switch lvl {
	case IsolationStrict, IsolationPartial, IsolationShared:
		return lvl, nil
	}
	return "", fmt.Errorf("%w: unknown isolation level %q", ErrInvalidInput, s)
}

// RestrictionLevel tells the data layer how to apply a decision.
type RestrictionLevel string

const (
	RestrictionNone    RestrictionLevel = "none"
	RestrictionPartial RestrictionLevel = "partial"
	RestrictionFull    RestrictionLevel = "full"
)

// ReportCategoryAll grants shared-branch viewers the unrestricted view.
const ReportCategoryAll = "all"

// PermViewAllBranches lets a caller bypass cross-branch policy entirely.
const PermViewAllBranches = "branches.view_all"

// Branch is a retail location and its data sharing policy.
type Branch struct {
	ID                  string         `json:"id" yaml:"id"`
	Code                string         `json:"code" yaml:"code"`
	Name                string         `json:"name" yaml:"name"`
	IsolationLevel      IsolationLevel `json:"isolation_level" yaml:"isolation_level"`
	AccessibleBranchIDs []string       `json:"accessible_branch_ids,omitempty" yaml:"accessible_branch_ids"`
	ReportCategories    []string       `json:"report_categories,omitempty" yaml:"report_categories"`
}

// AllowsAllReports reports whether the branch exposes every report category.
func (b Branch) AllowsAllReports() bool {
	for _, c := range b.ReportCategories {
		if strings.EqualFold(strings.TrimSpace(c), ReportCategoryAll) {
			return true
		}
	}
	return false
}

// BranchContext is the caller's view of the branch topology, supplied by the
// identity layer. It is read-only during a decision.
type BranchContext struct {
	CurrentBranch      Branch
	AccessibleBranches []Branch
	Permissions        []string
}

// HasPermission reports whether the caller holds the permission key.
func (c BranchContext) HasPermission(key string) bool {
	for _, p := range c.Permissions {
		if p == key {
			return true
		}
	}
	return false
}

// Accessible returns the accessible branch with the given id.
func (c BranchContext) Accessible(branchID string) (Branch, bool) {
	for _, b := range c.AccessibleBranches {
		if b.ID == branchID {
			return b, true
		}
	}
	return Branch{}, false
}

// Request describes a single cross-branch data request. Built per query, never stored.
type Request struct {
	UserID          string       `json:"user_id"`
	UserRole        string       `json:"user_role"`
	CurrentBranchID string       `json:"current_branch_id"`
	TargetBranchID  string       `json:"target_branch_id"`
	Operation       Operation    `json:"operation"`
	ResourceType    ResourceType `json:"resource_type"`
	Timestamp       time.Time    `json:"timestamp"`
}

// Validate checks that the request names known enums and both branches.
func (r Request) Validate() error {
	if strings.TrimSpace(r.CurrentBranchID) == "" || strings.TrimSpace(r.TargetBranchID) == "" {
		return fmt.Errorf("%w: current and target branch are required", ErrInvalidInput)
	}
	if _, err := ParseOperation(string(r.Operation)); err != nil {
		return err
	}
	if _, err := ParseResourceType(string(r.ResourceType)); err != nil {
		return err
	}
	return nil
}
