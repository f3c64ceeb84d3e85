// Package dataaccess applies access decisions to rows fetched by the query
// layer: it redacts or empties them, sorts and summarizes them for API
// responses, and builds the scope and audit records around a request.
package dataaccess

import (
	"sort"
	"time"

	"retailgate.org/internal/access"
	"retailgate.org/internal/audit"
	"retailgate.org/internal/ids"
	"retailgate.org/internal/scope"
)

// Row is one record as returned by the query layer.
type Row = map[string]any

// Metadata describes what filtering did to a result set.
type Metadata struct {
	TotalRecords     int                     `json:"total_records"`
	FilteredRecords  int                     `json:"filtered_records"`
	AccessGranted    bool                    `json:"access_granted"`
	RestrictionLevel access.RestrictionLevel `json:"restriction_level"`
	ResourceType     access.ResourceType     `json:"resource_type"`
	Reason           string                  `json:"reason,omitempty"`
	RestrictedFields []string                `json:"restricted_fields,omitempty"`
	Summary          *Summary                `json:"summary,omitempty"`
}

// Filtered is the output of FilterByAccess.
type Filtered struct {
	Data     []Row    `json:"data"`
	Metadata Metadata `json:"metadata"`
}

// Response is the envelope returned to API callers.
type Response struct {
	Success      bool          `json:"success"`
	Data         []Row         `json:"data"`
	AccessResult access.Result `json:"access_result"`
	Metadata     Metadata      `json:"metadata"`
}

// Option configures a Mediator.
type Option func(*Mediator)

// WithClock injects the time source used for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Mediator) {
		if now != nil {
			m.now = now
		}
	}
}

// Mediator is stateless apart from its clock and safe for concurrent use.
type Mediator struct {
	now func() time.Time
}

// NewMediator returns a mediator using the UTC wall clock by default.
func NewMediator(opts ...Option) *Mediator {
	m := &Mediator{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FilterByAccess applies res to data. Denied results yield no rows. Partial
// results with a whitelist are projected onto the whitelisted keys. Every
// other combination passes data through unchanged.
func (m *Mediator) FilterByAccess(data []Row, res access.Result, rt access.ResourceType) Filtered {
	meta := Metadata{
		TotalRecords:     len(data),
		AccessGranted:    res.Allowed,
		RestrictionLevel: res.RestrictionLevel,
		ResourceType:     rt,
	}
	if !res.Allowed {
		meta.Reason = res.Reason
		return Filtered{Data: []Row{}, Metadata: meta}
	}

	out := data
	if fields, ok := res.Fields(); ok {
		out = make([]Row, len(data))
		for i, row := range data {
			out[i] = project(row, fields)
		}
		if len(data) > 0 {
			meta.RestrictedFields = restrictedKeys(data[0], fields)
		}
	}
	if out == nil {
		out = []Row{}
	}
	meta.FilteredRecords = len(out)
	return Filtered{Data: out, Metadata: meta}
}

// ProcessAPIResponse filters data, then optionally sorts it and attaches a
// cross-branch summary when access was allowed.
func (m *Mediator) ProcessAPIResponse(data []Row, res access.Result, rt access.ResourceType, opts Options) Response {
	filtered := m.FilterByAccess(data, res, rt)
	rows := filtered.Data
	if opts.SortBy != "" && len(rows) > 1 {
		rows = sortRows(rows, opts.SortBy, opts.descending())
	}
	meta := filtered.Metadata
	if opts.IncludeSummary && res.Allowed {
		summary := CrossBranchSummary(rows, opts.BranchNames)
		meta.Summary = &summary
	}
	return Response{
		Success:      res.Allowed,
		Data:         rows,
		AccessResult: res,
		Metadata:     meta,
	}
}

// BuildBranchQuery returns the scope the query layer must apply when fetching
// rows of rt for branchIDs. The mediator never executes it.
func (m *Mediator) BuildBranchQuery(branchIDs []string, rt access.ResourceType, filters map[string]any) scope.Query {
	return scope.Build(branchIDs, rt, filters)
}

// CreateAuditLog builds the record handed to the audit sink. metadata is copied.
func (m *Mediator) CreateAuditLog(userID, branchID string, op access.Operation, rt access.ResourceType, res access.Result, metadata map[string]any) audit.Record {
	now := m.now()
	rec := audit.Record{
		ID:               ids.WithPrefix("aud", now),
		Timestamp:        now,
		UserID:           userID,
		BranchID:         branchID,
		Operation:        op,
		ResourceType:     rt,
		AccessGranted:    res.Allowed,
		RestrictionLevel: res.RestrictionLevel,
		Reason:           res.Reason,
	}
	if len(metadata) > 0 {
		rec.Metadata = make(map[string]any, len(metadata))
		for k, v := range metadata {
			rec.Metadata[k] = v
		}
	}
	return rec
}

func project(row Row, fields access.FieldSet) Row {
	out := make(Row, len(fields))
	for k, v := range row {
		if fields.Has(k) {
			out[k] = v
		}
	}
	return out
}

func restrictedKeys(row Row, fields access.FieldSet) []string {
	var out []string
	for k := range row {
		if !fields.Has(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
