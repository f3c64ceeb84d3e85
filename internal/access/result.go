package access

import (
	"encoding/json"
	"sort"
)

// Outcome is the variant tag of a Result.
type Outcome int

const (
	// Denied: the caller receives no data.
	Denied Outcome = iota
	// Granted: data is returned without redaction.
	Granted
	// GrantedPartial: data is returned, redacted to AllowedFields when present.
	GrantedPartial
)

func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case GrantedPartial:
		return "granted_partial"
	default:
		return "denied"
	}
}

// FieldSet is an immutable set of record keys.
type FieldSet map[string]struct{}

// NewFieldSet builds a set from keys.
func NewFieldSet(keys ...string) FieldSet {
	set := make(FieldSet, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Has reports whether key is in the set.
func (s FieldSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Sorted returns the keys in lexical order.
func (s FieldSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s FieldSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *FieldSet) UnmarshalJSON(data []byte) error {
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*s = NewFieldSet(keys...)
	return nil
}

// Result is the outcome of CheckAccess. Build it with Grant, GrantPartial or Deny;
// AllowedFields is set only for partial grants with a whitelist.
type Result struct {
	Allowed          bool             `json:"allowed"`
	Reason           string           `json:"reason"`
	RestrictionLevel RestrictionLevel `json:"restriction_level"`
	AllowedFields    FieldSet         `json:"allowed_fields,omitempty"`
	RequiresApproval bool             `json:"requires_approval,omitempty"`
	AuditRequired    bool             `json:"audit_required,omitempty"`
}

// Grant allows unrestricted access.
func Grant(reason string, audit bool) Result {
	return Result{Allowed: true, Reason: reason, RestrictionLevel: RestrictionNone, AuditRequired: audit}
}

// GrantPartial allows access marked partial. A nil fields set means no whitelist.
func GrantPartial(reason string, fields FieldSet, audit bool) Result {
	return Result{
		Allowed:          true,
		Reason:           reason,
		RestrictionLevel: RestrictionPartial,
		AllowedFields:    fields,
		AuditRequired:    audit,
	}
}

// Deny refuses access at the given restriction level.
func Deny(reason string, level RestrictionLevel, requiresApproval bool) Result {
	if level == RestrictionNone || level == "" {
		level = RestrictionFull
	}
	return Result{Allowed: false, Reason: reason, RestrictionLevel: level, RequiresApproval: requiresApproval}
}

// Outcome returns the variant tag.
func (r Result) Outcome() Outcome {
	switch {
	case !r.Allowed:
		return Denied
	case r.RestrictionLevel == RestrictionNone:
		return Granted
	default:
		return GrantedPartial
	}
}

// Fields returns the whitelist and whether one applies.
func (r Result) Fields() (FieldSet, bool) {
	if r.Outcome() != GrantedPartial || r.AllowedFields == nil {
		return nil, false
	}
	return r.AllowedFields, true
}
