// Package scope builds the branch-scoped filters handed to the query layer.
// It never executes queries.
package scope

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"retailgate.org/internal/access"
)

// BranchField is the column every branch-owned table carries.
const BranchField = "branch_id"

// Operator is a comparison applied by a Condition.
type Operator string

const (
	OpEqual        Operator = "eq"
	OpNotEqual     Operator = "neq"
	OpIn           Operator = "in"
	OpGreaterEqual Operator = "gte"
)

// Condition is a single predicate. For OpIn, Value is a []any.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Query is an ordered conjunction of conditions.
type Query struct {
	ResourceType access.ResourceType `json:"resource_type"`
	Conditions   []Condition         `json:"conditions"`
}

// Has reports whether the query constrains field.
func (q Query) Has(field string) bool {
	for _, c := range q.Conditions {
		if c.Field == field {
			return true
		}
	}
	return false
}

// Condition returns the first condition on field.
func (q Query) Condition(field string) (Condition, bool) {
	for _, c := range q.Conditions {
		if c.Field == field {
			return c, true
		}
	}
	return Condition{}, false
}

type defaultFilter struct {
	field string
	cond  Condition
}

var defaults = map[access.ResourceType]defaultFilter{
	access.ResourceSales:     {"status", Condition{Field: "status", Operator: OpNotEqual, Value: "deleted"}},
	access.ResourceStock:     {"quantity", Condition{Field: "quantity", Operator: OpGreaterEqual, Value: 0}},
	access.ResourceCustomers: {"status", Condition{Field: "status", Operator: OpEqual, Value: "active"}},
	access.ResourceEmployees: {"status", Condition{Field: "status", Operator: OpEqual, Value: "active"}},
}

// Build merges the branch scope with caller filters and the resource type's
// default filter. A single branch id yields an equality test, several yield a
// membership test and an empty set matches nothing. Filters whose value is a
// slice become membership tests. The default is skipped when the caller already
// filters on its field.
func Build(branchIDs []string, rt access.ResourceType, filters map[string]any) Query {
	q := Query{ResourceType: rt}

	ids := dedupe(branchIDs)
	if len(ids) == 1 {
		q.Conditions = append(q.Conditions, Condition{Field: BranchField, Operator: OpEqual, Value: ids[0]})
	} else {
		values := make([]any, len(ids))
		for i, id := range ids {
			values[i] = id
		}
		q.Conditions = append(q.Conditions, Condition{Field: BranchField, Operator: OpIn, Value: values})
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		if strings.TrimSpace(k) == "" || k == BranchField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Conditions = append(q.Conditions, filterCondition(k, filters[k]))
	}

	if d, ok := defaults[rt]; ok && !q.Has(d.field) {
		q.Conditions = append(q.Conditions, d.cond)
	}
	return q
}

func filterCondition(field string, value any) Condition {
	if value != nil {
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
			values := make([]any, rv.Len())
			for i := range values {
				values[i] = rv.Index(i).Interface()
			}
			return Condition{Field: field, Operator: OpIn, Value: values}
		}
	}
	return Condition{Field: field, Operator: OpEqual, Value: value}
}

// SQL renders the query as a PostgreSQL WHERE clause using $n placeholders
// numbered after argOffset. alias prefixes column names when non-empty.
func (q Query) SQL(alias string, argOffset int) (string, []any) {
	if len(q.Conditions) == 0 {
		return "", nil
	}
	var (
		parts []string
		args  []any
	)
	for _, c := range q.Conditions {
		col := quoteIdent(c.Field)
		if alias != "" {
			col = alias + "." + col
		}
		if c.Operator != OpIn && c.Value == nil {
			switch c.Operator {
			case OpNotEqual:
				parts = append(parts, col+" IS NOT NULL")
			default:
				parts = append(parts, col+" IS NULL")
			}
			continue
		}
		if c.Operator == OpIn {
			args = append(args, arrayArg(c.Value))
		} else {
			args = append(args, c.Value)
		}
		ph := fmt.Sprintf("$%d", argOffset+len(args))
		switch c.Operator {
		case OpIn:
			parts = append(parts, fmt.Sprintf("%s = ANY(%s)", col, ph))
		case OpNotEqual:
			parts = append(parts, fmt.Sprintf("%s <> %s", col, ph))
		case OpGreaterEqual:
			parts = append(parts, fmt.Sprintf("%s >= %s", col, ph))
		default:
			parts = append(parts, fmt.Sprintf("%s = %s", col, ph))
		}
	}
	return "WHERE " + strings.Join(parts, " AND "), args
}

// Match evaluates the query against an in-memory record, using the same
// semantics as the rendered SQL. Used by callers that filter already-fetched rows.
func (q Query) Match(record map[string]any) bool {
	for _, c := range q.Conditions {
		v, ok := record[c.Field]
		if !ok && c.Field == BranchField {
			v, ok = record["branchId"]
		}
		switch c.Operator {
		case OpIn:
			values, _ := c.Value.([]any)
			found := false
			for _, want := range values {
				if ok && equal(v, want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case OpNotEqual:
			if !ok || v == nil || equal(v, c.Value) {
				return false
			}
		case OpGreaterEqual:
			a, aok := toFloat(v)
			b, bok := toFloat(c.Value)
			if !ok || !aok || !bok || a < b {
				return false
			}
		default:
			if !ok || !equal(v, c.Value) {
				return false
			}
		}
	}
	return true
}

// arrayArg narrows homogeneous string lists so the driver can encode them as text[].
func arrayArg(v any) any {
	values, ok := v.([]any)
	if !ok {
		return v
	}
	strs := make([]string, 0, len(values))
	for _, item := range values {
		s, ok := item.(string)
		if !ok {
			return values
		}
		strs = append(strs, s)
	}
	return strs
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
