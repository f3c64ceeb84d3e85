package pg

import (
	"context"
	"fmt"
	"strings"

	"retailgate.org/internal/access"
	"retailgate.org/internal/scope"
)

// DefaultRowLimit caps a scoped read when the caller gives no limit.
const DefaultRowLimit = 500

var resourceTables = map[access.ResourceType]string{
	access.ResourceSales:     "sales",
	access.ResourceStock:     "stock_items",
	access.ResourceCustomers: "customers",
	access.ResourceEmployees: "employees",
	access.ResourceReports:   "report_snapshots",
	access.ResourceSettings:  "branch_settings",
}

// TableFor returns the table holding rows of rt.
func TableFor(rt access.ResourceType) (string, bool) {
	t, ok := resourceTables[rt]
	return t, ok
}

// Rows runs q against the table of rt and returns each row as a column map.
// Column names are returned in camelCase so they line up with the field
// whitelists applied to partial grants.
func (s *Store) Rows(ctx context.Context, rt access.ResourceType, q scope.Query, limit int) ([]map[string]any, error) {
	table, ok := TableFor(rt)
	if !ok {
		return nil, fmt.Errorf("%w: no table for resource %q", access.ErrInvalidInput, rt)
	}
	if limit <= 0 {
		limit = DefaultRowLimit
	}
	where, args := q.SQL("t", 0)
	query := fmt.Sprintf("select t.* from %s t %s limit $%d", table, where, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(cols))
	for i, c := range cols {
		keys[i] = camelCase(c)
	}
	out := []map[string]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(cols))
		for i, c := range keys {
			if b, ok := vals[i].([]byte); ok {
				rec[c] = string(b)
				continue
			}
			rec[c] = vals[i]
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// camelCase turns a snake_case column name into the camelCase key used on
// the wire. Names without underscores are returned unchanged.
func camelCase(col string) string {
	if !strings.Contains(col, "_") {
		return col
	}
	var b strings.Builder
	b.Grow(len(col))
	upper := false
	for _, r := range col {
		if r == '_' {
			upper = b.Len() > 0
			continue
		}
		if upper {
			b.WriteString(strings.ToUpper(string(r)))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
