package dataaccess

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Options controls ProcessAPIResponse.
type Options struct {
	SortBy         string            `json:"sort_by,omitempty"`
	SortOrder      string            `json:"sort_order,omitempty"`
	IncludeSummary bool              `json:"include_summary,omitempty"`
	BranchNames    map[string]string `json:"branch_names,omitempty"`
}

func (o Options) descending() bool {
	return strings.EqualFold(strings.TrimSpace(o.SortOrder), "desc")
}

// sortRows returns a stably sorted copy of rows. Rows missing the field sort
// last in either direction.
func sortRows(rows []Row, field string, desc bool) []Row {
	out := make([]Row, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := out[i][field]
		b, bok := out[j][field]
		aok = aok && a != nil
		bok = bok && b != nil
		switch {
		case !aok && !bok:
			return false
		case !aok:
			return false
		case !bok:
			return true
		}
		c := compare(a, b)
		if desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

func compare(a, b any) int {
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	if x, ok := a.(time.Time); ok {
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	if x, ok := a.(bool); ok {
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
