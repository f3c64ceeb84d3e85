package dataaccess

import "fmt"

// BranchBucket groups the rows of one branch.
type BranchBucket struct {
	BranchID   string `json:"branch_id"`
	BranchName string `json:"branch_name"`
	Count      int    `json:"count"`
	Items      []Row  `json:"items"`
}

// Summary is a per-branch breakdown of a result set.
type Summary struct {
	Branches      []BranchBucket `json:"branches"`
	TotalBranches int            `json:"total_branches"`
	TotalItems    int            `json:"total_items"`
}

// CrossBranchSummary buckets rows by their branchId (or branch_id) field in
// first-seen order. Rows without a branch id are left out. names maps branch
// ids to display names; unknown ids use the id itself.
func CrossBranchSummary(data []Row, names map[string]string) Summary {
	index := make(map[string]int)
	var buckets []BranchBucket
	total := 0
	for _, row := range data {
		id, ok := branchOf(row)
		if !ok {
			continue
		}
		i, seen := index[id]
		if !seen {
			name := names[id]
			if name == "" {
				name = id
			}
			i = len(buckets)
			index[id] = i
			buckets = append(buckets, BranchBucket{BranchID: id, BranchName: name})
		}
		buckets[i].Count++
		buckets[i].Items = append(buckets[i].Items, row)
		total++
	}
	if buckets == nil {
		buckets = []BranchBucket{}
	}
	return Summary{Branches: buckets, TotalBranches: len(buckets), TotalItems: total}
}

func branchOf(row Row) (string, bool) {
	for _, key := range []string{"branchId", "branch_id"} {
		v, ok := row[key]
		if !ok || v == nil {
			continue
		}
		var id string
		if s, isStr := v.(string); isStr {
			id = s
		} else {
			id = fmt.Sprint(v)
		}
		if id != "" {
			return id, true
		}
	}
	return "", false
}
