package branches

import (
	"context"
	"errors"

	"retailgate.org/internal/access"
)

// Resolve builds the branch context for userID acting from currentBranchID.
// Accessible branches come from the current branch's policy; ids that no
// longer exist are skipped. Permissions merge the token's with stored grants.
func Resolve(ctx context.Context, src Source, userID, currentBranchID string, permissions []string) (access.BranchContext, error) {
	current, err := src.Branch(ctx, currentBranchID)
	if err != nil {
		return access.BranchContext{}, err
	}
	bctx := access.BranchContext{CurrentBranch: current}
	for _, id := range current.AccessibleBranchIDs {
		b, err := src.Branch(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return access.BranchContext{}, err
		}
		bctx.AccessibleBranches = append(bctx.AccessibleBranches, b)
	}

	grants, err := src.Grants(ctx, userID, current.ID)
	if err != nil {
		return access.BranchContext{}, err
	}
	seen := make(map[string]struct{}, len(permissions)+len(grants))
	for _, p := range append(append([]string(nil), permissions...), grants...) {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		bctx.Permissions = append(bctx.Permissions, p)
	}
	return bctx, nil
}

// Names maps branch ids to display names.
func Names(ctx context.Context, l Lister) (map[string]string, error) {
	list, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(list))
	for _, b := range list {
		out[b.ID] = b.Name
	}
	return out, nil
}

// ScopeIDs returns the branch ids a caller may query: the current branch plus
// every accessible branch, in that order.
func ScopeIDs(bctx access.BranchContext) []string {
	out := []string{bctx.CurrentBranch.ID}
	for _, b := range bctx.AccessibleBranches {
		if b.ID != bctx.CurrentBranch.ID {
			out = append(out, b.ID)
		}
	}
	return out
}
