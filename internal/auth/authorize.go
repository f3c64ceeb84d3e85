package auth

import "strings"

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID      string
	Role        string
	BranchID    string
	Permissions map[string]struct{}
}

// NewPrincipal constructs a principal with preloaded permissions.
func NewPrincipal(userID, role, branchID string, perms []string) Principal {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		if p = strings.TrimSpace(p); p != "" {
			set[p] = struct{}{}
		}
	}
	return Principal{
		UserID:      strings.TrimSpace(userID),
		Role:        strings.TrimSpace(role),
		BranchID:    strings.TrimSpace(branchID),
		Permissions: set,
	}
}

// HasPermission reports whether the principal holds the permission key.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}

// PermissionList returns the permission keys in no particular order.
func (p Principal) PermissionList() []string {
	if len(p.Permissions) == 0 {
		return nil
	}
	out := make([]string, 0, len(p.Permissions))
	for k := range p.Permissions {
		out = append(out, k)
	}
	return out
}
