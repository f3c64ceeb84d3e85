// Package branches holds the branch topology and resolves the branch context
// a caller acts in.
package branches

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"retailgate.org/internal/access"
)

// ErrNotFound reports an unknown branch.
var ErrNotFound = errors.New("branches: not found")

// Source looks up branches and per-user grants.
type Source interface {
	Branch(ctx context.Context, id string) (access.Branch, error)
	Grants(ctx context.Context, userID, branchID string) ([]string, error)
}

// Lister enumerates every known branch.
type Lister interface {
	List(ctx context.Context) ([]access.Branch, error)
}

type grantKey struct{ user, branch string }

// Directory is an in-memory Source safe for concurrent use.
type Directory struct {
	mu       sync.RWMutex
	branches map[string]access.Branch
	grants   map[grantKey][]string
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		branches: make(map[string]access.Branch),
		grants:   make(map[grantKey][]string),
	}
}

// Put adds or replaces a branch.
func (d *Directory) Put(b access.Branch) error {
	b.ID = strings.TrimSpace(b.ID)
	if b.ID == "" {
		return fmt.Errorf("%w: branch id is required", access.ErrInvalidInput)
	}
	lvl, err := access.ParseIsolationLevel(string(b.IsolationLevel))
	if err != nil {
		return fmt.Errorf("branch %s: %w", b.ID, err)
	}
	b.IsolationLevel = lvl
	b.AccessibleBranchIDs = append([]string(nil), b.AccessibleBranchIDs...)
	b.ReportCategories = append([]string(nil), b.ReportCategories...)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.branches[b.ID] = b
	return nil
}

// Grant gives userID extra permissions while acting from branchID.
func (d *Directory) Grant(userID, branchID string, perms ...string) {
	key := grantKey{strings.TrimSpace(userID), strings.TrimSpace(branchID)}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.grants[key] = append(d.grants[key], perms...)
}

func (d *Directory) Branch(_ context.Context, id string) (access.Branch, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.branches[strings.TrimSpace(id)]
	if !ok {
		return access.Branch{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b, nil
}

func (d *Directory) Grants(_ context.Context, userID, branchID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	perms := d.grants[grantKey{userID, branchID}]
	return append([]string(nil), perms...), nil
}

// List returns every branch ordered by id.
func (d *Directory) List(context.Context) ([]access.Branch, error) {
	d.mu.RLock()
	out := make([]access.Branch, 0, len(d.branches))
	for _, b := range d.branches {
		out = append(out, b)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GrantRecord is one stored (user, branch) permission set.
type GrantRecord struct {
	UserID      string
	BranchID    string
	Permissions []string
}

// GrantList returns every grant ordered by user then branch.
func (d *Directory) GrantList() []GrantRecord {
	d.mu.RLock()
	out := make([]GrantRecord, 0, len(d.grants))
	for k, perms := range d.grants {
		out = append(out, GrantRecord{UserID: k.user, BranchID: k.branch, Permissions: append([]string(nil), perms...)})
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].BranchID < out[j].BranchID
	})
	return out
}

// Len returns the number of branches.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.branches)
}

type fileGrant struct {
	UserID      string   `yaml:"user_id"`
	BranchID    string   `yaml:"branch_id"`
	Permissions []string `yaml:"permissions"`
}

type file struct {
	Branches []access.Branch `yaml:"branches"`
	Grants   []fileGrant     `yaml:"grants"`
}

// Load reads a YAML directory document.
func Load(r io.Reader) (*Directory, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode branch directory: %w", err)
	}
	d := NewDirectory()
	for _, b := range f.Branches {
		if _, err := d.Branch(context.Background(), b.ID); err == nil {
			return nil, fmt.Errorf("%w: duplicate branch %s", access.ErrInvalidInput, b.ID)
		}
		if err := d.Put(b); err != nil {
			return nil, err
		}
	}
	for _, g := range f.Grants {
		if strings.TrimSpace(g.UserID) == "" || strings.TrimSpace(g.BranchID) == "" {
			return nil, fmt.Errorf("%w: grant needs user_id and branch_id", access.ErrInvalidInput)
		}
		d.Grant(g.UserID, g.BranchID, g.Permissions...)
	}
	return d, nil
}

// LoadFile reads a YAML directory from path.
func LoadFile(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}
