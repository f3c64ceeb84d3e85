package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"retailgate.org/internal/access"
	"retailgate.org/internal/branches"
)

const branchColumns = "id, code, name, isolation_level, " +
	"coalesce(array_to_string(accessible_branch_ids, ','), ''), " +
	"coalesce(array_to_string(report_categories, ','), '')"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBranch(row rowScanner) (access.Branch, error) {
	var (
		b                 access.Branch
		level, accessible string
		categories        string
	)
	if err := row.Scan(&b.ID, &b.Code, &b.Name, &level, &accessible, &categories); err != nil {
		return access.Branch{}, err
	}
	lvl, err := access.ParseIsolationLevel(level)
	if err != nil {
		return access.Branch{}, fmt.Errorf("branch %s: %w", b.ID, err)
	}
	b.IsolationLevel = lvl
	b.AccessibleBranchIDs = splitList(accessible)
	b.ReportCategories = splitList(categories)
	return b, nil
}

func (s *Store) Branch(ctx context.Context, id string) (access.Branch, error) {
	b, err := scanBranch(s.db.QueryRowContext(ctx, `select `+branchColumns+` from branches where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return access.Branch{}, fmt.Errorf("%w: %s", branches.ErrNotFound, id)
	}
	if err != nil {
		return access.Branch{}, err
	}
	return b, nil
}

func (s *Store) List(ctx context.Context) ([]access.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `select `+branchColumns+` from branches order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []access.Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Grants(ctx context.Context, userID, branchID string) ([]string, error) {
	var perms string
	err := s.db.QueryRowContext(ctx, `
		select coalesce(array_to_string(permissions, ','), '')
		from user_branch_access
		where user_id = $1 and branch_id = $2
	`, userID, branchID).Scan(&perms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return splitList(perms), nil
}

// PutBranch inserts or updates a branch.
func (s *Store) PutBranch(ctx context.Context, b access.Branch) error {
	b.ID = strings.TrimSpace(b.ID)
	if b.ID == "" {
		return fmt.Errorf("%w: branch id is required", access.ErrInvalidInput)
	}
	lvl, err := access.ParseIsolationLevel(string(b.IsolationLevel))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into branches(id, code, name, isolation_level, accessible_branch_ids, report_categories, updated_at)
		values ($1, $2, $3, $4, $5, $6, now())
		on conflict (id) do update
		set code = excluded.code,
		    name = excluded.name,
		    isolation_level = excluded.isolation_level,
		    accessible_branch_ids = excluded.accessible_branch_ids,
		    report_categories = excluded.report_categories,
		    updated_at = now()
	`, b.ID, b.Code, b.Name, string(lvl), nonNil(b.AccessibleBranchIDs), nonNil(b.ReportCategories))
	return err
}

// Grant replaces the permissions userID holds while acting from branchID.
func (s *Store) Grant(ctx context.Context, userID, branchID string, perms []string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_branch_access(user_id, branch_id, permissions)
		values ($1, $2, $3)
		on conflict (user_id, branch_id) do update
		set permissions = excluded.permissions
	`, userID, branchID, nonNil(perms))
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgForeignKeyViolation {
		return fmt.Errorf("%w: %s", branches.ErrNotFound, branchID)
	}
	return err
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
