// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/doctray/doctray/internal/ability/sqlfilter"
	"github.com/doctray/doctray/internal/store"
	"github.com/doctray/doctray/internal/workspace"
)

// MembershipRepository implements workspace.MembershipRepository using
// PostgreSQL.
type MembershipRepository struct {
	pool store.Querier
}

// NewMembershipRepository creates a new MembershipRepository.
func NewMembershipRepository(pool store.Querier) *MembershipRepository {
	return &MembershipRepository{pool: pool}
}

// Create stores a new membership. A duplicate (workspace, user) pair
// yields MEMBERSHIP_EXISTS.
func (r *MembershipRepository) Create(ctx context.Context, m *workspace.Membership) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO workspace_users (id, "workspaceId", "userId", role, suspended, "createdAt", "updatedAt")
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		m.ID.String(),
		m.WorkspaceID.String(),
		m.UserID.String(),
		string(m.Role),
		m.Suspended,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("MEMBERSHIP_EXISTS").
				With("workspace_id", m.WorkspaceID.String()).
				With("user_id", m.UserID.String()).
				Wrap(err)
		}
		return oops.Code("MEMBERSHIP_CREATE_FAILED").
			With("operation", "insert membership").
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a membership by ID.
func (r *MembershipRepository) GetByID(ctx context.Context, id ulid.ULID) (*workspace.Membership, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, "workspaceId", "userId", role, suspended, "createdAt", "updatedAt"
		FROM workspace_users
		WHERE id = $1
	`, id.String())

	m, err := scanMembership(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("MEMBERSHIP_NOT_FOUND").
			With("id", id.String()).
			Wrap(workspace.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("MEMBERSHIP_GET_FAILED").
			With("operation", "get membership by id").
			With("id", id.String()).
			Wrap(err)
	}
	return m, nil
}

// ListByUser returns every membership of one user, suspended ones included.
// The caller decides whether suspended memberships count.
func (r *MembershipRepository) ListByUser(ctx context.Context, userID ulid.ULID) ([]*workspace.Membership, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, "workspaceId", "userId", role, suspended, "createdAt", "updatedAt"
		FROM workspace_users
		WHERE "userId" = $1
		ORDER BY "createdAt"
	`, userID.String())
	if err != nil {
		return nil, oops.Code("MEMBERSHIP_LIST_FAILED").
			With("operation", "list memberships by user").
			Wrap(err)
	}
	return collectMemberships(rows)
}

// List returns memberships admitted by both the compiled permission filter
// and the caller's extra filter.
func (r *MembershipRepository) List(ctx context.Context, filter, extra sqlfilter.Filter) ([]*workspace.Membership, error) {
	combined := sqlfilter.And(filter, extra)
	rows, err := r.pool.Query(ctx, `
		SELECT id, "workspaceId", "userId", role, suspended, "createdAt", "updatedAt"
		FROM workspace_users
		WHERE `+combined.Where+`
		ORDER BY "createdAt"
	`, combined.Args...)
	if err != nil {
		return nil, oops.Code("MEMBERSHIP_LIST_FAILED").
			With("operation", "list memberships").
			Wrap(err)
	}
	return collectMemberships(rows)
}

// Update writes the membership's mutable fields (role, suspended).
func (r *MembershipRepository) Update(ctx context.Context, m *workspace.Membership) error {
	m.UpdatedAt = time.Now()
	tag, err := r.pool.Exec(ctx, `
		UPDATE workspace_users
		SET role = $2, suspended = $3, "updatedAt" = $4
		WHERE id = $1
	`,
		m.ID.String(),
		string(m.Role),
		m.Suspended,
		m.UpdatedAt,
	)
	if err != nil {
		return oops.Code("MEMBERSHIP_UPDATE_FAILED").
			With("operation", "update membership").
			With("id", m.ID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("MEMBERSHIP_NOT_FOUND").
			With("id", m.ID.String()).
			Wrap(workspace.ErrNotFound)
	}
	return nil
}

func collectMemberships(rows pgx.Rows) ([]*workspace.Membership, error) {
	defer rows.Close()

	var out []*workspace.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, oops.Code("MEMBERSHIP_LIST_FAILED").
				With("operation", "scan membership row").
				Wrap(err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("MEMBERSHIP_LIST_FAILED").
			With("operation", "iterate memberships").
			Wrap(err)
	}
	return out, nil
}

func scanMembership(row pgx.Row) (*workspace.Membership, error) {
	var m workspace.Membership
	var idStr, wsStr, userStr, roleStr string
	if err := row.Scan(&idStr, &wsStr, &userStr, &roleStr, &m.Suspended, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if m.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("MEMBERSHIP_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	if m.WorkspaceID, err = ulid.Parse(wsStr); err != nil {
		return nil, oops.Code("MEMBERSHIP_CORRUPT_ID").With("workspace_id", wsStr).Wrap(err)
	}
	if m.UserID, err = ulid.Parse(userStr); err != nil {
		return nil, oops.Code("MEMBERSHIP_CORRUPT_ID").With("user_id", userStr).Wrap(err)
	}
	m.Role = workspace.Role(roleStr)
	return &m, nil
}
