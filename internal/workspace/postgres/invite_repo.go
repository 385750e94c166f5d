// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/doctray/doctray/internal/store"
	"github.com/doctray/doctray/internal/workspace"
)

// InviteRepository implements workspace.InviteRepository using PostgreSQL.
type InviteRepository struct {
	pool store.Querier
}

// NewInviteRepository creates a new InviteRepository.
func NewInviteRepository(pool store.Querier) *InviteRepository {
	return &InviteRepository{pool: pool}
}

// Create stores a new invite. A duplicate (workspace, email) pair yields
// INVITE_EXISTS.
func (r *InviteRepository) Create(ctx context.Context, inv *workspace.Invite) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO workspace_user_invites (id, "workspaceId", email, role, "createdAt", "updatedAt")
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		inv.ID.String(),
		inv.WorkspaceID.String(),
		strings.ToLower(inv.Email),
		string(inv.Role),
		inv.CreatedAt,
		inv.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("INVITE_EXISTS").
				With("workspace_id", inv.WorkspaceID.String()).
				With("email", inv.Email).
				Wrap(err)
		}
		return oops.Code("INVITE_CREATE_FAILED").
			With("operation", "insert invite").
			Wrap(err)
	}
	return nil
}

// ListByWorkspace returns all pending invites for one workspace.
func (r *InviteRepository) ListByWorkspace(ctx context.Context, workspaceID ulid.ULID) ([]*workspace.Invite, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, "workspaceId", email, role, "createdAt", "updatedAt"
		FROM workspace_user_invites
		WHERE "workspaceId" = $1
		ORDER BY "createdAt"
	`, workspaceID.String())
	if err != nil {
		return nil, oops.Code("INVITE_LIST_FAILED").
			With("operation", "list invites by workspace").
			Wrap(err)
	}
	return collectInvites(rows)
}

// ListByEmail returns all pending invites addressed to one email, across
// workspaces. Used at signup to redeem outstanding invites.
func (r *InviteRepository) ListByEmail(ctx context.Context, email string) ([]*workspace.Invite, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, "workspaceId", email, role, "createdAt", "updatedAt"
		FROM workspace_user_invites
		WHERE email = $1
		ORDER BY "createdAt"
	`, strings.ToLower(email))
	if err != nil {
		return nil, oops.Code("INVITE_LIST_FAILED").
			With("operation", "list invites by email").
			Wrap(err)
	}
	return collectInvites(rows)
}

// Delete removes one invite.
func (r *InviteRepository) Delete(ctx context.Context, id ulid.ULID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM workspace_user_invites WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("INVITE_DELETE_FAILED").
			With("operation", "delete invite").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("INVITE_NOT_FOUND").
			With("id", id.String()).
			Wrap(workspace.ErrNotFound)
	}
	return nil
}

// DeleteByIDs removes a batch of invites, as redemption does after signup.
// Missing IDs are not an error: a concurrent redemption may have removed
// them already.
func (r *InviteRepository) DeleteByIDs(ctx context.Context, ids []ulid.ULID) error {
	if len(ids) == 0 {
		return nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	_, err := r.pool.Exec(ctx, `
		DELETE FROM workspace_user_invites WHERE id = ANY($1)
	`, strs)
	if err != nil {
		return oops.Code("INVITE_DELETE_FAILED").
			With("operation", "delete invites by ids").
			Wrap(err)
	}
	return nil
}

func collectInvites(rows pgx.Rows) ([]*workspace.Invite, error) {
	defer rows.Close()

	var out []*workspace.Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, oops.Code("INVITE_LIST_FAILED").
				With("operation", "scan invite row").
				Wrap(err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("INVITE_LIST_FAILED").
			With("operation", "iterate invites").
			Wrap(err)
	}
	return out, nil
}

func scanInvite(row pgx.Row) (*workspace.Invite, error) {
	var inv workspace.Invite
	var idStr, wsStr, roleStr string
	if err := row.Scan(&idStr, &wsStr, &inv.Email, &roleStr, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if inv.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("INVITE_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	if inv.WorkspaceID, err = ulid.Parse(wsStr); err != nil {
		return nil, oops.Code("INVITE_CORRUPT_ID").With("workspace_id", wsStr).Wrap(err)
	}
	inv.Role = workspace.Role(roleStr)
	return &inv, nil
}
