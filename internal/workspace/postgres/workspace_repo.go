// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

// Package postgres implements workspace, membership and invite persistence
// against PostgreSQL. List queries embed compiled permission filters so the
// database only ever returns rows the caller is allowed to see.
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

// WorkspaceRepository implements workspace.Repository using PostgreSQL.
type WorkspaceRepository struct {
	pool store.Querier
}

// NewWorkspaceRepository creates a new WorkspaceRepository.
func NewWorkspaceRepository(pool store.Querier) *WorkspaceRepository {
	return &WorkspaceRepository{pool: pool}
}

// Create stores a new workspace. A duplicate slug yields WORKSPACE_SLUG_TAKEN.
func (r *WorkspaceRepository) Create(ctx context.Context, ws *workspace.Workspace) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO workspaces (id, name, slug, "createdAt", "updatedAt")
		VALUES ($1, $2, $3, $4, $5)
	`,
		ws.ID.String(),
		ws.Name,
		ws.Slug,
		ws.CreatedAt,
		ws.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("WORKSPACE_SLUG_TAKEN").
				With("slug", ws.Slug).
				Wrap(err)
		}
		return oops.Code("WORKSPACE_CREATE_FAILED").
			With("operation", "insert workspace").
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a workspace by ID.
func (r *WorkspaceRepository) GetByID(ctx context.Context, id ulid.ULID) (*workspace.Workspace, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, slug, "createdAt", "updatedAt"
		FROM workspaces
		WHERE id = $1
	`, id.String())
	return r.scanOne(row, "id", id.String())
}

// GetBySlug retrieves a workspace by its unique slug.
func (r *WorkspaceRepository) GetBySlug(ctx context.Context, slug string) (*workspace.Workspace, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, slug, "createdAt", "updatedAt"
		FROM workspaces
		WHERE slug = $1
	`, slug)
	return r.scanOne(row, "slug", slug)
}

// Update writes the workspace's mutable fields.
func (r *WorkspaceRepository) Update(ctx context.Context, ws *workspace.Workspace) error {
	ws.UpdatedAt = time.Now()
	tag, err := r.pool.Exec(ctx, `
		UPDATE workspaces
		SET name = $2, slug = $3, "updatedAt" = $4
		WHERE id = $1
	`,
		ws.ID.String(),
		ws.Name,
		ws.Slug,
		ws.UpdatedAt,
	)
	if err != nil {
		return oops.Code("WORKSPACE_UPDATE_FAILED").
			With("operation", "update workspace").
			With("id", ws.ID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("WORKSPACE_NOT_FOUND").
			With("id", ws.ID.String()).
			Wrap(workspace.ErrNotFound)
	}
	return nil
}

// List returns the workspaces the compiled permission filter admits. The
// filter's conditions reference workspace columns directly (the policy
// grants read by workspace id), so it slots into the WHERE clause as-is.
func (r *WorkspaceRepository) List(ctx context.Context, filter sqlfilter.Filter) ([]*workspace.Workspace, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, slug, "createdAt", "updatedAt"
		FROM workspaces
		WHERE `+filter.Where+`
		ORDER BY "createdAt"
	`, filter.Args...)
	if err != nil {
		return nil, oops.Code("WORKSPACE_LIST_FAILED").
			With("operation", "list workspaces").
			Wrap(err)
	}
	defer rows.Close()

	var out []*workspace.Workspace
	for rows.Next() {
		ws, err := r.scanWorkspace(rows)
		if err != nil {
			return nil, oops.Code("WORKSPACE_LIST_FAILED").
				With("operation", "scan workspace row").
				Wrap(err)
		}
		out = append(out, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("WORKSPACE_LIST_FAILED").
			With("operation", "iterate workspaces").
			Wrap(err)
	}
	return out, nil
}

func (r *WorkspaceRepository) scanOne(row pgx.Row, key, value string) (*workspace.Workspace, error) {
	ws, err := r.scanWorkspace(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("WORKSPACE_NOT_FOUND").
			With(key, value).
			Wrap(workspace.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("WORKSPACE_GET_FAILED").
			With("operation", "get workspace").
			With(key, value).
			Wrap(err)
	}
	return ws, nil
}

func (r *WorkspaceRepository) scanWorkspace(row pgx.Row) (*workspace.Workspace, error) {
	var ws workspace.Workspace
	var idStr string
	if err := row.Scan(&idStr, &ws.Name, &ws.Slug, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
		return nil, err
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("WORKSPACE_CORRUPT_ID").
			With("id", idStr).
			Wrap(err)
	}
	ws.ID = id
	return &ws, nil
}
