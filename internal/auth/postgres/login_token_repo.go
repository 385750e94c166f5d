// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/doctray/doctray/internal/auth"
	"github.com/doctray/doctray/internal/store"
)

// LoginTokenRepository implements auth.LoginTokenRepository using
// PostgreSQL.
type LoginTokenRepository struct {
	pool store.Querier
}

// NewLoginTokenRepository creates a new LoginTokenRepository.
func NewLoginTokenRepository(pool store.Querier) *LoginTokenRepository {
	return &LoginTokenRepository{pool: pool}
}

// Create stores a new login code.
func (r *LoginTokenRepository) Create(ctx context.Context, token *auth.LoginToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO login_tokens (id, "userId", code, "expiresAt", "createdAt")
		VALUES ($1, $2, $3, $4, $5)
	`,
		token.ID.String(),
		token.UserID.String(),
		token.Code,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		return oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "insert login token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByUserAndCode retrieves a login code for one user.
func (r *LoginTokenRepository) GetByUserAndCode(ctx context.Context, userID ulid.ULID, code string) (*auth.LoginToken, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, "userId", code, "expiresAt", "createdAt"
		FROM login_tokens
		WHERE "userId" = $1 AND code = $2
	`, userID.String(), code)

	var lt auth.LoginToken
	var idStr, userStr string
	err := row.Scan(&idStr, &userStr, &lt.Code, &lt.ExpiresAt, &lt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_GET_FAILED").
			With("operation", "get login token").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if lt.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("TOKEN_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	if lt.UserID, err = ulid.Parse(userStr); err != nil {
		return nil, oops.Code("TOKEN_CORRUPT_ID").With("user_id", userStr).Wrap(err)
	}
	return &lt, nil
}

// DeleteByUser removes every outstanding code for a user.
func (r *LoginTokenRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM login_tokens WHERE "userId" = $1
	`, userID.String())
	if err != nil {
		return oops.Code("TOKEN_DELETE_FAILED").
			With("operation", "delete login tokens by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes codes past their expiry.
func (r *LoginTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM login_tokens WHERE "expiresAt" < now()
	`)
	if err != nil {
		return 0, oops.Code("TOKEN_CLEANUP_FAILED").
			With("operation", "delete expired login tokens").
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}
