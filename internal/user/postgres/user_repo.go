// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

// Package postgres implements user persistence against PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/doctray/doctray/internal/store"
	"github.com/doctray/doctray/internal/user"
)

// UserRepository implements user.Repository using PostgreSQL.
type UserRepository struct {
	pool store.Querier
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool store.Querier) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user. A duplicate email yields USER_EMAIL_TAKEN.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, "firstName", "lastName", verified, "createdAt", "updatedAt")
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		u.ID.String(),
		u.Email,
		u.FirstName,
		u.LastName,
		u.Verified,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_EMAIL_TAKEN").
				With("email", u.Email).
				Wrap(err)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*user.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, "firstName", "lastName", verified, "createdAt", "updatedAt"
		FROM users
		WHERE id = $1
	`, id.String())

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(user.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, "firstName", "lastName", verified, "createdAt", "updatedAt"
		FROM users
		WHERE email = $1
	`, strings.ToLower(email))

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("email", email).
			Wrap(user.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return u, nil
}

// Update writes the user's mutable fields.
func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	u.UpdatedAt = time.Now()
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET "firstName" = $2, "lastName" = $3, verified = $4, "updatedAt" = $5
		WHERE id = $1
	`,
		u.ID.String(),
		u.FirstName,
		u.LastName,
		u.Verified,
		u.UpdatedAt,
	)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", u.ID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", u.ID.String()).
			Wrap(user.ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	var idStr string
	if err := row.Scan(&idStr, &u.Email, &u.FirstName, &u.LastName, &u.Verified, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_CORRUPT_ID").
			With("id", idStr).
			Wrap(err)
	}
	u.ID = id
	return &u, nil
}
