// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

// Package postgres implements auth persistence against PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/doctray/doctray/internal/auth"
	"github.com/doctray/doctray/internal/store"
)

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	pool store.Querier
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool store.Querier) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, "userId", "tokenHash", "userAgent", "ipAddress", origin, "expiresAt", "createdAt", "lastSeenAt")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		session.ID.String(),
		session.UserID.String(),
		session.TokenHash,
		session.UserAgent,
		session.IPAddress,
		session.Origin,
		session.ExpiresAt,
		session.CreatedAt,
		session.LastSeenAt,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, "userId", "tokenHash", "userAgent", "ipAddress", origin, "expiresAt", "createdAt", "lastSeenAt"
		FROM sessions
		WHERE "tokenHash" = $1
	`, tokenHash)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	return session, nil
}

// Touch updates the session's last-seen timestamp.
func (r *SessionRepository) Touch(ctx context.Context, id ulid.ULID, lastSeenAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sessions SET "lastSeenAt" = $2 WHERE id = $1
	`, id.String(), lastSeenAt)
	if err != nil {
		return oops.Code("SESSION_TOUCH_FAILED").
			With("id", id.String()).
			Wrap(err)
	}
	return nil
}

// DeleteByTokenHash removes a session by its token hash.
func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM sessions WHERE "tokenHash" = $1
	`, tokenHash)
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteExpired removes sessions past their expiry.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM sessions WHERE "expiresAt" < now()
	`)
	if err != nil {
		return 0, oops.Code("SESSION_CLEANUP_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*auth.Session, error) {
	var s auth.Session
	var idStr, userStr string
	if err := row.Scan(&idStr, &userStr, &s.TokenHash, &s.UserAgent, &s.IPAddress, &s.Origin, &s.ExpiresAt, &s.CreatedAt, &s.LastSeenAt); err != nil {
		return nil, err
	}
	var err error
	if s.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("SESSION_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	if s.UserID, err = ulid.Parse(userStr); err != nil {
		return nil, oops.Code("SESSION_CORRUPT_ID").With("user_id", userStr).Wrap(err)
	}
	return &s, nil
}
