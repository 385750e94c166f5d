// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

// Package auth provides passwordless authentication: signup with invite
// redemption, one-time login codes delivered by email, and opaque session
// tokens resolved into the membership snapshot the permission layer
// consumes.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/doctray/doctray/internal/ability"
	"github.com/doctray/doctray/internal/mail"
	"github.com/doctray/doctray/internal/store"
	"github.com/doctray/doctray/internal/user"
	"github.com/doctray/doctray/internal/workspace"
)

// Repos bundles the repositories the service touches. A ReposFactory
// builds them over a Querier so one signup transaction can span users,
// memberships and invites.
type Repos struct {
	Users       user.Repository
	Memberships workspace.MembershipRepository
	Invites     workspace.InviteRepository
	Sessions    SessionRepository
	Tokens      LoginTokenRepository
}

// ReposFactory returns repositories bound to q. Passing the service's
// pool yields plain repositories; passing a transaction Querier makes
// them transactional.
type ReposFactory func(q store.Querier) Repos

// Service provides authentication operations.
type Service struct {
	db      store.Querier
	repos   ReposFactory
	mailer  mail.Mailer
	limiter *RateLimiter

	sessionTTL time.Duration
	otpTTL     time.Duration

	now func() time.Time // test seam
}

// Option adjusts an optional Service setting.
type Option func(*Service)

// WithSessionTTL overrides how long issued sessions stay valid.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.sessionTTL = ttl }
}

// WithOTPTTL overrides how long issued login codes stay valid.
func WithOTPTTL(ttl time.Duration) Option {
	return func(s *Service) { s.otpTTL = ttl }
}

// NewService creates a Service. The limiter throttles per-email code
// resends; the caller owns its sweep lifecycle.
func NewService(db store.Querier, repos ReposFactory, mailer mail.Mailer, limiter *RateLimiter, opts ...Option) (*Service, error) {
	if db == nil {
		return nil, oops.Errorf("database is required")
	}
	if repos == nil {
		return nil, oops.Errorf("repository factory is required")
	}
	if mailer == nil {
		return nil, oops.Errorf("mailer is required")
	}
	if limiter == nil {
		return nil, oops.Errorf("rate limiter is required")
	}
	s := &Service{
		db:         db,
		repos:      repos,
		mailer:     mailer,
		limiter:    limiter,
		sessionTTL: SessionTokenExpiry,
		otpTTL:     OTPExpiry,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Signup creates a user and redeems any invites pending for the email
// into memberships, atomically. The new user starts unverified and gains
// no permissions until the first successful login.
func (s *Service) Signup(ctx context.Context, email, firstName, lastName string) (*user.User, error) {
	u, err := user.New(email, firstName, lastName)
	if err != nil {
		return nil, err
	}

	err = store.Tx(ctx, s.db, func(q store.Querier) error {
		r := s.repos(q)
		if err := r.Users.Create(ctx, u); err != nil {
			return err
		}

		invites, err := r.Invites.ListByEmail(ctx, u.Email)
		if err != nil {
			return err
		}
		if len(invites) == 0 {
			return nil
		}

		redeemed := make([]ulid.ULID, 0, len(invites))
		for _, inv := range invites {
			m, err := workspace.NewMembership(inv.WorkspaceID, u.ID, inv.Role)
			if err != nil {
				return oops.Code("INVITE_REDEEM_FAILED").
					With("invite_id", inv.ID.String()).
					Wrap(err)
			}
			if err := r.Memberships.Create(ctx, m); err != nil {
				return err
			}
			redeemed = append(redeemed, inv.ID)
		}
		return r.Invites.DeleteByIDs(ctx, redeemed)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// SendOTP generates a login code for the email and mails it. Resends for
// one email are throttled by the limiter's window.
func (s *Service) SendOTP(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if !s.limiter.Allow("otp:" + email) {
		return oops.Code("AUTH_RATE_LIMITED").
			With("retry_after", s.limiter.Retry("otp:"+email).String()).
			Errorf("a code was sent recently, wait before requesting another")
	}

	r := s.repos(s.db)
	u, err := r.Users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	code, err := GenerateOTP()
	if err != nil {
		return err
	}
	token, err := NewLoginToken(u.ID, code, s.now().Add(s.otpTTL))
	if err != nil {
		return err
	}
	if err := r.Tokens.Create(ctx, token); err != nil {
		return err
	}
	return s.mailer.SendOTP(ctx, u.Email, code)
}

// Login consumes a one-time code and opens a session. The first
// successful login marks the user verified, which is what unlocks their
// permissions. Returns the user, the session, and the plaintext token.
func (s *Service) Login(ctx context.Context, email, code, userAgent, ipAddress, origin string) (*user.User, *Session, string, error) {
	r := s.repos(s.db)

	u, err := r.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			// Same error as a wrong code so callers cannot probe emails.
			return nil, nil, "", oops.Code("AUTH_INVALID_CODE").Errorf("invalid login code")
		}
		return nil, nil, "", err
	}

	lt, err := r.Tokens.GetByUserAndCode(ctx, u.ID, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, "", oops.Code("AUTH_INVALID_CODE").Errorf("invalid login code")
		}
		return nil, nil, "", err
	}
	if lt.IsExpiredAt(s.now()) {
		return nil, nil, "", oops.Code("AUTH_CODE_EXPIRED").Errorf("login code expired")
	}

	// A code is single use: consume every outstanding code for the user.
	if err := r.Tokens.DeleteByUser(ctx, u.ID); err != nil {
		return nil, nil, "", err
	}

	if !u.Verified {
		u.Verified = true
		if err := r.Users.Update(ctx, u); err != nil {
			return nil, nil, "", err
		}
	}

	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, nil, "", err
	}
	session, err := NewSession(u.ID, tokenHash, userAgent, ipAddress, origin, s.now().Add(s.sessionTTL))
	if err != nil {
		return nil, nil, "", err
	}
	if err := r.Sessions.Create(ctx, session); err != nil {
		return nil, nil, "", err
	}
	return u, session, token, nil
}

// Identity is the resolved caller of a request: the session, its user,
// and the user's memberships as of resolution.
type Identity struct {
	User        *user.User
	Session     *Session
	Memberships []*workspace.Membership
}

// Facts converts the identity into the snapshot the permission builder
// consumes.
func (id *Identity) Facts() ability.Session {
	ms := make([]ability.Membership, len(id.Memberships))
	for i, m := range id.Memberships {
		ms[i] = ability.Membership{
			WorkspaceID: m.WorkspaceID.String(),
			Role:        string(m.Role),
			Suspended:   m.Suspended,
		}
	}
	return ability.Session{
		UserID:      id.User.ID.String(),
		Verified:    id.User.Verified,
		Memberships: ms,
	}
}

// Resolve maps a plaintext session token to the caller's identity.
// Unknown and expired tokens return the same unauthenticated error.
func (s *Service) Resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, oops.Code("AUTH_UNAUTHENTICATED").Wrap(ErrUnauthenticated)
	}

	r := s.repos(s.db)
	session, err := r.Sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_UNAUTHENTICATED").Wrap(ErrUnauthenticated)
		}
		return nil, err
	}
	if session.IsExpiredAt(s.now()) {
		_ = r.Sessions.DeleteByTokenHash(ctx, session.TokenHash) //nolint:errcheck // best effort cleanup
		return nil, oops.Code("AUTH_UNAUTHENTICATED").Wrap(ErrUnauthenticated)
	}

	u, err := r.Users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	memberships, err := r.Memberships.ListByUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	_ = r.Sessions.Touch(ctx, session.ID, s.now()) //nolint:errcheck // best effort

	return &Identity{User: u, Session: session, Memberships: memberships}, nil
}

// Logout invalidates a session token. Unknown tokens are a no-op so
// logout is idempotent.
func (s *Service) Logout(ctx context.Context, token string) error {
	err := s.repos(s.db).Sessions.DeleteByTokenHash(ctx, HashSessionToken(token))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// CleanupExpired removes expired sessions and login codes. Run it
// periodically.
func (s *Service) CleanupExpired(ctx context.Context) (sessions, tokens int64, err error) {
	r := s.repos(s.db)
	sessions, err = r.Sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, 0, err
	}
	tokens, err = r.Tokens.DeleteExpired(ctx)
	if err != nil {
		return sessions, 0, err
	}
	return sessions, tokens, nil
}
