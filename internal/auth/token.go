// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// One-time code configuration.
const (
	// OTPDigits is the length of a login code.
	OTPDigits = 8
	// OTPExpiry is how long a login code stays valid.
	OTPExpiry = 10 * time.Minute
	// OTPResendInterval is the minimum wait between codes for one email.
	OTPResendInterval = 30 * time.Second
)

var otpMax = big.NewInt(100_000_000) // 10^OTPDigits

// LoginToken is a stored one-time login code.
type LoginToken struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	Code      string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewLoginToken creates a validated LoginToken.
func NewLoginToken(userID ulid.ULID, code string, expiresAt time.Time) (*LoginToken, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("TOKEN_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if len(code) != OTPDigits {
		return nil, oops.Code("TOKEN_INVALID_CODE").Errorf("code must be %d digits", OTPDigits)
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("TOKEN_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}
	return &LoginToken{
		ID:        ulid.Make(),
		UserID:    userID,
		Code:      code,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}

// IsExpiredAt reports whether the code would be expired at t.
func (lt *LoginToken) IsExpiredAt(t time.Time) bool {
	return t.After(lt.ExpiresAt)
}

// GenerateOTP returns a cryptographically random 8-digit login code,
// zero-padded.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpMax)
	if err != nil {
		return "", oops.Code("OTP_GENERATE_FAILED").
			With("operation", "crypto/rand.Int").
			Wrap(err)
	}
	return fmt.Sprintf("%0*d", OTPDigits, n), nil
}

// LoginTokenRepository manages login code persistence.
type LoginTokenRepository interface {
	Create(ctx context.Context, token *LoginToken) error
	GetByUserAndCode(ctx context.Context, userID ulid.ULID, code string) (*LoginToken, error)
	// DeleteByUser removes every outstanding code for a user, as a
	// successful login does.
	DeleteByUser(ctx context.Context, userID ulid.ULID) error
	// DeleteExpired removes codes past their expiry and returns how many
	// were removed.
	DeleteExpired(ctx context.Context) (int64, error)
}
