// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

// Package user defines user accounts. Authentication is passwordless:
// a user proves ownership of their email with a one-time code, which also
// flips the verified flag the authorization policy keys on.
package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("user not found")

// User is one account.
type User struct {
	ID        ulid.ULID
	Email     string
	FirstName string
	LastName  string
	Verified  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a validated User. Email is stored lowercased so invite
// redemption and login lookups are case-insensitive.
func New(email, firstName, lastName string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, oops.Code("USER_INVALID").Errorf("invalid email address")
	}
	if firstName == "" {
		return nil, oops.Code("USER_INVALID").Errorf("first name cannot be empty")
	}
	if lastName == "" {
		return nil, oops.Code("USER_INVALID").Errorf("last name cannot be empty")
	}
	now := time.Now()
	return &User{
		ID:        ulid.Make(),
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Update is a partial patch of the user's editable fields. Nil fields are
// left unchanged.
type Update struct {
	FirstName *string
	LastName  *string
}

// Fields names the fields the patch writes, for the field-scoped
// permission check.
func (u Update) Fields() []string {
	var fields []string
	if u.FirstName != nil {
		fields = append(fields, "firstName")
	}
	if u.LastName != nil {
		fields = append(fields, "lastName")
	}
	return fields
}

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
}
