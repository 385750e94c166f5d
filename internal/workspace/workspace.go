// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

// Package workspace defines the tenant domain: workspaces, workspace
// membership, and invites for users who do not have an account yet.
package workspace

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/doctray/doctray/internal/ability/sqlfilter"
)

// ErrNotFound is returned when no workspace, membership or invite matches
// the lookup.
var ErrNotFound = errors.New("not found")

// Role is a member's role within one workspace.
type Role string

// Workspace roles, in decreasing order of privilege.
const (
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleUser:
		return true
	}
	return false
}

// IsAdmin reports whether the role carries workspace administration rights.
func (r Role) IsAdmin() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Workspace is one tenant.
type Workspace struct {
	ID        ulid.ULID
	Name      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewWorkspace creates a validated Workspace.
func NewWorkspace(name, slug string) (*Workspace, error) {
	if name == "" {
		return nil, oops.Code("WORKSPACE_INVALID").Errorf("workspace name cannot be empty")
	}
	if slug == "" {
		return nil, oops.Code("WORKSPACE_INVALID").Errorf("workspace slug cannot be empty")
	}
	now := time.Now()
	return &Workspace{
		ID:        ulid.Make(),
		Name:      name,
		Slug:      slug,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Membership ties a user to a workspace with a role. Suspended memberships
// stay on record but grant no access.
type Membership struct {
	ID          ulid.ULID
	WorkspaceID ulid.ULID
	UserID      ulid.ULID
	Role        Role
	Suspended   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Active reports whether the membership currently grants access.
func (m Membership) Active() bool {
	return !m.Suspended
}

// NewMembership creates a validated Membership.
func NewMembership(workspaceID, userID ulid.ULID, role Role) (*Membership, error) {
	if workspaceID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("MEMBERSHIP_INVALID").Errorf("workspace ID cannot be zero")
	}
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("MEMBERSHIP_INVALID").Errorf("user ID cannot be zero")
	}
	if !role.Valid() {
		return nil, oops.Code("MEMBERSHIP_INVALID").Errorf("unknown role %q", string(role))
	}
	now := time.Now()
	return &Membership{
		ID:          ulid.Make(),
		WorkspaceID: workspaceID,
		UserID:      userID,
		Role:        role,
		Suspended:   false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Invite is a pending membership for an email address without an account.
// Signup with a matching email redeems it into a Membership.
type Invite struct {
	ID          ulid.ULID
	WorkspaceID ulid.ULID
	Email       string
	Role        Role
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewInvite creates a validated Invite.
func NewInvite(workspaceID ulid.ULID, email string, role Role) (*Invite, error) {
	if workspaceID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("INVITE_INVALID").Errorf("workspace ID cannot be zero")
	}
	if email == "" {
		return nil, oops.Code("INVITE_INVALID").Errorf("email cannot be empty")
	}
	if !role.Valid() {
		return nil, oops.Code("INVITE_INVALID").Errorf("unknown role %q", string(role))
	}
	now := time.Now()
	return &Invite{
		ID:          ulid.Make(),
		WorkspaceID: workspaceID,
		Email:       email,
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// MembershipUpdate is the field-scoped patch admins may apply to another
// member's record. Nil fields are left unchanged.
type MembershipUpdate struct {
	Role      *Role
	Suspended *bool
}

// Fields names the fields the update writes, for the field-scoped
// permission check.
func (u MembershipUpdate) Fields() []string {
	var fields []string
	if u.Role != nil {
		fields = append(fields, "role")
	}
	if u.Suspended != nil {
		fields = append(fields, "suspended")
	}
	return fields
}

// Repository persists workspaces.
type Repository interface {
	Create(ctx context.Context, ws *Workspace) error
	GetByID(ctx context.Context, id ulid.ULID) (*Workspace, error)
	GetBySlug(ctx context.Context, slug string) (*Workspace, error)
	Update(ctx context.Context, ws *Workspace) error
	// List returns the workspaces the compiled permission filter admits.
	List(ctx context.Context, filter sqlfilter.Filter) ([]*Workspace, error)
}

// MembershipRepository persists workspace memberships.
type MembershipRepository interface {
	Create(ctx context.Context, m *Membership) error
	GetByID(ctx context.Context, id ulid.ULID) (*Membership, error)
	ListByUser(ctx context.Context, userID ulid.ULID) ([]*Membership, error)
	// List returns memberships admitted by both the compiled permission
	// filter and the caller's extra filter (ANDed).
	List(ctx context.Context, filter, extra sqlfilter.Filter) ([]*Membership, error)
	Update(ctx context.Context, m *Membership) error
}

// InviteRepository persists pending invites.
type InviteRepository interface {
	Create(ctx context.Context, inv *Invite) error
	ListByWorkspace(ctx context.Context, workspaceID ulid.ULID) ([]*Invite, error)
	ListByEmail(ctx context.Context, email string) ([]*Invite, error)
	Delete(ctx context.Context, id ulid.ULID) error
	DeleteByIDs(ctx context.Context, ids []ulid.ULID) error
}
