// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package ability

import "github.com/doctray/doctray/internal/ability/condition"

// Workspace role names as they appear on membership snapshots. The ability
// core keeps its own vocabulary so it never depends on the storage domain.
const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Session is the immutable identity snapshot the builder consumes: resolved
// by the authentication boundary, read here, never persisted.
type Session struct {
	UserID      string
	Verified    bool
	Memberships []Membership
}

// Membership is one workspace membership fact on the session.
type Membership struct {
	WorkspaceID string
	Role        string
	Suspended   bool
}

// Policy carries the configuration the rule set depends on.
type Policy struct {
	// AllowPublicWorkspaceCreation grants every verified user the right to
	// create workspaces.
	AllowPublicWorkspaceCreation bool
}

// Build produces the rule set for a session.
//
// Unverified users get an empty rule set, so every downstream check and
// compiled filter fails closed. No rule ever grants access outside the
// session's active (non-suspended) memberships.
func Build(sess Session, policy Policy) *Ability {
	b := builder{}

	if !sess.Verified {
		return b.ability()
	}

	b.can(ActionRead, SubjectUser, nil, condition.Eq("id", sess.UserID))
	b.can(ActionUpdate, SubjectUser, nil, condition.Eq("id", sess.UserID))

	if policy.AllowPublicWorkspaceCreation {
		b.can(ActionCreate, SubjectWorkspace, nil, nil)
	}

	var all, admin []string
	for _, m := range sess.Memberships {
		if m.Suspended {
			continue
		}
		all = append(all, m.WorkspaceID)
		if m.Role == RoleOwner || m.Role == RoleAdmin {
			admin = append(admin, m.WorkspaceID)
		}
	}

	b.can(ActionRead, SubjectWorkspace, nil, condition.In("id", condition.Strings(all)...))
	b.can(ActionUpdate, SubjectWorkspace, nil, condition.In("id", condition.Strings(admin)...))

	b.can(ActionRead, SubjectMember, nil, condition.In("workspaceId", condition.Strings(all)...))
	// Admins may change another member's role or suspension, but never
	// their own row and never an owner's.
	b.can(ActionUpdate, SubjectMember, []string{"role", "suspended"}, condition.AllOf(
		condition.In("workspaceId", condition.Strings(admin)...),
		condition.Ne("userId", sess.UserID),
		condition.Nin("role", RoleOwner),
	))

	b.can(ActionManage, SubjectInvite, nil, condition.In("workspaceId", condition.Strings(admin)...))

	b.can(ActionListen, SubjectActivity, nil, condition.In("workspaceId", condition.Strings(all)...))

	b.can(ActionCreate, SubjectDocument, nil, condition.In("workspaceId", condition.Strings(all)...))
	b.can(ActionRead, SubjectDocument, nil, condition.In("workspaceId", condition.Strings(all)...))
	b.can(ActionUpdate, SubjectDocument, nil, condition.In("workspaceId", condition.Strings(all)...))

	return b.ability()
}

type builder struct {
	rules []Rule
}

func (b *builder) can(action, subject string, fields []string, cond condition.Condition) {
	b.rules = append(b.rules, Rule{
		Action:    action,
		Subject:   subject,
		Fields:    fields,
		Condition: cond,
	})
}

func (b *builder) ability() *Ability {
	return New(b.rules)
}
