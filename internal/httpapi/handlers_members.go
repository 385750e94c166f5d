// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/doctray/doctray/internal/ability"
	"github.com/doctray/doctray/internal/ability/condition"
	"github.com/doctray/doctray/internal/ability/sqlfilter"
	"github.com/doctray/doctray/internal/activity"
	"github.com/doctray/doctray/internal/workspace"
)

type membershipResponse struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	UserID      string    `json:"userId"`
	Role        string    `json:"role"`
	Suspended   bool      `json:"suspended"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toMembershipResponse(m *workspace.Membership) membershipResponse {
	return membershipResponse{
		ID:          m.ID.String(),
		WorkspaceID: m.WorkspaceID.String(),
		UserID:      m.UserID.String(),
		Role:        string(m.Role),
		Suspended:   m.Suspended,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// memberFilterColumns is the whitelist of fields a caller's ?filter=
// condition may reference. Anything else is rejected before it reaches
// the database.
var memberFilterColumns = map[string]string{
	"id":          "id",
	"workspaceId": "workspaceId",
	"userId":      "userId",
	"role":        "role",
	"suspended":   "suspended",
	"createdAt":   "createdAt",
	"updatedAt":   "updatedAt",
}

// handleListMembers lists a workspace's members. The caller may narrow the
// result with a ?filter= condition document; it is ANDed to the compiled
// permission filter, never ORed, so it can only shrink the result.
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	wsID, err := pathULID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	ab := abilityFrom(r.Context())
	if err := ab.Can(ability.ActionRead, ability.SubjectMember, map[string]any{"workspaceId": wsID.String()}); err != nil {
		writeError(w, err)
		return
	}

	filter, err := sqlfilter.FromScope(ab.Scope(ability.ActionRead, ability.SubjectMember), sqlfilter.Options{})
	if err != nil {
		writeError(w, err)
		return
	}

	scoping := condition.Eq("workspaceId", wsID.String())
	var extraCond condition.Condition = scoping
	if raw := r.URL.Query().Get("filter"); raw != "" {
		clientCond, err := condition.Decode([]byte(raw))
		if err != nil {
			writeError(w, err)
			return
		}
		extraCond = condition.AllOf(scoping, clientCond)
	}
	extra, err := sqlfilter.Compile(extraCond, sqlfilter.Options{Columns: memberFilterColumns, Strict: true})
	if err != nil {
		// The condition is caller input at this point; compile failures are
		// the caller's, not ours.
		writeError(w, oops.Code("BAD_REQUEST").Wrap(err))
		return
	}

	list, err := s.deps.Memberships.List(r.Context(), filter, extra)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]membershipResponse, 0, len(list))
	for _, m := range list {
		out = append(out, toMembershipResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

type patchMemberRequest struct {
	Role      *string `json:"role"`
	Suspended *bool   `json:"suspended"`
}

// handlePatchMember applies a field-scoped update to another member's
// record. The permission check runs against the membership as stored, so an
// admin cannot touch an owner or their own row.
func (s *Server) handlePatchMember(w http.ResponseWriter, r *http.Request) {
	wsID, err := pathULID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	memberID, err := pathULID(r, "memberId")
	if err != nil {
		writeError(w, err)
		return
	}

	var req patchMemberRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	update := workspace.MembershipUpdate{Suspended: req.Suspended}
	if req.Role != nil {
		role := workspace.Role(*req.Role)
		if !role.Valid() {
			writeError(w, oops.Code("BAD_REQUEST").Errorf("unknown role %q", *req.Role))
			return
		}
		update.Role = &role
	}
	fields := update.Fields()
	if len(fields) == 0 {
		writeError(w, oops.Code("BAD_REQUEST").Errorf("empty patch"))
		return
	}

	m, err := s.deps.Memberships.GetByID(r.Context(), memberID)
	if err != nil {
		writeError(w, err)
		return
	}
	if m.WorkspaceID != wsID {
		writeError(w, oops.Code("MEMBERSHIP_NOT_FOUND").Wrap(workspace.ErrNotFound))
		return
	}

	ab := abilityFrom(r.Context())
	instance := map[string]any{
		"workspaceId": m.WorkspaceID.String(),
		"userId":      m.UserID.String(),
		"role":        string(m.Role),
	}
	if err := ab.CanFields(ability.ActionUpdate, ability.SubjectMember, instance, fields); err != nil {
		writeError(w, err)
		return
	}

	if update.Role != nil {
		m.Role = *update.Role
	}
	if update.Suspended != nil {
		m.Suspended = *update.Suspended
	}
	if err := s.deps.Memberships.Update(r.Context(), m); err != nil {
		writeError(w, err)
		return
	}

	actor := identityFrom(r.Context()).User.ID
	s.deps.Broadcaster.Broadcast(activity.NewEvent(wsID.String(), activity.EventMemberUpdated, actor.String(), m.UserID.String()))
	writeJSON(w, http.StatusOK, toMembershipResponse(m))
}
