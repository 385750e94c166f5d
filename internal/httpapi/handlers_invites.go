// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/doctray/doctray/internal/ability"
	"github.com/doctray/doctray/internal/activity"
	"github.com/doctray/doctray/internal/workspace"
)

type inviteResponse struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toInviteResponse(inv *workspace.Invite) inviteResponse {
	return inviteResponse{
		ID:          inv.ID.String(),
		WorkspaceID: inv.WorkspaceID.String(),
		Email:       inv.Email,
		Role:        string(inv.Role),
		CreatedAt:   inv.CreatedAt,
	}
}

type createInvitesRequest struct {
	Invites []struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"invites"`
}

// handleCreateInvites creates a batch of invites and mails each address.
// Invite mail is throttled per workspace, not per caller, so rotating
// admins cannot amplify it.
func (s *Server) handleCreateInvites(w http.ResponseWriter, r *http.Request) {
	wsID, err := pathULID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	ab := abilityFrom(r.Context())
	if err := ab.Can(ability.ActionCreate, ability.SubjectInvite, map[string]any{"workspaceId": wsID.String()}); err != nil {
		writeError(w, err)
		return
	}

	var req createInvitesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Invites) == 0 {
		writeError(w, oops.Code("BAD_REQUEST").Errorf("no invites in batch"))
		return
	}

	if !s.deps.InviteLimiter.Allow("invites:" + wsID.String()) {
		writeError(w, oops.
			Code("INVITE_RATE_LIMITED").
			With("retry_after", s.deps.InviteLimiter.Retry("invites:"+wsID.String()).String()).
			Errorf("invite mail throttled for this workspace"))
		return
	}

	ws, err := s.deps.Workspaces.GetByID(r.Context(), wsID)
	if err != nil {
		writeError(w, err)
		return
	}

	invites := make([]*workspace.Invite, 0, len(req.Invites))
	for _, in := range req.Invites {
		inv, err := workspace.NewInvite(wsID, in.Email, workspace.Role(in.Role))
		if err != nil {
			writeError(w, err)
			return
		}
		invites = append(invites, inv)
	}

	actor := identityFrom(r.Context()).User.ID
	out := make([]inviteResponse, 0, len(invites))
	for _, inv := range invites {
		if err := s.deps.Invites.Create(r.Context(), inv); err != nil {
			writeError(w, err)
			return
		}
		if err := s.deps.Mailer.SendInvite(r.Context(), inv.Email, ws.Name); err != nil {
			s.deps.Log.WarnContext(r.Context(), "invite mail failed",
				"workspace_id", wsID.String(), "error", err)
		}
		s.deps.Broadcaster.Broadcast(activity.NewEvent(wsID.String(), activity.EventInviteCreated, actor.String(), inv.ID.String()))
		out = append(out, toInviteResponse(inv))
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListInvites(w http.ResponseWriter, r *http.Request) {
	wsID, err := pathULID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	ab := abilityFrom(r.Context())
	if err := ab.Can(ability.ActionRead, ability.SubjectInvite, map[string]any{"workspaceId": wsID.String()}); err != nil {
		writeError(w, err)
		return
	}

	list, err := s.deps.Invites.ListByWorkspace(r.Context(), wsID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]inviteResponse, 0, len(list))
	for _, inv := range list {
		out = append(out, toInviteResponse(inv))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteInvite(w http.ResponseWriter, r *http.Request) {
	wsID, err := pathULID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	inviteID, err := pathULID(r, "inviteId")
	if err != nil {
		writeError(w, err)
		return
	}

	ab := abilityFrom(r.Context())
	if err := ab.Can(ability.ActionDelete, ability.SubjectInvite, map[string]any{"workspaceId": wsID.String()}); err != nil {
		writeError(w, err)
		return
	}

	// The ability check covers the path workspace, so make sure the invite
	// actually belongs to it before deleting by ID.
	list, err := s.deps.Invites.ListByWorkspace(r.Context(), wsID)
	if err != nil {
		writeError(w, err)
		return
	}
	found := false
	for _, inv := range list {
		if inv.ID == inviteID {
			found = true
			break
		}
	}
	if !found {
		writeError(w, oops.Code("INVITE_NOT_FOUND").Wrap(workspace.ErrNotFound))
		return
	}

	if err := s.deps.Invites.Delete(r.Context(), inviteID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
