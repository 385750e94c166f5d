// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/doctray/doctray/internal/ability"
	"github.com/doctray/doctray/internal/ability/sqlfilter"
	"github.com/doctray/doctray/internal/activity"
	"github.com/doctray/doctray/internal/store"
	"github.com/doctray/doctray/internal/workspace"
)

// TxRepos are the repositories a transactional handler rebinds to one
// transaction.
type TxRepos struct {
	Workspaces  workspace.Repository
	Memberships workspace.MembershipRepository
}

// TxReposFactory returns repositories bound to q, as auth.ReposFactory
// does for the auth service.
type TxReposFactory func(q store.Querier) TxRepos

type workspaceResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toWorkspaceResponse(ws *workspace.Workspace) workspaceResponse {
	return workspaceResponse{
		ID:        ws.ID.String(),
		Name:      ws.Name,
		Slug:      ws.Slug,
		CreatedAt: ws.CreatedAt,
		UpdatedAt: ws.UpdatedAt,
	}
}

type createWorkspaceRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// handleCreateWorkspace creates a workspace and its owner membership in
// one transaction. The creator becomes the owner.
func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	ab := abilityFrom(r.Context())
	if err := ab.Can(ability.ActionCreate, ability.SubjectWorkspace, nil); err != nil {
		writeError(w, err)
		return
	}

	var req createWorkspaceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ws, err := workspace.NewWorkspace(req.Name, req.Slug)
	if err != nil {
		writeError(w, err)
		return
	}

	self := identityFrom(r.Context()).User.ID
	err = store.Tx(r.Context(), s.deps.DB, func(q store.Querier) error {
		repos := s.deps.TxRepos(q)
		if err := repos.Workspaces.Create(r.Context(), ws); err != nil {
			return err
		}
		m, err := workspace.NewMembership(ws.ID, self, workspace.RoleOwner)
		if err != nil {
			return err
		}
		return repos.Memberships.Create(r.Context(), m)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.deps.Broadcaster.Broadcast(activity.NewEvent(ws.ID.String(), activity.EventMemberJoined, self.String(), self.String()))
	writeJSON(w, http.StatusCreated, toWorkspaceResponse(ws))
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	ab := abilityFrom(r.Context())
	filter, err := sqlfilter.FromScope(ab.Scope(ability.ActionRead, ability.SubjectWorkspace), sqlfilter.Options{})
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := s.deps.Workspaces.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]workspaceResponse, 0, len(list))
	for _, ws := range list {
		out = append(out, toWorkspaceResponse(ws))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	id, err := pathULID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	ab := abilityFrom(r.Context())
	if err := ab.Can(ability.ActionRead, ability.SubjectWorkspace, map[string]any{"id": id.String()}); err != nil {
		writeError(w, err)
		return
	}

	ws, err := s.deps.Workspaces.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkspaceResponse(ws))
}

type patchWorkspaceRequest struct {
	Name *string `json:"name"`
	Slug *string `json:"slug"`
}

func (s *Server) handlePatchWorkspace(w http.ResponseWriter, r *http.Request) {
	id, err := pathULID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req patchWorkspaceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == nil && req.Slug == nil {
		writeError(w, oops.Code("BAD_REQUEST").Errorf("empty patch"))
		return
	}

	ab := abilityFrom(r.Context())
	if err := ab.Can(ability.ActionUpdate, ability.SubjectWorkspace, map[string]any{"id": id.String()}); err != nil {
		writeError(w, err)
		return
	}

	ws, err := s.deps.Workspaces.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Name != nil {
		ws.Name = *req.Name
	}
	if req.Slug != nil {
		ws.Slug = *req.Slug
	}
	if err := s.deps.Workspaces.Update(r.Context(), ws); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkspaceResponse(ws))
}
