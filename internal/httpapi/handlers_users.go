// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/doctray/doctray/internal/ability"
	"github.com/doctray/doctray/internal/user"
)

func (s *Server) handleGetSelf(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toUserResponse(identityFrom(r.Context()).User))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathULID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	// Conditions on users only reference the id, so the check runs before
	// any load and a denied caller learns nothing.
	ab := abilityFrom(r.Context())
	if err := ab.Can(ability.ActionRead, ability.SubjectUser, map[string]any{"id": id.String()}); err != nil {
		writeError(w, err)
		return
	}

	u, err := s.deps.Users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

type patchUserRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

func (s *Server) handlePatchUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathULID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req patchUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	upd := user.Update{FirstName: req.FirstName, LastName: req.LastName}
	fields := upd.Fields()
	if len(fields) == 0 {
		writeError(w, oops.Code("BAD_REQUEST").Errorf("empty patch"))
		return
	}

	ab := abilityFrom(r.Context())
	if err := ab.CanFields(ability.ActionUpdate, ability.SubjectUser, map[string]any{"id": id.String()}, fields); err != nil {
		writeError(w, err)
		return
	}

	u, err := s.deps.Users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.FirstName != nil {
		u.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		u.LastName = *req.LastName
	}
	if err := s.deps.Users.Update(r.Context(), u); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func pathULID(r *http.Request, name string) (ulid.ULID, error) {
	raw := mux.Vars(r)[name]
	id, err := ulid.Parse(raw)
	if err != nil {
		return ulid.ULID{}, oops.Code("BAD_REQUEST").With(name, raw).Errorf("invalid %s", name)
	}
	return id, nil
}
