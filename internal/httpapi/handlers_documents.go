// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/samber/oops"

	"github.com/doctray/doctray/internal/ability"
	"github.com/doctray/doctray/internal/ability/condition"
	"github.com/doctray/doctray/internal/ability/sqlfilter"
	"github.com/doctray/doctray/internal/activity"
	"github.com/doctray/doctray/internal/document"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type documentResponse struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	File        string    `json:"file"`
	MimeType    string    `json:"mimeType"`
	Size        int64     `json:"size"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toDocumentResponse(d *document.Document) documentResponse {
	return documentResponse{
		ID:          d.ID.String(),
		WorkspaceID: d.WorkspaceID.String(),
		Title:       d.Title,
		Content:     d.Content,
		File:        d.File,
		MimeType:    d.MimeType,
		Size:        d.Size,
		CreatedBy:   d.CreatedBy.String(),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type createDocumentRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	File     string `json:"file"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	wsID, err := pathULID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	ab := abilityFrom(r.Context())
	if err := ab.Can(ability.ActionCreate, ability.SubjectDocument, map[string]any{"workspaceId": wsID.String()}); err != nil {
		writeError(w, err)
		return
	}

	var req createDocumentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	self := identityFrom(r.Context()).User.ID
	doc, err := document.New(wsID, self, req.Title, req.Content, req.File, req.MimeType, req.Size)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Documents.Create(r.Context(), doc); err != nil {
		writeError(w, err)
		return
	}

	s.deps.Broadcaster.Broadcast(activity.NewEvent(wsID.String(), activity.EventDocumentCreated, self.String(), doc.ID.String()))
	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// handleListDocuments pages through a workspace's documents. The compiled
// permission filter and the workspace scoping are both applied in SQL.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	wsID, err := pathULID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	ab := abilityFrom(r.Context())
	if err := ab.Can(ability.ActionRead, ability.SubjectDocument, map[string]any{"workspaceId": wsID.String()}); err != nil {
		writeError(w, err)
		return
	}

	filter, err := sqlfilter.FromScope(ab.Scope(ability.ActionRead, ability.SubjectDocument), sqlfilter.Options{})
	if err != nil {
		writeError(w, err)
		return
	}
	extra, err := sqlfilter.Compile(condition.Eq("workspaceId", wsID.String()), sqlfilter.Options{})
	if err != nil {
		writeError(w, err)
		return
	}

	opts, err := pageOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := s.deps.Documents.List(r.Context(), filter, extra, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]documentResponse, 0, len(list))
	for _, d := range list {
		out = append(out, toDocumentResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathULID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	doc, err := s.deps.Documents.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	ab := abilityFrom(r.Context())
	if err := ab.Can(ability.ActionRead, ability.SubjectDocument, map[string]any{"workspaceId": doc.WorkspaceID.String()}); err != nil {
		// A denied caller gets the same answer as for an absent document,
		// so existence cannot be probed across workspaces.
		writeError(w, oops.Code("DOCUMENT_NOT_FOUND").Wrap(document.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

type patchDocumentRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

func (s *Server) handlePatchDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathULID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req patchDocumentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Title == nil && req.Content == nil {
		writeError(w, oops.Code("BAD_REQUEST").Errorf("empty patch"))
		return
	}

	doc, err := s.deps.Documents.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	ab := abilityFrom(r.Context())
	if err := ab.Can(ability.ActionUpdate, ability.SubjectDocument, map[string]any{"workspaceId": doc.WorkspaceID.String()}); err != nil {
		// Same not-found shape as the read path; see handleGetDocument.
		writeError(w, oops.Code("DOCUMENT_NOT_FOUND").Wrap(document.ErrNotFound))
		return
	}

	if req.Title != nil {
		doc.Title = *req.Title
	}
	if req.Content != nil {
		doc.Content = *req.Content
	}
	if err := s.deps.Documents.Update(r.Context(), doc); err != nil {
		writeError(w, err)
		return
	}

	actor := identityFrom(r.Context()).User.ID
	s.deps.Broadcaster.Broadcast(activity.NewEvent(doc.WorkspaceID.String(), activity.EventDocumentUpdated, actor.String(), doc.ID.String()))
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func pageOptions(r *http.Request) (document.ListOptions, error) {
	opts := document.ListOptions{Limit: defaultPageSize}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return opts, oops.Code("BAD_REQUEST").Errorf("invalid limit %q", raw)
		}
		opts.Limit = min(n, maxPageSize)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, oops.Code("BAD_REQUEST").Errorf("invalid offset %q", raw)
		}
		opts.Offset = n
	}
	return opts, nil
}
