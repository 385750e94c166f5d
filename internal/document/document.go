// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

// Package document defines workspace documents: uploaded files plus their
// extracted text content.
package document

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/doctray/doctray/internal/ability/sqlfilter"
)

// ErrNotFound is returned when no document matches the lookup.
var ErrNotFound = errors.New("document not found")

// Document is one stored file within a workspace.
type Document struct {
	ID          ulid.ULID
	WorkspaceID ulid.ULID
	Title       string
	Content     string
	File        string
	MimeType    string
	Size        int64
	CreatedBy   ulid.ULID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// New creates a validated Document.
func New(workspaceID, createdBy ulid.ULID, title, content, file, mimeType string, size int64) (*Document, error) {
	if workspaceID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("DOCUMENT_INVALID").Errorf("workspace ID cannot be zero")
	}
	if createdBy.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("DOCUMENT_INVALID").Errorf("creator ID cannot be zero")
	}
	if title == "" {
		return nil, oops.Code("DOCUMENT_INVALID").Errorf("title cannot be empty")
	}
	if size < 0 {
		return nil, oops.Code("DOCUMENT_INVALID").Errorf("size cannot be negative")
	}
	now := time.Now()
	return &Document{
		ID:          ulid.Make(),
		WorkspaceID: workspaceID,
		Title:       title,
		Content:     content,
		File:        file,
		MimeType:    mimeType,
		Size:        size,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ListOptions page through a filtered listing. The permission filter is
// always ANDed with the caller's extra filter before execution.
type ListOptions struct {
	Limit  int
	Offset int
}

// Repository persists documents.
type Repository interface {
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, id ulid.ULID) (*Document, error)
	List(ctx context.Context, filter, extra sqlfilter.Filter, opts ListOptions) ([]*Document, error)
	Update(ctx context.Context, d *Document) error
}
