// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

// Package postgres implements document persistence against PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/doctray/doctray/internal/ability/sqlfilter"
	"github.com/doctray/doctray/internal/document"
	"github.com/doctray/doctray/internal/store"
)

// DocumentRepository implements document.Repository using PostgreSQL.
type DocumentRepository struct {
	pool store.Querier
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(pool store.Querier) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

// Create stores a new document.
func (r *DocumentRepository) Create(ctx context.Context, d *document.Document) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (id, "workspaceId", title, content, file, "mimeType", size, "createdBy", "createdAt", "updatedAt")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		d.ID.String(),
		d.WorkspaceID.String(),
		d.Title,
		d.Content,
		d.File,
		d.MimeType,
		d.Size,
		d.CreatedBy.String(),
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		return oops.Code("DOCUMENT_CREATE_FAILED").
			With("operation", "insert document").
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a document by ID.
func (r *DocumentRepository) GetByID(ctx context.Context, id ulid.ULID) (*document.Document, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, "workspaceId", title, content, file, "mimeType", size, "createdBy", "createdAt", "updatedAt"
		FROM documents
		WHERE id = $1
	`, id.String())

	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("DOCUMENT_NOT_FOUND").
			With("id", id.String()).
			Wrap(document.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("DOCUMENT_GET_FAILED").
			With("operation", "get document by id").
			With("id", id.String()).
			Wrap(err)
	}
	return d, nil
}

// List returns documents admitted by both the compiled permission filter
// and the caller's extra filter, paged by opts.
func (r *DocumentRepository) List(ctx context.Context, filter, extra sqlfilter.Filter, opts document.ListOptions) ([]*document.Document, error) {
	combined := sqlfilter.And(filter, extra)

	query := `
		SELECT id, "workspaceId", title, content, file, "mimeType", size, "createdBy", "createdAt", "updatedAt"
		FROM documents
		WHERE ` + combined.Where + `
		ORDER BY "createdAt" DESC`
	args := combined.Args
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, oops.Code("DOCUMENT_LIST_FAILED").
			With("operation", "list documents").
			Wrap(err)
	}
	defer rows.Close()

	var out []*document.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, oops.Code("DOCUMENT_LIST_FAILED").
				With("operation", "scan document row").
				Wrap(err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("DOCUMENT_LIST_FAILED").
			With("operation", "iterate documents").
			Wrap(err)
	}
	return out, nil
}

// Update writes the document's mutable fields.
func (r *DocumentRepository) Update(ctx context.Context, d *document.Document) error {
	d.UpdatedAt = time.Now()
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET title = $2, content = $3, file = $4, "mimeType" = $5, size = $6, "updatedAt" = $7
		WHERE id = $1
	`,
		d.ID.String(),
		d.Title,
		d.Content,
		d.File,
		d.MimeType,
		d.Size,
		d.UpdatedAt,
	)
	if err != nil {
		return oops.Code("DOCUMENT_UPDATE_FAILED").
			With("operation", "update document").
			With("id", d.ID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("DOCUMENT_NOT_FOUND").
			With("id", d.ID.String()).
			Wrap(document.ErrNotFound)
	}
	return nil
}

func scanDocument(row pgx.Row) (*document.Document, error) {
	var d document.Document
	var idStr, wsStr, byStr string
	if err := row.Scan(&idStr, &wsStr, &d.Title, &d.Content, &d.File, &d.MimeType, &d.Size, &byStr, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if d.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("DOCUMENT_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	if d.WorkspaceID, err = ulid.Parse(wsStr); err != nil {
		return nil, oops.Code("DOCUMENT_CORRUPT_ID").With("workspace_id", wsStr).Wrap(err)
	}
	if d.CreatedBy, err = ulid.Parse(byStr); err != nil {
		return nil, oops.Code("DOCUMENT_CORRUPT_ID").With("created_by", byStr).Wrap(err)
	}
	return &d, nil
}
