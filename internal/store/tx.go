// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package store

import (
	"context"

	"github.com/samber/oops"
)

// Tx runs fn inside a database transaction. The Querier handed to fn is
// bound to that transaction (pgx.Tx satisfies Querier), so repositories
// built over it join the transaction. fn returning an error rolls back.
func Tx(ctx context.Context, q Querier, fn func(q Querier) error) error {
	tx, err := q.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	// Rollback after commit is a harmless no-op.
	defer func() { _ = tx.Rollback(ctx) }() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}
