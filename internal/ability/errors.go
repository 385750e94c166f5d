// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package ability

import "github.com/samber/oops"

// Error codes surfaced by the ability layer.
const (
	// CodeForbidden marks a failed permission check. It is never retried
	// and maps to the transport's forbidden response.
	CodeForbidden = "FORBIDDEN"

	// CodeCompileFailed marks a condition tree a filter backend could not
	// translate. Treated as a programmer error: the caller must fail the
	// request rather than run an unscoped query.
	CodeCompileFailed = "FILTER_COMPILE_FAILED"
)

// IsForbidden reports whether err is a failed permission check.
func IsForbidden(err error) bool {
	o, ok := oops.AsOops(err)
	return ok && o.Code() == CodeForbidden
}
