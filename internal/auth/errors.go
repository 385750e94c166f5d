// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrUnauthenticated is returned when a session token is unknown or
// expired. Callers must not learn which.
var ErrUnauthenticated = errors.New("unauthenticated")
