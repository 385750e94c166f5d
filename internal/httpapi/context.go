// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package httpapi

import (
	"context"

	"github.com/doctray/doctray/internal/ability"
	"github.com/doctray/doctray/internal/auth"
)

type contextKey int

const (
	identityKey contextKey = iota
	abilityKey
)

func withIdentity(ctx context.Context, id *auth.Identity, ab *ability.Ability) context.Context {
	ctx = context.WithValue(ctx, identityKey, id)
	return context.WithValue(ctx, abilityKey, ab)
}

// identityFrom returns the resolved caller, or nil outside the auth
// middleware.
func identityFrom(ctx context.Context) *auth.Identity {
	id, _ := ctx.Value(identityKey).(*auth.Identity)
	return id
}

// abilityFrom returns the caller's rule set, or nil outside the auth
// middleware.
func abilityFrom(ctx context.Context) *ability.Ability {
	ab, _ := ctx.Value(abilityKey).(*ability.Ability)
	return ab
}
