// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package ability

import (
	"github.com/samber/oops"

	"github.com/doctray/doctray/internal/ability/condition"
)

// Ability is a session-bound, immutable rule set. The zero value (and an
// Ability with no rules, as built for unverified users) denies everything.
type Ability struct {
	rules []Rule
}

// New creates an Ability from an ordered rule list. Callers normally use
// Build; New exists for tests and for replaying persisted rule sets.
func New(rules []Rule) *Ability {
	return &Ability{rules: rules}
}

// Rules returns the rule list. The slice must not be mutated.
func (a *Ability) Rules() []Rule {
	return a.rules
}

// RulesFor returns the rules applying to an (action, subject) pair after
// alias resolution, in insertion order.
func (a *Ability) RulesFor(action, subject string) []Rule {
	var out []Rule
	for _, r := range a.rules {
		if r.matches(action, subject) {
			out = append(out, r)
		}
	}
	return out
}

// Can checks a point permission: it returns nil when any rule for the
// action and subject matches the instance, and a FORBIDDEN error otherwise.
// A nil instance matches only unconditional rules; conditioned rules fail
// against it because every field lookup misses (fail-closed).
func (a *Ability) Can(action, subject string, instance map[string]any) error {
	lookup := condition.MapLookup(instance)
	for _, r := range a.rules {
		if !r.matches(action, subject) {
			continue
		}
		if condition.Match(r.Condition, lookup) {
			recordCheck(subject, outcomeAllow)
			return nil
		}
	}
	recordCheck(subject, outcomeDeny)
	return oops.Code(CodeForbidden).
		With("action", action).
		With("subject", subject).
		Errorf("not allowed to %s %s", action, subject)
}

// CanFields checks a field-scoped write: every written field must be
// covered by some rule that matches the instance. Rules without a field
// list cover all fields.
func (a *Ability) CanFields(action, subject string, instance map[string]any, fields []string) error {
	if err := a.Can(action, subject, instance); err != nil {
		return err
	}
	lookup := condition.MapLookup(instance)
	for _, field := range fields {
		if !a.fieldAllowed(action, subject, lookup, field) {
			recordCheck(subject, outcomeDeny)
			return oops.Code(CodeForbidden).
				With("action", action).
				With("subject", subject).
				With("field", field).
				Errorf("not allowed to %s field %q of %s", action, field, subject)
		}
	}
	return nil
}

func (a *Ability) fieldAllowed(action, subject string, lookup condition.Lookup, field string) bool {
	for _, r := range a.rules {
		if !r.matches(action, subject) || !r.allowsField(field) {
			continue
		}
		if condition.Match(r.Condition, lookup) {
			return true
		}
	}
	return false
}

// Scope is the storage-filter normal form for an (action, subject) pair:
// either an unconditional allow, an unconditional deny, or the OR of the
// matching rules' condition trees. The filter compilers translate a Scope
// into their native predicate form.
type Scope struct {
	// Unconditional is set when some matching rule carries no condition;
	// the compiled filter is always-true and no Condition is populated.
	Unconditional bool

	// Deny is set when no rule matches; the compiled filter returns zero
	// rows (fail-closed).
	Deny bool

	// Condition is the OR of the matching rules' conditions. Only set when
	// neither Unconditional nor Deny is.
	Condition condition.Condition
}

// Matches evaluates the scope against an instance, mirroring exactly what
// the compiled storage filter would decide for the corresponding row. Used
// by the equivalence tests.
func (s Scope) Matches(instance map[string]any) bool {
	switch {
	case s.Deny:
		return false
	case s.Unconditional:
		return true
	default:
		return condition.MatchMap(s.Condition, instance)
	}
}

// Scope computes the filter normal form for an (action, subject) pair.
func (a *Ability) Scope(action, subject string) Scope {
	var branches []condition.Condition
	for _, r := range a.rules {
		if !r.matches(action, subject) {
			continue
		}
		if r.Condition == nil {
			// Unconditional rule short-circuits compilation.
			return Scope{Unconditional: true}
		}
		branches = append(branches, r.Condition)
	}
	if len(branches) == 0 {
		return Scope{Deny: true}
	}
	if len(branches) == 1 {
		return Scope{Condition: branches[0]}
	}
	return Scope{Condition: condition.Or{Children: branches}}
}
