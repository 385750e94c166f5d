// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package condition

import "time"

// Lookup resolves an instance field to its value. The second return value
// reports whether the field exists on the instance at all.
type Lookup func(field string) (any, bool)

// MapLookup adapts a plain map to a Lookup.
func MapLookup(instance map[string]any) Lookup {
	return func(field string) (any, bool) {
		v, ok := instance[field]
		return v, ok
	}
}

// Match evaluates a condition tree against an instance.
//
// A nil tree matches everything. A leaf whose field is absent from the
// instance matches nothing, for every operator including $ne and $nin:
// absence of an attribute never widens access. Operand type mismatches
// (for example a string compared against a number) likewise fail the leaf.
func Match(c Condition, lookup Lookup) bool {
	switch n := c.(type) {
	case nil:
		return true
	case Leaf:
		return matchLeaf(n, lookup)
	case And:
		for _, child := range n.Children {
			if !Match(child, lookup) {
				return false
			}
		}
		return true
	case Or:
		for _, child := range n.Children {
			if Match(child, lookup) {
				return true
			}
		}
		return false
	default:
		// Unreachable for trees built through this package; fail closed.
		return false
	}
}

// MatchMap is Match over a map instance.
func MatchMap(c Condition, instance map[string]any) bool {
	return Match(c, MapLookup(instance))
}

func matchLeaf(l Leaf, lookup Lookup) bool {
	got, ok := lookup(l.Field)
	if !ok {
		return false
	}
	switch l.Op {
	case OpEq:
		return equal(got, l.Value)
	case OpNe:
		return !equal(got, l.Value)
	case OpLt:
		cmp, ok := compare(got, l.Value)
		return ok && cmp < 0
	case OpLte:
		cmp, ok := compare(got, l.Value)
		return ok && cmp <= 0
	case OpGt:
		cmp, ok := compare(got, l.Value)
		return ok && cmp > 0
	case OpGte:
		cmp, ok := compare(got, l.Value)
		return ok && cmp >= 0
	case OpIn:
		for _, v := range l.Values {
			if equal(got, v) {
				return true
			}
		}
		return false
	case OpNin:
		for _, v := range l.Values {
			if equal(got, v) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// equal compares two operands, treating all numeric Go types as one
// numeric domain so that an int64 loaded from the database equals the
// float64 a JSON decoder produces.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if na, ok := toFloat(a); ok {
		nb, ok := toFloat(b)
		return ok && na == nb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	}
	return false
}

// compare orders two operands. The second return value is false when the
// operands are not mutually orderable; callers treat that as no match.
func compare(a, b any) (int, bool) {
	if na, ok := toFloat(a); ok {
		nb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case na < nb:
			return -1, true
		case na > nb:
			return 1, true
		default:
			return 0, true
		}
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
