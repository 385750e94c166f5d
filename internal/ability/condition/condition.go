// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

// Package condition defines the predicate tree that scopes permission rules
// to instances, plus the matcher that evaluates a tree against an instance.
//
// The tree is a closed set of variants (Leaf, And, Or) so that the matcher
// and the filter compilers can be exhaustive switches. An unknown operator
// is a construction-time error, never a silently ignored predicate.
package condition

import (
	"fmt"
	"time"

	"github.com/samber/oops"
)

// Op is a comparison operator on a Leaf predicate. The string values use
// the wire spelling so trees round-trip through the JSON codec unchanged.
type Op string

// Supported leaf operators.
const (
	OpEq  Op = "$eq"
	OpNe  Op = "$ne"
	OpLt  Op = "$lt"
	OpLte Op = "$lte"
	OpGt  Op = "$gt"
	OpGte Op = "$gte"
	OpIn  Op = "$in"
	OpNin Op = "$nin"
)

// IsMembership reports whether the operator takes a value list.
func (o Op) IsMembership() bool {
	return o == OpIn || o == OpNin
}

// IsOrdered reports whether the operator requires orderable operands.
func (o Op) IsOrdered() bool {
	switch o {
	case OpLt, OpLte, OpGt, OpGte:
		return true
	}
	return false
}

// Condition is one node of the predicate tree. A nil Condition matches
// every instance (an unconditional rule).
type Condition interface {
	isCondition()
}

// Leaf compares a single instance field against a value (or value list for
// membership operators).
type Leaf struct {
	Field  string
	Op     Op
	Value  any   // scalar operand for comparison operators
	Values []any // list operand for $in / $nin
}

// And is a conjunction of child conditions. An empty And matches everything.
type And struct {
	Children []Condition
}

// Or is a disjunction of child conditions. An empty Or matches nothing.
type Or struct {
	Children []Condition
}

func (Leaf) isCondition() {}
func (And) isCondition()  {}
func (Or) isCondition()   {}

// Constructors used by the ability builder. They keep rule definitions
// close to the shape of the policy they encode.

// Eq builds a field equality predicate.
func Eq(field string, value any) Leaf {
	return Leaf{Field: field, Op: OpEq, Value: value}
}

// Ne builds a field inequality predicate.
func Ne(field string, value any) Leaf {
	return Leaf{Field: field, Op: OpNe, Value: value}
}

// In builds a set-membership predicate.
func In(field string, values ...any) Leaf {
	return Leaf{Field: field, Op: OpIn, Values: values}
}

// Nin builds a set-exclusion predicate.
func Nin(field string, values ...any) Leaf {
	return Leaf{Field: field, Op: OpNin, Values: values}
}

// AllOf builds a conjunction.
func AllOf(children ...Condition) And {
	return And{Children: children}
}

// AnyOf builds a disjunction.
func AnyOf(children ...Condition) Or {
	return Or{Children: children}
}

// Strings converts a string slice to the []any operand form used by In/Nin.
func Strings(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// Validate checks a tree for operands the matcher and compilers cannot
// evaluate: unknown operators, missing list operands on membership
// operators, and non-orderable operands on ordered comparisons.
func Validate(c Condition) error {
	switch n := c.(type) {
	case nil:
		return nil
	case Leaf:
		return validateLeaf(n)
	case And:
		for _, child := range n.Children {
			if err := Validate(child); err != nil {
				return err
			}
		}
		return nil
	case Or:
		for _, child := range n.Children {
			if err := Validate(child); err != nil {
				return err
			}
		}
		return nil
	default:
		return oops.Code("CONDITION_INVALID").
			With("node", fmt.Sprintf("%T", c)).
			Errorf("unknown condition node")
	}
}

func validateLeaf(l Leaf) error {
	if l.Field == "" {
		return oops.Code("CONDITION_INVALID").Errorf("leaf predicate has empty field")
	}
	switch l.Op {
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte, OpIn, OpNin:
	default:
		return oops.Code("CONDITION_INVALID").
			With("field", l.Field).
			Errorf("unknown operator %q", string(l.Op))
	}
	if l.Op.IsMembership() {
		if l.Values == nil {
			return oops.Code("CONDITION_INVALID").
				With("field", l.Field).With("op", string(l.Op)).
				Errorf("membership operator requires a value list")
		}
		for _, v := range l.Values {
			// Null inside IN lists is rejected: SQL's IN can never match
			// NULL, so allowing it would let the matcher and the compiled
			// filter disagree.
			if v == nil || !isScalar(v) {
				return oops.Code("CONDITION_INVALID").
					With("field", l.Field).With("op", string(l.Op)).
					Errorf("invalid value %T in list operand", v)
			}
		}
		return nil
	}
	if !isScalar(l.Value) {
		return oops.Code("CONDITION_INVALID").
			With("field", l.Field).With("op", string(l.Op)).
			Errorf("non-scalar operand %T", l.Value)
	}
	if l.Op.IsOrdered() && !isOrderable(l.Value) {
		return oops.Code("CONDITION_INVALID").
			With("field", l.Field).With("op", string(l.Op)).
			Errorf("ordered comparison against non-orderable value %T", l.Value)
	}
	return nil
}

// isScalar reports whether v is a supported operand: string, bool, nil,
// a numeric Go type, or time.Time.
func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64, time.Time:
		return true
	}
	return false
}

// isOrderable reports whether v supports <, <=, >, >=.
func isOrderable(v any) bool {
	switch v.(type) {
	case string, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64, time.Time:
		return true
	}
	return false
}
