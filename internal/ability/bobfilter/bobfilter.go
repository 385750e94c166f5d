// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

// Package bobfilter compiles an ability scope into a bob query-builder
// expression for the PostgreSQL dialect. It is the query-builder rendering
// of the same semantics the sqlfilter package produces as raw SQL; callers
// composing statements with bob mount the result in a sm.Where clause.
package bobfilter

import (
	"fmt"

	"github.com/samber/oops"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"

	"github.com/doctray/doctray/internal/ability"
	"github.com/doctray/doctray/internal/ability/condition"
)

// Options control how column references render.
type Options struct {
	// Table qualifies column names for joined queries.
	Table string

	// Columns maps condition field names to column names; unmapped fields
	// use their own name.
	Columns map[string]string
}

// FromScope compiles an ability scope into a bob expression.
func FromScope(s ability.Scope, opts Options) (bob.Expression, error) {
	switch {
	case s.Deny:
		return psql.Raw("FALSE"), nil
	case s.Unconditional:
		return psql.Raw("TRUE"), nil
	default:
		return Compile(s.Condition, opts)
	}
}

// Compile compiles a condition tree. A nil tree compiles to TRUE.
func Compile(c condition.Condition, opts Options) (bob.Expression, error) {
	if c == nil {
		return psql.Raw("TRUE"), nil
	}
	if err := condition.Validate(c); err != nil {
		return nil, oops.Code(ability.CodeCompileFailed).Wrap(err)
	}
	return compile(c, opts)
}

func compile(c condition.Condition, opts Options) (bob.Expression, error) {
	switch n := c.(type) {
	case condition.Leaf:
		return compileLeaf(n, opts)
	case condition.And:
		if len(n.Children) == 0 {
			return psql.Raw("TRUE"), nil
		}
		children, err := compileChildren(n.Children, opts)
		if err != nil {
			return nil, err
		}
		return psql.And(children...), nil
	case condition.Or:
		if len(n.Children) == 0 {
			return psql.Raw("FALSE"), nil
		}
		children, err := compileChildren(n.Children, opts)
		if err != nil {
			return nil, err
		}
		return psql.Or(children...), nil
	default:
		return nil, oops.Code(ability.CodeCompileFailed).
			With("node", fmt.Sprintf("%T", c)).
			Errorf("cannot compile condition node to a builder expression")
	}
}

func compileChildren(children []condition.Condition, opts Options) ([]bob.Expression, error) {
	out := make([]bob.Expression, 0, len(children))
	for _, child := range children {
		expr, err := compile(child, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, expr)
	}
	return out, nil
}

func compileLeaf(l condition.Leaf, opts Options) (bob.Expression, error) {
	col, err := column(l.Field, opts)
	if err != nil {
		return nil, err
	}
	switch l.Op {
	case condition.OpEq:
		if l.Value == nil {
			return col.IsNull(), nil
		}
		return col.EQ(psql.Arg(l.Value)), nil
	case condition.OpNe:
		if l.Value == nil {
			return col.IsNotNull(), nil
		}
		// Keep NULL columns matching, mirroring the matcher's semantics
		// against SQL three-valued logic.
		return psql.Or(col.IsNull(), col.NE(psql.Arg(l.Value))), nil
	case condition.OpLt:
		return col.LT(psql.Arg(l.Value)), nil
	case condition.OpLte:
		return col.LTE(psql.Arg(l.Value)), nil
	case condition.OpGt:
		return col.GT(psql.Arg(l.Value)), nil
	case condition.OpGte:
		return col.GTE(psql.Arg(l.Value)), nil
	case condition.OpIn:
		if len(l.Values) == 0 {
			return psql.Raw("FALSE"), nil
		}
		return col.In(args(l.Values)...), nil
	case condition.OpNin:
		if len(l.Values) == 0 {
			return psql.Raw("TRUE"), nil
		}
		return psql.Or(col.IsNull(), col.NotIn(args(l.Values)...)), nil
	default:
		return nil, oops.Code(ability.CodeCompileFailed).
			With("field", l.Field).With("op", string(l.Op)).
			Errorf("operator %q has no builder form", string(l.Op))
	}
}

func column(field string, opts Options) (psql.Expression, error) {
	col := field
	if opts.Columns != nil {
		if mapped, ok := opts.Columns[field]; ok {
			col = mapped
		}
	}
	if col == "" {
		return psql.Expression{}, oops.Code(ability.CodeCompileFailed).
			With("field", field).
			Errorf("field has no column mapping")
	}
	if opts.Table != "" {
		return psql.Quote(opts.Table, col), nil
	}
	return psql.Quote(col), nil
}

func args(values []any) []bob.Expression {
	out := make([]bob.Expression, 0, len(values))
	for _, v := range values {
		out = append(out, psql.Arg(v))
	}
	return out
}
