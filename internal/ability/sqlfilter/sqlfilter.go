// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

// Package sqlfilter compiles an ability scope into a SQL predicate with
// positional arguments, ready to splice into a pgx query's WHERE clause.
//
// Compiling the rule conditions into the query beats fetching rows and
// checking each with Ability.Can: the database does the scoping, pagination
// stays correct, and a row the rules forbid never leaves the storage layer.
// Any condition node the compiler cannot express is a loud error; silently
// dropping a restrictive predicate would widen access.
package sqlfilter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/oops"

	"github.com/doctray/doctray/internal/ability"
	"github.com/doctray/doctray/internal/ability/condition"
)

// Filter is a compiled predicate fragment. Where uses $n placeholders
// numbered from the options' first index so the fragment composes with a
// query's existing arguments.
type Filter struct {
	Where string
	Args  []any
}

// True is the always-true filter (an unconditional grant).
func True() Filter {
	return Filter{Where: "TRUE"}
}

// False is the zero-row filter (no matching rule; fail-closed).
func False() Filter {
	return Filter{Where: "FALSE"}
}

// Options control how column references render.
type Options struct {
	// Table qualifies column names, as joined queries require.
	Table string

	// FirstArg is the placeholder number of the fragment's first argument.
	// Zero means 1.
	FirstArg int

	// Columns maps condition field names to column names. Fields without a
	// mapping use their own name. Fields mapping to an empty string are
	// rejected at compile time.
	Columns map[string]string

	// Strict rejects fields absent from Columns instead of passing the
	// field name through as the column. Required for caller-supplied
	// conditions, where an unmapped field must not reach the database.
	Strict bool
}

// FromScope compiles an ability scope.
func FromScope(s ability.Scope, opts Options) (Filter, error) {
	switch {
	case s.Deny:
		return False(), nil
	case s.Unconditional:
		return True(), nil
	default:
		return Compile(s.Condition, opts)
	}
}

// Compile compiles a single condition tree. A nil tree compiles to TRUE.
func Compile(c condition.Condition, opts Options) (Filter, error) {
	if c == nil {
		return True(), nil
	}
	if err := condition.Validate(c); err != nil {
		return Filter{}, oops.Code(ability.CodeCompileFailed).Wrap(err)
	}
	cc := compiler{opts: opts, next: opts.FirstArg}
	if cc.next <= 0 {
		cc.next = 1
	}
	where, err := cc.compile(c)
	if err != nil {
		return Filter{}, err
	}
	return Filter{Where: where, Args: cc.args}, nil
}

// And conjoins filters, dropping always-true operands. It lets callers
// combine the permission filter with their own conditions. Each operand
// must number its placeholders from $1; And renumbers them so the combined
// fragment stays sequential.
func And(filters ...Filter) Filter {
	var parts []string
	var args []any
	for _, f := range filters {
		if f.Where == "" || f.Where == "TRUE" {
			continue
		}
		f = Renumber(f, len(args)+1)
		parts = append(parts, f.Where)
		args = append(args, f.Args...)
	}
	if len(parts) == 0 {
		return True()
	}
	if len(parts) == 1 {
		return Filter{Where: parts[0], Args: args}
	}
	return Filter{Where: "(" + strings.Join(parts, " AND ") + ")", Args: args}
}

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// Renumber rewrites the fragment's placeholders to start at firstArg.
// Needed when a pre-compiled filter is spliced after caller arguments.
// Each placeholder is rewritten exactly once, in a single pass; sequential
// textual replacement would re-match the digits of an already rewritten
// placeholder ($1 inside a fresh $11).
func Renumber(f Filter, firstArg int) Filter {
	if len(f.Args) == 0 || firstArg == 1 {
		return f
	}
	shift := firstArg - 1
	recompiled := placeholderPattern.ReplaceAllStringFunc(f.Where, func(m string) string {
		n, err := strconv.Atoi(m[1:])
		if err != nil {
			return m
		}
		return "$" + strconv.Itoa(n+shift)
	})
	return Filter{Where: recompiled, Args: f.Args}
}

type compiler struct {
	opts Options
	next int
	args []any
}

func (cc *compiler) compile(c condition.Condition) (string, error) {
	switch n := c.(type) {
	case condition.Leaf:
		return cc.compileLeaf(n)
	case condition.And:
		return cc.compileBranch(n.Children, " AND ", "TRUE")
	case condition.Or:
		return cc.compileBranch(n.Children, " OR ", "FALSE")
	default:
		return "", oops.Code(ability.CodeCompileFailed).
			With("node", fmt.Sprintf("%T", c)).
			Errorf("cannot compile condition node to SQL")
	}
}

func (cc *compiler) compileBranch(children []condition.Condition, sep, empty string) (string, error) {
	if len(children) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(children))
	for _, child := range children {
		part, err := cc.compile(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (cc *compiler) compileLeaf(l condition.Leaf) (string, error) {
	col, err := cc.column(l.Field)
	if err != nil {
		return "", err
	}
	switch l.Op {
	case condition.OpEq:
		if l.Value == nil {
			return col + " IS NULL", nil
		}
		return fmt.Sprintf("%s = %s", col, cc.arg(l.Value)), nil
	case condition.OpNe:
		if l.Value == nil {
			return col + " IS NOT NULL", nil
		}
		// SQL three-valued logic would drop NULL columns from <> entirely;
		// the matcher treats "value differs" as a match, so keep NULLs in.
		return fmt.Sprintf("(%s IS NULL OR %s <> %s)", col, col, cc.arg(l.Value)), nil
	case condition.OpLt:
		return fmt.Sprintf("%s < %s", col, cc.arg(l.Value)), nil
	case condition.OpLte:
		return fmt.Sprintf("%s <= %s", col, cc.arg(l.Value)), nil
	case condition.OpGt:
		return fmt.Sprintf("%s > %s", col, cc.arg(l.Value)), nil
	case condition.OpGte:
		return fmt.Sprintf("%s >= %s", col, cc.arg(l.Value)), nil
	case condition.OpIn:
		if len(l.Values) == 0 {
			return "FALSE", nil
		}
		return fmt.Sprintf("%s IN (%s)", col, cc.argList(l.Values)), nil
	case condition.OpNin:
		if len(l.Values) == 0 {
			return "TRUE", nil
		}
		return fmt.Sprintf("(%s IS NULL OR %s NOT IN (%s))", col, col, cc.argList(l.Values)), nil
	default:
		return "", oops.Code(ability.CodeCompileFailed).
			With("field", l.Field).With("op", string(l.Op)).
			Errorf("operator %q has no SQL form", string(l.Op))
	}
}

func (cc *compiler) column(field string) (string, error) {
	col := field
	mapped, ok := cc.opts.Columns[field]
	if ok {
		col = mapped
	} else if cc.opts.Strict {
		return "", oops.Code(ability.CodeCompileFailed).
			With("field", field).
			Errorf("field %q is not filterable", field)
	}
	if col == "" {
		return "", oops.Code(ability.CodeCompileFailed).
			With("field", field).
			Errorf("field has no column mapping")
	}
	if cc.opts.Table != "" {
		return cc.opts.Table + "." + quoteIdent(col), nil
	}
	return quoteIdent(col), nil
}

func (cc *compiler) arg(v any) string {
	cc.args = append(cc.args, v)
	placeholder := fmt.Sprintf("$%d", cc.next)
	cc.next++
	return placeholder
}

func (cc *compiler) argList(values []any) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, cc.arg(v))
	}
	return strings.Join(parts, ", ")
}

// quoteIdent double-quotes a column identifier. The domain uses camelCase
// column names, which PostgreSQL folds to lowercase unless quoted.
func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
