// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package condition

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/samber/oops"
)

// The JSON form mirrors the Mongo-style query objects the HTTP surface
// accepts from clients: field predicates with scalar shorthand or operator
// objects, and $and/$or arrays for composition.
//
//	{"workspaceId": "W1"}
//	{"size": {"$gte": 10, "$lt": 100}}
//	{"$or": [{"role": "admin"}, {"role": {"$in": ["owner"]}}]}

// Decode parses a Mongo-style JSON document into a condition tree.
// An empty document decodes to nil (match everything). Any unknown
// $-operator is an error.
func Decode(data []byte) (Condition, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, oops.Code("CONDITION_DECODE_FAILED").Wrap(err)
	}
	return FromMap(raw)
}

// FromMap converts an already-unmarshalled JSON object into a condition
// tree. Multiple keys on one object combine with AND, matching Mongo
// semantics.
func FromMap(raw map[string]any) (Condition, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	// Deterministic traversal keeps compiled filters stable across runs.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var children []Condition
	for _, key := range keys {
		value := raw[key]
		switch {
		case key == "$and" || key == "$or":
			items, ok := value.([]any)
			if !ok {
				return nil, oops.Code("CONDITION_DECODE_FAILED").
					With("key", key).
					Errorf("%s expects an array", key)
			}
			branch, err := decodeBranch(key, items)
			if err != nil {
				return nil, err
			}
			children = append(children, branch)
		case strings.HasPrefix(key, "$"):
			return nil, oops.Code("CONDITION_DECODE_FAILED").
				With("key", key).
				Errorf("unknown operator %q", key)
		default:
			leaves, err := decodeField(key, value)
			if err != nil {
				return nil, err
			}
			children = append(children, leaves...)
		}
	}

	if len(children) == 1 {
		return children[0], nil
	}
	return And{Children: children}, nil
}

func decodeBranch(key string, items []any) (Condition, error) {
	children := make([]Condition, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, oops.Code("CONDITION_DECODE_FAILED").
				With("key", key).
				Errorf("%s entries must be objects", key)
		}
		child, err := FromMap(obj)
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child)
		}
	}
	if key == "$or" {
		return Or{Children: children}, nil
	}
	return And{Children: children}, nil
}

// decodeField turns one "field: value-or-operator-object" pair into leaf
// predicates. A bare scalar is shorthand for $eq.
func decodeField(field string, value any) ([]Condition, error) {
	obj, isObj := value.(map[string]any)
	if !isObj {
		leaf := Leaf{Field: field, Op: OpEq, Value: value}
		if err := validateLeaf(leaf); err != nil {
			return nil, err
		}
		return []Condition{leaf}, nil
	}

	ops := make([]string, 0, len(obj))
	for op := range obj {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	leaves := make([]Condition, 0, len(ops))
	for _, op := range ops {
		leaf := Leaf{Field: field, Op: Op(op)}
		if leaf.Op.IsMembership() {
			list, ok := obj[op].([]any)
			if !ok {
				return nil, oops.Code("CONDITION_DECODE_FAILED").
					With("field", field).With("op", op).
					Errorf("%s expects an array", op)
			}
			leaf.Values = list
		} else {
			leaf.Value = obj[op]
		}
		if err := validateLeaf(leaf); err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
	return leaves, nil
}

// ToMap renders a condition tree back into its Mongo-style JSON object
// form. It is the inverse of FromMap up to $and flattening.
func ToMap(c Condition) map[string]any {
	switch n := c.(type) {
	case nil:
		return map[string]any{}
	case Leaf:
		if n.Op.IsMembership() {
			return map[string]any{n.Field: map[string]any{string(n.Op): n.Values}}
		}
		return map[string]any{n.Field: map[string]any{string(n.Op): n.Value}}
	case And:
		items := make([]any, 0, len(n.Children))
		for _, child := range n.Children {
			items = append(items, ToMap(child))
		}
		return map[string]any{"$and": items}
	case Or:
		items := make([]any, 0, len(n.Children))
		for _, child := range n.Children {
			items = append(items, ToMap(child))
		}
		return map[string]any{"$or": items}
	default:
		return map[string]any{}
	}
}
