// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

// Package ability builds and evaluates the per-session permission rule set.
//
// An Ability is constructed exactly once per authenticated request from the
// session's user and workspace membership snapshot, is read-only afterward,
// and is discarded with the request. Point checks (Can) and storage-layer
// filter compilation (Scope, consumed by the sqlfilter and bobfilter
// packages) share one rule-selection and condition-matching path so the
// compiled filter cannot diverge from the row-level check.
package ability

import (
	"slices"

	"github.com/doctray/doctray/internal/ability/condition"
)

// Subjects the policy grants rules over.
const (
	SubjectUser      = "user"
	SubjectWorkspace = "workspace"
	SubjectMember    = "workspaceUser"
	SubjectInvite    = "workspaceUserInvite"
	SubjectDocument  = "document"
	SubjectActivity  = "workspaceActivity"
)

// Actions, including the aliases the transport layer may use.
const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionListen = "listen"

	// ActionManage grants every action on a subject.
	ActionManage = "manage"

	ActionGet    = "get"
	ActionFind   = "find"
	ActionPatch  = "patch"
	ActionRemove = "remove"
)

// canonicalAction resolves action aliases before rule comparison:
// patch is update, get and find are read, remove is delete.
func canonicalAction(action string) string {
	switch action {
	case ActionPatch:
		return ActionUpdate
	case ActionGet, ActionFind:
		return ActionRead
	case ActionRemove:
		return ActionDelete
	default:
		return action
	}
}

// Rule is one permission grant. When Fields is non-empty the grant covers
// only those fields of the subject; when Condition is non-nil the grant
// covers only instances the condition matches. Rules are insertion-ordered
// and compose as OR-of-matches; there are no deny rules.
type Rule struct {
	Action    string
	Subject   string
	Fields    []string
	Condition condition.Condition
}

// matches reports whether the rule applies to the requested action and
// subject, after alias resolution. A manage rule applies to every action.
func (r Rule) matches(action, subject string) bool {
	if r.Subject != subject {
		return false
	}
	if r.Action == ActionManage {
		return true
	}
	return canonicalAction(r.Action) == canonicalAction(action)
}

// allowsField reports whether the rule covers the given field. A rule
// without a field list covers every field.
func (r Rule) allowsField(field string) bool {
	return len(r.Fields) == 0 || slices.Contains(r.Fields, field)
}
