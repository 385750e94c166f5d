// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

//go:build integration

package permissions_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/sm"

	"github.com/doctray/doctray/internal/ability"
	"github.com/doctray/doctray/internal/ability/bobfilter"
	"github.com/doctray/doctray/internal/ability/sqlfilter"
	"github.com/doctray/doctray/internal/document"
	"github.com/doctray/doctray/internal/workspace"
)

var personas = []string{"alice", "bob", "carol", "dave", "eve", "mallory"}

// idsViaBob compiles the scope with the query-builder backend, renders the
// statement, and executes it directly against the pool.
func idsViaBob(scope ability.Scope, table string) []string {
	expr, err := bobfilter.FromScope(scope, bobfilter.Options{})
	Expect(err).NotTo(HaveOccurred())

	q := psql.Select(
		sm.Columns("id"),
		sm.From(table),
		sm.Where(expr),
	)
	sql, args, err := bob.Build(context.Background(), q)
	Expect(err).NotTo(HaveOccurred())

	rows, err := env.pool.Query(env.ctx, sql, args...)
	Expect(err).NotTo(HaveOccurred())
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		Expect(rows.Scan(&id)).To(Succeed())
		ids = append(ids, id)
	}
	Expect(rows.Err()).NotTo(HaveOccurred())
	return ids
}

var _ = Describe("compiled permission filters", func() {
	Describe("workspace listings", func() {
		It("return exactly the rows the checker admits, for every persona", func() {
			for _, persona := range personas {
				ab := ability.Build(env.sessionFor(persona), ability.Policy{})
				scope := ab.Scope(ability.ActionRead, ability.SubjectWorkspace)

				var expected []string
				for _, ws := range env.ws {
					if scope.Matches(map[string]any{"id": ws.ID.String()}) {
						expected = append(expected, ws.ID.String())
					}
				}

				filter, err := sqlfilter.FromScope(scope, sqlfilter.Options{})
				Expect(err).NotTo(HaveOccurred())
				listed, err := env.Workspaces.List(env.ctx, filter)
				Expect(err).NotTo(HaveOccurred())

				var actual []string
				for _, ws := range listed {
					actual = append(actual, ws.ID.String())
				}
				Expect(actual).To(ConsistOf(expected), "persona %s", persona)

				// The point checker agrees row by row.
				for _, ws := range env.ws {
					err := ab.Can(ability.ActionRead, ability.SubjectWorkspace,
						map[string]any{"id": ws.ID.String()})
					if scope.Matches(map[string]any{"id": ws.ID.String()}) {
						Expect(err).NotTo(HaveOccurred(), "persona %s workspace %s", persona, ws.Slug)
					} else {
						Expect(err).To(HaveOccurred(), "persona %s workspace %s", persona, ws.Slug)
					}
				}
			}
		})

		It("agree with the query-builder backend", func() {
			for _, persona := range personas {
				ab := ability.Build(env.sessionFor(persona), ability.Policy{})
				scope := ab.Scope(ability.ActionRead, ability.SubjectWorkspace)

				filter, err := sqlfilter.FromScope(scope, sqlfilter.Options{})
				Expect(err).NotTo(HaveOccurred())
				listed, err := env.Workspaces.List(env.ctx, filter)
				Expect(err).NotTo(HaveOccurred())
				var raw []string
				for _, ws := range listed {
					raw = append(raw, ws.ID.String())
				}

				Expect(idsViaBob(scope, "workspaces")).To(ConsistOf(raw), "persona %s", persona)
			}
		})
	})

	Describe("document listings", func() {
		It("return exactly the rows the checker admits, for every persona", func() {
			for _, persona := range personas {
				ab := ability.Build(env.sessionFor(persona), ability.Policy{})
				scope := ab.Scope(ability.ActionRead, ability.SubjectDocument)

				filter, err := sqlfilter.FromScope(scope, sqlfilter.Options{})
				Expect(err).NotTo(HaveOccurred())
				listed, err := env.Documents.List(env.ctx, filter, sqlfilter.True(), document.ListOptions{})
				Expect(err).NotTo(HaveOccurred())

				for _, d := range listed {
					Expect(ab.Can(ability.ActionRead, ability.SubjectDocument,
						map[string]any{"workspaceId": d.WorkspaceID.String()})).
						To(Succeed(), "persona %s listed a document the checker denies", persona)
				}

				// Count both directions: nothing admissible is missing.
				admissible := 0
				for _, ws := range env.ws {
					if scope.Matches(map[string]any{"workspaceId": ws.ID.String()}) {
						admissible += 2 // two documents seeded per workspace
					}
				}
				Expect(listed).To(HaveLen(admissible), "persona %s", persona)

				Expect(idsViaBob(scope, "documents")).To(HaveLen(admissible), "persona %s", persona)
			}
		})
	})

	Describe("membership listings", func() {
		It("expose only workspaces the persona belongs to", func() {
			for _, persona := range personas {
				ab := ability.Build(env.sessionFor(persona), ability.Policy{})
				scope := ab.Scope(ability.ActionRead, ability.SubjectMember)

				filter, err := sqlfilter.FromScope(scope, sqlfilter.Options{})
				Expect(err).NotTo(HaveOccurred())
				listed, err := env.Memberships.List(env.ctx, filter, sqlfilter.True())
				Expect(err).NotTo(HaveOccurred())

				for _, m := range listed {
					Expect(scope.Matches(map[string]any{"workspaceId": m.WorkspaceID.String()})).
						To(BeTrue(), "persona %s listed membership outside their scope", persona)
				}
			}
		})
	})

	Describe("member update scope", func() {
		// Admins may change another member's role or suspension, never
		// their own row and never an owner's.
		It("matches the checker on every stored membership row", func() {
			for _, persona := range personas {
				ab := ability.Build(env.sessionFor(persona), ability.Policy{})
				scope := ab.Scope(ability.ActionUpdate, ability.SubjectMember)

				all, err := env.Memberships.List(env.ctx, sqlfilter.True(), sqlfilter.True())
				Expect(err).NotTo(HaveOccurred())

				for _, m := range all {
					instance := map[string]any{
						"workspaceId": m.WorkspaceID.String(),
						"userId":      m.UserID.String(),
						"role":        string(m.Role),
					}
					checker := ab.CanFields(ability.ActionUpdate, ability.SubjectMember,
						instance, []string{"role", "suspended"}) == nil
					Expect(scope.Matches(instance)).To(Equal(checker),
						"persona %s membership %s diverges between checker and scope", persona, m.ID)
				}
			}
		})

		It("lets an admin suspend a user but not an owner or themselves", func() {
			ab := ability.Build(env.sessionFor("bob"), ability.Policy{})

			carol := findMembership("engineering", "carol")
			alice := findMembership("engineering", "alice")
			self := findMembership("engineering", "bob")

			Expect(ab.CanFields(ability.ActionUpdate, ability.SubjectMember,
				memberInstance(carol), []string{"suspended"})).To(Succeed())
			Expect(ab.CanFields(ability.ActionUpdate, ability.SubjectMember,
				memberInstance(alice), []string{"suspended"})).NotTo(Succeed())
			Expect(ab.CanFields(ability.ActionUpdate, ability.SubjectMember,
				memberInstance(self), []string{"suspended"})).NotTo(Succeed())
		})
	})

	Describe("fail-closed behavior", func() {
		It("gives an unverified user zero rows everywhere", func() {
			ab := ability.Build(env.sessionFor("eve"), ability.Policy{AllowPublicWorkspaceCreation: true})

			for _, subject := range []string{
				ability.SubjectWorkspace, ability.SubjectDocument, ability.SubjectMember,
			} {
				scope := ab.Scope(ability.ActionRead, subject)
				Expect(scope.Deny).To(BeTrue(), "subject %s", subject)

				filter, err := sqlfilter.FromScope(scope, sqlfilter.Options{})
				Expect(err).NotTo(HaveOccurred())
				Expect(filter.Where).To(Equal("FALSE"))
			}

			Expect(ab.Can(ability.ActionCreate, ability.SubjectWorkspace, nil)).NotTo(Succeed())
		})

		It("gives a suspended membership zero rows in that workspace", func() {
			ab := ability.Build(env.sessionFor("mallory"), ability.Policy{})
			scope := ab.Scope(ability.ActionRead, ability.SubjectWorkspace)

			filter, err := sqlfilter.FromScope(scope, sqlfilter.Options{})
			Expect(err).NotTo(HaveOccurred())
			listed, err := env.Workspaces.List(env.ctx, filter)
			Expect(err).NotTo(HaveOccurred())
			Expect(listed).To(BeEmpty())
		})
	})
})

func findMembership(wsName, userName string) *workspace.Membership {
	memberships, err := env.Memberships.ListByUser(env.ctx, env.us[userName].ID)
	Expect(err).NotTo(HaveOccurred())
	for _, m := range memberships {
		if m.WorkspaceID == env.ws[wsName].ID {
			return m
		}
	}
	Fail("membership not seeded: " + userName + " in " + wsName)
	return nil
}

func memberInstance(m *workspace.Membership) map[string]any {
	return map[string]any{
		"workspaceId": m.WorkspaceID.String(),
		"userId":      m.UserID.String(),
		"role":        string(m.Role),
	}
}
