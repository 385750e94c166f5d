// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doctray/doctray/internal/ability"
	"github.com/doctray/doctray/internal/ability/sqlfilter"
	"github.com/doctray/doctray/internal/activity"
	"github.com/doctray/doctray/internal/auth"
	"github.com/doctray/doctray/internal/document"
	"github.com/doctray/doctray/internal/httpapi"
	"github.com/doctray/doctray/internal/store"
	"github.com/doctray/doctray/internal/user"
	"github.com/doctray/doctray/internal/workspace"
)

// memStore backs every repository with in-memory slices so handler tests
// exercise the full middleware and permission path without a database. The
// transactional boundary itself is covered by pgxmock Begin/Commit
// expectations.
type memStore struct {
	mu          sync.Mutex
	users       []*user.User
	workspaces  []*workspace.Workspace
	memberships []*workspace.Membership
	invites     []*workspace.Invite
	documents   []*document.Document
	sessions    map[string]*auth.Session
	tokens      []*auth.LoginToken

	// last filters each List received, for wiring assertions.
	lastMemberFilter, lastMemberExtra sqlfilter.Filter
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*auth.Session)}
}

func (m *memStore) authRepos(store.Querier) auth.Repos {
	return auth.Repos{
		Users:       (*memUsers)(m),
		Memberships: (*memMemberships)(m),
		Invites:     (*memInvites)(m),
		Sessions:    (*memSessions)(m),
		Tokens:      (*memTokens)(m),
	}
}

func (m *memStore) txRepos(store.Querier) httpapi.TxRepos {
	return httpapi.TxRepos{
		Workspaces:  (*memWorkspaces)(m),
		Memberships: (*memMemberships)(m),
	}
}

// admits reports whether a compiled permission filter lets a row with the
// given ID through. The fakes understand the three shapes the compiler
// emits: TRUE, FALSE, and a single IN / equality over the filter's args.
func admits(f sqlfilter.Filter, id string) bool {
	if f.Where == "TRUE" {
		return true
	}
	if f.Where == "FALSE" {
		return false
	}
	for _, arg := range f.Args {
		if s, ok := arg.(string); ok && s == id {
			return true
		}
	}
	return false
}

type memUsers memStore

func (m *memUsers) Create(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, u)
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id ulid.ULID) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *memUsers) Update(context.Context, *user.User) error { return nil }

type memWorkspaces memStore

func (m *memWorkspaces) Create(_ context.Context, ws *workspace.Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workspaces = append(m.workspaces, ws)
	return nil
}

func (m *memWorkspaces) GetByID(_ context.Context, id ulid.ULID) (*workspace.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ws := range m.workspaces {
		if ws.ID == id {
			return ws, nil
		}
	}
	return nil, workspace.ErrNotFound
}

func (m *memWorkspaces) GetBySlug(_ context.Context, slug string) (*workspace.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ws := range m.workspaces {
		if ws.Slug == slug {
			return ws, nil
		}
	}
	return nil, workspace.ErrNotFound
}

func (m *memWorkspaces) Update(context.Context, *workspace.Workspace) error { return nil }

func (m *memWorkspaces) List(_ context.Context, filter sqlfilter.Filter) ([]*workspace.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*workspace.Workspace
	for _, ws := range m.workspaces {
		if admits(filter, ws.ID.String()) {
			out = append(out, ws)
		}
	}
	return out, nil
}

type memMemberships memStore

func (m *memMemberships) Create(_ context.Context, mb *workspace.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberships = append(m.memberships, mb)
	return nil
}

func (m *memMemberships) GetByID(_ context.Context, id ulid.ULID) (*workspace.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mb := range m.memberships {
		if mb.ID == id {
			return mb, nil
		}
	}
	return nil, workspace.ErrNotFound
}

func (m *memMemberships) ListByUser(_ context.Context, userID ulid.ULID) ([]*workspace.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*workspace.Membership
	for _, mb := range m.memberships {
		if mb.UserID == userID {
			out = append(out, mb)
		}
	}
	return out, nil
}

func (m *memMemberships) List(_ context.Context, filter, extra sqlfilter.Filter) ([]*workspace.Membership, error) {
	m.mu.Lock()
	m.lastMemberFilter, m.lastMemberExtra = filter, extra
	m.mu.Unlock()
	var out []*workspace.Membership
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mb := range m.memberships {
		if admits(filter, mb.WorkspaceID.String()) && admits(extra, mb.WorkspaceID.String()) {
			out = append(out, mb)
		}
	}
	return out, nil
}

func (m *memMemberships) Update(context.Context, *workspace.Membership) error { return nil }

type memInvites memStore

func (m *memInvites) Create(_ context.Context, inv *workspace.Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invites = append(m.invites, inv)
	return nil
}

func (m *memInvites) ListByWorkspace(_ context.Context, workspaceID ulid.ULID) ([]*workspace.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*workspace.Invite
	for _, inv := range m.invites {
		if inv.WorkspaceID == workspaceID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *memInvites) ListByEmail(_ context.Context, email string) ([]*workspace.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*workspace.Invite
	for _, inv := range m.invites {
		if inv.Email == strings.ToLower(email) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *memInvites) Delete(_ context.Context, id ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, inv := range m.invites {
		if inv.ID == id {
			m.invites = append(m.invites[:i], m.invites[i+1:]...)
			return nil
		}
	}
	return workspace.ErrNotFound
}

func (m *memInvites) DeleteByIDs(ctx context.Context, ids []ulid.ULID) error {
	for _, id := range ids {
		if err := m.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

type memDocuments memStore

func (m *memDocuments) Create(_ context.Context, d *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = append(m.documents, d)
	return nil
}

func (m *memDocuments) GetByID(_ context.Context, id ulid.ULID) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.documents {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, document.ErrNotFound
}

func (m *memDocuments) List(_ context.Context, filter, extra sqlfilter.Filter, opts document.ListOptions) ([]*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*document.Document
	for _, d := range m.documents {
		if admits(filter, d.WorkspaceID.String()) && admits(extra, d.WorkspaceID.String()) {
			matched = append(matched, d)
		}
	}
	if opts.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

func (m *memDocuments) Update(context.Context, *document.Document) error { return nil }

type memSessions memStore

func (m *memSessions) Create(_ context.Context, s *auth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.TokenHash] = s
	return nil
}

func (m *memSessions) GetByTokenHash(_ context.Context, hash string) (*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[hash]; ok {
		return s, nil
	}
	return nil, auth.ErrNotFound
}

func (m *memSessions) Touch(context.Context, ulid.ULID, time.Time) error { return nil }

func (m *memSessions) DeleteByTokenHash(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, hash)
	return nil
}

func (m *memSessions) DeleteExpired(context.Context) (int64, error) { return 0, nil }

type memTokens memStore

func (m *memTokens) Create(_ context.Context, t *auth.LoginToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = append(m.tokens, t)
	return nil
}

func (m *memTokens) GetByUserAndCode(_ context.Context, userID ulid.ULID, code string) (*auth.LoginToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.UserID == userID && t.Code == code {
			return t, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memTokens) DeleteByUser(_ context.Context, userID ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.tokens[:0]
	for _, t := range m.tokens {
		if t.UserID != userID {
			kept = append(kept, t)
		}
	}
	m.tokens = kept
	return nil
}

func (m *memTokens) DeleteExpired(context.Context) (int64, error) { return 0, nil }

type sentMail struct{ to, payload string }

type recordingMailer struct {
	mu      sync.Mutex
	otps    []sentMail
	invites []sentMail
}

func (m *recordingMailer) SendOTP(_ context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.otps = append(m.otps, sentMail{to: to, payload: code})
	return nil
}

func (m *recordingMailer) SendInvite(_ context.Context, to, workspaceName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invites = append(m.invites, sentMail{to: to, payload: workspaceName})
	return nil
}

type testEnv struct {
	t           *testing.T
	store       *memStore
	mock        pgxmock.PgxPoolIface
	mailer      *recordingMailer
	broadcaster *activity.Broadcaster
	router      http.Handler
}

func newTestEnv(t *testing.T, policy ability.Policy) *testEnv {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	ms := newMemStore()
	mailer := &recordingMailer{}
	svc, err := auth.NewService(mock, ms.authRepos, mailer, auth.NewRateLimiter(30*time.Second))
	require.NoError(t, err)

	broadcaster := activity.NewBroadcaster()

	srv, err := httpapi.NewServer(httpapi.Deps{
		Log:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		Auth:          svc,
		DB:            mock,
		Users:         (*memUsers)(ms),
		Workspaces:    (*memWorkspaces)(ms),
		Memberships:   (*memMemberships)(ms),
		Invites:       (*memInvites)(ms),
		Documents:     (*memDocuments)(ms),
		TxRepos:       ms.txRepos,
		Broadcaster:   broadcaster,
		Mailer:        mailer,
		InviteLimiter: auth.NewRateLimiter(time.Minute),
		Policy:        policy,
	})
	require.NoError(t, err)

	return &testEnv{
		t:           t,
		store:       ms,
		mock:        mock,
		mailer:      mailer,
		broadcaster: broadcaster,
		router:      srv.Router(),
	}
}

func (e *testEnv) seedUser(email string, verified bool) *user.User {
	e.t.Helper()
	u, err := user.New(email, "Test", "User")
	require.NoError(e.t, err)
	u.Verified = verified
	e.store.mu.Lock()
	e.store.users = append(e.store.users, u)
	e.store.mu.Unlock()
	return u
}

func (e *testEnv) seedSession(u *user.User) string {
	e.t.Helper()
	token, hash, err := auth.GenerateSessionToken()
	require.NoError(e.t, err)
	sess, err := auth.NewSession(u.ID, hash, "test-agent", "127.0.0.1", "", time.Now().Add(time.Hour))
	require.NoError(e.t, err)
	e.store.mu.Lock()
	e.store.sessions[hash] = sess
	e.store.mu.Unlock()
	return token
}

func (e *testEnv) seedWorkspace(name, slug string) *workspace.Workspace {
	e.t.Helper()
	ws, err := workspace.NewWorkspace(name, slug)
	require.NoError(e.t, err)
	e.store.mu.Lock()
	e.store.workspaces = append(e.store.workspaces, ws)
	e.store.mu.Unlock()
	return ws
}

func (e *testEnv) seedMembership(ws *workspace.Workspace, u *user.User, role workspace.Role, suspended bool) *workspace.Membership {
	e.t.Helper()
	m, err := workspace.NewMembership(ws.ID, u.ID, role)
	require.NoError(e.t, err)
	m.Suspended = suspended
	e.store.mu.Lock()
	e.store.memberships = append(e.store.memberships, m)
	e.store.mu.Unlock()
	return m
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.t, err)
		buf = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, ability.Policy{})

	rec := env.do(http.MethodGet, "/v1/users/me", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "AUTH_UNAUTHENTICATED")
}

func TestSignupLoginFlow(t *testing.T) {
	env := newTestEnv(t, ability.Policy{})

	env.mock.ExpectBegin()
	env.mock.ExpectCommit()
	rec := env.do(http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email": "Flow@Example.com", "firstName": "Flo", "lastName": "Wer",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, "/v1/auth/otp", "", map[string]string{"email": "flow@example.com"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, env.mailer.otps, 1)
	code := env.mailer.otps[0].payload

	rec = env.do(http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": "flow@example.com", "code": code,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[struct {
		Token string `json:"token"`
		User  struct {
			Email    string `json:"email"`
			Verified bool   `json:"verified"`
		} `json:"user"`
	}](t, rec)
	assert.Equal(t, "flow@example.com", login.User.Email)
	assert.True(t, login.User.Verified)

	rec = env.do(http.MethodGet, "/v1/users/me", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/v1/auth/logout", login.Token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodGet, "/v1/users/me", login.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetOtherUserForbidden(t *testing.T) {
	env := newTestEnv(t, ability.Policy{})
	self := env.seedUser("self@example.com", true)
	other := env.seedUser("other@example.com", true)
	token := env.seedSession(self)

	rec := env.do(http.MethodGet, "/v1/users/"+other.ID.String(), token, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "FORBIDDEN")
}

func TestPatchSelf(t *testing.T) {
	env := newTestEnv(t, ability.Policy{})
	self := env.seedUser("self@example.com", true)
	token := env.seedSession(self)

	rec := env.do(http.MethodPatch, "/v1/users/"+self.ID.String(), token, map[string]string{"firstName": "Renamed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[struct {
		FirstName string `json:"firstName"`
	}](t, rec)
	assert.Equal(t, "Renamed", resp.FirstName)

	rec = env.do(http.MethodPatch, "/v1/users/"+self.ID.String(), token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateWorkspace(t *testing.T) {
	env := newTestEnv(t, ability.Policy{AllowPublicWorkspaceCreation: true})
	self := env.seedUser("founder@example.com", true)
	token := env.seedSession(self)

	env.mock.ExpectBegin()
	env.mock.ExpectCommit()
	rec := env.do(http.MethodPost, "/v1/workspaces", token, map[string]string{
		"name": "Acme", "slug": "acme",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[struct {
		ID   string `json:"id"`
		Slug string `json:"slug"`
	}](t, rec)
	assert.Equal(t, "acme", resp.Slug)

	// The creator becomes the owner in the same transaction.
	require.Len(t, env.store.memberships, 1)
	m := env.store.memberships[0]
	assert.Equal(t, self.ID, m.UserID)
	assert.Equal(t, workspace.RoleOwner, m.Role)
	assert.Equal(t, resp.ID, m.WorkspaceID.String())
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestCreateWorkspaceForbiddenWhenPrivate(t *testing.T) {
	env := newTestEnv(t, ability.Policy{AllowPublicWorkspaceCreation: false})
	self := env.seedUser("founder@example.com", true)
	token := env.seedSession(self)

	rec := env.do(http.MethodPost, "/v1/workspaces", token, map[string]string{
		"name": "Acme", "slug": "acme",
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, env.store.workspaces)
}

func TestListWorkspacesScoped(t *testing.T) {
	env := newTestEnv(t, ability.Policy{})
	self := env.seedUser("member@example.com", true)
	token := env.seedSession(self)
	mine := env.seedWorkspace("Mine", "mine")
	env.seedWorkspace("Theirs", "theirs")
	env.seedMembership(mine, self, workspace.RoleUser, false)

	rec := env.do(http.MethodGet, "/v1/workspaces", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[[]struct {
		ID string `json:"id"`
	}](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID.String(), list[0].ID)
}

func TestSuspendedMembershipGrantsNothing(t *testing.T) {
	env := newTestEnv(t, ability.Policy{})
	self := env.seedUser("suspended@example.com", true)
	token := env.seedSession(self)
	ws := env.seedWorkspace("Frozen", "frozen")
	env.seedMembership(ws, self, workspace.RoleAdmin, true)

	rec := env.do(http.MethodGet, "/v1/workspaces/"+ws.ID.String(), token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodGet, "/v1/workspaces", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestPatchWorkspaceRoles(t *testing.T) {
	env := newTestEnv(t, ability.Policy{})
	admin := env.seedUser("admin@example.com", true)
	plain := env.seedUser("plain@example.com", true)
	adminToken := env.seedSession(admin)
	plainToken := env.seedSession(plain)
	ws := env.seedWorkspace("Acme", "acme")
	env.seedMembership(ws, admin, workspace.RoleAdmin, false)
	env.seedMembership(ws, plain, workspace.RoleUser, false)

	rec := env.do(http.MethodPatch, "/v1/workspaces/"+ws.ID.String(), adminToken, map[string]string{"name": "Acme Corp"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPatch, "/v1/workspaces/"+ws.ID.String(), plainToken, map[string]string{"name": "Hijacked"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListMembers(t *testing.T) {
	env := newTestEnv(t, ability.Policy{})
	self := env.seedUser("member@example.com", true)
	outsider := env.seedUser("outsider@example.com", true)
	token := env.seedSession(self)
	outsiderToken := env.seedSession(outsider)
	ws := env.seedWorkspace("Acme", "acme")
	env.seedMembership(ws, self, workspace.RoleUser, false)

	rec := env.do(http.MethodGet, "/v1/workspaces/"+ws.ID.String()+"/members", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]struct {
		UserID string `json:"userId"`
	}](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, self.ID.String(), list[0].UserID)

	rec = env.do(http.MethodGet, "/v1/workspaces/"+ws.ID.String()+"/members", outsiderToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListMembersClientFilter(t *testing.T) {
	env := newTestEnv(t, ability.Policy{})
	self := env.seedUser("member@example.com", true)
	token := env.seedSession(self)
	ws := env.seedWorkspace("Acme", "acme")
	env.seedMembership(ws, self, workspace.RoleUser, false)

	clientFilter := `{"role":{"$eq":"admin"}}`
	rec := env.do(http.MethodGet, "/v1/workspaces/"+ws.ID.String()+"/members?filter="+
		strings.ReplaceAll(clientFilter, `"`, "%22"), token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The client condition is ANDed under the workspace scoping, never ORed
	// with the permission filter.
	extra := env.store.lastMemberExtra
	assert.Contains(t, extra.Where, `"workspaceId" = $1`)
	assert.Contains(t, extra.Where, `"role" = $2`)
	assert.Contains(t, extra.Where, " AND ")
	assert.Equal(t, []any{ws.ID.String(), "admin"}, extra.Args)

	rec = env.do(http.MethodGet, "/v1/workspaces/"+ws.ID.String()+"/members?filter=%7Bnot-json", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Fields outside the membership column whitelist are rejected before
	// the condition reaches the database.
	unknownField := strings.ReplaceAll(`{"passwordHash":"x"}`, `"`, "%22")
	rec = env.do(http.MethodGet, "/v1/workspaces/"+ws.ID.String()+"/members?filter="+unknownField, token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestPatchMember(t *testing.T) {
	env := newTestEnv(t, ability.Policy{})
	admin := env.seedUser("admin@example.com", true)
	plain := env.seedUser("plain@example.com", true)
	owner := env.seedUser("owner@example.com", true)
	adminToken := env.seedSession(admin)
	plainToken := env.seedSession(plain)
	ws := env.seedWorkspace("Acme", "acme")
	adminMember := env.seedMembership(ws, admin, workspace.RoleAdmin, false)
	plainMember := env.seedMembership(ws, plain, workspace.RoleUser, false)
	ownerMember := env.seedMembership(ws, owner, workspace.RoleOwner, false)

	base := "/v1/workspaces/" + ws.ID.String() + "/members/"

	t.Run("admin suspends a user", func(t *testing.T) {
		ch := env.broadcaster.Subscribe(ws.ID.String())
		defer env.broadcaster.Unsubscribe(ws.ID.String(), ch)

		rec := env.do(http.MethodPatch, base+plainMember.ID.String(), adminToken, map[string]any{"suspended": true})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[struct {
			Suspended bool `json:"suspended"`
		}](t, rec)
		assert.True(t, resp.Suspended)

		select {
		case event := <-ch:
			assert.Equal(t, activity.EventMemberUpdated, event.Type)
			assert.Equal(t, plain.ID.String(), event.SubjectID)
		case <-time.After(time.Second):
			t.Fatal("no member.updated event broadcast")
		}
	})

	t.Run("admin cannot touch an owner", func(t *testing.T) {
		rec := env.do(http.MethodPatch, base+ownerMember.ID.String(), adminToken, map[string]any{"suspended": true})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin cannot touch their own row", func(t *testing.T) {
		rec := env.do(http.MethodPatch, base+adminMember.ID.String(), adminToken, map[string]any{"role": "user"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("plain member cannot patch anyone", func(t *testing.T) {
		rec := env.do(http.MethodPatch, base+ownerMember.ID.String(), plainToken, map[string]any{"suspended": true})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		rec := env.do(http.MethodPatch, base+plainMember.ID.String(), adminToken, map[string]any{"role": "emperor"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("member of another workspace is not found", func(t *testing.T) {
		elsewhere := env.seedWorkspace("Elsewhere", "elsewhere")
		stray := env.seedMembership(elsewhere, plain, workspace.RoleUser, false)
		rec := env.do(http.MethodPatch, base+stray.ID.String(), adminToken, map[string]any{"suspended": true})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestInvites(t *testing.T) {
	env := newTestEnv(t, ability.Policy{})
	admin := env.seedUser("admin@example.com", true)
	plain := env.seedUser("plain@example.com", true)
	adminToken := env.seedSession(admin)
	plainToken := env.seedSession(plain)
	ws := env.seedWorkspace("Acme", "acme")
	env.seedMembership(ws, admin, workspace.RoleAdmin, false)
	env.seedMembership(ws, plain, workspace.RoleUser, false)

	base := "/v1/workspaces/" + ws.ID.String() + "/invites"
	batch := map[string]any{"invites": []map[string]string{
		{"email": "new@example.com", "role": "user"},
	}}

	rec := env.do(http.MethodPost, base, plainToken, batch)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPost, base, adminToken, batch)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, env.mailer.invites, 1)
	assert.Equal(t, "new@example.com", env.mailer.invites[0].to)
	assert.Equal(t, "Acme", env.mailer.invites[0].payload)

	// Invite mail is throttled per workspace.
	rec = env.do(http.MethodPost, base, adminToken, batch)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVITE_RATE_LIMITED")

	rec = env.do(http.MethodGet, base, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}](t, rec)
	require.Len(t, list, 1)

	rec = env.do(http.MethodDelete, base+"/"+list[0].ID, adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodDelete, base+"/"+ulid.Make().String(), adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocuments(t *testing.T) {
	env := newTestEnv(t, ability.Policy{})
	member := env.seedUser("member@example.com", true)
	outsider := env.seedUser("outsider@example.com", true)
	memberToken := env.seedSession(member)
	outsiderToken := env.seedSession(outsider)
	ws := env.seedWorkspace("Acme", "acme")
	env.seedMembership(ws, member, workspace.RoleUser, false)

	base := "/v1/workspaces/" + ws.ID.String() + "/documents"

	rec := env.do(http.MethodPost, base, memberToken, map[string]any{
		"title": "Q3 Report", "content": "numbers", "file": "report.pdf",
		"mimeType": "application/pdf", "size": 1024,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[struct {
		ID        string `json:"id"`
		CreatedBy string `json:"createdBy"`
	}](t, rec)
	assert.Equal(t, member.ID.String(), created.CreatedBy)

	rec = env.do(http.MethodPost, base, outsiderToken, map[string]any{"title": "Sneak"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodGet, "/v1/documents/"+created.ID, memberToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// A document in a foreign workspace answers like an absent one, so the
	// response does not reveal which IDs exist.
	rec = env.do(http.MethodGet, "/v1/documents/"+created.ID, outsiderToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(http.MethodGet, "/v1/documents/"+ulid.Make().String(), outsiderToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPatch, "/v1/documents/"+created.ID, outsiderToken, map[string]string{"title": "Sneak"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, base+"?limit=abc", memberToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, base+"?limit=1", memberToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]struct {
		ID string `json:"id"`
	}](t, rec)
	require.Len(t, list, 1)

	rec = env.do(http.MethodPatch, "/v1/documents/"+created.ID, memberToken, map[string]string{"title": "Q3 Final"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	patched := decode[struct {
		Title string `json:"title"`
	}](t, rec)
	assert.Equal(t, "Q3 Final", patched.Title)
}

func TestActivityStream(t *testing.T) {
	env := newTestEnv(t, ability.Policy{})
	member := env.seedUser("member@example.com", true)
	outsider := env.seedUser("outsider@example.com", true)
	memberToken := env.seedSession(member)
	outsiderToken := env.seedSession(outsider)
	ws := env.seedWorkspace("Acme", "acme")
	env.seedMembership(ws, member, workspace.RoleUser, false)

	server := httptest.NewServer(env.router)
	defer server.Close()

	url := server.URL + "/v1/workspaces/" + ws.ID.String() + "/activity"

	rec := env.do(http.MethodGet, "/v1/workspaces/"+ws.ID.String()+"/activity", outsiderToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+memberToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The subscription registers asynchronously, so keep broadcasting until
	// the stream delivers.
	done := make(chan struct{})
	go func() {
		event := activity.NewEvent(ws.ID.String(), activity.EventDocumentCreated, member.ID.String(), ulid.Make().String())
		for {
			select {
			case <-done:
				return
			case <-time.After(10 * time.Millisecond):
				env.broadcaster.Broadcast(event)
			}
		}
	}()
	defer close(done)

	buf := make([]byte, 4096)
	var stream strings.Builder
	for ctx.Err() == nil {
		n, err := resp.Body.Read(buf)
		stream.Write(buf[:n])
		if strings.Contains(stream.String(), "event: document.created") &&
			strings.Contains(stream.String(), "data: ") {
			break
		}
		if err != nil {
			break
		}
	}
	out := stream.String()
	assert.Contains(t, out, "event: document.created")
	assert.Contains(t, out, fmt.Sprintf(`"workspaceId":%q`, ws.ID.String()))
	cancel()
}
