// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

// Package httpapi is the REST transport. Handlers stay thin: every data
// access runs through a permission point check or a compiled permission
// filter, never around them.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/samber/oops"

	"github.com/doctray/doctray/internal/ability"
	"github.com/doctray/doctray/internal/activity"
	"github.com/doctray/doctray/internal/auth"
	"github.com/doctray/doctray/internal/document"
	"github.com/doctray/doctray/internal/mail"
	"github.com/doctray/doctray/internal/observability"
	"github.com/doctray/doctray/internal/store"
	"github.com/doctray/doctray/internal/user"
	"github.com/doctray/doctray/internal/workspace"
)

// Deps carries everything the API server needs.
type Deps struct {
	Log         *slog.Logger
	Auth        *auth.Service
	DB          store.Querier
	Users       user.Repository
	Workspaces  workspace.Repository
	Memberships workspace.MembershipRepository
	Invites     workspace.InviteRepository
	Documents   document.Repository
	// TxRepos rebinds repositories to a transaction for multi-write
	// handlers.
	TxRepos     TxReposFactory
	Broadcaster *activity.Broadcaster
	Mailer      mail.Mailer
	// InviteLimiter throttles invite mail per workspace.
	InviteLimiter *auth.RateLimiter
	Policy        ability.Policy
	// Metrics is optional; nil disables request metrics.
	Metrics *observability.Metrics
}

// Server is the REST API server.
type Server struct {
	deps Deps
}

// NewServer creates a Server after checking the required dependencies.
func NewServer(deps Deps) (*Server, error) {
	if deps.Auth == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if deps.DB == nil {
		return nil, oops.Errorf("database is required")
	}
	if deps.Users == nil || deps.Workspaces == nil || deps.Memberships == nil || deps.Invites == nil || deps.Documents == nil {
		return nil, oops.Errorf("all repositories are required")
	}
	if deps.TxRepos == nil {
		return nil, oops.Errorf("transactional repository factory is required")
	}
	if deps.Broadcaster == nil {
		return nil, oops.Errorf("broadcaster is required")
	}
	if deps.Mailer == nil {
		return nil, oops.Errorf("mailer is required")
	}
	if deps.InviteLimiter == nil {
		return nil, oops.Errorf("invite limiter is required")
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &Server{deps: deps}, nil
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestMiddleware)

	// Public auth endpoints.
	r.HandleFunc("/v1/auth/signup", s.handleSignup).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/otp", s.handleSendOTP).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/login", s.handleLogin).Methods(http.MethodPost)

	// Everything else requires a session.
	api := r.PathPrefix("/v1").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)

	api.HandleFunc("/users/me", s.handleGetSelf).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", s.handleGetUser).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", s.handlePatchUser).Methods(http.MethodPatch)

	api.HandleFunc("/workspaces", s.handleCreateWorkspace).Methods(http.MethodPost)
	api.HandleFunc("/workspaces", s.handleListWorkspaces).Methods(http.MethodGet)
	api.HandleFunc("/workspaces/{id}", s.handleGetWorkspace).Methods(http.MethodGet)
	api.HandleFunc("/workspaces/{id}", s.handlePatchWorkspace).Methods(http.MethodPatch)

	api.HandleFunc("/workspaces/{id}/members", s.handleListMembers).Methods(http.MethodGet)
	api.HandleFunc("/workspaces/{id}/members/{memberId}", s.handlePatchMember).Methods(http.MethodPatch)

	api.HandleFunc("/workspaces/{id}/invites", s.handleCreateInvites).Methods(http.MethodPost)
	api.HandleFunc("/workspaces/{id}/invites", s.handleListInvites).Methods(http.MethodGet)
	api.HandleFunc("/workspaces/{id}/invites/{inviteId}", s.handleDeleteInvite).Methods(http.MethodDelete)

	api.HandleFunc("/workspaces/{id}/documents", s.handleCreateDocument).Methods(http.MethodPost)
	api.HandleFunc("/workspaces/{id}/documents", s.handleListDocuments).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", s.handleGetDocument).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", s.handlePatchDocument).Methods(http.MethodPatch)

	api.HandleFunc("/workspaces/{id}/activity", s.handleActivityStream).Methods(http.MethodGet)

	return r
}
