// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

// Package mail defines outbound transactional email.
package mail

import (
	"context"
	"log/slog"
)

// Mailer delivers transactional email.
type Mailer interface {
	// SendOTP delivers a one-time login code.
	SendOTP(ctx context.Context, to, code string) error
	// SendInvite notifies an address it has been invited to a workspace.
	SendInvite(ctx context.Context, to, workspaceName string) error
}

// LogMailer writes mail to the structured log instead of delivering it.
// Used in development and tests.
type LogMailer struct {
	log *slog.Logger
}

// NewLogMailer creates a LogMailer. A nil logger uses slog.Default.
func NewLogMailer(log *slog.Logger) *LogMailer {
	if log == nil {
		log = slog.Default()
	}
	return &LogMailer{log: log}
}

// SendOTP logs the one-time code.
func (m *LogMailer) SendOTP(ctx context.Context, to, code string) error {
	m.log.InfoContext(ctx, "mail: one-time login code",
		"to", to,
		"code", code)
	return nil
}

// SendInvite logs the invite notification.
func (m *LogMailer) SendInvite(ctx context.Context, to, workspaceName string) error {
	m.log.InfoContext(ctx, "mail: workspace invite",
		"to", to,
		"workspace", workspaceName)
	return nil
}
