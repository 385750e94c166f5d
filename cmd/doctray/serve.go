// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/doctray/doctray/internal/ability"
	"github.com/doctray/doctray/internal/activity"
	"github.com/doctray/doctray/internal/auth"
	authpg "github.com/doctray/doctray/internal/auth/postgres"
	"github.com/doctray/doctray/internal/config"
	docpg "github.com/doctray/doctray/internal/document/postgres"
	"github.com/doctray/doctray/internal/httpapi"
	"github.com/doctray/doctray/internal/logging"
	"github.com/doctray/doctray/internal/mail"
	"github.com/doctray/doctray/internal/observability"
	"github.com/doctray/doctray/internal/store"
	userpg "github.com/doctray/doctray/internal/user/postgres"
	wspg "github.com/doctray/doctray/internal/workspace/postgres"
	"github.com/doctray/doctray/pkg/errutil"
)

const (
	shutdownTimeout = 10 * time.Second
	cleanupInterval = time.Hour
)

// serveFlags registers the serve command's config overrides. Flag names
// mirror the config file keys, and flag defaults mirror the built-in
// defaults so an unset flag never clobbers a file value.
func serveFlags(flags *pflag.FlagSet) {
	defaults := config.Default()
	flags.String("http.addr", defaults.HTTP.Addr, "API listen address")
	flags.String("observability.addr", defaults.Observability.Addr, "metrics/health listen address (empty = disabled)")
	flags.String("database.url", defaults.Database.URL, "PostgreSQL connection URL")
	flags.String("log.format", defaults.Log.Format, "log format (json or text)")
	flags.String("log.level", defaults.Log.Level, "log level (debug, info, warn, error)")
	flags.Bool("workspace.allow_public_creation", defaults.Workspace.AllowPublicCreation, "let any verified user create workspaces")
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the HTTP API server: authentication, workspaces, documents,
and the per-workspace activity stream.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, autoMigrate)
		},
	}

	serveFlags(cmd.Flags())
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "run pending migrations before serving")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, autoMigrate bool) error {
	logging.SetDefault("doctray", version, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))
	log := slog.Default()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if autoMigrate {
		if err := runMigrations(cfg.Database.URL); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info("connected to database")

	users := userpg.NewUserRepository(pool)
	workspaces := wspg.NewWorkspaceRepository(pool)
	memberships := wspg.NewMembershipRepository(pool)
	invites := wspg.NewInviteRepository(pool)
	documents := docpg.NewDocumentRepository(pool)
	_ = authpg.NewSessionRepository(pool)
	_ = authpg.NewLoginTokenRepository(pool)

	mailer := mail.NewLogMailer(log)

	otpLimiter := auth.NewRateLimiter(cfg.Auth.OTPResendTTL)
	inviteLimiter := auth.NewRateLimiter(cfg.Auth.InviteMailTTL)
	sweepStop := make(chan struct{})
	defer close(sweepStop)
	go otpLimiter.SweepEvery(cfg.Auth.OTPResendTTL, sweepStop)
	go inviteLimiter.SweepEvery(cfg.Auth.InviteMailTTL, sweepStop)

	authRepos := func(q store.Querier) auth.Repos {
		return auth.Repos{
			Users:       userpg.NewUserRepository(q),
			Memberships: wspg.NewMembershipRepository(q),
			Invites:     wspg.NewInviteRepository(q),
			Sessions:    authpg.NewSessionRepository(q),
			Tokens:      authpg.NewLoginTokenRepository(q),
		}
	}
	authService, err := auth.NewService(pool, authRepos, mailer, otpLimiter,
		auth.WithSessionTTL(cfg.Auth.SessionTTL),
		auth.WithOTPTTL(cfg.Auth.OTPTTL),
	)
	if err != nil {
		return err
	}

	broadcaster := activity.NewBroadcaster()

	// Observability server, if configured.
	var metrics *observability.Metrics
	var obsServer *observability.Server
	if cfg.Observability.Addr != "" {
		obsServer = observability.NewServer(cfg.Observability.Addr, func() bool {
			return pool.Ping(ctx) == nil
		})
		metrics = obsServer.Metrics()
		obsErr, err := obsServer.Start()
		if err != nil {
			return err
		}
		go monitorServerErrors(ctx, cancel, obsErr, "observability")
		log.Info("observability server started", "addr", obsServer.Addr())
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			if err := obsServer.Stop(stopCtx); err != nil {
				log.Warn("observability server stop failed", "error", err)
			}
		}()
	}

	apiServer, err := httpapi.NewServer(httpapi.Deps{
		Log:         log,
		Auth:        authService,
		DB:          pool,
		Users:       users,
		Workspaces:  workspaces,
		Memberships: memberships,
		Invites:     invites,
		Documents:   documents,
		TxRepos: func(q store.Querier) httpapi.TxRepos {
			return httpapi.TxRepos{
				Workspaces:  wspg.NewWorkspaceRepository(q),
				Memberships: wspg.NewMembershipRepository(q),
			}
		},
		Broadcaster:   broadcaster,
		Mailer:        mailer,
		InviteLimiter: inviteLimiter,
		Policy: ability.Policy{
			AllowPublicWorkspaceCreation: cfg.Workspace.AllowPublicCreation,
		},
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Reap expired sessions and login codes in the background.
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sessions, tokens, err := authService.CleanupExpired(ctx)
				if err != nil {
					log.Warn("expired credential cleanup failed", "error", err)
					continue
				}
				if sessions > 0 || tokens > 0 {
					log.Info("expired credentials reaped",
						"sessions", sessions, "login_tokens", tokens)
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	log.Info("api server listening", "addr", cfg.HTTP.Addr)

	select {
	case sig := <-sigChan:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		return err
	case <-ctx.Done():
		log.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("api server shutdown failed", "error", err)
	}
	log.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels the run context when a background server
// reports a fatal error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			errutil.LogError(slog.Default().With("server", serverName), "server error, triggering shutdown", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
