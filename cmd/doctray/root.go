// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Doctray CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctray",
		Short: "Doctray - a multi-tenant document workspace backend",
		Long: `Doctray is a multi-tenant document workspace backend with
attribute-based access control: every read and write is checked against
the caller's rule set, and listings compile those rules into SQL.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}
