// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/doctray/doctray/internal/config"
)

// ServerStatus holds the health probe results for a running server.
type ServerStatus struct {
	Addr    string `json:"addr"`
	Running bool   `json:"running"`
	Live    bool   `json:"live"`
	Ready   bool   `json:"ready"`
	Error   string `json:"error,omitempty"`
}

const statusProbeTimeout = 3 * time.Second

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health of a running Doctray server",
		Long:  `Probe the liveness and readiness endpoints of a running server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			status := probeServer(cmd.Context(), cfg.Observability.Addr)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ADDR\tRUNNING\tLIVE\tREADY\tERROR")
			fmt.Fprintf(w, "%s\t%v\t%v\t%v\t%s\n",
				status.Addr, status.Running, status.Live, status.Ready, status.Error)
			return w.Flush()
		},
	}

	defaults := config.Default()
	cmd.Flags().String("database.url", defaults.Database.URL, "PostgreSQL connection URL")
	cmd.Flags().String("observability.addr", defaults.Observability.Addr, "metrics/health listen address to probe")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func probeServer(ctx context.Context, addr string) ServerStatus {
	status := ServerStatus{Addr: addr}
	if addr == "" {
		status.Error = "observability address not configured"
		return status
	}

	live, err := probe(ctx, addr, "/healthz/liveness")
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Running = true
	status.Live = live
	status.Ready, _ = probe(ctx, addr, "/healthz/readiness")
	return status
}

func probe(ctx context.Context, addr, path string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+path, nil)
	if err != nil {
		return false, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close() //nolint:errcheck // read-only probe

	return resp.StatusCode == http.StatusOK, nil
}
