// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package main

import (
	"encoding/json"
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gridforge/modhost/internal/control"
)

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	sc := &statusConfig{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running host",
		Long:  `Query the control socket of a running host for its uptime and the state of every mod.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, sc)
		},
	}
	cmd.Flags().BoolVar(&sc.jsonOutput, "json", false, "output status as JSON")
	return cmd
}

// NewReloadCmd creates the reload subcommand.
func NewReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the scripted mods of a running host",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := controlClient(cmd)
			if err != nil {
				return err
			}
			msg, err := c.Reload(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Println(msg.Message)
			return nil
		},
	}
}

// NewStopCmd creates the stop subcommand.
func NewStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running host",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := controlClient(cmd)
			if err != nil {
				return err
			}
			msg, err := c.Shutdown(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Println(msg.Message)
			return nil
		},
	}
}

func controlClient(cmd *cobra.Command) (*control.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	path, err := controlSocketPath(cfg)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("control socket is disabled")
	}
	return control.NewClient(path, 0), nil
}

func runStatus(cmd *cobra.Command, sc *statusConfig) error {
	c, err := controlClient(cmd)
	if err != nil {
		return err
	}
	status, err := c.Status(cmd.Context())
	if err != nil {
		return err
	}

	if sc.jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	state := "stopping"
	if status.Running {
		state = "running"
	}
	cmd.Printf("modhost %s (pid %d, up %s)\n", state, status.PID, formatUptime(status.UptimeSeconds))
	return writeTable(cmd.OutOrStdout(), status.Mods)
}

// formatUptime formats seconds into a human-readable duration.
func formatUptime(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
