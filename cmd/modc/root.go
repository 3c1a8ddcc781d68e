// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gridforge/modhost/internal/logging"
	"github.com/gridforge/modhost/internal/modc"
)

type rootConfig struct {
	mode      string
	noColor   bool
	noCheck   bool
	logFormat string
	logLevel  string
}

// NewRootCmd creates the modc command.
func NewRootCmd() *cobra.Command {
	cfg := &rootConfig{}
	cmd := &cobra.Command{
		Use:   "modc <mod-folder>",
		Short: "Build a native mod and rebuild it on every change",
		Long: `modc asks for the mod's name, type-checks and compiles the Go package in
the mod folder into <folder>/<name>.plugin, then watches the folder and
rebuilds on every source change until Enter is pressed.`,
		// Usage problems are reported by the session, not by cobra.
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cfg, args)
		},
	}
	cmd.Flags().StringVar(&cfg.mode, "mode", string(modc.ModePlugin), "output kind: plugin (go-plugin executable) or so (Go plugin)")
	cmd.Flags().BoolVar(&cfg.noColor, "no-color", false, "disable coloured output")
	cmd.Flags().BoolVar(&cfg.noCheck, "no-check", false, "skip type-checking before compiling")
	cmd.Flags().StringVar(&cfg.logFormat, "log-format", logging.FormatPretty, "diagnostic log format")
	cmd.Flags().StringVar(&cfg.logLevel, "log-level", "warn", "diagnostic log level")
	return cmd
}

func run(cmd *cobra.Command, cfg *rootConfig, args []string) error {
	mode := modc.Mode(cfg.mode)
	if !mode.Valid() {
		return oops.Code("INVALID_MODE").With("mode", cfg.mode).Errorf("mode must be %q or %q", modc.ModePlugin, modc.ModeShared)
	}
	level, err := logging.ParseLevel(cfg.logLevel)
	if err != nil {
		return err
	}
	if !logging.ValidFormat(cfg.logFormat) {
		return oops.Code("INVALID_LOG_FORMAT").With("format", cfg.logFormat).Errorf("unknown log format %q", cfg.logFormat)
	}
	logger := logging.SetupLevel("modc", version, cfg.logFormat, level, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	opts := []modc.BuilderOption{modc.WithMode(mode)}
	if cfg.noColor {
		opts = append(opts, modc.WithStyles(modc.PlainStyles()))
	}
	if cfg.noCheck {
		opts = append(opts, modc.WithChecker(nil))
	}
	opts = append(opts, extraOptions...)

	s := &modc.Session{
		In:      cmd.InOrStdin(),
		Out:     cmd.OutOrStdout(),
		Logger:  logger,
		Options: opts,
	}
	return s.Run(cmd.Context(), args)
}

// extraOptions are appended to the builder options; tests replace the
// compiler through it.
var extraOptions []modc.BuilderOption
