// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package main

import (
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gridforge/modhost/internal/mod"
)

// NewValidateCmd creates the validate subcommand.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir>",
		Short: "Check one mod package",
		Long: `Read the manifest of a single mod package, validate it against the
manifest schema and report how the package would be loaded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dir := filepath.Clean(args[0])
			scanner := mod.NewScanner(filepath.Dir(dir),
				mod.WithNativeExtensions(cfg.NativeExtensions()...),
				mod.WithScriptExtension(cfg.Scripts.Extension),
			)

			pkg, err := scanner.ScanPackage(dir)
			if err != nil {
				cmd.PrintErrln(mod.FormatSchemaError(err))
				return oops.Code("MOD_INVALID").With("dir", dir).Wrap(err)
			}
			if pkg == nil {
				cmd.Printf("%s: manifest ok, nothing to load\n", dir)
				return nil
			}
			switch pkg.Kind {
			case mod.KindNative:
				cmd.Printf("%s: native mod %q (%s)\n", dir, pkg.Name(), filepath.Base(pkg.NativeFile))
			default:
				cmd.Printf("%s: scripted mod %q (%d scripts)\n", dir, pkg.Name(), len(pkg.ScriptFiles))
			}
			return nil
		},
	}
}
