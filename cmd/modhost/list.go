// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gridforge/modhost/internal/config"
	"github.com/gridforge/modhost/internal/lifecycle"
	"github.com/gridforge/modhost/internal/mod"
)

// Output formats for list.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

type listConfig struct {
	output string
}

// NewListCmd creates the list subcommand.
func NewListCmd() *cobra.Command {
	lc := &listConfig{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the mods in the mods directory",
		Long:  `Scan the mods directory and print each package's name, author, kind, description and icon without loading it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runList(cmd, cfg, lc)
		},
	}
	cmd.Flags().StringVarP(&lc.output, "output", "o", outputTable, "output format (table, json, yaml)")
	return cmd
}

func newScanner(cfg *config.Config) *mod.Scanner {
	return mod.NewScanner(cfg.ModsDir,
		mod.WithNativeExtensions(cfg.NativeExtensions()...),
		mod.WithScriptExtension(cfg.Scripts.Extension),
	)
}

func runList(cmd *cobra.Command, cfg *config.Config, lc *listConfig) error {
	pkgs, err := newScanner(cfg).Scan(cmd.Context())
	if err != nil {
		return err
	}
	infos := make([]lifecycle.ModInfo, 0, len(pkgs))
	for _, p := range pkgs {
		infos = append(infos, describe(p))
	}

	out := cmd.OutOrStdout()
	switch lc.output {
	case outputJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case outputYAML:
		enc := yaml.NewEncoder(out)
		defer enc.Close() //nolint:errcheck // flushed by Encode
		return enc.Encode(infos)
	case outputTable:
		return writeTable(out, infos)
	default:
		return oops.Code("INVALID_OUTPUT").With("output", lc.output).Errorf("unknown output format %q", lc.output)
	}
}

// describe summarizes a package without loading it.
func describe(p *mod.Package) lifecycle.ModInfo {
	info := lifecycle.ModInfo{
		Name:        p.Name(),
		Author:      p.Descriptor.Author,
		Description: p.Descriptor.Description,
		Icon:        p.Descriptor.ResolveIcon(p.Dir),
		Kind:        string(p.Kind),
		Dir:         p.Dir,
		State:       lifecycle.StateDiscovered,
	}
	switch p.Kind {
	case mod.KindNative:
		if data, err := os.ReadFile(filepath.Clean(p.NativeFile)); err == nil {
			info.Identity = string(mod.IdentityOf(data))
		}
	case mod.KindScript:
		info.Identity = p.ScriptFiles[0]
	}
	return info
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func writeTable(w io.Writer, infos []lifecycle.ModInfo) error {
	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, "no mods found")
		return err
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "AUTHOR", "KIND", "STATE", "DESCRIPTION", "ICON").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, m := range infos {
		t.Row(m.Name, m.Author, m.Kind, string(m.State), m.Description, m.Icon)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
