// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

// Package modc builds native mods from source: it type-checks and compiles a
// mod folder, reports diagnostics and rebuilds when sources change.
package modc

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/tools/go/packages"
)

// Diagnostic is one compiler or type-checker message.
type Diagnostic struct {
	File    string
	Line    int
	Column  int
	Message string
	// Code classifies the diagnostic: list, parse, type or build.
	Code string
}

// String formats d as file:line: message (code).
func (d Diagnostic) String() string {
	loc := d.File
	if loc == "" {
		loc = "-"
	}
	if d.Line > 0 {
		loc += ":" + strconv.Itoa(d.Line)
	}
	return fmt.Sprintf("%s: %s (%s)", loc, d.Message, d.Code)
}

// Checker reports diagnostics for the Go package in dir.
type Checker interface {
	Check(ctx context.Context, dir string) ([]Diagnostic, error)
}

// PackagesChecker type-checks with golang.org/x/tools/go/packages.
type PackagesChecker struct {
	// Env overrides the environment of the underlying go command.
	Env []string
}

// Check implements Checker.
func (c PackagesChecker) Check(ctx context.Context, dir string) ([]Diagnostic, error) {
	cfg := &packages.Config{
		Context: ctx,
		Dir:     dir,
		Env:     c.Env,
		Mode:    packages.NeedName | packages.NeedFiles | packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo,
		Tests:   false,
	}
	pkgs, err := packages.Load(cfg, ".")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var diags []Diagnostic
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		for _, e := range p.Errors {
			d := fromPackagesError(e)
			if key := d.String(); !seen[key] {
				seen[key] = true
				diags = append(diags, d)
			}
		}
	})
	sortDiagnostics(diags)
	return diags, nil
}

func fromPackagesError(e packages.Error) Diagnostic {
	d := Diagnostic{Message: e.Msg, Code: kindCode(e.Kind)}
	d.File, d.Line, d.Column = splitPos(e.Pos)
	return d
}

func kindCode(k packages.ErrorKind) string {
	switch k {
	case packages.ListError:
		return "list"
	case packages.ParseError:
		return "parse"
	case packages.TypeError:
		return "type"
	}
	return "unknown"
}

// splitPos parses "file:line:col", "file:line", "" or "-".
func splitPos(pos string) (file string, line, col int) {
	if pos == "" || pos == "-" {
		return "", 0, 0
	}
	parts := strings.Split(pos, ":")
	// Walk numeric suffixes from the right so Windows drive letters survive.
	nums := make([]int, 0, 2)
	for len(parts) > 1 && len(nums) < 2 {
		n, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil {
			break
		}
		nums = append([]int{n}, nums...)
		parts = parts[:len(parts)-1]
	}
	file = strings.Join(parts, ":")
	if len(nums) > 0 {
		line = nums[0]
	}
	if len(nums) > 1 {
		col = nums[1]
	}
	return file, line, col
}

// buildLine matches go build output such as "./mod.go:12:3: undefined: x".
var buildLine = regexp.MustCompile(`^(.+?\.go):(\d+)(?::(\d+))?: (.+)$`)

// ParseBuildOutput extracts diagnostics from go build output. Relative file
// names are resolved against dir. Lines that are not positions are ignored.
func ParseBuildOutput(dir string, output []byte) []Diagnostic {
	var diags []Diagnostic
	for _, raw := range strings.Split(string(output), "\n") {
		m := buildLine.FindStringSubmatch(strings.TrimSpace(raw))
		if m == nil {
			continue
		}
		file := m[1]
		if !filepath.IsAbs(file) {
			file = filepath.Join(dir, file)
		}
		line, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		diags = append(diags, Diagnostic{File: file, Line: line, Column: col, Message: m[4], Code: "build"})
	}
	return diags
}

func sortDiagnostics(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		if diags[i].File != diags[j].File {
			return diags[i].File < diags[j].File
		}
		return diags[i].Line < diags[j].Line
	})
}
