// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package modc

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/samber/oops"

	"github.com/gridforge/modhost/internal/mod"
)

// Mode selects the kind of native module produced.
type Mode string

// Build modes.
const (
	// ModePlugin builds an executable served over go-plugin.
	ModePlugin Mode = "plugin"
	// ModeShared builds a Go plugin shared object.
	ModeShared Mode = "so"
)

// Extension returns the module file extension for m.
func (m Mode) Extension() string {
	if m == ModeShared {
		return mod.NativeSharedExtension
	}
	return mod.NativePluginExtension
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModePlugin || m == ModeShared
}

// Compiler builds the package in dir into out.
type Compiler interface {
	// Compile returns the combined tool output. A non-nil error with
	// output means the build failed with diagnostics.
	Compile(ctx context.Context, dir, out string, mode Mode) ([]byte, error)
}

// GoCompiler runs the go command.
type GoCompiler struct {
	// GoBin is the go command, "go" when empty.
	GoBin string
	Env   []string
}

// Compile implements Compiler.
func (c GoCompiler) Compile(ctx context.Context, dir, out string, mode Mode) ([]byte, error) {
	bin := c.GoBin
	if bin == "" {
		bin = "go"
	}
	args := []string{"build", "-o", out}
	if mode == ModeShared {
		args = append(args, "-buildmode=plugin")
	}
	args = append(args, ".")

	cmd := exec.CommandContext(ctx, bin, args...) // #nosec G204 -- fixed go subcommand, out is built from the mod folder
	cmd.Dir = dir
	cmd.Env = c.Env
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return buf.Bytes(), oops.In("modc").With("dir", dir).With("mode", mode).Wrap(err)
	}
	return buf.Bytes(), nil
}
