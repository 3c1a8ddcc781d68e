// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package script

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/gridforge/modhost/internal/mod"
	"github.com/gridforge/modhost/internal/mod/hostapi"
	"github.com/gridforge/modhost/pkg/errutil"
)

// Host turns script packages into loaded mods.
type Host struct {
	factory     *StateFactory
	surface     *hostapi.Surface
	logger      *slog.Logger
	callTimeout time.Duration
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithLogger sets the logger for skipped units and ignored globals.
func WithLogger(l *slog.Logger) HostOption {
	return func(h *Host) { h.logger = l }
}

// WithCallTimeout bounds every chunk execution and start/update call. Zero
// means no bound beyond the caller's context.
func WithCallTimeout(d time.Duration) HostOption {
	return func(h *Host) { h.callTimeout = d }
}

// NewHost creates a host that binds surface into every state. A nil surface
// binds nothing.
func NewHost(surface *hostapi.Surface, opts ...HostOption) *Host {
	h := &Host{
		factory: NewStateFactory(),
		surface: surface,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CreateUnit reads path, binds the capability surface, executes the chunk
// and resolves its optional start and update functions.
func (h *Host) CreateUnit(ctx context.Context, path string, b hostapi.Binding) (*Unit, error) {
	src, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, mod.ScriptLoadError(path, err)
	}

	L, err := h.factory.NewState(ctx)
	if err != nil {
		return nil, mod.ScriptLoadError(path, err)
	}

	u := &Unit{path: path, state: L, timeout: h.callTimeout}
	if h.surface != nil {
		u.globals = h.surface.Bind(L, b)
	}

	chunk, err := L.Load(bytes.NewReader(src), path)
	if err != nil {
		L.Close()
		return nil, mod.ScriptLoadError(path, oops.In("script").Hint("syntax error").Wrap(err))
	}

	execCtx := ctx
	if h.callTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, h.callTimeout)
		defer cancel()
	}
	L.SetContext(execCtx)
	L.Push(chunk)
	err = L.PCall(0, lua.MultRet, nil)
	L.RemoveContext()
	if err != nil {
		L.Close()
		return nil, mod.ScriptLoadError(path, oops.In("script").Hint("top-level code raised").Wrap(err))
	}
	L.SetTop(0)

	u.start = h.resolve(L, path, "start")
	u.update = h.resolve(L, path, "update")
	return u, nil
}

// resolve returns the global function name, or nil when it is undefined or
// not a function.
func (h *Host) resolve(L *lua.LState, path, name string) *lua.LFunction {
	v := L.GetGlobal(name)
	if v == lua.LNil {
		return nil
	}
	fn, ok := v.(*lua.LFunction)
	if !ok {
		h.logger.Warn("ignoring non-function global", "path", path, "global", name, "type", v.Type().String())
		return nil
	}
	return fn
}

// Load builds a Mod from a script package. Units that fail to load are
// logged and skipped; the mod fails only when none load.
func (h *Host) Load(ctx context.Context, pkg *mod.Package) (*Mod, error) {
	if pkg.Kind != mod.KindScript {
		return nil, mod.ScriptLoadError(pkg.Dir, oops.In("script").With("kind", pkg.Kind).Errorf("not a script package"))
	}

	b := hostapi.Binding{Mod: pkg.Name(), Dir: pkg.Dir}
	m := &Mod{desc: pkg.Descriptor, dir: pkg.Dir}

	var errs []error
	for _, path := range pkg.ScriptFiles {
		if err := ctx.Err(); err != nil {
			m.Close()
			return nil, mod.ScriptLoadError(pkg.Dir, err)
		}
		u, err := h.CreateUnit(ctx, path, b)
		if err != nil {
			errutil.LogWarn(h.logger, "skipping script", err, "mod", pkg.Name(), "path", path)
			errs = append(errs, err)
			continue
		}
		m.units = append(m.units, u)
	}

	if len(m.units) == 0 {
		errs = append(errs, errors.New("no script loaded"))
		return nil, mod.ScriptLoadError(pkg.Dir, errors.Join(errs...))
	}
	return m, nil
}

// LoadMod is Load returning the mod.Mod interface.
func (h *Host) LoadMod(ctx context.Context, pkg *mod.Package) (mod.Mod, error) {
	m, err := h.Load(ctx, pkg)
	if err != nil {
		return nil, err
	}
	return m, nil
}
