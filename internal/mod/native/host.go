// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package native

import (
	"context"
	"log/slog"
	"os"

	"github.com/samber/oops"

	"github.com/gridforge/modhost/internal/mod"
)

// Host loads native packages through a Loader.
type Host struct {
	loader Loader
	logger *slog.Logger
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithLogger sets the logger handed to loaded mods.
func WithLogger(logger *slog.Logger) HostOption {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHost creates a host. Panics if loader is nil.
func NewHost(loader Loader, opts ...HostOption) *Host {
	if loader == nil {
		panic("native: loader cannot be nil")
	}
	h := &Host{loader: loader, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Load reads the package's native file and loads it. Loading content that
// was already loaded returns a Mod wrapping the same Module; the registry
// drops it by identity.
func (h *Host) Load(ctx context.Context, pkg *mod.Package) (*Mod, error) {
	if pkg.Kind != mod.KindNative {
		return nil, oops.In("native").With("dir", pkg.Dir).Errorf("package %q is not native", pkg.Name())
	}

	data, err := os.ReadFile(pkg.NativeFile)
	if err != nil {
		NativeLoads.WithLabelValues(ResultFailed).Inc()
		return nil, mod.LoadError(pkg.NativeFile, err)
	}

	module, err := h.loader.Load(ctx, pkg.NativeFile, data)
	if err != nil {
		NativeLoads.WithLabelValues(ResultFailed).Inc()
		return nil, err
	}

	return &Mod{
		desc:   pkg.Descriptor,
		dir:    pkg.Dir,
		module: module,
		logger: h.logger.With("mod", pkg.Name()),
	}, nil
}

// LoadMod is Load returning the mod.Mod interface.
func (h *Host) LoadMod(ctx context.Context, pkg *mod.Package) (mod.Mod, error) {
	m, err := h.Load(ctx, pkg)
	if err != nil {
		return nil, err
	}
	return m, nil
}
