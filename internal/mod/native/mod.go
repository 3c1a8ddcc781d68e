// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package native

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/gridforge/modhost/internal/mod"
	"github.com/gridforge/modhost/pkg/errutil"
)

// Mod is a loaded native mod.
type Mod struct {
	desc   mod.Descriptor
	dir    string
	module Module
	logger *slog.Logger

	once    sync.Once
	started bool
}

var (
	_ mod.Mod         = (*Mod)(nil)
	_ mod.Activatable = (*Mod)(nil)
)

// Name implements mod.Mod.
func (m *Mod) Name() string { return m.desc.Name }

// Identity implements mod.Mod.
func (m *Mod) Identity() mod.Identity { return m.module.Identity() }

// Kind implements mod.Mod.
func (m *Mod) Kind() mod.Kind { return mod.KindNative }

// Dir implements mod.Mod.
func (m *Mod) Dir() string { return m.dir }

// Descriptor implements mod.Mod.
func (m *Mod) Descriptor() mod.Descriptor { return m.desc }

// FileName is the module file inside the package.
func (m *Mod) FileName() string { return m.module.FileName() }

// Started reports whether an entry point ran.
func (m *Mod) Started() bool { return m.started }

// Activate runs the module entry point once. A failing or panicking entry
// point is logged with the module file name and never returned.
func (m *Mod) Activate(ctx context.Context) error {
	m.once.Do(func() {
		m.activate(ctx)
	})
	return nil
}

func (m *Mod) activate(ctx context.Context) {
	file := filepath.Base(m.module.FileName())
	defer func() {
		if r := recover(); r != nil {
			ActivationFailures.WithLabelValues(ReasonPanic).Inc()
			m.logger.Error("native mod entry point panicked",
				"file", file,
				"panic", fmt.Sprint(r))
		}
	}()

	started, err := m.module.Start(ctx, Env{Dir: m.dir})
	m.started = started
	if err != nil {
		ActivationFailures.WithLabelValues(ReasonError).Inc()
		errutil.LogError(m.logger, "native mod entry point failed", mod.ActivationError(m.desc.Name, err),
			"file", file)
		return
	}
	if !started {
		m.logger.Debug("native mod has no entry point", "file", file)
	}
}
