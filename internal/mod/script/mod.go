// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package script

import (
	"context"
	"errors"

	"github.com/gridforge/modhost/internal/mod"
)

// Compile-time interface checks.
var (
	_ mod.Mod         = (*Mod)(nil)
	_ mod.Activatable = (*Mod)(nil)
	_ mod.Tickable    = (*Mod)(nil)
	_ mod.Closer      = (*Mod)(nil)
)

// Mod is a scripted mod: the units loaded from one package.
type Mod struct {
	desc  mod.Descriptor
	dir   string
	units []*Unit
}

// Name implements mod.Mod.
func (m *Mod) Name() string { return m.desc.Name }

// Identity implements mod.Mod. A scripted mod is identified by the path of
// its first unit.
func (m *Mod) Identity() mod.Identity {
	if len(m.units) == 0 {
		return mod.Identity(m.dir)
	}
	return m.units[0].Identity()
}

// Kind implements mod.Mod.
func (m *Mod) Kind() mod.Kind { return mod.KindScript }

// Dir implements mod.Mod.
func (m *Mod) Dir() string { return m.dir }

// Descriptor implements mod.Mod.
func (m *Mod) Descriptor() mod.Descriptor { return m.desc }

// Units returns the loaded units in source order.
func (m *Mod) Units() []*Unit { return m.units }

// HasUpdate reports whether any unit defined update.
func (m *Mod) HasUpdate() bool {
	for _, u := range m.units {
		if u.HasUpdate() {
			return true
		}
	}
	return false
}

// Activate calls start on every unit. A failing unit does not stop the
// others; their errors are joined.
func (m *Mod) Activate(ctx context.Context) error {
	var errs []error
	for _, u := range m.units {
		if err := u.CallStart(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Tick calls update on every unit, joining errors like Activate.
func (m *Mod) Tick(ctx context.Context) error {
	var errs []error
	for _, u := range m.units {
		if err := u.CallUpdate(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases every unit's state.
func (m *Mod) Close() error {
	for _, u := range m.units {
		u.Close()
	}
	return nil
}
