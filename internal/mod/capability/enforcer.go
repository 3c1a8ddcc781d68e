// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

// Package capability decides which host functions a mod may reach.
//
// Patterns use gobwas/glob with '.' as the segment separator:
//   - '*' matches a single segment
//   - '**' matches zero or more segments
//
// "scene.*" grants "scene.read" and "scene.write"; "**" grants everything.
package capability

import (
	"sort"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Capabilities exposed to scripted mods.
const (
	SceneRead    = "scene.read"
	SceneWrite   = "scene.write"
	Log          = "log"
	ModPath      = "mod.path"
	ResourceRead = "resource.read"
	IDNew        = "id.new"
	KVRead       = "kv.read"
	KVWrite      = "kv.write"
)

// All lists every capability the host knows about, in display order.
var All = []string{SceneRead, SceneWrite, Log, ModPath, ResourceRead, IDNew, KVRead, KVWrite}

type compiledGrant struct {
	pattern string
	glob    glob.Glob
}

// Enforcer holds per-mod grants plus a default set applied to mods without
// an explicit entry.
//
// Enforcer is safe for concurrent use. The zero value denies everything.
type Enforcer struct {
	mu       sync.RWMutex
	defaults []compiledGrant
	grants   map[string][]compiledGrant
}

// NewEnforcer creates an enforcer whose default grants are defaults.
func NewEnforcer(defaults ...string) (*Enforcer, error) {
	e := &Enforcer{grants: make(map[string][]compiledGrant)}
	if err := e.SetDefaults(defaults); err != nil {
		return nil, err
	}
	return e, nil
}

func compile(patterns []string) ([]compiledGrant, error) {
	compiled := make([]compiledGrant, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			return nil, oops.In("capability").With("index", i).Errorf("empty capability pattern")
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, oops.In("capability").With("index", i).With("pattern", pattern).Wrap(err)
		}
		compiled[i] = compiledGrant{pattern: pattern, glob: g}
	}
	return compiled, nil
}

// SetDefaults replaces the grants used for mods without their own entry.
// On error the previous defaults stay in place.
func (e *Enforcer) SetDefaults(patterns []string) error {
	compiled, err := compile(patterns)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaults = compiled
	return nil
}

// SetGrants replaces the grants of one mod. On error nothing changes.
func (e *Enforcer) SetGrants(mod string, patterns []string) error {
	if mod == "" {
		return oops.In("capability").Errorf("mod name cannot be empty")
	}
	compiled, err := compile(patterns)
	if err != nil {
		return oops.In("capability").With("mod", mod).Wrap(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.grants == nil {
		e.grants = make(map[string][]compiledGrant)
	}
	e.grants[mod] = compiled
	return nil
}

// RemoveGrants drops a mod's explicit grants so it falls back to the
// defaults.
func (e *Enforcer) RemoveGrants(mod string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.grants, mod)
}

// GetGrants returns the patterns in effect for mod.
func (e *Enforcer) GetGrants(mod string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	grants, ok := e.grants[mod]
	if !ok {
		grants = e.defaults
	}
	patterns := make([]string, len(grants))
	for i, g := range grants {
		patterns[i] = g.pattern
	}
	return patterns
}

// Mods returns the names with explicit grants, sorted.
func (e *Enforcer) Mods() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.grants))
	for name := range e.grants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check reports whether mod holds capability. Empty capabilities are
// always denied.
func (e *Enforcer) Check(mod, capability string) bool {
	if capability == "" {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	grants, ok := e.grants[mod]
	if !ok {
		grants = e.defaults
	}
	for _, grant := range grants {
		if grant.glob.Match(capability) {
			return true
		}
	}
	return false
}

// Granted returns the subset of All that mod holds.
func (e *Enforcer) Granted(mod string) []string {
	var granted []string
	for _, c := range All {
		if e.Check(mod, c) {
			granted = append(granted, c)
		}
	}
	return granted
}
