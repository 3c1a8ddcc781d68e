// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package mod

import "sync"

// Registry records loaded mods. Native mods are keyed by identity so the same
// module content is only ever registered once; scripted mods form an ordered
// list that is rebuilt from scratch on reload.
//
// Registry performs no I/O and no lifecycle calls.
type Registry struct {
	mu          sync.RWMutex
	native      map[Identity]Mod
	nativeOrder []Identity
	scripts     []Mod
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		native: make(map[Identity]Mod),
	}
}

// RegisterNative records a native mod. It returns false, leaving the
// registry unchanged, when a mod with the same identity is already present.
func (r *Registry) RegisterNative(id Identity, m Mod) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.native[id]; ok {
		return false
	}
	r.native[id] = m
	r.nativeOrder = append(r.nativeOrder, id)
	return true
}

// RegisterScript appends a scripted mod.
func (r *Registry) RegisterScript(m Mod) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.scripts = append(r.scripts, m)
}

// Native returns the native mod registered under id.
func (r *Registry) Native(id Identity) (Mod, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.native[id]
	return m, ok
}

// Natives returns native mods in registration order.
func (r *Registry) Natives() []Mod {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mods := make([]Mod, 0, len(r.nativeOrder))
	for _, id := range r.nativeOrder {
		mods = append(mods, r.native[id])
	}
	return mods
}

// Scripts returns scripted mods in registration order.
func (r *Registry) Scripts() []Mod {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mods := make([]Mod, len(r.scripts))
	copy(mods, r.scripts)
	return mods
}

// Snapshot returns every loaded mod: natives first, then scripts, each in
// registration order. The returned slice is a copy.
func (r *Registry) Snapshot() []Mod {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mods := make([]Mod, 0, len(r.nativeOrder)+len(r.scripts))
	for _, id := range r.nativeOrder {
		mods = append(mods, r.native[id])
	}
	return append(mods, r.scripts...)
}

// Len returns the number of native and scripted mods.
func (r *Registry) Len() (native, scripts int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.nativeOrder), len(r.scripts)
}

// ClearScripts empties the scripted collection and returns what it held so
// the caller can release it.
func (r *Registry) ClearScripts() []Mod {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.scripts
	r.scripts = nil
	return old
}

// Clear empties both collections and returns every mod that was registered.
func (r *Registry) Clear() []Mod {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := make([]Mod, 0, len(r.nativeOrder)+len(r.scripts))
	for _, id := range r.nativeOrder {
		old = append(old, r.native[id])
	}
	old = append(old, r.scripts...)

	r.native = make(map[Identity]Mod)
	r.nativeOrder = nil
	r.scripts = nil
	return old
}
