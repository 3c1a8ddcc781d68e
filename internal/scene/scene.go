// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

// Package scene holds the named host objects that scripted mods may recolour.
package scene

import (
	"errors"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/samber/oops"
)

// Sentinel errors.
var (
	ErrUnknownObject = errors.New("unknown scene object")
	ErrInvalidColor  = errors.New("invalid color")
)

// named colours accepted in addition to hex strings.
var named = map[string]string{
	"black":   "#000000",
	"white":   "#ffffff",
	"red":     "#ff0000",
	"green":   "#00ff00",
	"blue":    "#0000ff",
	"yellow":  "#ffff00",
	"cyan":    "#00ffff",
	"magenta": "#ff00ff",
	"gray":    "#808080",
	"grey":    "#808080",
}

// ParseColor accepts a colour name or a #rrggbb / #rgb hex string.
func ParseColor(spec string) (colorful.Color, error) {
	s := strings.ToLower(strings.TrimSpace(spec))
	if hex, ok := named[s]; ok {
		s = hex
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return colorful.Color{}, oops.In("scene").With("color", spec).Wrap(errors.Join(ErrInvalidColor, err))
	}
	return c, nil
}

// Store is the set of scene objects and their current colours.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	initial  map[string]colorful.Color
	objects  map[string]colorful.Color
	onChange func(object, hex string)
}

// NewStore creates a store seeded with objects (name -> colour spec).
func NewStore(objects map[string]string) (*Store, error) {
	initial := make(map[string]colorful.Color, len(objects))
	for name, spec := range objects {
		c, err := ParseColor(spec)
		if err != nil {
			return nil, oops.In("scene").With("object", name).Wrap(err)
		}
		initial[name] = c
	}
	return &Store{
		initial: initial,
		objects: maps.Clone(initial),
	}, nil
}

// OnChange registers a callback invoked after every successful SetColor.
func (s *Store) OnChange(fn func(object, hex string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// SetColor recolours object.
func (s *Store) SetColor(object, spec string) error {
	c, err := ParseColor(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.objects[object]; !ok {
		s.mu.Unlock()
		return oops.In("scene").With("object", object).Wrap(ErrUnknownObject)
	}
	s.objects[object] = c
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(object, c.Hex())
	}
	return nil
}

// Color returns the hex colour of object.
func (s *Store) Color(object string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.objects[object]
	if !ok {
		return "", oops.In("scene").With("object", object).Wrap(ErrUnknownObject)
	}
	return c.Hex(), nil
}

// Names returns the object names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns every object with its hex colour.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.objects))
	for name, c := range s.objects {
		out[name] = c.Hex()
	}
	return out
}

// Reset restores every object to its initial colour. The host calls it on
// reload, mirroring a scene reload.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = maps.Clone(s.initial)
}
