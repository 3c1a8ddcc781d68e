// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

// Package hostapi is the capability surface injected into script contexts.
//
// Every global is guarded by a capability name. A global whose capability
// the mod does not hold is never defined, so scripts test for it with
// `if set_color then ... end`.
//
// Functions follow the Lua convention of returning `value, err`, with err
// nil on success. set_color instead raises, so a script that recolours an
// unknown object fails its tick.
//
//nolint:gocritic // captLocal: L is the idiomatic name for lua.LState
package hostapi

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/oklog/ulid/v2"
	lua "github.com/yuin/gopher-lua"

	"github.com/gridforge/modhost/internal/mod/capability"
	"github.com/gridforge/modhost/internal/resource"
	"github.com/gridforge/modhost/internal/store"
)

// Scene is the host scene the illustrative set_color binding acts on.
type Scene interface {
	SetColor(object, color string) error
	Color(object string) (string, error)
}

// Binding identifies the mod a script context belongs to.
type Binding struct {
	Mod string
	Dir string
}

// Surface builds the per-context globals from host collaborators. Any
// collaborator may be nil; the matching functions then report it as
// unavailable.
type Surface struct {
	enforcer  *capability.Enforcer
	scene     Scene
	resources resource.Loader
	kv        store.KV
	logger    *slog.Logger
}

// Option configures a Surface.
type Option func(*Surface)

// WithScene sets the scene used by set_color and get_color.
func WithScene(s Scene) Option { return func(f *Surface) { f.scene = s } }

// WithResources sets the loader used by load_resource.
func WithResources(l resource.Loader) Option { return func(f *Surface) { f.resources = l } }

// WithKV sets the store used by kv_get, kv_set and kv_delete.
func WithKV(kv store.KV) Option { return func(f *Surface) { f.kv = kv } }

// WithLogger sets the base logger for log() and host-side diagnostics.
func WithLogger(l *slog.Logger) Option { return func(f *Surface) { f.logger = l } }

// New creates a surface. It panics if enforcer is nil: without an
// allow-list nothing could be bound safely.
func New(enforcer *capability.Enforcer, opts ...Option) *Surface {
	if enforcer == nil {
		panic("hostapi.New: enforcer cannot be nil")
	}
	s := &Surface{enforcer: enforcer, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type global struct {
	name       string
	capability string
	fn         func(b Binding) lua.LGFunction
}

func (s *Surface) globals() []global {
	return []global{
		{"set_color", capability.SceneWrite, s.setColorFn},
		{"get_color", capability.SceneRead, s.getColorFn},
		{"log", capability.Log, s.logFn},
		{"mod_path", capability.ModPath, s.modPathFn},
		{"load_resource", capability.ResourceRead, s.loadResourceFn},
		{"new_id", capability.IDNew, s.newIDFn},
		{"kv_get", capability.KVRead, s.kvGetFn},
		{"kv_set", capability.KVWrite, s.kvSetFn},
		{"kv_delete", capability.KVWrite, s.kvDeleteFn},
	}
}

// Bind defines every granted global in L and returns their names, sorted.
// It must run before the script's chunk executes.
func (s *Surface) Bind(L *lua.LState, b Binding) []string {
	var bound []string
	for _, g := range s.globals() {
		if !s.enforcer.Check(b.Mod, g.capability) {
			continue
		}
		L.SetGlobal(g.name, L.NewFunction(g.fn(b)))
		bound = append(bound, g.name)
	}
	sort.Strings(bound)
	s.logger.Debug("bound capability surface", "mod", b.Mod, "globals", bound)
	return bound
}

// Names lists every global the surface can bind, in declaration order.
func (s *Surface) Names() []string {
	gs := s.globals()
	names := make([]string, len(gs))
	for i, g := range gs {
		names[i] = g.name
	}
	return names
}

func pushError(L *lua.LState, msg string) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(msg))
	return 2
}

func pushSuccess(L *lua.LState, v lua.LValue) int {
	L.Push(v)
	L.Push(lua.LNil)
	return 2
}

func contextOf(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// sanitize turns a host error into a message safe to show a script. Errors
// without a script-facing meaning are logged with a reference the script
// author can quote.
func (s *Surface) sanitize(b Binding, op string, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out"
	case errors.Is(err, context.Canceled):
		return "operation cancelled"
	case errors.Is(err, store.ErrInvalidKey):
		return "invalid key"
	case errors.Is(err, fs.ErrNotExist):
		return "not found"
	case errors.Is(err, resource.ErrUnsupported):
		return "unsupported resource type"
	}
	ref := ulid.Make().String()
	s.logger.Error("host function failed", "mod", b.Mod, "function", op, "ref", ref, "error", err)
	return "internal error (ref: " + ref + ")"
}

func (s *Surface) setColorFn(b Binding) lua.LGFunction {
	return func(L *lua.LState) int {
		object := L.CheckString(1)
		color := L.CheckString(2)
		if s.scene == nil {
			L.RaiseError("set_color: scene not available")
			return 0
		}
		if err := s.scene.SetColor(object, color); err != nil {
			L.RaiseError("set_color(%q, %q): %s", object, color, err.Error())
			return 0
		}
		return 0
	}
}

func (s *Surface) getColorFn(_ Binding) lua.LGFunction {
	return func(L *lua.LState) int {
		object := L.CheckString(1)
		if s.scene == nil {
			return pushError(L, "scene not available")
		}
		c, err := s.scene.Color(object)
		if err != nil {
			return pushError(L, err.Error())
		}
		return pushSuccess(L, lua.LString(c))
	}
}

func (s *Surface) logFn(b Binding) lua.LGFunction {
	return func(L *lua.LState) int {
		level := L.CheckString(1)
		message := L.CheckString(2)

		logger := s.logger.With("mod", b.Mod)
		switch level {
		case "debug":
			logger.Debug(message)
		case "info":
			logger.Info(message)
		case "warn":
			logger.Warn(message)
		case "error":
			logger.Error(message)
		default:
			L.ArgError(1, "level must be one of debug, info, warn, error")
		}
		return 0
	}
}

func (s *Surface) modPathFn(b Binding) lua.LGFunction {
	return func(L *lua.LState) int {
		L.Push(lua.LString(b.Dir))
		return 1
	}
}

func (s *Surface) loadResourceFn(b Binding) lua.LGFunction {
	return func(L *lua.LState) int {
		rel := L.CheckString(1)
		if s.resources == nil {
			return pushError(L, "resource loader not available")
		}
		if !filepath.IsLocal(rel) {
			return pushError(L, "path must stay inside the mod folder")
		}

		root, err := os.OpenRoot(b.Dir)
		if err != nil {
			return pushError(L, s.sanitize(b, "load_resource", err))
		}
		defer root.Close()

		data, err := fs.ReadFile(root.FS(), filepath.ToSlash(rel))
		if err != nil {
			return pushError(L, s.sanitize(b, "load_resource", err))
		}

		r, err := resource.Load(contextOf(L), s.resources, b.Mod, rel, data)
		if err != nil {
			return pushError(L, s.sanitize(b, "load_resource", err))
		}

		t := L.NewTable()
		L.SetField(t, "id", lua.LString(r.ID.String()))
		L.SetField(t, "kind", lua.LString(string(r.Kind)))
		L.SetField(t, "content_type", lua.LString(r.ContentType))
		L.SetField(t, "size", lua.LNumber(r.Size))
		if r.Kind == resource.KindImage {
			L.SetField(t, "width", lua.LNumber(r.Width))
			L.SetField(t, "height", lua.LNumber(r.Height))
		}
		return pushSuccess(L, t)
	}
}

func (s *Surface) newIDFn(_ Binding) lua.LGFunction {
	return func(L *lua.LState) int {
		L.Push(lua.LString(ulid.Make().String()))
		return 1
	}
}

func (s *Surface) kvGetFn(b Binding) lua.LGFunction {
	return func(L *lua.LState) int {
		key := L.CheckString(1)
		if s.kv == nil {
			return pushError(L, "kv store not available")
		}
		value, err := s.kv.Get(contextOf(L), b.Mod, key)
		if err != nil {
			return pushError(L, s.sanitize(b, "kv_get", err))
		}
		if value == nil {
			return pushSuccess(L, lua.LNil)
		}
		return pushSuccess(L, lua.LString(value))
	}
}

func (s *Surface) kvSetFn(b Binding) lua.LGFunction {
	return func(L *lua.LState) int {
		key := L.CheckString(1)
		value := L.CheckString(2)
		if s.kv == nil {
			return pushError(L, "kv store not available")
		}
		if err := s.kv.Set(contextOf(L), b.Mod, key, []byte(value)); err != nil {
			return pushError(L, s.sanitize(b, "kv_set", err))
		}
		return pushSuccess(L, lua.LTrue)
	}
}

func (s *Surface) kvDeleteFn(b Binding) lua.LGFunction {
	return func(L *lua.LState) int {
		key := L.CheckString(1)
		if s.kv == nil {
			return pushError(L, "kv store not available")
		}
		if err := s.kv.Delete(contextOf(L), b.Mod, key); err != nil {
			return pushError(L, s.sanitize(b, "kv_delete", err))
		}
		return pushSuccess(L, lua.LTrue)
	}
}
