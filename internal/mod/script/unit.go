// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package script

import (
	"context"
	"time"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/gridforge/modhost/internal/mod"
)

// Unit is one script file bound to its own interpreter state. The start and
// update functions are resolved once, right after the chunk executes.
type Unit struct {
	path    string
	state   *lua.LState
	start   *lua.LFunction
	update  *lua.LFunction
	timeout time.Duration
	globals []string
}

// Path returns the source file.
func (u *Unit) Path() string { return u.path }

// Identity returns the unit's identity, its source path.
func (u *Unit) Identity() mod.Identity { return mod.Identity(u.path) }

// HasStart reports whether the script defined a start function.
func (u *Unit) HasStart() bool { return u.start != nil }

// HasUpdate reports whether the script defined an update function.
func (u *Unit) HasUpdate() bool { return u.update != nil }

// Bound returns the capability globals injected into the unit.
func (u *Unit) Bound() []string { return u.globals }

// Global reads a global from the unit's state.
func (u *Unit) Global(name string) lua.LValue {
	return u.state.GetGlobal(name)
}

// CallStart invokes start(). It is a no-op when start is absent.
func (u *Unit) CallStart(ctx context.Context) error {
	return u.call(ctx, u.start, "start")
}

// CallUpdate invokes update(). It is a no-op when update is absent.
func (u *Unit) CallUpdate(ctx context.Context) error {
	return u.call(ctx, u.update, "update")
}

func (u *Unit) call(ctx context.Context, fn *lua.LFunction, name string) error {
	if fn == nil {
		return nil
	}
	if u.state == nil || u.state.IsClosed() {
		return oops.In("script").With("path", u.path).With("function", name).Errorf("state is closed")
	}

	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}
	u.state.SetContext(ctx)
	defer u.state.RemoveContext()

	if err := u.state.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
		return oops.In("script").With("path", u.path).With("function", name).Wrap(err)
	}
	return nil
}

// Close releases the interpreter state. It is safe to call more than once.
func (u *Unit) Close() {
	if u.state != nil && !u.state.IsClosed() {
		u.state.Close()
	}
}
