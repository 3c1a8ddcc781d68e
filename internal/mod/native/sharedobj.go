// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package native

import (
	"context"
	"log/slog"
	"plugin"
	"strings"
	"sync"

	"github.com/samber/oops"

	"github.com/gridforge/modhost/internal/mod"
)

// EntrySymbol is the exported function a shared-object mod may provide.
const EntrySymbol = "OnStart"

// Symbols looks up exported symbols. *plugin.Plugin satisfies it.
type Symbols interface {
	Lookup(name string) (plugin.Symbol, error)
}

// Opener opens the shared object at path.
type Opener func(path string) (Symbols, error)

func openPlugin(path string) (Symbols, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SharedObjectLoader loads Go plugins built with -buildmode=plugin into the
// host process. Loaded objects cannot be unloaded.
type SharedObjectLoader struct {
	cache  *BlobCache
	open   Opener
	logger *slog.Logger

	mu      sync.Mutex
	modules map[mod.Identity]*sharedModule
}

// SharedObjectOption configures a SharedObjectLoader.
type SharedObjectOption func(*SharedObjectLoader)

// WithOpener replaces plugin.Open (for testing).
func WithOpener(open Opener) SharedObjectOption {
	return func(l *SharedObjectLoader) {
		if open != nil {
			l.open = open
		}
	}
}

// WithSharedObjectLogger sets the logger.
func WithSharedObjectLogger(logger *slog.Logger) SharedObjectOption {
	return func(l *SharedObjectLoader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewSharedObjectLoader creates a loader that stages objects in cache.
// Panics if cache is nil.
func NewSharedObjectLoader(cache *BlobCache, opts ...SharedObjectOption) *SharedObjectLoader {
	if cache == nil {
		panic("native: blob cache cannot be nil")
	}
	l := &SharedObjectLoader{
		cache:   cache,
		open:    openPlugin,
		logger:  slog.Default(),
		modules: make(map[mod.Identity]*sharedModule),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load implements Loader.
func (l *SharedObjectLoader) Load(_ context.Context, fileName string, data []byte) (Module, error) {
	id := mod.IdentityOf(data)

	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.modules[id]; ok {
		l.logger.Debug("module already loaded", "file", fileName, "identity", id.Short())
		NativeLoads.WithLabelValues(ResultDuplicate).Inc()
		return m, nil
	}
	if _, err := objectFormat(data); err != nil {
		return nil, mod.LoadError(fileName, err)
	}
	path, err := l.cache.Put(id, mod.NativeSharedExtension, data)
	if err != nil {
		return nil, mod.LoadError(fileName, err)
	}
	syms, err := l.open(path)
	if err != nil {
		return nil, mod.LoadError(fileName, err)
	}

	m := &sharedModule{id: id, fileName: fileName}
	sym, err := syms.Lookup(EntrySymbol)
	if err == nil {
		entry, err := adaptEntry(sym)
		if err != nil {
			return nil, mod.LoadError(fileName, err)
		}
		m.entry = entry
	} else if !strings.Contains(err.Error(), "not found") {
		return nil, mod.LoadError(fileName, err)
	}

	l.modules[id] = m
	NativeLoads.WithLabelValues(ResultLoaded).Inc()
	return m, nil
}

// adaptEntry accepts the entry point signatures a shared object may export.
func adaptEntry(sym plugin.Symbol) (func(context.Context, Env) error, error) {
	switch fn := sym.(type) {
	case func():
		return func(context.Context, Env) error { fn(); return nil }, nil
	case func() error:
		return func(context.Context, Env) error { return fn() }, nil
	case func(string) error:
		return func(_ context.Context, env Env) error { return fn(env.Dir) }, nil
	case func(context.Context, Env) error:
		return fn, nil
	}
	return nil, oops.In("native").
		With("symbol", EntrySymbol).
		Hint("OnStart must be func(), func() error, func(string) error or func(context.Context, modsdk.Env) error").
		Errorf("unsupported entry point type %T", sym)
}

type sharedModule struct {
	id       mod.Identity
	fileName string
	entry    func(context.Context, Env) error
}

func (m *sharedModule) Identity() mod.Identity { return m.id }
func (m *sharedModule) FileName() string       { return m.fileName }

func (m *sharedModule) Start(ctx context.Context, env Env) (bool, error) {
	if m.entry == nil {
		return false, nil
	}
	return true, m.entry(ctx, env)
}
