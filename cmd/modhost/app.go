// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package main

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/samber/oops"

	"github.com/gridforge/modhost/internal/config"
	"github.com/gridforge/modhost/internal/lifecycle"
	"github.com/gridforge/modhost/internal/mod"
	"github.com/gridforge/modhost/internal/mod/capability"
	"github.com/gridforge/modhost/internal/mod/hostapi"
	"github.com/gridforge/modhost/internal/mod/native"
	"github.com/gridforge/modhost/internal/mod/script"
	"github.com/gridforge/modhost/internal/resource"
	"github.com/gridforge/modhost/internal/scene"
	"github.com/gridforge/modhost/internal/store"
	"github.com/gridforge/modhost/internal/xdg"
)

// app is a fully wired host.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	scene      *scene.Store
	kv         store.KV
	catalog    *resource.Catalog
	natives    *native.Router
	dispatcher *lifecycle.Dispatcher
	ready      atomic.Bool

	closers []func()
}

// newApp assembles the host from cfg. The caller must call close.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, catalog: resource.NewCatalog()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.scene, err = scene.NewStore(cfg.Scene.Objects)
	if err != nil {
		return nil, oops.In("modhost").Code("CONFIG_INVALID").Wrap(err)
	}
	a.scene.OnChange(func(object, hex string) {
		logger.Debug("scene object recoloured", "object", object, "color", hex)
	})

	if err := a.openKV(ctx); err != nil {
		return nil, err
	}

	enforcer, err := capability.NewEnforcer(cfg.Scripts.Grants...)
	if err != nil {
		return nil, oops.In("modhost").Code("CONFIG_INVALID").Wrap(err)
	}
	for name, grants := range cfg.Scripts.ModGrants {
		if err := enforcer.SetGrants(name, grants); err != nil {
			return nil, oops.In("modhost").Code("CONFIG_INVALID").With("mod", name).Wrap(err)
		}
	}

	surface := hostapi.New(enforcer,
		hostapi.WithScene(a.scene),
		hostapi.WithResources(a.catalog),
		hostapi.WithKV(a.kv),
		hostapi.WithLogger(logger),
	)
	scripts := script.NewHost(surface, script.WithLogger(logger), script.WithCallTimeout(cfg.CallTimeout))

	if err := a.openNatives(); err != nil {
		return nil, err
	}
	natives := native.NewHost(a.natives, native.WithLogger(logger))

	scanner := mod.NewScanner(cfg.ModsDir,
		mod.WithNativeExtensions(cfg.NativeExtensions()...),
		mod.WithScriptExtension(cfg.Scripts.Extension),
		mod.WithScannerLogger(logger),
	)

	a.dispatcher = lifecycle.New(scanner, mod.NewRegistry(),
		lifecycle.WithLoader(mod.KindNative, natives),
		lifecycle.WithLoader(mod.KindScript, scripts),
		lifecycle.WithLogger(logger),
		lifecycle.WithReset(a.resetScene),
		lifecycle.WithReloadListener(lifecycle.ReloadListenerFunc(a.reloaded)),
	)
	return a, nil
}

func (a *app) openKV(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		a.kv = store.NewMemoryKV()
		a.logger.Info("using in-memory kv store")
		return nil
	}
	kv, err := store.NewPostgresKV(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return oops.In("modhost").Code("DB_CONNECT_FAILED").Wrap(err)
	}
	a.kv = kv
	a.closers = append(a.closers, kv.Close)
	a.logger.Info("connected to kv database")
	return nil
}

func (a *app) openNatives() error {
	dir := a.cfg.CacheDir
	if dir == "" {
		var err error
		if dir, err = xdg.ModuleCacheDir(); err != nil {
			return oops.In("modhost").Hint("set cache-dir").Wrap(err)
		}
	}
	cache, err := native.NewBlobCache(dir)
	if err != nil {
		return err
	}

	plugins := native.NewGoPluginLoader(cache,
		native.WithClientFactory(&native.DefaultClientFactory{
			Logger: native.NewHCLogger(nil, a.cfg.LogLevel),
		}),
		native.WithConnectRetry(uint64(a.cfg.Native.ConnectAttempts), native.DefaultConnectBackoff), // #nosec G115 -- validated >= 1
		native.WithPluginLogger(a.logger),
	)
	shared := native.NewSharedObjectLoader(cache, native.WithSharedObjectLogger(a.logger))

	loaders := make(map[string]native.Loader)
	for _, ext := range a.cfg.Native.PluginExtensions {
		loaders[ext] = plugins
	}
	for _, ext := range a.cfg.Native.SharedExtensions {
		loaders[ext] = shared
	}
	a.natives = native.NewRouter(loaders)
	a.closers = append(a.closers, func() {
		if err := a.natives.Close(); err != nil {
			a.logger.Warn("failed to stop native modules", "error", err)
		}
	})
	return nil
}

// resetScene restores the scene before reloaded scripts run again.
func (a *app) resetScene(_ context.Context) {
	a.scene.Reset()
	a.logger.Debug("scene reset for reload")
}

// reloaded drops resources whose owning scripted mod is gone.
func (a *app) reloaded(_ context.Context, ev lifecycle.ReloadEvent) {
	live := make(map[string]bool)
	for _, m := range a.dispatcher.Registry().Snapshot() {
		live[m.Name()] = true
	}
	dropped := 0
	for _, name := range a.catalog.Mods() {
		if !live[name] {
			dropped += a.catalog.Forget(name)
		}
	}
	a.logger.Debug("reload resources pruned", "discarded_mods", ev.Discarded, "resources", dropped)
}

// close releases everything newApp opened, in reverse order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
