// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

// Package lifecycle drives loaded mods: it loads every discovered package,
// activates the results in discovery order, ticks scripted mods and rebuilds
// them on reload. Failures raised by a mod are contained here.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/gridforge/modhost/internal/mod"
	"github.com/gridforge/modhost/pkg/errutil"
)

// TracerName is the instrumentation scope of dispatcher spans.
const TracerName = "modhost/lifecycle"

// Sentinel errors for programmatic error checking.
var (
	ErrAlreadyStarted = errors.New("dispatcher already started")
	ErrNotStarted     = errors.New("dispatcher not started")
	ErrNoLoader       = errors.New("no loader for mod kind")
)

// Scanner discovers mod packages. *mod.Scanner satisfies it.
type Scanner interface {
	Scan(ctx context.Context) ([]*mod.Package, error)
}

// Loader turns a package into a loaded mod.
type Loader interface {
	LoadMod(ctx context.Context, pkg *mod.Package) (mod.Mod, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, pkg *mod.Package) (mod.Mod, error)

// LoadMod implements Loader.
func (f LoaderFunc) LoadMod(ctx context.Context, pkg *mod.Package) (mod.Mod, error) {
	return f(ctx, pkg)
}

// ReloadEvent is delivered to listeners after a reload.
type ReloadEvent struct {
	// Discarded is the number of scripted mods dropped.
	Discarded int
	// Loaded is the number of scripted mods rebuilt.
	Loaded   int
	Duration time.Duration
}

// ReloadListener is notified once each reload has completed.
type ReloadListener interface {
	ReloadCompleted(ctx context.Context, ev ReloadEvent)
}

// ReloadListenerFunc adapts a function to ReloadListener.
type ReloadListenerFunc func(ctx context.Context, ev ReloadEvent)

// ReloadCompleted implements ReloadListener.
func (f ReloadListenerFunc) ReloadCompleted(ctx context.Context, ev ReloadEvent) { f(ctx, ev) }

// ResetFunc resets host state owned by the discarded script contexts. It
// runs during a reload after the old scripted mods are released and before
// any package is loaded again.
type ResetFunc func(ctx context.Context)

// updater is implemented by mods that may or may not define an update.
type updater interface {
	HasUpdate() bool
}

// Dispatcher runs the mod lifecycle. Start, Tick and Reload are serialized.
type Dispatcher struct {
	scanner  Scanner
	loaders  map[mod.Kind]Loader
	registry *mod.Registry
	logger   *slog.Logger
	tracer   trace.Tracer

	mu        sync.Mutex
	started   bool
	listeners []ReloadListener
	resets    []ResetFunc
	// states is keyed by package directory: names are not unique.
	states    map[string]State
	stateMu   sync.RWMutex
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLoader sets the loader used for packages of kind.
func WithLoader(kind mod.Kind, l Loader) Option {
	return func(d *Dispatcher) { d.loaders[kind] = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithTracer sets the tracer. The default records nothing.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithReloadListener adds a listener notified after each reload.
func WithReloadListener(l ReloadListener) Option {
	return func(d *Dispatcher) { d.listeners = append(d.listeners, l) }
}

// WithReset adds a function run on every reload before scripts load again.
func WithReset(fn ResetFunc) Option {
	return func(d *Dispatcher) { d.resets = append(d.resets, fn) }
}

// New creates a dispatcher. Panics if scanner or registry is nil.
func New(scanner Scanner, registry *mod.Registry, opts ...Option) *Dispatcher {
	if scanner == nil {
		panic("lifecycle: scanner cannot be nil")
	}
	if registry == nil {
		panic("lifecycle: registry cannot be nil")
	}
	d := &Dispatcher{
		scanner:  scanner,
		loaders:  make(map[mod.Kind]Loader),
		registry: registry,
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer(TracerName),
		states:   make(map[string]State),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AddReloadListener registers l for future reloads.
func (d *Dispatcher) AddReloadListener(l ReloadListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

// Registry returns the registry the dispatcher populates.
func (d *Dispatcher) Registry() *mod.Registry { return d.registry }

// Start loads every discovered package, then activates the loaded mods in
// discovery order. It runs once.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return ErrAlreadyStarted
	}

	ctx, span := d.tracer.Start(ctx, "lifecycle.Start")
	defer span.End()

	pkgs, err := d.scanner.Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		return oops.In("lifecycle").Wrapf(err, "scan mods")
	}

	loaded := d.load(ctx, pkgs)
	d.activate(ctx, loaded)
	d.started = true
	d.updateGauge()

	natives, scripts := d.registry.Len()
	span.SetAttributes(
		attribute.Int("mods.discovered", len(pkgs)),
		attribute.Int("mods.native", natives),
		attribute.Int("mods.script", scripts),
	)
	d.logger.InfoContext(ctx, "mods started", "discovered", len(pkgs), "native", natives, "script", scripts)
	return nil
}

// Tick runs one update on every tickable mod in registry order.
func (d *Dispatcher) Tick(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return ErrNotStarted
	}

	ctx, span := d.tracer.Start(ctx, "lifecycle.Tick")
	defer span.End()

	begin := time.Now()
	for _, m := range d.registry.Snapshot() {
		t, ok := m.(mod.Tickable)
		if !ok {
			continue
		}
		if err := contain(func() error { return t.Tick(ctx) }); err != nil {
			d.fail(span, PhaseTick, m, mod.TickError(m.Name(), err))
			continue
		}
		if u, ok := m.(updater); ok && !u.HasUpdate() {
			continue
		}
		d.advance(m.Dir(), StateActivated, StateRunning)
	}
	TickDuration.Observe(time.Since(begin).Seconds())
	return nil
}

// Reload discards every scripted mod, resets host state, rescans, and loads
// and activates the scripted packages found. Native packages are never
// loaded again. Listeners are notified once the rebuild completes.
func (d *Dispatcher) Reload(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return ErrNotStarted
	}

	ctx, span := d.tracer.Start(ctx, "lifecycle.Reload")
	defer span.End()
	begin := time.Now()

	old := d.registry.ClearScripts()
	for _, m := range old {
		d.release(ctx, m)
		d.forget(m.Dir())
	}
	for _, reset := range d.resets {
		if err := contain(func() error { reset(ctx); return nil }); err != nil {
			errutil.LogError(d.logger, "reload reset failed", err)
		}
	}

	pkgs, err := d.scanner.Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		d.updateGauge()
		return oops.In("lifecycle").Wrapf(err, "rescan mods")
	}

	scripts := make([]*mod.Package, 0, len(pkgs))
	for _, p := range pkgs {
		if p.Kind == mod.KindScript {
			scripts = append(scripts, p)
		}
	}

	loaded := d.load(ctx, scripts)
	d.activate(ctx, loaded)
	d.updateGauge()
	Reloads.Inc()

	ev := ReloadEvent{Discarded: len(old), Loaded: len(loaded), Duration: time.Since(begin)}
	span.SetAttributes(attribute.Int("mods.discarded", ev.Discarded), attribute.Int("mods.loaded", ev.Loaded))
	d.logger.InfoContext(ctx, "reload completed", "discarded", ev.Discarded, "loaded", ev.Loaded, "duration", ev.Duration)
	for _, l := range d.listeners {
		l.ReloadCompleted(ctx, ev)
	}
	return nil
}

// Run starts the dispatcher if needed and ticks every interval until ctx is
// done. Reload requests received on reload are served between ticks.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration, reload <-chan struct{}) error {
	if interval <= 0 {
		return oops.In("lifecycle").With("interval", interval).Errorf("tick interval must be positive")
	}

	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	if !started {
		if err := d.Start(ctx); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-reload:
			if !ok {
				reload = nil
				continue
			}
			if err := d.Reload(ctx); err != nil {
				errutil.LogError(d.logger, "reload failed", err)
			}
		case <-ticker.C:
			if err := d.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

// Shutdown releases every mod and empties the registry.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, m := range d.registry.Clear() {
		d.release(ctx, m)
		d.forget(m.Dir())
	}
	d.started = false
	d.updateGauge()
}

// State returns the lifecycle state of the package in dir. A package whose
// native module duplicates one already loaded has no state of its own.
func (d *Dispatcher) State(dir string) (State, bool) {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	s, ok := d.states[dir]
	return s, ok
}

// Mods describes every registered mod in registry order.
func (d *Dispatcher) Mods() []ModInfo {
	mods := d.registry.Snapshot()
	infos := make([]ModInfo, 0, len(mods))
	for _, m := range mods {
		desc := m.Descriptor()
		state, _ := d.State(m.Dir())
		infos = append(infos, ModInfo{
			Name:        m.Name(),
			Author:      desc.Author,
			Description: desc.Description,
			Icon:        desc.ResolveIcon(m.Dir()),
			Kind:        string(m.Kind()),
			Identity:    m.Identity().Short(),
			Dir:         m.Dir(),
			State:       state,
		})
	}
	return infos
}

// load loads and registers pkgs in order and returns the newly registered
// mods. Failures are logged and the package is skipped.
func (d *Dispatcher) load(ctx context.Context, pkgs []*mod.Package) []mod.Mod {
	ctx, span := d.tracer.Start(ctx, "lifecycle.load")
	defer span.End()

	loaded := make([]mod.Mod, 0, len(pkgs))
	for _, pkg := range pkgs {
		d.discover(pkg.Dir)

		l, ok := d.loaders[pkg.Kind]
		if !ok {
			d.failLoad(span, pkg, oops.In("lifecycle").With("kind", pkg.Kind).Wrap(ErrNoLoader))
			continue
		}

		var m mod.Mod
		err := contain(func() error {
			var err error
			m, err = l.LoadMod(ctx, pkg)
			return err
		})
		if err != nil {
			d.failLoad(span, pkg, err)
			continue
		}

		switch m.Kind() {
		case mod.KindNative:
			if !d.registry.RegisterNative(m.Identity(), m) {
				d.logger.InfoContext(ctx, "native module already loaded",
					"mod", pkg.Name(), "identity", m.Identity().Short())
				d.forget(pkg.Dir)
				continue
			}
		default:
			d.registry.RegisterScript(m)
		}
		d.setState(m.Dir(), StateLoaded)
		d.logger.DebugContext(ctx, "mod loaded", "mod", m.Name(), "kind", m.Kind(), "identity", m.Identity().Short())
		loaded = append(loaded, m)
	}
	return loaded
}

// activate activates mods in order. A failing mod is logged and the next
// one still runs.
func (d *Dispatcher) activate(ctx context.Context, mods []mod.Mod) {
	ctx, span := d.tracer.Start(ctx, "lifecycle.activate")
	defer span.End()

	for _, m := range mods {
		if a, ok := m.(mod.Activatable); ok {
			if err := contain(func() error { return a.Activate(ctx) }); err != nil {
				d.fail(span, PhaseActivate, m, mod.ActivationError(m.Name(), err))
			}
		}
		d.setState(m.Dir(), StateActivated)
	}
}

func (d *Dispatcher) release(ctx context.Context, m mod.Mod) {
	c, ok := m.(mod.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		errutil.LogWarn(d.logger, "failed to release mod", err, "mod", m.Name())
	}
	d.logger.DebugContext(ctx, "mod released", "mod", m.Name())
}

func (d *Dispatcher) fail(span trace.Span, phase string, m mod.Mod, err error) {
	Failures.WithLabelValues(phase, string(m.Kind())).Inc()
	span.RecordError(err, trace.WithAttributes(attribute.String("mod.name", m.Name())))
	errutil.LogError(d.logger.With("phase", phase), "mod "+phase+" failed", err,
		"mod", m.Name(),
		"identity", m.Identity().Short())
}

func (d *Dispatcher) failLoad(span trace.Span, pkg *mod.Package, err error) {
	Failures.WithLabelValues(PhaseLoad, string(pkg.Kind)).Inc()
	span.RecordError(err, trace.WithAttributes(attribute.String("mod.name", pkg.Name())))
	d.setState(pkg.Dir, StateFailed)
	errutil.LogError(d.logger, "failed to load mod", err, "mod", pkg.Name(), "dir", pkg.Dir)
}

func (d *Dispatcher) setState(dir string, s State) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.states[dir] = s
}

// discover records dir as discovered unless it already progressed.
func (d *Dispatcher) discover(dir string) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if s, ok := d.states[dir]; !ok || s == StateFailed {
		d.states[dir] = StateDiscovered
	}
}

// advance moves dir from one state to the next, leaving other states alone.
func (d *Dispatcher) advance(dir string, from, to State) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.states[dir] == from {
		d.states[dir] = to
	}
}

func (d *Dispatcher) forget(dir string) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	delete(d.states, dir)
}

func (d *Dispatcher) updateGauge() {
	natives, scripts := d.registry.Len()
	LoadedMods.WithLabelValues(string(mod.KindNative)).Set(float64(natives))
	LoadedMods.WithLabelValues(string(mod.KindScript)).Set(float64(scripts))
}

// contain runs fn and converts a panic into an error.
func contain(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = oops.In("lifecycle").With("panic", fmt.Sprint(r)).Errorf("panic: %v", r)
		}
	}()
	return fn()
}
