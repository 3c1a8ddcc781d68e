// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridforge/modhost/internal/config"
	"github.com/gridforge/modhost/internal/control"
	"github.com/gridforge/modhost/internal/lifecycle"
	"github.com/gridforge/modhost/internal/logging"
	"github.com/gridforge/modhost/internal/mod/native"
	"github.com/gridforge/modhost/internal/observability"
)

const shutdownTimeout = 5 * time.Second

// NewRunCmd creates the run subcommand.
func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Load every mod and run the tick loop",
		Long: `Scan the mods directory, load and activate every mod, then call each
scripted mod's update every tick. SIGHUP reloads scripted mods; SIGINT or
SIGTERM stops the host.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHost(cmd)
		},
	}
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.SetupLevel("modhost", version, cfg.LogFormat, level, w), nil
}

func runHost(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	stopObservability, err := a.startObservability()
	if err != nil {
		return err
	}
	defer stopObservability()

	reload := make(chan struct{}, 1)
	requestReload := func() bool {
		select {
		case reload <- struct{}{}:
			return true
		default:
			return false
		}
	}

	stopControl, err := a.startControl(requestReload, cancel)
	if err != nil {
		return err
	}
	defer stopControl()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	forwardSignals(ctx, hup, requestReload)

	logger.Info("starting mod host", "mods_dir", cfg.ModsDir, "tick_interval", cfg.TickInterval)
	return a.run(ctx, reload)
}

// forwardSignals calls request for each received signal until ctx is done.
func forwardSignals(ctx context.Context, sig <-chan os.Signal, request func() bool) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sig:
				request()
			}
		}
	}()
}

// run starts every mod and ticks until ctx is done, then shuts the mods down.
func (a *app) run(ctx context.Context, reload <-chan struct{}) error {
	if err := a.dispatcher.Start(ctx); err != nil {
		return err
	}
	a.ready.Store(true)

	err := a.dispatcher.Run(ctx, a.cfg.TickInterval, reload)

	a.ready.Store(false)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	a.dispatcher.Shutdown(shutdownCtx)
	a.logger.Info("mod host stopped")
	return err
}

// startControl opens the control socket unless it is disabled. The returned
// func closes it.
func (a *app) startControl(reload func() bool, shutdown func()) (func(), error) {
	path, err := controlSocketPath(a.cfg)
	if err != nil || path == "" {
		return func() {}, err
	}

	srv := control.NewServer(path, control.Hooks{
		Reload:   reload,
		Shutdown: shutdown,
		Mods:     a.dispatcher.Mods,
	}, control.WithLogger(a.logger))
	if err := srv.Start(); err != nil {
		return nil, err
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			a.logger.Warn("failed to stop control socket", "error", err)
		}
	}, nil
}

// controlSocketPath resolves the configured socket, "" when disabled.
func controlSocketPath(cfg *config.Config) (string, error) {
	switch cfg.ControlSocket {
	case config.ControlSocketDisabled:
		return "", nil
	case "":
		return control.DefaultSocketPath()
	default:
		return cfg.ControlSocket, nil
	}
}

// startObservability serves metrics and health when metrics-addr is set. The
// returned func stops the server.
func (a *app) startObservability() (func(), error) {
	if a.cfg.MetricsAddr == "" {
		return func() {}, nil
	}

	srv := observability.NewServer(a.cfg.MetricsAddr, a.ready.Load,
		observability.WithMetrics(native.RegisterMetrics, lifecycle.RegisterMetrics),
		observability.WithMods(a.dispatcher),
		observability.WithScene(a.scene.Snapshot),
		observability.WithLogger(a.logger),
	)
	errCh, err := srv.Start()
	if err != nil {
		return nil, err
	}
	// Serve errors are logged by the server itself.
	go func() {
		for range errCh { //nolint:revive // drain
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			a.logger.Warn("failed to stop observability server", "error", err)
		}
	}, nil
}

