// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridforge/modhost/internal/config"
	"github.com/gridforge/modhost/internal/lifecycle"
	"github.com/gridforge/modhost/pkg/errutil"
)

func testConfig(t *testing.T, modsDir string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.ModsDir = modsDir
	cfg.CacheDir = t.TempDir()
	cfg.TickInterval = 5 * time.Millisecond
	cfg.Scripts.ModGrants = map[string][]string{"Quiet": {"log"}}
	return cfg
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestApp_StartsAndTicksScripts(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"painter/config.json": `{"name":"Painter"}`,
		"painter/main.lua": `
function start() set_color("Square", "red") end
ticks = 0
function update()
  ticks = ticks + 1
  kv_set("ticks", tostring(ticks))
end`,
		"quiet/config.json": `{"name":"Quiet"}`,
		"quiet/main.lua":    `if set_color then set_color("Square", "green") end`,
	})

	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t, root), discard())
	require.NoError(t, err)
	defer a.close()

	require.NoError(t, a.dispatcher.Start(ctx))
	require.NoError(t, a.dispatcher.Tick(ctx))
	require.NoError(t, a.dispatcher.Tick(ctx))

	color, err := a.scene.Color("Square")
	require.NoError(t, err)
	assert.Equal(t, "#ff0000", color, "Quiet holds no scene grant")

	v, err := a.kv.Get(ctx, "Painter", "ticks")
	require.NoError(t, err)
	assert.Equal(t, "2", string(v))

	state, ok := a.dispatcher.State(filepath.Join(root, "painter"))
	require.True(t, ok)
	assert.Equal(t, lifecycle.StateRunning, state)
}

func TestApp_ReloadResetsScene(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"painter/config.json": `{"name":"Painter"}`,
		"painter/main.lua":    `function update() set_color("Square", "red") end`,
	})

	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t, root), discard())
	require.NoError(t, err)
	defer a.close()

	require.NoError(t, a.dispatcher.Start(ctx))
	require.NoError(t, a.dispatcher.Tick(ctx))
	color, err := a.scene.Color("Square")
	require.NoError(t, err)
	require.Equal(t, "#ff0000", color)

	writeTree(t, root, map[string]string{
		"painter/main.lua": `function update() end`,
	})
	require.NoError(t, a.dispatcher.Reload(ctx))
	require.NoError(t, a.dispatcher.Tick(ctx))

	color, err = a.scene.Color("Square")
	require.NoError(t, err)
	assert.Equal(t, "#ffffff", color)
}

func TestApp_ReloadKeepsNewStartColors(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"painter/config.json": `{"name":"Painter"}`,
		"painter/main.lua":    `function start() set_color("Square", "red") end`,
	})

	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t, root), discard())
	require.NoError(t, err)
	defer a.close()
	require.NoError(t, a.dispatcher.Start(ctx))

	writeTree(t, root, map[string]string{
		"painter/main.lua": `function start() set_color("Square", "blue") end`,
	})
	require.NoError(t, a.dispatcher.Reload(ctx))

	color, err := a.scene.Color("Square")
	require.NoError(t, err)
	assert.Equal(t, "#0000ff", color, "reset runs before the rebuilt start")
}

func TestApp_InvalidSceneColor(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Scene.Objects = map[string]string{"Square": "not-a-colour"}

	_, err := newApp(context.Background(), cfg, discard())
	require.Error(t, err)
}

func TestApp_InvalidGrant(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Scripts.ModGrants = map[string][]string{"Bad": {"[unclosed"}}

	_, err := newApp(context.Background(), cfg, discard())
	require.Error(t, err)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"bar/config.json": `{"name":"Bar"}`,
		"bar/main.lua":    `function update() end`,
	})

	a, err := newApp(context.Background(), testConfig(t, root), discard())
	require.NoError(t, err)
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	reload := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() { done <- a.run(ctx, reload) }()

	require.Eventually(t, a.ready.Load, 2*time.Second, 5*time.Millisecond)
	reload <- struct{}{}
	require.Eventually(t, func() bool { return len(reload) == 0 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
	assert.False(t, a.ready.Load())
	assert.Empty(t, a.dispatcher.Mods(), "shutdown releases every mod")
}

func TestApp_ReloadForgetsRemovedModResources(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"bar/config.json": `{"name":"Bar"}`,
		"bar/main.lua":    `local r, err = load_resource("beep.wav")`,
		"bar/beep.wav":    "RIFF\x24\x00\x00\x00WAVEfmt ",
	})

	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t, root), discard())
	require.NoError(t, err)
	defer a.close()

	require.NoError(t, a.dispatcher.Start(ctx))
	require.Equal(t, []string{"Bar"}, a.catalog.Mods())

	require.NoError(t, os.RemoveAll(filepath.Join(root, "bar")))
	require.NoError(t, a.dispatcher.Reload(ctx))
	assert.Empty(t, a.catalog.Mods())
}

func TestApp_ObservabilityServer(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.MetricsAddr = "127.0.0.1:0"

	var logs bytes.Buffer
	a, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)
	defer a.close()

	stop, err := a.startObservability()
	require.NoError(t, err)
	defer stop()
	assert.Contains(t, logs.String(), "observability server started")
}

func TestApp_ObservabilityDisabled(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(t, t.TempDir()), discard())
	require.NoError(t, err)
	defer a.close()

	stop, err := a.startObservability()
	require.NoError(t, err)
	stop()
}

func TestForwardSignals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	requested := make(chan struct{}, 1)
	forwardSignals(ctx, sig, func() bool {
		requested <- struct{}{}
		return true
	})

	sig <- syscall.SIGHUP
	select {
	case <-requested:
	case <-time.After(2 * time.Second):
		t.Fatal("signal not forwarded")
	}
}

func TestApp_ControlSocket(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"bar/config.json": `{"name":"Bar"}`,
		"bar/main.lua":    `function update() end`,
	})
	cfg := testConfig(t, root)
	cfg.ControlSocket = filepath.Join(shortTempDir(t), "modhost.sock")

	ctx := context.Background()
	a, err := newApp(ctx, cfg, discard())
	require.NoError(t, err)
	defer a.close()
	require.NoError(t, a.dispatcher.Start(ctx))

	var reloads atomic.Int32
	stopped := make(chan struct{})
	stop, err := a.startControl(func() bool { reloads.Add(1); return true }, func() { close(stopped) })
	require.NoError(t, err)
	defer stop()

	out, _, err := execute(t, "status", "--control-socket", cfg.ControlSocket)
	require.NoError(t, err)
	assert.Contains(t, out, "modhost running")
	assert.Contains(t, out, "Bar")

	out, _, err = execute(t, "reload", "--control-socket", cfg.ControlSocket)
	require.NoError(t, err)
	assert.Contains(t, out, "reload requested")
	assert.Equal(t, int32(1), reloads.Load())

	_, _, err = execute(t, "stop", "--control-socket", cfg.ControlSocket)
	require.NoError(t, err)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown hook not called")
	}
}

func TestApp_ControlSocketDisabled(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.ControlSocket = config.ControlSocketDisabled

	a, err := newApp(context.Background(), cfg, discard())
	require.NoError(t, err)
	defer a.close()

	stop, err := a.startControl(func() bool { return true }, func() {})
	require.NoError(t, err)
	stop()

	_, _, err = execute(t, "status", "--control-socket", config.ControlSocketDisabled)
	require.Error(t, err)
}

func TestStatusCmd_NoHost(t *testing.T) {
	_, _, err := execute(t, "status", "--control-socket", filepath.Join(t.TempDir(), "none.sock"))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONTROL_UNAVAILABLE")
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "42s", formatUptime(42))
	assert.Equal(t, "2m 5s", formatUptime(125))
	assert.Equal(t, "3h 1m", formatUptime(3*3600+61))
}

// shortTempDir keeps socket paths under the Unix path length limit.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "modhost-cmd-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}
