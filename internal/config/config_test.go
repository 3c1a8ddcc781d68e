// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridforge/modhost/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modhost.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Load("", newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultModsDir, cfg.ModsDir)
	assert.Equal(t, config.DefaultTickInterval, cfg.TickInterval)
	assert.Equal(t, config.DefaultCallTimeout, cfg.CallTimeout)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, []string{".plugin"}, cfg.Native.PluginExtensions)
	assert.Equal(t, []string{".so"}, cfg.Native.SharedExtensions)
	assert.Equal(t, []string{".plugin", ".so"}, cfg.NativeExtensions())
	assert.Equal(t, ".lua", cfg.Scripts.Extension)
	assert.Equal(t, []string{"**"}, cfg.Scripts.Grants)
	assert.Equal(t, map[string]string{"Square": "white"}, cfg.Scene.Objects)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_NilFlags(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
mods-dir: /srv/mods
tick-interval: 50ms
log-format: pretty
native:
  plugin-extensions: [".mod"]
  shared-extensions: []
scripts:
  grants: ["log", "scene.*"]
  mod-grants:
    Bar: ["**"]
scene:
  objects:
    Square: red
    Circle: "#00ff00"
`)

	cfg, err := config.Load(path, newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, "/srv/mods", cfg.ModsDir)
	assert.Equal(t, 50*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, "pretty", cfg.LogFormat)
	assert.Equal(t, []string{".mod"}, cfg.NativeExtensions())
	assert.Equal(t, []string{"log", "scene.*"}, cfg.Scripts.Grants)
	assert.Equal(t, []string{"**"}, cfg.Scripts.ModGrants["Bar"])
	assert.Equal(t, "#00ff00", cfg.Scene.Objects["Circle"])
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "mods-dir: /srv/mods\ntick-interval: 50ms\n")

	cfg, err := config.Load(path, newFlags(t, "--mods-dir", "/tmp/mods"))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/mods", cfg.ModsDir, "changed flag wins over file")
	assert.Equal(t, 50*time.Millisecond, cfg.TickInterval, "unchanged flag default does not override file")
}

func TestLoad_DefaultPathFromXDG(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, "modhost"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(home, "modhost", "modhost.yaml"), []byte("mods-dir: /xdg/mods\n"), 0o600))

	cfg, err := config.Load("", newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "/xdg/mods", cfg.ModsDir)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := config.Load(writeConfig(t, "mods-dir: [unclosed\n"), nil)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"log format", func(c *config.Config) { c.LogFormat = "xml" }, "log-format must be one of"},
		{"log level", func(c *config.Config) { c.LogLevel = "loud" }, "log-level must be one of"},
		{"tick interval", func(c *config.Config) { c.TickInterval = -time.Second }, "tick-interval must be positive"},
		{"call timeout", func(c *config.Config) { c.CallTimeout = -time.Second }, "call-timeout must not be negative"},
		{"connect attempts", func(c *config.Config) { c.Native.ConnectAttempts = 0 }, "connect-attempts"},
		{"native dot", func(c *config.Config) { c.Native.PluginExtensions = []string{"plugin"} }, "must start with a dot"},
		{"native twice", func(c *config.Config) { c.Native.SharedExtensions = []string{".PLUGIN"} }, "listed twice"},
		{"script dot", func(c *config.Config) { c.Scripts.Extension = "lua" }, "scripts.extension must start with a dot"},
		{"script clash", func(c *config.Config) { c.Scripts.Extension = ".so" }, "also a native extension"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
