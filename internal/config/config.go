// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

// Package config loads modhost settings from defaults, an optional YAML file
// and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/gridforge/modhost/internal/logging"
	"github.com/gridforge/modhost/internal/mod"
	"github.com/gridforge/modhost/internal/xdg"
)

// Defaults for settings that have flags.
const (
	DefaultModsDir      = "./mods"
	DefaultTickInterval = 16 * time.Millisecond
	DefaultCallTimeout  = time.Second
	DefaultLogFormat    = logging.FormatJSON
	DefaultLogLevel     = "info"
)

// ControlSocketDisabled turns the control socket off.
const ControlSocketDisabled = "none"


// Config is the full modhost configuration.
type Config struct {
	ModsDir      string        `koanf:"mods-dir"`
	TickInterval time.Duration `koanf:"tick-interval"`
	CallTimeout  time.Duration `koanf:"call-timeout"`
	LogFormat    string        `koanf:"log-format"`
	LogLevel     string        `koanf:"log-level"`
	MetricsAddr  string        `koanf:"metrics-addr"`
	DatabaseURL  string        `koanf:"database-url"`
	CacheDir     string        `koanf:"cache-dir"`
	// ControlSocket is the Unix socket path. Empty uses the XDG runtime
	// directory; ControlSocketDisabled turns it off.
	ControlSocket string `koanf:"control-socket"`

	Native  NativeConfig `koanf:"native"`
	Scripts ScriptConfig `koanf:"scripts"`
	Scene   SceneConfig  `koanf:"scene"`
}

// NativeConfig selects which extensions each native backend loads.
type NativeConfig struct {
	// PluginExtensions are run out of process over go-plugin.
	PluginExtensions []string `koanf:"plugin-extensions"`
	// SharedExtensions are opened in process as Go plugins.
	SharedExtensions []string `koanf:"shared-extensions"`
	ConnectAttempts  int      `koanf:"connect-attempts"`
}

// ScriptConfig controls the script host.
type ScriptConfig struct {
	Extension string `koanf:"extension"`
	// Grants are the capability patterns every scripted mod receives.
	Grants []string `koanf:"grants"`
	// ModGrants replace Grants for the named mods.
	ModGrants map[string][]string `koanf:"mod-grants"`
}

// SceneConfig seeds the scene objects mods can recolour.
type SceneConfig struct {
	Objects map[string]string `koanf:"objects"`
}

// RegisterFlags adds the flag-settable options to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("mods-dir", DefaultModsDir, "directory containing mod packages")
	fs.Duration("tick-interval", DefaultTickInterval, "interval between script updates")
	fs.Duration("call-timeout", DefaultCallTimeout, "maximum duration of a single script call (0 disables)")
	fs.String("log-format", DefaultLogFormat, "log format ("+strings.Join(logging.Formats, ", ")+")")
	fs.String("log-level", DefaultLogLevel, "minimum log level (debug, info, warn, error)")
	fs.String("metrics-addr", "", "observability listen address, empty disables")
	fs.String("database-url", "", "PostgreSQL URL for the mod kv store, empty uses memory")
	fs.String("cache-dir", "", "native module cache (default $XDG_CACHE_HOME/modhost/modules)")
	fs.String("control-socket", "", "control socket path (default $XDG_RUNTIME_DIR/modhost/modhost.sock, \"none\" disables)")
}

// Load builds a Config. path may be empty, in which case the default XDG
// config file is read when it exists. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		if p, err := xdg.ConfigPath(); err == nil {
			path = p
		}
	}
	if path != "" {
		err := k.Load(file.Provider(path), yaml.Parser())
		switch {
		case err == nil:
		case !explicit && errors.Is(err, os.ErrNotExist):
		default:
			return nil, oops.In("config").With("path", path).Hint("check the config file exists and is valid YAML").Wrap(err)
		}
	}

	if fs != nil {
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return nil, oops.In("config").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.In("config").With("path", path).Wrap(err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.ModsDir == "" {
		c.ModsDir = DefaultModsDir
	}
	if c.TickInterval == 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Native.PluginExtensions == nil {
		c.Native.PluginExtensions = []string{mod.NativePluginExtension}
	}
	if c.Native.SharedExtensions == nil {
		c.Native.SharedExtensions = []string{mod.NativeSharedExtension}
	}
	if c.Native.ConnectAttempts == 0 {
		c.Native.ConnectAttempts = 3
	}
	if c.Scripts.Extension == "" {
		c.Scripts.Extension = mod.DefaultScriptExtension
	}
	if c.Scripts.Grants == nil {
		c.Scripts.Grants = []string{"**"}
	}
	if c.Scene.Objects == nil {
		c.Scene.Objects = map[string]string{"Square": "white"}
	}
}

// NativeExtensions returns every extension classified as native.
func (c *Config) NativeExtensions() []string {
	exts := make([]string, 0, len(c.Native.PluginExtensions)+len(c.Native.SharedExtensions))
	exts = append(exts, c.Native.PluginExtensions...)
	return append(exts, c.Native.SharedExtensions...)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if !logging.ValidFormat(c.LogFormat) {
		errs = append(errs, oops.With("log-format", c.LogFormat).Errorf("log-format must be one of %s", strings.Join(logging.Formats, ", ")))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, oops.With("log-level", c.LogLevel).Errorf("log-level must be one of debug, info, warn, error"))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, oops.With("tick-interval", c.TickInterval).Errorf("tick-interval must be positive"))
	}
	if c.CallTimeout < 0 {
		errs = append(errs, oops.With("call-timeout", c.CallTimeout).Errorf("call-timeout must not be negative"))
	}
	if c.Native.ConnectAttempts < 1 {
		errs = append(errs, oops.With("connect-attempts", c.Native.ConnectAttempts).Errorf("native.connect-attempts must be at least 1"))
	}

	seen := make(map[string]bool)
	for _, ext := range c.NativeExtensions() {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			errs = append(errs, oops.With("extension", ext).Errorf("native extensions must start with a dot"))
			continue
		}
		lower := strings.ToLower(ext)
		if seen[lower] {
			errs = append(errs, oops.With("extension", ext).Errorf("native extension listed twice"))
		}
		seen[lower] = true
	}
	if !strings.HasPrefix(c.Scripts.Extension, ".") || len(c.Scripts.Extension) < 2 {
		errs = append(errs, oops.With("extension", c.Scripts.Extension).Errorf("scripts.extension must start with a dot"))
	} else if seen[strings.ToLower(c.Scripts.Extension)] {
		errs = append(errs, oops.With("extension", c.Scripts.Extension).Errorf("scripts.extension is also a native extension"))
	}

	if len(errs) > 0 {
		return oops.In("config").Code("CONFIG_INVALID").Join(errs...)
	}
	return nil
}
