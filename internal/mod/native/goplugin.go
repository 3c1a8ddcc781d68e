// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package native

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"golang.org/x/crypto/blake2b"
	"google.golang.org/grpc"

	"github.com/gridforge/modhost/internal/mod"
	"github.com/gridforge/modhost/pkg/modsdk"
)

// Connection retry defaults for plugin processes.
const (
	DefaultConnectAttempts = 3
	DefaultConnectBackoff  = 100 * time.Millisecond
	DefaultStartTimeout    = 10 * time.Second
)

// PluginClient wraps a go-plugin client for testability.
type PluginClient interface {
	// Client starts the process if needed and returns the RPC protocol.
	Client() (hashiplug.ClientProtocol, error)
	// Kill terminates the plugin process.
	Kill()
}

// ClientFactory creates plugin clients.
type ClientFactory interface {
	// NewClient creates a client for the executable at execPath. The
	// process is only started if its content hashes to checksum.
	NewClient(execPath string, checksum []byte) PluginClient
}

// DefaultClientFactory creates real go-plugin clients.
type DefaultClientFactory struct {
	// Logger receives go-plugin's own diagnostics. Nil discards them.
	Logger hclog.Logger
	// Stderr receives the plugin process's unstructured stderr.
	Stderr io.Writer
	// StartTimeout bounds the handshake. Zero uses DefaultStartTimeout.
	StartTimeout time.Duration
}

// NewClient creates a real go-plugin client.
func (f *DefaultClientFactory) NewClient(execPath string, checksum []byte) PluginClient {
	logger := f.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	timeout := f.StartTimeout
	if timeout == 0 {
		timeout = DefaultStartTimeout
	}
	// New256 only fails for keys longer than 64 bytes.
	h, _ := blake2b.New256(nil) //nolint:errcheck // nil key

	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig:  modsdk.HandshakeConfig,
		Plugins:          modsdk.PluginMap(nil),
		Cmd:              exec.Command(execPath), // #nosec G204 -- execPath is a content-addressed blob verified by SecureConfig
		SecureConfig:     &hashiplug.SecureConfig{Checksum: checksum, Hash: h},
		AllowedProtocols: []hashiplug.Protocol{hashiplug.ProtocolGRPC},
		Logger:           logger,
		Stderr:           f.Stderr,
		StartTimeout:     timeout,
		SkipHostEnv:      true,
	})
}

// NewHCLogger returns an hclog logger for go-plugin diagnostics writing to w.
func NewHCLogger(w io.Writer, level string) hclog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       "modhost.native",
		Level:      hclog.LevelFromString(level),
		Output:     w,
		JSONFormat: true,
	})
}

// entryPoint is the host side of a plugin's start RPC.
type entryPoint interface {
	OnStart(ctx context.Context, env modsdk.Env, opts ...grpc.CallOption) error
}

// GoPluginLoader runs native mods as go-plugin child processes.
type GoPluginLoader struct {
	cache   *BlobCache
	factory ClientFactory
	backoff func() retry.Backoff
	logger  *slog.Logger

	mu      sync.Mutex
	modules map[mod.Identity]*pluginModule
	closed  bool
}

// GoPluginOption configures a GoPluginLoader.
type GoPluginOption func(*GoPluginLoader)

// WithClientFactory replaces the client factory (for testing).
func WithClientFactory(f ClientFactory) GoPluginOption {
	return func(l *GoPluginLoader) {
		if f != nil {
			l.factory = f
		}
	}
}

// WithConnectRetry sets how many times a plugin connection is attempted and
// the base delay of the exponential backoff between attempts.
func WithConnectRetry(attempts uint64, base time.Duration) GoPluginOption {
	return func(l *GoPluginLoader) {
		if attempts == 0 {
			attempts = 1
		}
		l.backoff = func() retry.Backoff {
			return retry.WithMaxRetries(attempts-1, retry.NewExponential(base))
		}
	}
}

// WithPluginLogger sets the logger.
func WithPluginLogger(logger *slog.Logger) GoPluginOption {
	return func(l *GoPluginLoader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewGoPluginLoader creates a loader that stages executables in cache.
// Panics if cache is nil.
func NewGoPluginLoader(cache *BlobCache, opts ...GoPluginOption) *GoPluginLoader {
	if cache == nil {
		panic("native: blob cache cannot be nil")
	}
	l := &GoPluginLoader{
		cache:   cache,
		factory: &DefaultClientFactory{},
		logger:  slog.Default(),
		modules: make(map[mod.Identity]*pluginModule),
	}
	WithConnectRetry(DefaultConnectAttempts, DefaultConnectBackoff)(l)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load implements Loader.
func (l *GoPluginLoader) Load(ctx context.Context, fileName string, data []byte) (Module, error) {
	id := mod.IdentityOf(data)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, mod.LoadError(fileName, ErrLoaderClosed)
	}
	if m, ok := l.modules[id]; ok {
		l.logger.Debug("module already loaded", "file", fileName, "identity", id.Short())
		NativeLoads.WithLabelValues(ResultDuplicate).Inc()
		return m, nil
	}

	if _, err := objectFormat(data); err != nil {
		return nil, mod.LoadError(fileName, err)
	}
	path, err := l.cache.Put(id, mod.NativePluginExtension, data)
	if err != nil {
		return nil, mod.LoadError(fileName, err)
	}
	checksum := blake2b.Sum256(data)

	var (
		client PluginClient
		ep     entryPoint
	)
	attempt := 0
	err = retry.Do(ctx, l.backoff(), func(_ context.Context) error {
		attempt++
		c := l.factory.NewClient(path, checksum[:])
		proto, err := c.Client()
		if err != nil {
			c.Kill()
			if errors.Is(err, hashiplug.ErrChecksumsDoNotMatch) {
				return err
			}
			l.logger.Debug("plugin connect failed", "file", fileName, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		raw, err := proto.Dispense(modsdk.PluginName)
		if err != nil {
			c.Kill()
			return err
		}
		e, ok := raw.(entryPoint)
		if !ok {
			c.Kill()
			return oops.In("native").Errorf("plugin dispensed %T, not a mod client", raw)
		}
		client, ep = c, e
		return nil
	})
	if err != nil {
		return nil, mod.LoadError(fileName, err)
	}

	m := &pluginModule{id: id, fileName: fileName, client: client, ep: ep}
	l.modules[id] = m
	NativeLoads.WithLabelValues(ResultLoaded).Inc()
	return m, nil
}

// Len returns the number of running plugin processes.
func (l *GoPluginLoader) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.modules)
}

// Close kills every plugin process. Further loads fail.
func (l *GoPluginLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, m := range l.modules {
		m.client.Kill()
		delete(l.modules, id)
	}
	l.closed = true
	return nil
}

// ErrLoaderClosed is returned by loads after Close.
var ErrLoaderClosed = errors.New("loader is closed")

type pluginModule struct {
	id       mod.Identity
	fileName string
	client   PluginClient
	ep       entryPoint
}

func (m *pluginModule) Identity() mod.Identity { return m.id }
func (m *pluginModule) FileName() string       { return m.fileName }

func (m *pluginModule) Start(ctx context.Context, env Env) (bool, error) {
	err := m.ep.OnStart(ctx, env)
	if modsdk.IsNoEntryPoint(err) {
		return false, nil
	}
	return true, err
}
