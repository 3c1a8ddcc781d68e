// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package mod

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samber/oops"
)

// Default file extensions used to classify packages.
const (
	DefaultScriptExtension = ".lua"
	NativePluginExtension  = ".plugin"
	NativeSharedExtension  = ".so"
)

// Package is a discovered mod package ready to be loaded.
type Package struct {
	Dir        string
	Descriptor Descriptor
	Kind       Kind
	// NativeFile is set for native packages.
	NativeFile string
	// ScriptFiles is set for scripted packages, in lexical order.
	ScriptFiles []string
}

// Name returns the manifest name of the package.
func (p *Package) Name() string {
	return p.Descriptor.Name
}

// Scanner enumerates mod packages under a root directory.
type Scanner struct {
	root       string
	nativeExts map[string]struct{}
	scriptExt  string
	logger     *slog.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithNativeExtensions replaces the set of extensions classified as native
// modules. Extensions include the leading dot.
func WithNativeExtensions(exts ...string) ScannerOption {
	return func(s *Scanner) {
		s.nativeExts = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			s.nativeExts[strings.ToLower(ext)] = struct{}{}
		}
	}
}

// WithScriptExtension sets the extension classified as script source.
func WithScriptExtension(ext string) ScannerOption {
	return func(s *Scanner) {
		s.scriptExt = ext
	}
}

// WithScannerLogger sets the logger used for skipped packages.
func WithScannerLogger(l *slog.Logger) ScannerOption {
	return func(s *Scanner) {
		s.logger = l
	}
}

// NewScanner creates a scanner rooted at the mods directory.
func NewScanner(root string, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		root:      root,
		scriptExt: DefaultScriptExtension,
		logger:    slog.Default(),
	}
	WithNativeExtensions(NativePluginExtension, NativeSharedExtension)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the mods directory.
func (s *Scanner) Root() string {
	return s.root
}

// Scan creates the root directory if needed and returns every loadable
// package in lexical directory order. Packages with a missing or malformed
// manifest, and packages with nothing to load, are logged and skipped; they
// never stop the scan of their siblings.
func (s *Scanner) Scan(ctx context.Context) ([]*Package, error) {
	if err := os.MkdirAll(s.root, 0o750); err != nil {
		return nil, oops.In("scanner").With("root", s.root).Hint("failed to create mods directory").Wrap(err)
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, oops.In("scanner").With("root", s.root).Hint("failed to read mods directory").Wrap(err)
	}

	var packages []*Package
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return packages, oops.In("scanner").Wrap(err)
		}
		dir := filepath.Join(s.root, entry.Name())
		if !isDir(entry, dir) {
			continue
		}

		pkg, err := s.ScanPackage(dir)
		if err != nil {
			switch {
			case errors.Is(err, ErrManifestMissing):
				s.logger.Warn("skipping mod without manifest", "dir", entry.Name(), "error", err)
			case errors.Is(err, ErrManifestMalformed):
				s.logger.Warn("skipping mod with invalid manifest", "dir", entry.Name(), "error", err)
			default:
				s.logger.Warn("skipping unreadable mod", "dir", entry.Name(), "error", err)
			}
			continue
		}
		if pkg == nil {
			s.logger.Debug("skipping mod with no native module or scripts", "dir", entry.Name())
			continue
		}
		packages = append(packages, pkg)
	}

	return packages, nil
}

// isDir reports whether entry is a directory, following a symlink.
func isDir(entry fs.DirEntry, path string) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ScanPackage reads and classifies a single package directory. It returns
// (nil, nil) for an inert package that has a manifest but nothing to load.
func (s *Scanner) ScanPackage(dir string) (*Package, error) {
	desc, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	pkg := &Package{Dir: dir, Descriptor: desc}

	native, err := s.findNative(dir)
	if err != nil {
		return nil, err
	}
	if native != "" {
		pkg.Kind = KindNative
		pkg.NativeFile = native
		return pkg, nil
	}

	scripts, err := s.findScripts(dir)
	if err != nil {
		return nil, err
	}
	if len(scripts) > 0 {
		pkg.Kind = KindScript
		pkg.ScriptFiles = scripts
		return pkg, nil
	}

	return nil, nil
}

// findNative returns the first file in dir (not recursive) with a native
// extension. Later matches are ignored.
func (s *Scanner) findNative(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", oops.In("scanner").With("dir", dir).Wrap(err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := s.nativeExts[ext]; ok {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", nil
}

// findScripts returns every file under dir with the script extension.
func (s *Scanner) findScripts(dir string) ([]string, error) {
	if s.scriptExt == "" {
		return nil, nil
	}
	matches, err := doublestar.Glob(os.DirFS(dir), "**/*"+s.scriptExt, doublestar.WithFilesOnly())
	if err != nil {
		return nil, oops.In("scanner").With("dir", dir).With("extension", s.scriptExt).Wrap(err)
	}
	sort.Strings(matches)

	scripts := make([]string, len(matches))
	for i, m := range matches {
		scripts[i] = filepath.Join(dir, filepath.FromSlash(m))
	}
	return scripts, nil
}
