// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package mod_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridforge/modhost/internal/mod"
)

func writeManifest(t *testing.T, dir, name string) {
	t.Helper()
	writeFile(t, filepath.Join(dir, mod.ManifestFile), []byte(`{"name":"`+name+`","author":"tester"}`))
}

func packageNames(pkgs []*mod.Package) []string {
	names := make([]string, len(pkgs))
	for i, p := range pkgs {
		names[i] = p.Name()
	}
	return names
}

func TestScanner_CreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "mods")

	s := mod.NewScanner(root)
	pkgs, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pkgs)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Scanning again with the directory in place is idempotent.
	_, err = s.Scan(context.Background())
	require.NoError(t, err)
}

func TestScanner_MissingManifestDoesNotStopSiblings(t *testing.T) {
	root := t.TempDir()

	// "a-broken" sorts first so the old abort-on-first-missing behavior would
	// have skipped every package after it.
	writeFile(t, filepath.Join(root, "a-broken", "main.lua"), []byte("x = 1"))

	writeManifest(t, filepath.Join(root, "b-script"), "B")
	writeFile(t, filepath.Join(root, "b-script", "main.lua"), []byte("x = 1"))

	writeFile(t, filepath.Join(root, "c-bad-json", mod.ManifestFile), []byte("{"))
	writeFile(t, filepath.Join(root, "c-bad-json", "main.lua"), []byte("x = 1"))

	writeManifest(t, filepath.Join(root, "d-native"), "D")
	writeFile(t, filepath.Join(root, "d-native", "d.plugin"), []byte("binary"))

	var logs bytes.Buffer
	s := mod.NewScanner(root, mod.WithScannerLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	pkgs, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "D"}, packageNames(pkgs))
	assert.Contains(t, logs.String(), "skipping mod without manifest")
	assert.Contains(t, logs.String(), "a-broken")
	assert.Contains(t, logs.String(), "skipping mod with invalid manifest")
}

func TestScanner_ClassifiesNative(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "foo")
	writeManifest(t, dir, "Foo")
	writeFile(t, filepath.Join(dir, "b.plugin"), []byte("second"))
	writeFile(t, filepath.Join(dir, "a.so"), []byte("first"))
	writeFile(t, filepath.Join(dir, "script.lua"), []byte("ignored"))

	pkgs, err := mod.NewScanner(root).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, pkgs, 1)

	pkg := pkgs[0]
	assert.Equal(t, mod.KindNative, pkg.Kind)
	assert.Equal(t, filepath.Join(dir, "a.so"), pkg.NativeFile, "first native file wins")
	assert.Empty(t, pkg.ScriptFiles)
	assert.Equal(t, dir, pkg.Dir)
}

func TestScanner_NativeIsNotRecursive(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "nested")
	writeManifest(t, dir, "Nested")
	writeFile(t, filepath.Join(dir, "bin", "mod.plugin"), []byte("binary"))

	pkgs, err := mod.NewScanner(root).Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pkgs, "native modules are only looked up at the package top level")
}

func TestScanner_ClassifiesScriptsRecursively(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "bar")
	writeManifest(t, dir, "Bar")
	writeFile(t, filepath.Join(dir, "main.lua"), []byte("x = 1"))
	writeFile(t, filepath.Join(dir, "lib", "util.lua"), []byte("y = 2"))
	writeFile(t, filepath.Join(dir, "lib", "notes.txt"), []byte("not a script"))

	pkgs, err := mod.NewScanner(root).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, pkgs, 1)

	pkg := pkgs[0]
	assert.Equal(t, mod.KindScript, pkg.Kind)
	assert.Equal(t, []string{
		filepath.Join(dir, "lib", "util.lua"),
		filepath.Join(dir, "main.lua"),
	}, pkg.ScriptFiles)
}

func TestScanner_SkipsInertPackages(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "inert"), "Inert")
	writeFile(t, filepath.Join(root, "inert", "readme.md"), []byte("nothing to load"))

	pkgs, err := mod.NewScanner(root).Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pkgs)
}

func TestScanner_SkipsFilesInRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "stray.lua"), []byte("x = 1"))

	pkgs, err := mod.NewScanner(root).Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pkgs)
}

func TestScanner_FollowsSymlinkedPackages(t *testing.T) {
	root := t.TempDir()
	elsewhere := filepath.Join(t.TempDir(), "bar-src")
	writeManifest(t, elsewhere, "Bar")
	writeFile(t, filepath.Join(elsewhere, "main.lua"), []byte("x = 1"))
	require.NoError(t, os.Symlink(elsewhere, filepath.Join(root, "bar")))

	// A symlink to a file is still not a package.
	stray := filepath.Join(t.TempDir(), "stray.lua")
	writeFile(t, stray, []byte("x = 1"))
	require.NoError(t, os.Symlink(stray, filepath.Join(root, "stray")))
	require.NoError(t, os.Symlink(filepath.Join(root, "missing"), filepath.Join(root, "dangling")))

	pkgs, err := mod.NewScanner(root).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "Bar", pkgs[0].Name())
	assert.Equal(t, mod.KindScript, pkgs[0].Kind)
	assert.Equal(t, []string{filepath.Join(root, "bar", "main.lua")}, pkgs[0].ScriptFiles)
}

func TestScanner_CustomExtensions(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "custom")
	writeManifest(t, dir, "Custom")
	writeFile(t, filepath.Join(dir, "mod.plugin"), []byte("not native here"))
	writeFile(t, filepath.Join(dir, "main.luau"), []byte("x = 1"))

	s := mod.NewScanner(root,
		mod.WithNativeExtensions(".dll"),
		mod.WithScriptExtension(".luau"),
	)
	pkgs, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, mod.KindScript, pkgs[0].Kind)
	assert.Equal(t, []string{filepath.Join(dir, "main.luau")}, pkgs[0].ScriptFiles)
}

func TestScanner_NativeExtensionIsCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "upper")
	writeManifest(t, dir, "Upper")
	writeFile(t, filepath.Join(dir, "MOD.PLUGIN"), []byte("binary"))

	pkgs, err := mod.NewScanner(root).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, mod.KindNative, pkgs[0].Kind)
}

func TestScanner_CancelledContext(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "a"), "A")
	writeFile(t, filepath.Join(root, "a", "main.lua"), []byte("x = 1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mod.NewScanner(root).Scan(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanner_ScanPackage(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "Single")
	writeFile(t, filepath.Join(dir, "main.lua"), []byte("x = 1"))

	pkg, err := mod.NewScanner(filepath.Dir(dir)).ScanPackage(dir)
	require.NoError(t, err)
	require.NotNil(t, pkg)
	assert.Equal(t, "Single", pkg.Name())
	assert.Equal(t, mod.KindScript, pkg.Kind)
}
