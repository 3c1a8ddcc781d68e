// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package lifecycle_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/gridforge/modhost/internal/lifecycle"
	"github.com/gridforge/modhost/internal/mod"
	"github.com/gridforge/modhost/internal/mod/capability"
	"github.com/gridforge/modhost/internal/mod/hostapi"
	"github.com/gridforge/modhost/internal/mod/native"
	"github.com/gridforge/modhost/internal/mod/script"
	"github.com/gridforge/modhost/internal/scene"
	"github.com/gridforge/modhost/internal/store"
)

// symbolTable stands in for an opened shared object.
type symbolTable map[string]plugin.Symbol

func (s symbolTable) Lookup(name string) (plugin.Symbol, error) {
	if sym, ok := s[name]; ok {
		return sym, nil
	}
	return nil, fmt.Errorf("plugin: symbol %s not found in plugin test", name)
}

func writeTree(root string, files map[string]string) {
	for rel, content := range files {
		path := filepath.Join(root, rel)
		Expect(os.MkdirAll(filepath.Dir(path), 0o750)).To(Succeed())
		Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
	}
}

const barMain = `
count = 0
function update()
  count = count + 1
  kv_set("count", tostring(count))
end
`

const barColor = `
function start()
  set_color("Square", "blue")
  log("info", "square recoloured")
end
`

var _ = Describe("Mod lifecycle", func() {
	var (
		ctx        context.Context
		root       string
		sc         *scene.Store
		kv         *store.MemoryKV
		logs       *bytes.Buffer
		dispatcher *lifecycle.Dispatcher
		fooDirs    []string
		fooErr     error
	)

	BeforeEach(func() {
		ctx = context.Background()
		root = GinkgoT().TempDir()
		logs = &bytes.Buffer{}
		fooDirs = nil
		fooErr = nil

		var err error
		sc, err = scene.NewStore(map[string]string{"Square": "white"})
		Expect(err).NotTo(HaveOccurred())
		kv = store.NewMemoryKV()

		writeTree(root, map[string]string{
			"foo/config.json":     `{"name":"Foo","author":"modhost"}`,
			"foo/foo.so":          "\x7fELF foo module",
			"foocopy/config.json": `{"name":"FooCopy"}`,
			"foocopy/copy.so":     "\x7fELF foo module",
			"bar/config.json":     `{"name":"Bar","description":"two scripts"}`,
			"bar/main.lua":        barMain,
			"bar/lib/color.lua":   barColor,
			"broken/config.json":  `{"name":"Broken"}`,
			"broken/main.lua":     `function start( end`,
			"orphan/main.lua":     `x = 1`,
		})

		logger := slog.New(slog.NewTextHandler(logs, nil))

		enforcer, err := capability.NewEnforcer("**")
		Expect(err).NotTo(HaveOccurred())
		surface := hostapi.New(enforcer,
			hostapi.WithScene(sc),
			hostapi.WithKV(kv),
			hostapi.WithLogger(logger),
		)

		cache, err := native.NewBlobCache(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		so := native.NewSharedObjectLoader(cache, native.WithOpener(func(string) (native.Symbols, error) {
			return symbolTable{native.EntrySymbol: func(dir string) error {
				fooDirs = append(fooDirs, dir)
				if err := sc.SetColor("Square", "red"); err != nil {
					return err
				}
				return fooErr
			}}, nil
		}))

		dispatcher = lifecycle.New(
			mod.NewScanner(root, mod.WithScannerLogger(logger)),
			mod.NewRegistry(),
			lifecycle.WithLogger(logger),
			lifecycle.WithLoader(mod.KindNative, native.NewHost(so, native.WithLogger(logger))),
			lifecycle.WithLoader(mod.KindScript, script.NewHost(surface, script.WithLogger(logger))),
			lifecycle.WithReset(func(context.Context) { sc.Reset() }),
		)
	})

	AfterEach(func() {
		dispatcher.Shutdown(ctx)
	})

	count := func() string {
		v, err := kv.Get(ctx, "Bar", "count")
		Expect(err).NotTo(HaveOccurred())
		return string(v)
	}

	It("loads Foo once and activates it before Bar", func() {
		Expect(dispatcher.Start(ctx)).To(Succeed())

		natives, scripts := dispatcher.Registry().Len()
		Expect(natives).To(Equal(1), "Foo and FooCopy share content")
		Expect(scripts).To(Equal(1))
		bar, ok := dispatcher.Registry().Scripts()[0].(*script.Mod)
		Expect(ok).To(BeTrue())
		Expect(bar.Name()).To(Equal("Bar"))
		Expect(bar.Units()).To(HaveLen(2))
		Expect(bar.HasUpdate()).To(BeTrue())
		Expect(fooDirs).To(ConsistOf(filepath.Join(root, "foo")))

		// Foo paints red, then Bar's start paints blue.
		Expect(sc.Color("Square")).To(Equal("#0000ff"))
		Expect(logs.String()).To(ContainSubstring("square recoloured"))
		Expect(logs.String()).To(ContainSubstring("skipping mod without manifest"))
		Expect(logs.String()).To(ContainSubstring("failed to load mod"))

		state, ok := dispatcher.State(filepath.Join(root, "broken"))
		Expect(ok).To(BeTrue())
		Expect(state).To(Equal(lifecycle.StateFailed))
		state, _ = dispatcher.State(filepath.Join(root, "foo"))
		Expect(state).To(Equal(lifecycle.StateActivated))
		_, ok = dispatcher.State(filepath.Join(root, "foocopy"))
		Expect(ok).To(BeFalse())
	})

	It("ticks Bar's update every tick", func() {
		Expect(dispatcher.Start(ctx)).To(Succeed())
		for range 3 {
			Expect(dispatcher.Tick(ctx)).To(Succeed())
		}
		Expect(count()).To(Equal("3"))

		state, _ := dispatcher.State(filepath.Join(root, "bar"))
		Expect(state).To(Equal(lifecycle.StateRunning))
	})

	It("keeps going when Foo's entry point fails", func() {
		fooErr = errors.New("texture missing")
		Expect(dispatcher.Start(ctx)).To(Succeed())

		Expect(logs.String()).To(ContainSubstring("native mod entry point failed"))
		Expect(logs.String()).To(ContainSubstring("foo.so"))
		state, _ := dispatcher.State(filepath.Join(root, "bar"))
		Expect(state).To(Equal(lifecycle.StateActivated))
		Expect(sc.Color("Square")).To(Equal("#0000ff"))
	})

	It("rebuilds Bar from scratch on reload", func() {
		Expect(dispatcher.Start(ctx)).To(Succeed())
		for range 5 {
			Expect(dispatcher.Tick(ctx)).To(Succeed())
		}
		Expect(count()).To(Equal("5"))

		Expect(dispatcher.Reload(ctx)).To(Succeed())
		Expect(dispatcher.Tick(ctx)).To(Succeed())

		Expect(count()).To(Equal("1"), "the interpreter context did not carry over")
		Expect(fooDirs).To(HaveLen(1), "Foo is not started again")
		Expect(logs.String()).To(ContainSubstring("reload completed"))
	})

	It("picks up script edits on reload", func() {
		Expect(dispatcher.Start(ctx)).To(Succeed())

		writeTree(root, map[string]string{
			"bar/lib/color.lua": `function start() set_color("Square", "green") end`,
		})
		Expect(dispatcher.Reload(ctx)).To(Succeed())

		Expect(sc.Color("Square")).To(Equal("#00ff00"))
	})

	It("resets the scene before rebuilding scripts", func() {
		Expect(dispatcher.Start(ctx)).To(Succeed())
		Expect(sc.Color("Square")).To(Equal("#0000ff"))

		writeTree(root, map[string]string{
			"bar/lib/color.lua": `x = 1`,
		})
		Expect(dispatcher.Reload(ctx)).To(Succeed())

		Expect(sc.Color("Square")).To(Equal("#ffffff"), "colours set by discarded contexts are gone")
	})
})
