// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package modc

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Bell rings the terminal bell.
const Bell = "\a"

// Styles renders builder output.
type Styles struct {
	Error   lipgloss.Style
	Success lipgloss.Style
	Info    lipgloss.Style
}

// DefaultStyles colours errors red and successes green.
func DefaultStyles() Styles {
	return Styles{
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Info:    lipgloss.NewStyle().Faint(true),
	}
}

// PlainStyles renders text unchanged.
func PlainStyles() Styles {
	return Styles{Error: lipgloss.NewStyle(), Success: lipgloss.NewStyle(), Info: lipgloss.NewStyle()}
}

// Result is the outcome of one build.
type Result struct {
	// Skipped is set when the folder has no Go sources.
	Skipped     bool
	OK          bool
	Output      string
	Diagnostics []Diagnostic
	Duration    time.Duration
}

// Builder type-checks and compiles one mod folder.
type Builder struct {
	dir      string
	name     string
	mode     Mode
	checker  Checker
	compiler Compiler
	out      io.Writer
	styles   Styles
	now      func() time.Time
	ready    func() retry.Backoff

	mu sync.Mutex
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithChecker replaces the type checker. Nil disables checking.
func WithChecker(c Checker) BuilderOption { return func(b *Builder) { b.checker = c } }

// WithCompiler replaces the compiler.
func WithCompiler(c Compiler) BuilderOption {
	return func(b *Builder) {
		if c != nil {
			b.compiler = c
		}
	}
}

// WithMode selects the output kind.
func WithMode(m Mode) BuilderOption { return func(b *Builder) { b.mode = m } }

// WithStyles sets output styles.
func WithStyles(s Styles) BuilderOption { return func(b *Builder) { b.styles = s } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) BuilderOption { return func(b *Builder) { b.now = now } }

// NewBuilder creates a builder writing name+extension into dir and reporting
// to out.
func NewBuilder(dir, name string, out io.Writer, opts ...BuilderOption) *Builder {
	b := &Builder{
		dir:      dir,
		name:     name,
		mode:     ModePlugin,
		checker:  PackagesChecker{},
		compiler: GoCompiler{},
		out:      out,
		styles:   DefaultStyles(),
		now:      time.Now,
		ready: func() retry.Backoff {
			return retry.WithMaxDuration(2*time.Second, retry.NewConstant(50*time.Millisecond))
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Output is the module path the builder writes.
func (b *Builder) Output() string {
	return filepath.Join(b.dir, b.name+b.mode.Extension())
}

// Build runs one check and compile and reports the outcome to out.
// Concurrent calls are serialized.
func (b *Builder) Build(ctx context.Context) Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := b.now()
	res := b.build(ctx)
	res.Duration = b.now().Sub(start)
	b.report(res)
	return res
}

func (b *Builder) build(ctx context.Context) Result {
	files, err := sources(b.dir)
	if err != nil {
		return Result{Output: err.Error()}
	}
	if len(files) == 0 {
		return Result{Skipped: true}
	}
	if err := b.waitReady(ctx, files); err != nil {
		return Result{Output: err.Error()}
	}

	if b.checker != nil {
		diags, err := b.checker.Check(ctx, b.dir)
		if err != nil {
			return Result{Output: err.Error()}
		}
		if len(diags) > 0 {
			return Result{Diagnostics: diags}
		}
	}

	out, err := b.compiler.Compile(ctx, b.dir, b.Output(), b.mode)
	if err != nil {
		diags := ParseBuildOutput(b.dir, out)
		text := strings.TrimSpace(string(out))
		if text == "" {
			text = err.Error()
		}
		return Result{Diagnostics: diags, Output: text}
	}
	return Result{OK: true, Output: strings.TrimSpace(string(out))}
}

// waitReady waits until every source file is non-empty, since editors
// often truncate before writing.
func (b *Builder) waitReady(ctx context.Context, files []string) error {
	return retry.Do(ctx, b.ready(), func(_ context.Context) error {
		for _, f := range files {
			info, err := os.Stat(f)
			if err != nil || info.Size() == 0 {
				return retry.RetryableError(oops.In("modc").With("file", f).Errorf("source file not ready"))
			}
		}
		return nil
	})
}

func (b *Builder) report(res Result) {
	switch {
	case res.Skipped:
		return
	case res.OK:
		fmt.Fprint(b.out, Bell)
		fmt.Fprintln(b.out, b.styles.Success.Render("Mod compilation completed successfully "+b.now().Format("15:04:05")))
	default:
		fmt.Fprintln(b.out, b.styles.Error.Render("Compilation error:"))
		if len(res.Diagnostics) == 0 {
			fmt.Fprintln(b.out, res.Output)
			return
		}
		for _, d := range res.Diagnostics {
			fmt.Fprintln(b.out, d.String())
		}
	}
}

// sources lists the Go files directly inside dir.
func sources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, oops.In("modc").With("dir", dir).Wrap(err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !isSource(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

func isSource(name string) bool {
	return strings.HasSuffix(name, ".go") && !strings.HasSuffix(name, "_test.go")
}
