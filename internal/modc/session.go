// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package modc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Operator-facing messages.
const (
	MsgNoFolder   = "You need to specify the mod folder! Pass the mod source folder as the only argument."
	MsgNotFolder  = "You need to specify the mod folder, not a file! Pass the mod source folder as the only argument."
	MsgMissing    = "The mod folder does not exist."
	PromptName    = "Enter the name of the mod: "
	MsgReady      = "Ready! You can start making a mod"
	MsgChanged    = "Mod changed! compiling.."
	MsgStopping   = "Stopped watching."
	MsgNameNeeded = "The mod name cannot contain path separators."
)

// Session is one interactive run of the build tool.
type Session struct {
	In       io.Reader
	Out      io.Writer
	Logger   *slog.Logger
	Debounce time.Duration
	// Options are applied to the session's Builder.
	Options []BuilderOption
}

// Run validates args, prompts for the mod name, builds once and rebuilds on
// every source change until a line is read from In or ctx is done.
// Usage problems are reported on Out and are not errors.
func (s *Session) Run(ctx context.Context, args []string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if len(args) == 0 {
		fmt.Fprintln(s.Out, MsgNoFolder)
		return nil
	}
	dir := args[0]
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintln(s.Out, MsgMissing)
		return nil
	case err != nil:
		return err
	case !info.IsDir():
		fmt.Fprintln(s.Out, MsgNotFolder)
		return nil
	}

	in := bufio.NewReader(s.In)
	fmt.Fprint(s.Out, PromptName)
	name, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = filepath.Base(filepath.Clean(dir))
	}
	if strings.ContainsAny(name, `/\`) {
		fmt.Fprintln(s.Out, MsgNameNeeded)
		return nil
	}

	builder := NewBuilder(dir, name, s.Out, s.Options...)
	builder.Build(ctx)

	window := s.Debounce
	if window == 0 {
		window = DefaultDebounce
	}
	w, err := NewWatcher(dir, NewDebouncer(window, nil), logger)
	if err != nil {
		return err
	}
	defer w.Close() //nolint:errcheck // closed again below on the normal path

	fmt.Fprintln(s.Out, MsgReady)

	watchCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = w.Run(watchCtx, func(ctx context.Context, rel string) {
			logger.Debug("source changed", "file", rel)
			fmt.Fprintln(s.Out, MsgChanged)
			builder.Build(ctx)
		})
	}()

	enter := make(chan struct{})
	go func() {
		_, _ = in.ReadString('\n')
		close(enter)
	}()

	select {
	case <-enter:
	case <-ctx.Done():
	}
	cancel()
	wg.Wait()
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Fprintln(s.Out, MsgStopping)
	return nil
}
