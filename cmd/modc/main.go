// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

// Command modc compiles a native mod and rebuilds it whenever its sources
// change.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd := NewRootCmd()
	cmd.Version = version
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
