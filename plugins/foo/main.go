// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

// Package main is an example native mod served over go-plugin.
//
// Build it into its own folder so modhost picks it up:
//
//	modc plugins/foo   # answers "foo" at the prompt
//	go build -o plugins/foo/foo.plugin ./plugins/foo
//
// On start it logs its greeting file, if the folder has one.
package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/gridforge/modhost/pkg/modsdk"
)

// go-plugin forwards JSON hclog lines written to stderr into the host log.
var logger = hclog.New(&hclog.LoggerOptions{
	Name:       "foo",
	Output:     os.Stderr,
	JSONFormat: true,
})

type foo struct{}

func (foo) OnStart(_ context.Context, env modsdk.Env) error {
	data, err := os.ReadFile(filepath.Join(env.Dir, "greeting.txt"))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("foo started", "dir", env.Dir)
		return nil
	case err != nil:
		return err
	}
	logger.Info(strings.TrimSpace(string(data)), "dir", env.Dir)
	return nil
}

func main() {
	modsdk.Serve(foo{})
}
