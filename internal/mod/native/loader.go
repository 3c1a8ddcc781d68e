// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

// Package native loads compiled mods. Two backends exist: out-of-process
// executables driven over go-plugin (.plugin) and in-process Go plugins
// (.so). A Router picks one by file extension.
package native

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/samber/oops"

	"github.com/gridforge/modhost/internal/mod"
	"github.com/gridforge/modhost/pkg/modsdk"
)

// Env is what a native mod receives when it starts.
type Env = modsdk.Env

// Module is loaded native code.
type Module interface {
	// Identity is the content digest of the module bytes.
	Identity() mod.Identity
	// FileName is the file the module was loaded from.
	FileName() string
	// Start runs the well-known entry point. started is false when the
	// module has none, which is not an error.
	Start(ctx context.Context, env Env) (started bool, err error)
}

// Loader turns module bytes into a Module. Loading identical bytes twice
// returns the first Module.
type Loader interface {
	Load(ctx context.Context, fileName string, data []byte) (Module, error)
}

// Router dispatches to a Loader by lower-cased file extension.
type Router struct {
	loaders map[string]Loader
}

// NewRouter creates a router from extension -> loader. Extensions include
// the leading dot.
func NewRouter(loaders map[string]Loader) *Router {
	r := &Router{loaders: make(map[string]Loader, len(loaders))}
	for ext, l := range loaders {
		r.loaders[strings.ToLower(ext)] = l
	}
	return r
}

// Load implements Loader.
func (r *Router) Load(ctx context.Context, fileName string, data []byte) (Module, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	l, ok := r.loaders[ext]
	if !ok {
		return nil, mod.LoadError(fileName, oops.In("native").With("extension", ext).Errorf("no loader for extension"))
	}
	return l.Load(ctx, fileName, data)
}

// Extensions returns the routed extensions.
func (r *Router) Extensions() []string {
	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	return exts
}

// Close closes every loader that holds resources.
func (r *Router) Close() error {
	var errs []error
	for _, l := range r.loaders {
		if c, ok := l.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return oops.In("native").Join(errs...)
	}
	return nil
}
