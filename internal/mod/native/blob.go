// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package native

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/gridforge/modhost/internal/mod"
)

// BlobCache stores module bytes under their identity so backends that need
// a file path run exactly the content that was identified.
type BlobCache struct {
	dir string
}

// NewBlobCache creates the cache directory if needed.
func NewBlobCache(dir string) (*BlobCache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, oops.In("native").With("dir", dir).Hint("failed to create module cache").Wrap(err)
	}
	return &BlobCache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *BlobCache) Dir() string { return c.dir }

// Path returns where the blob for id with extension ext lives.
func (c *BlobCache) Path(id mod.Identity, ext string) string {
	return filepath.Join(c.dir, string(id)+ext)
}

// Put writes data as an executable blob and returns its path. An existing
// blob of the same size is reused; blobs are named by digest so equal names
// mean equal content.
func (c *BlobCache) Put(id mod.Identity, ext string, data []byte) (string, error) {
	path := c.Path(id, ext)
	if info, err := os.Stat(path); err == nil && info.Size() == int64(len(data)) {
		return path, nil
	}

	tmp, err := os.CreateTemp(c.dir, ".blob-*")
	if err != nil {
		return "", oops.In("native").With("dir", c.dir).Wrap(err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", oops.In("native").With("path", tmpName).Wrap(err)
	}
	if err := tmp.Chmod(0o700); err != nil {
		_ = tmp.Close()
		return "", oops.In("native").With("path", tmpName).Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return "", oops.In("native").With("path", tmpName).Wrap(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", oops.In("native").With("path", path).Wrap(err)
	}
	return path, nil
}
