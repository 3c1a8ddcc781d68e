// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

// Package resource records assets that mods load from their package
// directories. Decoding for presentation belongs to the embedding
// application; the catalog only identifies and measures what it is handed.
package resource

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ErrUnsupported is returned for content that is neither an image nor audio.
var ErrUnsupported = errors.New("unsupported resource type")

// Kind classifies a loaded resource.
type Kind string

// Resource kinds.
const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// Resource describes one loaded asset.
type Resource struct {
	ID          ulid.ULID
	Mod         string
	Path        string
	Kind        Kind
	ContentType string
	Size        int
	// Width and Height are set for images.
	Width  int
	Height int
}

// Loader is the collaborator that turns raw asset bytes into host resources.
type Loader interface {
	LoadImage(ctx context.Context, mod, path string, data []byte) (Resource, error)
	LoadAudio(ctx context.Context, mod, path string, data []byte) (Resource, error)
}

var audioExtensions = map[string]string{
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
}

// Load sniffs data and routes it to the image or audio loader.
func Load(ctx context.Context, l Loader, mod, path string, data []byte) (Resource, error) {
	ct := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return l.LoadImage(ctx, mod, path, data)
	case strings.HasPrefix(ct, "audio/"), strings.HasPrefix(ct, "application/ogg"):
		return l.LoadAudio(ctx, mod, path, data)
	}
	if _, ok := audioExtensions[strings.ToLower(filepath.Ext(path))]; ok {
		return l.LoadAudio(ctx, mod, path, data)
	}
	return Resource{}, oops.In("resource").
		With("mod", mod).
		With("path", path).
		With("content_type", ct).
		Wrap(ErrUnsupported)
}

// Catalog is the default Loader. It keeps every resource it has accepted,
// keyed by ULID handle.
type Catalog struct {
	mu        sync.RWMutex
	resources map[ulid.ULID]Resource
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{resources: make(map[ulid.ULID]Resource)}
}

// LoadImage decodes the image header and records its dimensions.
func (c *Catalog) LoadImage(ctx context.Context, mod, path string, data []byte) (Resource, error) {
	if err := ctx.Err(); err != nil {
		return Resource{}, err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Resource{}, oops.In("resource").With("mod", mod).With("path", path).Hint("not a decodable image").Wrap(err)
	}
	return c.add(Resource{
		Mod:         mod,
		Path:        path,
		Kind:        KindImage,
		ContentType: "image/" + format,
		Size:        len(data),
		Width:       cfg.Width,
		Height:      cfg.Height,
	}), nil
}

// LoadAudio records an audio asset by content type.
func (c *Catalog) LoadAudio(ctx context.Context, mod, path string, data []byte) (Resource, error) {
	if err := ctx.Err(); err != nil {
		return Resource{}, err
	}
	if len(data) == 0 {
		return Resource{}, oops.In("resource").With("mod", mod).With("path", path).Errorf("empty audio file")
	}
	ct := http.DetectContentType(data)
	if !strings.HasPrefix(ct, "audio/") && ct != "application/ogg" {
		if byExt, ok := audioExtensions[strings.ToLower(filepath.Ext(path))]; ok {
			ct = byExt
		}
	}
	return c.add(Resource{
		Mod:         mod,
		Path:        path,
		Kind:        KindAudio,
		ContentType: ct,
		Size:        len(data),
	}), nil
}

func (c *Catalog) add(r Resource) Resource {
	r.ID = ulid.Make()
	c.mu.Lock()
	c.resources[r.ID] = r
	c.mu.Unlock()
	return r
}

// Get returns the resource with the given handle.
func (c *Catalog) Get(id ulid.ULID) (Resource, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.resources[id]
	return r, ok
}

// ByMod returns every resource loaded by mod, oldest first.
func (c *Catalog) ByMod(mod string) []Resource {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Resource
	for _, r := range c.resources {
		if r.Mod == mod {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	return out
}

// Forget drops every resource owned by mod and returns how many were removed.
func (c *Catalog) Forget(mod string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for id, r := range c.resources {
		if r.Mod == mod {
			delete(c.resources, id)
			n++
		}
	}
	return n
}

// Len returns the number of resources held.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.resources)
}

// Mods returns the names of mods that own at least one resource, sorted.
func (c *Catalog) Mods() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, r := range c.resources {
		if !seen[r.Mod] {
			seen[r.Mod] = true
			out = append(out, r.Mod)
		}
	}
	sort.Strings(out)
	return out
}
