// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package mod

import (
	"context"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Kind identifies how a mod's code is loaded.
type Kind string

// Mod kinds supported by the host.
const (
	KindNative Kind = "native"
	KindScript Kind = "script"
)

// Identity is the deduplication key of a loaded mod. Native modules are
// identified by a digest of their content, scripted mods by source path.
type Identity string

// IdentityOf returns the content identity of a native module.
func IdentityOf(data []byte) Identity {
	sum := blake2b.Sum256(data)
	return Identity(hex.EncodeToString(sum[:]))
}

// Short returns an abbreviated identity suitable for log lines.
func (id Identity) Short() string {
	if len(id) > 12 {
		return string(id[:12])
	}
	return string(id)
}

// Mod is a loaded mod of either kind.
type Mod interface {
	// Name returns the display name from the manifest.
	Name() string
	// Identity returns the mod's deduplication key.
	Identity() Identity
	// Kind reports whether the mod is native or scripted.
	Kind() Kind
	// Dir returns the package directory.
	Dir() string
	// Descriptor returns the parsed manifest.
	Descriptor() Descriptor
}

// Activatable is implemented by mods with startup behavior. Activate runs
// exactly once after every mod has been loaded.
type Activatable interface {
	Activate(ctx context.Context) error
}

// Tickable is implemented by mods that run every host tick.
type Tickable interface {
	Tick(ctx context.Context) error
}

// Closer is implemented by mods that hold resources released on reload or
// shutdown.
type Closer interface {
	Close() error
}
