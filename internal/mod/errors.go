// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package mod

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Error codes for mod discovery, loading and lifecycle failures.
const (
	CodeManifestMissing   = "MANIFEST_MISSING"
	CodeManifestMalformed = "MANIFEST_MALFORMED"
	CodeLoadFailed        = "LOAD_FAILED"
	CodeScriptLoadFailed  = "SCRIPT_LOAD_FAILED"
	CodeActivationFailed  = "ACTIVATION_FAILED"
	CodeTickFailed        = "TICK_FAILED"
)

// Sentinel errors for programmatic error checking with errors.Is.
var (
	ErrManifestMissing   = errors.New("manifest missing")
	ErrManifestMalformed = errors.New("manifest malformed")
	ErrLoad              = errors.New("module load failed")
	ErrScriptLoad        = errors.New("script load failed")
	ErrActivation        = errors.New("activation failed")
	ErrTick              = errors.New("tick failed")
)

// withSentinel wraps cause so that errors.Is matches both the sentinel and the cause.
func withSentinel(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// ManifestMissingError reports a package directory without config.json.
func ManifestMissingError(dir string, cause error) error {
	return oops.In("manifest").
		Code(CodeManifestMissing).
		With("dir", dir).
		Wrap(withSentinel(ErrManifestMissing, cause))
}

// ManifestMalformedError reports a manifest that failed to parse or validate.
func ManifestMalformedError(dir string, cause error) error {
	return oops.In("manifest").
		Code(CodeManifestMalformed).
		With("dir", dir).
		Hint("config.json must be a JSON object with name, description, iconPath and author").
		Wrap(withSentinel(ErrManifestMalformed, cause))
}

// LoadError reports a native module whose content could not be loaded.
func LoadError(file string, cause error) error {
	return oops.In("native").
		Code(CodeLoadFailed).
		With("file", file).
		Wrap(withSentinel(ErrLoad, cause))
}

// ScriptLoadError reports a script unit that could not be read, parsed or
// executed at load time.
func ScriptLoadError(path string, cause error) error {
	return oops.In("script").
		Code(CodeScriptLoadFailed).
		With("path", path).
		Wrap(withSentinel(ErrScriptLoad, cause))
}

// ActivationError reports a failure raised by a mod while activating.
func ActivationError(name string, cause error) error {
	return oops.In("lifecycle").
		Code(CodeActivationFailed).
		With("mod", name).
		Wrap(withSentinel(ErrActivation, cause))
}

// TickError reports a failure raised by a mod during a tick.
func TickError(name string, cause error) error {
	return oops.In("lifecycle").
		Code(CodeTickFailed).
		With("mod", name).
		Wrap(withSentinel(ErrTick, cause))
}
