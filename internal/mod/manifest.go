// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

// Package mod provides mod discovery, manifest parsing, identity and the
// registry of loaded mods.
package mod

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ManifestFile is the file name of the manifest every mod package carries.
const ManifestFile = "config.json"

// Descriptor is the parsed manifest of a mod package.
type Descriptor struct {
	Name        string `json:"name" jsonschema:"minLength=1,description=Display name of the mod"`
	Description string `json:"description,omitempty" jsonschema:"description=Short description shown in the mod list"`
	IconPath    string `json:"iconPath,omitempty" jsonschema:"description=Icon file relative to the package directory"`
	Author      string `json:"author,omitempty" jsonschema:"description=Author shown in the mod list"`
}

// ReadManifest reads and validates config.json from a package directory.
func ReadManifest(dir string) (Descriptor, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Descriptor{}, ManifestMissingError(dir, err)
		}
		return Descriptor{}, ManifestMalformedError(dir, err)
	}

	d, err := ParseManifest(data)
	if err != nil {
		return Descriptor{}, ManifestMalformedError(dir, err)
	}
	return d, nil
}

// ParseManifest parses and validates manifest bytes.
func ParseManifest(data []byte) (Descriptor, error) {
	if len(data) == 0 {
		return Descriptor{}, fmt.Errorf("manifest data is empty")
	}

	if err := ValidateSchema(data); err != nil {
		return Descriptor{}, err
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("invalid JSON: %w", err)
	}

	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// Validate checks constraints the schema cannot express.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if d.IconPath != "" && !filepath.IsLocal(filepath.FromSlash(d.IconPath)) {
		return fmt.Errorf("iconPath %q must be relative to the package directory", d.IconPath)
	}
	return nil
}

// ResolveIcon returns the icon path joined to the package directory, or ""
// when the manifest names no icon.
func (d Descriptor) ResolveIcon(dir string) string {
	if d.IconPath == "" {
		return ""
	}
	return filepath.Join(dir, filepath.FromSlash(d.IconPath))
}
