// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package lifecycle

// State is how far a mod has progressed through the lifecycle.
type State string

// Lifecycle states in order. Failed is terminal for a package that could not
// be loaded.
const (
	StateDiscovered State = "discovered"
	StateLoaded     State = "loaded"
	StateActivated  State = "activated"
	StateRunning    State = "running"
	StateFailed     State = "failed"
)

// ModInfo describes a registered mod for presentation.
type ModInfo struct {
	Name        string `json:"name" yaml:"name"`
	Author      string `json:"author,omitempty" yaml:"author,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Icon        string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Kind        string `json:"kind" yaml:"kind"`
	Identity    string `json:"identity" yaml:"identity"`
	Dir         string `json:"dir" yaml:"dir"`
	State       State  `json:"state" yaml:"state"`
}
