// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package modc

import (
	"sync"
	"time"
)

// DefaultDebounce is the window in which repeated events for one file are
// dropped.
const DefaultDebounce = 500 * time.Millisecond

// Debouncer drops an event when it names the same file as the previous
// accepted event and arrives within the window. Events for a different file
// always pass.
type Debouncer struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last time.Time
	name string
}

// NewDebouncer creates a debouncer. now may be nil.
func NewDebouncer(window time.Duration, now func() time.Time) *Debouncer {
	if now == nil {
		now = time.Now
	}
	return &Debouncer{window: window, now: now}
}

// Allow reports whether an event for name should be processed.
func (d *Debouncer) Allow(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := d.now()
	if name == d.name && t.Sub(d.last) < d.window {
		return false
	}
	d.last = t
	d.name = name
	return true
}
