// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridforge/modhost/pkg/errutil"
)

type fakeMigrator struct {
	up, down, closed bool
	version          uint
	dirty            bool
	pending          []uint
	err              error
}

func (f *fakeMigrator) Up() error   { f.up = true; return f.err }
func (f *fakeMigrator) Down() error { f.down = true; return f.err }
func (f *fakeMigrator) Version() (uint, bool, error) {
	return f.version, f.dirty, f.err
}
func (f *fakeMigrator) Pending() ([]uint, error) { return f.pending, f.err }
func (f *fakeMigrator) Close() error            { f.closed = true; return nil }

func withFakeMigrator(t *testing.T, f *fakeMigrator) *string {
	t.Helper()
	var gotURL string
	orig := newMigrator
	newMigrator = func(url string) (migrator, error) {
		gotURL = url
		return f, nil
	}
	t.Cleanup(func() { newMigrator = orig })
	return &gotURL
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	_, _, err := execute(t, "migrate", "up")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestMigrate_Up(t *testing.T) {
	f := &fakeMigrator{}
	url := withFakeMigrator(t, f)

	out, _, err := execute(t, "migrate", "up", "--database-url", "postgres://localhost/mods")
	require.NoError(t, err)
	assert.True(t, f.up)
	assert.True(t, f.closed)
	assert.Equal(t, "postgres://localhost/mods", *url)
	assert.Contains(t, out, "Migrations completed successfully")
}

func TestMigrate_Down(t *testing.T) {
	f := &fakeMigrator{}
	withFakeMigrator(t, f)

	out, _, err := execute(t, "migrate", "down", "--database-url", "postgres://localhost/mods")
	require.NoError(t, err)
	assert.True(t, f.down)
	assert.Contains(t, out, "rolled back")
}

func TestMigrate_Status(t *testing.T) {
	tests := []struct {
		name string
		f    *fakeMigrator
		want []string
	}{
		{"up to date", &fakeMigrator{version: 2}, []string{"Applied version: 2\n", "Pending: none"}},
		{"pending", &fakeMigrator{version: 0, pending: []uint{1, 2}}, []string{"Applied version: 0\n", "Pending: 1, 2"}},
		{"dirty", &fakeMigrator{version: 1, dirty: true, pending: []uint{2}}, []string{"Applied version: 1 (dirty)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withFakeMigrator(t, tt.f)
			out, _, err := execute(t, "migrate", "status", "--database-url", "postgres://x/y")
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestMigrate_ErrorStillCloses(t *testing.T) {
	f := &fakeMigrator{err: errors.New("boom")}
	withFakeMigrator(t, f)

	_, _, err := execute(t, "migrate", "up", "--database-url", "postgres://x/y")
	require.Error(t, err)
	assert.True(t, f.closed)
}
