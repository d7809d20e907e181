// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/store"
	"github.com/holomush/holoauth/pkg/errutil"
)

type fakeMigrator struct {
	url      string
	calls    []string
	forced   int
	status   *store.Status
	failWith error
	closed   bool
}

func (f *fakeMigrator) Up() error   { f.calls = append(f.calls, "up"); return f.failWith }
func (f *fakeMigrator) Down() error { f.calls = append(f.calls, "down"); return f.failWith }
func (f *fakeMigrator) Force(v int) error {
	f.calls = append(f.calls, "force")
	f.forced = v
	return f.failWith
}
func (f *fakeMigrator) Status() (*store.Status, error) {
	f.calls = append(f.calls, "status")
	return f.status, f.failWith
}
func (f *fakeMigrator) Close() error { f.closed = true; return nil }

func useFakeMigrator(t *testing.T, f *fakeMigrator) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DATABASE_URL", "")
	original := newMigrator
	newMigrator = func(url string) (schemaMigrator, error) {
		f.url = url
		return f, nil
	}
	t.Cleanup(func() { newMigrator = original })
}

func TestMigrate_Up(t *testing.T) {
	f := &fakeMigrator{}
	useFakeMigrator(t, f)

	output, err := execute(t, "migrate", "up", "--database-url", "postgres://flag/db")
	require.NoError(t, err)
	assert.Equal(t, []string{"up"}, f.calls)
	assert.Equal(t, "postgres://flag/db", f.url)
	assert.True(t, f.closed)
	assert.Contains(t, output, "Migrations applied")
}

func TestMigrate_DownUsesEnvironmentURL(t *testing.T) {
	f := &fakeMigrator{}
	useFakeMigrator(t, f)
	t.Setenv("DATABASE_URL", "postgres://env/db")

	_, err := execute(t, "migrate", "down")
	require.NoError(t, err)
	assert.Equal(t, []string{"down"}, f.calls)
	assert.Equal(t, "postgres://env/db", f.url)
}

func TestMigrate_Status(t *testing.T) {
	tests := []struct {
		name   string
		status *store.Status
		want   []string
	}{
		{"fresh", &store.Status{Pending: []uint{1}}, []string{"Current version: none", "Pending: 000001_users"}},
		{"current", &store.Status{Version: 1}, []string{"Current version: 000001_users", "Pending: none"}},
		{"dirty", &store.Status{Version: 1, Dirty: true}, []string{"DIRTY"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeMigrator{status: tt.status}
			useFakeMigrator(t, f)

			output, err := execute(t, "migrate", "status", "--database-url", "postgres://x/db")
			require.NoError(t, err)
			for _, want := range tt.want {
				assert.Contains(t, output, want)
			}
		})
	}
}

func TestMigrate_Force(t *testing.T) {
	f := &fakeMigrator{}
	useFakeMigrator(t, f)

	output, err := execute(t, "migrate", "force", "1", "--database-url", "postgres://x/db")
	require.NoError(t, err)
	assert.Equal(t, 1, f.forced)
	assert.Contains(t, output, "forced to 1")
}

func TestMigrate_RequiresURL(t *testing.T) {
	f := &fakeMigrator{}
	useFakeMigrator(t, f)

	_, err := execute(t, "migrate", "up")
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	assert.Empty(t, f.calls)
}

func TestMigrate_PropagatesFailure(t *testing.T) {
	f := &fakeMigrator{failWith: oops.Code("MIGRATION_UP_FAILED").Wrap(errors.New("dirty database"))}
	useFakeMigrator(t, f)

	_, err := execute(t, "migrate", "up", "--database-url", "postgres://x/db")
	errutil.AssertErrorCode(t, err, "MIGRATION_UP_FAILED")
	assert.True(t, f.closed)
}

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"3", 3, false},
		{"0", 0, false},
		{"  42", 42, false},
		{"abc", 0, true},
		{"1.5", 0, true},
		{"-1", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseForceVersion(tt.input)
			if tt.wantErr {
				errutil.AssertErrorCode(t, err, "INVALID_VERSION")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
