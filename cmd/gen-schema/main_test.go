// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/config"
)

func TestWrite(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "config.schema.json")

	require.NoError(t, write(out))

	data, err := os.ReadFile(out) //nolint:gosec // test temp path
	require.NoError(t, err)
	assert.Contains(t, string(data), config.SchemaID)
	assert.Equal(t, byte('\n'), data[len(data)-1])
}
