// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package sqlite_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bastion-dev/bastion/internal/store/sqlite"
)

// testDir creates a temp directory for a test and returns its path.
func testDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "bastion-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// testStore opens a Store on a temp database.
func testStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(filepath.Join(testDir(t), "bastion.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// testStoreAt opens a Store in an existing directory, without cleanup,
// for reopen tests.
func testStoreAt(t *testing.T, dir string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(filepath.Join(dir, "bastion.db"))
	require.NoError(t, err)
	return s
}
