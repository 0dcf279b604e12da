// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastion-dev/bastion/internal/store"
)

func TestFactoryMemoryBackend(t *testing.T) {
	s, err := store.New(&store.StorageConfig{Backend: "memory"}, t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	assert.NotNil(t, s.History())
	assert.NotNil(t, s.AuditLog())
	assert.NotNil(t, s.Keys())
}

func TestFactoryUnknownBackend(t *testing.T) {
	_, err := store.New(&store.StorageConfig{Backend: "etcd"}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage backend")
}

func TestFactoryRegisterCustomBackend(t *testing.T) {
	store.RegisterBackend("custom-test", func(string) (store.Store, error) {
		return store.NewMemoryStore(), nil
	})

	s, err := store.New(&store.StorageConfig{Backend: "custom-test"}, t.TempDir())
	require.NoError(t, err)
	defer s.Close()
}
