// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package secrets_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/bastion-dev/bastion/internal/secrets"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

func init() {
	// Use the mock keyring for all tests so they don't touch the real OS keyring.
	keyring.MockInit()
}

func TestOSKeyring_PutAndGet(t *testing.T) {
	ks := secrets.NewOSKeyring()
	svc := "test-put-get"

	require.NoError(t, ks.Put(svc, "api-key", "sk-secret-123"))

	val, err := ks.Get(svc, "api-key")
	require.NoError(t, err)
	assert.Equal(t, "sk-secret-123", val)
}

func TestOSKeyring_GetNotFound(t *testing.T) {
	ks := secrets.NewOSKeyring()

	_, err := ks.Get("no-such-service", "no-key")
	require.Error(t, err)
	assert.True(t, basterr.HasCode(err, basterr.CodeSecretNotFound), "expected CodeSecretNotFound, got: %v", err)
}

func TestOSKeyring_Delete(t *testing.T) {
	ks := secrets.NewOSKeyring()
	svc := "test-delete"

	require.NoError(t, ks.Put(svc, "temp-key", "temp-value"))
	require.NoError(t, ks.Delete(svc, "temp-key"))

	_, err := ks.Get(svc, "temp-key")
	require.Error(t, err)
	assert.True(t, basterr.HasCode(err, basterr.CodeSecretNotFound))
}

func TestOSKeyring_DeleteNotFound(t *testing.T) {
	ks := secrets.NewOSKeyring()

	err := ks.Delete("no-such-service", "no-key")
	require.Error(t, err)
	assert.True(t, basterr.HasCode(err, basterr.CodeSecretNotFound))
}

func TestOSKeyring_Names(t *testing.T) {
	ks := secrets.NewOSKeyring()
	svc := "test-names"

	names, err := ks.Names(svc)
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, ks.Put(svc, "key-a", "val-a"))
	require.NoError(t, ks.Put(svc, "key-b", "val-b"))
	require.NoError(t, ks.Put(svc, "key-c", "val-c"))

	names, err = ks.Names(svc)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"key-a", "key-b", "key-c"}, names)
}

func TestOSKeyring_NamesAfterDelete(t *testing.T) {
	ks := secrets.NewOSKeyring()
	svc := "test-names-delete"

	require.NoError(t, ks.Put(svc, "key-x", "val"))
	require.NoError(t, ks.Put(svc, "key-y", "val"))
	require.NoError(t, ks.Delete(svc, "key-x"))

	names, err := ks.Names(svc)
	require.NoError(t, err)
	assert.Equal(t, []string{"key-y"}, names)
}

func TestOSKeyring_PutOverwrite(t *testing.T) {
	ks := secrets.NewOSKeyring()
	svc := "test-overwrite"

	require.NoError(t, ks.Put(svc, "key", "old-value"))
	require.NoError(t, ks.Put(svc, "key", "new-value"))

	val, err := ks.Get(svc, "key")
	require.NoError(t, err)
	assert.Equal(t, "new-value", val)

	// Names should not duplicate the entry.
	names, err := ks.Names(svc)
	require.NoError(t, err)
	assert.Equal(t, []string{"key"}, names)
}

func TestOSKeyring_EmptyInputs(t *testing.T) {
	ks := secrets.NewOSKeyring()

	err := ks.Put("", "key", "val")
	require.Error(t, err)
	assert.True(t, basterr.HasCode(err, basterr.CodeSecretRefInvalid))

	err = ks.Put("svc", "", "val")
	require.Error(t, err)
	assert.True(t, basterr.HasCode(err, basterr.CodeSecretRefInvalid))

	// Empty value is allowed (stores empty string).
	assert.NoError(t, ks.Put("svc", "key", ""))
}

func TestOSKeyring_ImplementsStoreInterface(t *testing.T) {
	var _ secrets.Store = secrets.NewOSKeyring()
}

func TestOSKeyring_IsolatedServices(t *testing.T) {
	ks := secrets.NewOSKeyring()

	require.NoError(t, ks.Put("svc-a", "shared-key", "value-a"))
	require.NoError(t, ks.Put("svc-b", "shared-key", "value-b"))

	valA, err := ks.Get("svc-a", "shared-key")
	require.NoError(t, err)
	assert.Equal(t, "value-a", valA)

	valB, err := ks.Get("svc-b", "shared-key")
	require.NoError(t, err)
	assert.Equal(t, "value-b", valB)

	namesA, err := ks.Names("svc-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"shared-key"}, namesA)
}
