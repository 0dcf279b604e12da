// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastion-dev/bastion/internal/store"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

func testKeychain(t *testing.T, cfg Config) (*Keychain, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })

	kc, err := NewKeychain(context.Background(), st.Keys(), st.AuditLog(), cfg, nil)
	require.NoError(t, err)
	return kc, st
}

// --- provisioning ---

func TestProvisionIssuesUsableKey(t *testing.T) {
	kc, _ := testKeychain(t, Config{})
	ctx := context.Background()

	issued, err := kc.Provision(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(issued.Secret, "bk_"))
	assert.True(t, strings.HasPrefix(issued.Secret, issued.Prefix))
	assert.Len(t, issued.Prefix, len("bk_")+8)

	keyID, err := kc.Authenticate(ctx, issued.Secret)
	require.NoError(t, err)
	assert.Equal(t, issued.KeyID, keyID)
}

func TestListNeverExposesSecrets(t *testing.T) {
	kc, _ := testKeychain(t, Config{})
	ctx := context.Background()

	issued, err := kc.Provision(ctx)
	require.NoError(t, err)

	keys, err := kc.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, issued.KeyID, keys[0].KeyID)
	assert.NotEqual(t, issued.Secret, keys[0].SecretHash)
	assert.NotContains(t, keys[0].SecretHash, issued.Secret)
}

// --- dev mode ---

func TestDevModeAcceptsEverything(t *testing.T) {
	kc, _ := testKeychain(t, Config{})
	ctx := context.Background()

	identity, err := kc.Authenticate(ctx, "anything-at-all")
	require.NoError(t, err)
	assert.Equal(t, "dev", identity)

	identity, err = kc.Authenticate(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "dev", identity)
}

func TestDevModeEndsWithFirstKey(t *testing.T) {
	kc, _ := testKeychain(t, Config{})
	ctx := context.Background()

	_, err := kc.Provision(ctx)
	require.NoError(t, err)

	_, err = kc.Authenticate(ctx, "anything-at-all")
	require.Error(t, err)
	assert.True(t, basterr.HasCode(err, basterr.CodeAuthKeyUnknown))
}

// --- authentication failures ---

func TestAuthenticateUnknownKeyAudited(t *testing.T) {
	kc, st := testKeychain(t, Config{})
	ctx := context.Background()

	_, err := kc.Provision(ctx)
	require.NoError(t, err)

	_, err = kc.Authenticate(ctx, "bk_wrong")
	require.Error(t, err)
	assert.True(t, basterr.IsUnauthorized(err))

	entries, err := st.AuditLog().Query(ctx, store.AuditFilter{Action: store.AuditActionAuthFailure})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "denied", entries[0].Result)
}

// --- revocation and grace window ---

func TestRevokeFailsSubsequentAuth(t *testing.T) {
	kc, _ := testKeychain(t, Config{})
	ctx := context.Background()

	issued, err := kc.Provision(ctx)
	require.NoError(t, err)
	require.NoError(t, kc.Revoke(ctx, issued.KeyID))

	_, err = kc.Authenticate(ctx, issued.Secret)
	require.Error(t, err)
	assert.True(t, basterr.HasCode(err, basterr.CodeAuthKeyRevoked))
}

func TestGraceWindowPermitsUntilExpiry(t *testing.T) {
	kc, _ := testKeychain(t, Config{GraceWindow: time.Hour})
	ctx := context.Background()

	issued, err := kc.Provision(ctx)
	require.NoError(t, err)
	require.NoError(t, kc.Revoke(ctx, issued.KeyID))

	// Inside the window the old secret still works.
	keyID, err := kc.Authenticate(ctx, issued.Secret)
	require.NoError(t, err)
	assert.Equal(t, issued.KeyID, keyID)

	// Advance past the window.
	kc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = kc.Authenticate(ctx, issued.Secret)
	require.Error(t, err)
	assert.True(t, basterr.HasCode(err, basterr.CodeAuthKeyRevoked))
}

// --- rotation ---

func TestRotateRevokesOldIssuesNew(t *testing.T) {
	kc, st := testKeychain(t, Config{})
	ctx := context.Background()

	old, err := kc.Provision(ctx)
	require.NoError(t, err)

	fresh, err := kc.Rotate(ctx, old.KeyID)
	require.NoError(t, err)
	assert.NotEqual(t, old.KeyID, fresh.KeyID)
	assert.NotEqual(t, old.Secret, fresh.Secret)

	_, err = kc.Authenticate(ctx, old.Secret)
	require.Error(t, err)

	keyID, err := kc.Authenticate(ctx, fresh.Secret)
	require.NoError(t, err)
	assert.Equal(t, fresh.KeyID, keyID)

	entries, err := st.AuditLog().Query(ctx, store.AuditFilter{Action: store.AuditActionKeyRotation})
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestRotateUnknownKey(t *testing.T) {
	kc, _ := testKeychain(t, Config{})
	_, err := kc.Rotate(context.Background(), "no-such-key")
	require.Error(t, err)
	assert.True(t, basterr.IsNotFound(err))
}

func TestRotateEnforcesLiveCap(t *testing.T) {
	kc, _ := testKeychain(t, Config{MaxLiveKeys: 2})
	ctx := context.Background()

	first, err := kc.Provision(ctx)
	require.NoError(t, err)
	_, err = kc.Provision(ctx)
	require.NoError(t, err)
	_, err = kc.Rotate(ctx, "")
	require.NoError(t, err)

	keys, err := kc.List(ctx)
	require.NoError(t, err)

	live := 0
	for _, key := range keys {
		if !key.Revoked() {
			live++
		}
	}
	assert.Equal(t, 2, live)

	// The oldest key was the one revoked.
	_, err = kc.Authenticate(ctx, first.Secret)
	require.Error(t, err)
}
