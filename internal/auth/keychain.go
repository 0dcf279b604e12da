// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

// Package auth implements API key authentication: provisioning, rotation
// with a configurable grace window, revocation, and a dev-mode bypass
// when no keys exist at all.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bastion-dev/bastion/internal/store"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

// secretPrefix marks issued secrets so they are recognizable in leaked
// logs and scannable by redaction tooling.
const secretPrefix = "bk_"

// DefaultMaxLiveKeys bounds how many unrevoked keys a rotation leaves
// behind.
const DefaultMaxLiveKeys = 5

// Config holds keychain settings.
type Config struct {
	// GraceWindow keeps a rotated-away key valid for this long after
	// revocation. Zero revokes immediately.
	GraceWindow time.Duration

	// MaxLiveKeys caps unrevoked keys; rotation revokes the oldest
	// beyond the cap. Zero means DefaultMaxLiveKeys.
	MaxLiveKeys int
}

// IssuedKey is returned exactly once at provisioning time; the secret is
// never stored or shown again.
type IssuedKey struct {
	KeyID     string
	Secret    string
	Prefix    string
	CreatedAt time.Time
}

// Keychain authenticates presented secrets against stored key hashes and
// manages the key lifecycle.
type Keychain struct {
	keys   store.KeyStore
	audit  store.AuditStore
	cfg    Config
	logger *slog.Logger

	now func() time.Time // test seam
}

// NewKeychain creates a Keychain. If the key store holds no keys at all
// the service runs in dev mode: every request authenticates as "dev",
// loudly warned at startup.
func NewKeychain(ctx context.Context, keys store.KeyStore, audit store.AuditStore, cfg Config, logger *slog.Logger) (*Keychain, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxLiveKeys <= 0 {
		cfg.MaxLiveKeys = DefaultMaxLiveKeys
	}

	kc := &Keychain{
		keys:   keys,
		audit:  audit,
		cfg:    cfg,
		logger: logger.With("component", "auth"),
		now:    time.Now,
	}

	existing, err := keys.List(ctx)
	if err != nil {
		return nil, basterr.Wrap(err, basterr.CodeStoreDatabaseFailure, "loading key list")
	}
	if len(existing) == 0 {
		kc.logger.Warn("no API keys provisioned: running in dev mode, ALL requests are accepted unauthenticated")
	}

	return kc, nil
}

// Authenticate resolves a presented secret to a key identity. Failures
// are audited.
func (k *Keychain) Authenticate(ctx context.Context, secret string) (string, error) {
	keys, err := k.keys.List(ctx)
	if err != nil {
		return "", basterr.Wrap(err, basterr.CodeStoreDatabaseFailure, "loading key list")
	}

	// Dev mode: an empty keychain accepts everything.
	if len(keys) == 0 {
		return "dev", nil
	}

	if secret == "" {
		k.auditFailure(ctx, "", "missing credential")
		return "", basterr.New(basterr.CodeAuthKeyInvalid, "missing API key")
	}

	hash := hashSecret(secret)
	for _, key := range keys {
		if subtle.ConstantTimeCompare([]byte(key.SecretHash), []byte(hash)) != 1 {
			continue
		}
		if key.Revoked() {
			if k.cfg.GraceWindow > 0 && k.now().Before(key.RevokedAt.Add(k.cfg.GraceWindow)) {
				return key.KeyID, nil
			}
			k.auditFailure(ctx, key.KeyID, "revoked key")
			return "", basterr.With(
				basterr.New(basterr.CodeAuthKeyRevoked, "API key has been revoked"),
				basterr.FieldKeyID(key.KeyID),
			)
		}
		return key.KeyID, nil
	}

	k.auditFailure(ctx, "", "unknown key")
	return "", basterr.New(basterr.CodeAuthKeyUnknown, "unknown API key")
}

// Provision issues a new key without revoking anything. The returned
// secret is shown exactly once.
func (k *Keychain) Provision(ctx context.Context) (*IssuedKey, error) {
	issued, err := k.issue(ctx)
	if err != nil {
		return nil, err
	}
	return issued, nil
}

// Rotate revokes the old key (honoring the grace window at authenticate
// time) and issues a replacement. Live keys beyond the cap are revoked
// oldest-first.
func (k *Keychain) Rotate(ctx context.Context, oldKeyID string) (*IssuedKey, error) {
	now := k.now().UTC()

	if oldKeyID != "" {
		if err := k.keys.Revoke(ctx, oldKeyID, now); err != nil {
			return nil, basterr.Wrap(err, basterr.CodeAuthKeyNotFound, "revoking old key")
		}
		k.auditKeyEvent(ctx, store.AuditActionKeyRotation, oldKeyID, "revoked for rotation")
	}

	issued, err := k.issue(ctx)
	if err != nil {
		return nil, err
	}

	if err := k.enforceLiveCap(ctx); err != nil {
		return nil, err
	}

	return issued, nil
}

// Revoke marks a key revoked without issuing a replacement.
func (k *Keychain) Revoke(ctx context.Context, keyID string) error {
	if err := k.keys.Revoke(ctx, keyID, k.now().UTC()); err != nil {
		return basterr.Wrap(err, basterr.CodeAuthKeyNotFound, "revoking key")
	}
	k.auditKeyEvent(ctx, store.AuditActionKeyRevocation, keyID, "revoked")
	return nil
}

// List returns stored keys: identifiers and prefixes only, never secrets.
func (k *Keychain) List(ctx context.Context) ([]*store.APIKey, error) {
	keys, err := k.keys.List(ctx)
	if err != nil {
		return nil, basterr.Wrap(err, basterr.CodeStoreDatabaseFailure, "loading key list")
	}
	return keys, nil
}

func (k *Keychain) issue(ctx context.Context) (*IssuedKey, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, basterr.Wrap(err, basterr.CodeServerInternalFailure, "generating key secret")
	}

	key := &store.APIKey{
		KeyID:      uuid.New().String(),
		SecretHash: hashSecret(secret),
		Prefix:     secret[:len(secretPrefix)+8],
		CreatedAt:  k.now().UTC(),
	}
	if err := k.keys.Insert(ctx, key); err != nil {
		return nil, basterr.Wrap(err, basterr.CodeStoreDatabaseFailure, "storing new key")
	}

	k.auditKeyEvent(ctx, store.AuditActionKeyRotation, key.KeyID, "issued")

	return &IssuedKey{
		KeyID:     key.KeyID,
		Secret:    secret,
		Prefix:    key.Prefix,
		CreatedAt: key.CreatedAt,
	}, nil
}

// enforceLiveCap revokes the oldest live keys beyond MaxLiveKeys.
func (k *Keychain) enforceLiveCap(ctx context.Context) error {
	keys, err := k.keys.List(ctx)
	if err != nil {
		return basterr.Wrap(err, basterr.CodeStoreDatabaseFailure, "loading key list")
	}

	var live []*store.APIKey
	for _, key := range keys {
		if !key.Revoked() {
			live = append(live, key)
		}
	}
	if len(live) <= k.cfg.MaxLiveKeys {
		return nil
	}

	// List order is insertion order, so the front of live is oldest.
	now := k.now().UTC()
	for _, key := range live[:len(live)-k.cfg.MaxLiveKeys] {
		if err := k.keys.Revoke(ctx, key.KeyID, now); err != nil {
			return basterr.Wrap(err, basterr.CodeStoreDatabaseFailure, "revoking key beyond live cap")
		}
		k.auditKeyEvent(ctx, store.AuditActionKeyRevocation, key.KeyID, "revoked beyond live cap")
	}
	return nil
}

func (k *Keychain) auditFailure(ctx context.Context, keyID, detail string) {
	k.appendAudit(ctx, &store.AuditEntry{
		ID:        uuid.New().String(),
		Timestamp: k.now().UTC(),
		Action:    store.AuditActionAuthFailure,
		Actor:     keyID,
		Details:   map[string]any{"reason": detail},
		Result:    "denied",
	})
}

func (k *Keychain) auditKeyEvent(ctx context.Context, action, keyID, detail string) {
	k.appendAudit(ctx, &store.AuditEntry{
		ID:        uuid.New().String(),
		Timestamp: k.now().UTC(),
		Action:    action,
		Actor:     keyID,
		Details:   map[string]any{"detail": detail},
		Result:    "ok",
	})
}

func (k *Keychain) appendAudit(ctx context.Context, entry *store.AuditEntry) {
	if k.audit == nil {
		return
	}
	// Best-effort: an audit write failure must not turn an auth decision
	// into an outage, but it is never silent.
	if err := k.audit.Append(ctx, entry); err != nil {
		k.logger.Error("audit append failed", "action", entry.Action, "error", err)
	}
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func generateSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return secretPrefix + hex.EncodeToString(buf), nil
}
