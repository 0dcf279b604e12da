// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// --- Scope types ---

// ScopeKind distinguishes shared channel history from private one-to-one history.
type ScopeKind string

const (
	ScopeKindStream  ScopeKind = "stream"
	ScopeKindPrivate ScopeKind = "private"
)

// Scope identifies a conversation partition. A stream scope is keyed by
// (stream, topic); a private scope by the user identifier. Scopes are never
// merged: a stream scope and a private scope sharing an identifier are
// disjoint partitions.
type Scope struct {
	Kind   ScopeKind
	Stream string
	Topic  string
	UserID string
}

// StreamScope returns the scope for a shared channel topic.
func StreamScope(stream, topic string) Scope {
	return Scope{Kind: ScopeKindStream, Stream: stream, Topic: topic}
}

// PrivateScope returns the scope for a one-to-one conversation.
func PrivateScope(userID string) Scope {
	return Scope{Kind: ScopeKindPrivate, UserID: userID}
}

// Key returns the stable partition key used by storage backends. Raw
// identifiers are hashed so arbitrary stream/topic names stay safe to use
// as keys regardless of charset.
func (s Scope) Key() string {
	switch s.Kind {
	case ScopeKindPrivate:
		return "private/" + shortHash(s.UserID)
	default:
		return "streams/" + shortHash(s.Stream+"\x00"+s.Topic)
	}
}

// String returns a human-readable identifier for logs and audit details.
func (s Scope) String() string {
	if s.Kind == ScopeKindPrivate {
		return fmt.Sprintf("private:%s", s.UserID)
	}
	return fmt.Sprintf("stream:%s/%s", s.Stream, s.Topic)
}

// Validate checks that the scope carries the identifiers its kind requires.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeKindStream:
		if s.Stream == "" {
			return fmt.Errorf("stream scope requires a stream identifier: %w", ErrInvalidInput)
		}
	case ScopeKindPrivate:
		if s.UserID == "" {
			return fmt.Errorf("private scope requires a user identifier: %w", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("unknown scope kind %q: %w", s.Kind, ErrInvalidInput)
	}
	return nil
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// --- History types ---

// MessageRole identifies the author of a history record.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
	MessageRoleTool      MessageRole = "tool"
)

// HistoryRecord is one append-only entry in a scope's conversation log.
// Seq is assigned by the store on append: strictly increasing and gap-free
// within a scope, recoverable ordering even when timestamps collide.
type HistoryRecord struct {
	Seq       int64
	Role      MessageRole
	Content   string
	Sender    string
	CreatedAt time.Time
}

// ScopeStats summarizes one scope's stored history.
type ScopeStats struct {
	Records   int64
	LatestSeq int64
}

// --- Audit types ---

// Audit actions recorded by the service.
const (
	AuditActionToolCall      = "tool_call"
	AuditActionSecurityBlock = "security_block"
	AuditActionPolicyDenied  = "policy_denied"
	AuditActionAuthFailure   = "auth_failure"
	AuditActionKeyRotation   = "key_rotation"
	AuditActionKeyRevocation = "key_revocation"
	AuditActionScopeClear    = "scope_clear"
)

// AuditEntry records a security-relevant action. Entries are append-only and
// never deleted; they form the accountability trail independent of
// conversation history.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	Action    string
	Actor     string
	Tool      string
	Scope     string
	Details   map[string]any
	Result    string
}

// AuditFilter specifies criteria for querying audit entries.
type AuditFilter struct {
	Action string
	Actor  string
	Tool   string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// --- API key types ---

// APIKey is a stored credential. The secret itself is never persisted, only
// its hash; revocation is a flag rather than a delete so the audit trail
// stays attributable after rotation.
type APIKey struct {
	KeyID      string
	SecretHash string
	Prefix     string
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// Revoked reports whether the key has been marked revoked.
func (k *APIKey) Revoked() bool {
	return k.RevokedAt != nil
}
