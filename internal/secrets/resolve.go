// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package secrets

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

const refScheme = "keyring://"

// IsRef reports whether value is a keyring://service/name reference.
func IsRef(value string) bool {
	return strings.HasPrefix(value, refScheme)
}

// ParseRef splits a keyring://service/name reference into its parts.
func ParseRef(ref string) (service, name string, err error) {
	if !IsRef(ref) {
		return "", "", basterr.Errorf(basterr.CodeSecretRefInvalid, "not a keyring reference: %q", ref)
	}

	path := strings.TrimPrefix(ref, refScheme)
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", basterr.Errorf(basterr.CodeSecretRefInvalid,
			"invalid keyring reference %q: expected keyring://service/name", ref)
	}
	return parts[0], parts[1], nil
}

// Resolve replaces a keyring://service/name reference with the stored
// secret. Non-reference values pass through unchanged.
func Resolve(store Store, value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}

	service, name, err := ParseRef(value)
	if err != nil {
		return "", err
	}

	secret, err := store.Get(service, name)
	if err != nil {
		return "", basterr.Wrapf(err, basterr.CodeSecretResolveFailure, "resolving keyring reference %q", value)
	}
	return secret, nil
}

// ResolveViper walks all keys of a loaded Viper instance and resolves
// any keyring:// string values in place. Failures are logged and the
// reference kept, so the error surfaces where the value is used.
func ResolveViper(v *viper.Viper, store Store) {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsRef(val) {
			continue
		}

		resolved, err := Resolve(store, val)
		if err != nil {
			slog.Warn("failed to resolve keyring reference, keeping original value",
				"config_key", key,
				"error", err,
			)
			continue
		}
		v.Set(key, resolved)
	}
}
