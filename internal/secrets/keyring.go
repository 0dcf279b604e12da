// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/zalando/go-keyring"

	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

// indexSuffix forms the keyring entry that holds the JSON list of names
// stored under a service. go-keyring cannot enumerate entries, so Names
// works off this side index.
const indexSuffix = "::index"

// OSKeyring implements Store on the operating system keyring: Keychain
// on macOS, secret-service over D-Bus on Linux, Credential Manager on
// Windows.
type OSKeyring struct{}

// NewOSKeyring returns a keyring-backed Store.
func NewOSKeyring() *OSKeyring {
	return &OSKeyring{}
}

func (s *OSKeyring) Put(service, name, value string) error {
	if err := checkRef(service, name); err != nil {
		return err
	}
	if err := keyring.Set(service, name, value); err != nil {
		return basterr.Wrapf(err, basterr.CodeSecretStoreFailure, "storing secret %s/%s", service, name)
	}
	return s.indexAdd(service, name)
}

func (s *OSKeyring) Get(service, name string) (string, error) {
	if err := checkRef(service, name); err != nil {
		return "", err
	}
	val, err := keyring.Get(service, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", basterr.Errorf(basterr.CodeSecretNotFound, "secret %s/%s not found", service, name)
		}
		return "", basterr.Wrapf(err, basterr.CodeSecretStoreFailure, "reading secret %s/%s", service, name)
	}
	return val, nil
}

func (s *OSKeyring) Delete(service, name string) error {
	if err := checkRef(service, name); err != nil {
		return err
	}
	if err := keyring.Delete(service, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return basterr.Errorf(basterr.CodeSecretNotFound, "secret %s/%s not found", service, name)
		}
		return basterr.Wrapf(err, basterr.CodeSecretStoreFailure, "deleting secret %s/%s", service, name)
	}
	return s.indexRemove(service, name)
}

func (s *OSKeyring) Names(service string) ([]string, error) {
	return s.indexLoad(service)
}

func checkRef(service, name string) error {
	if service == "" {
		return basterr.New(basterr.CodeSecretRefInvalid, "secret service must not be empty")
	}
	if name == "" {
		return basterr.New(basterr.CodeSecretRefInvalid, "secret name must not be empty")
	}
	return nil
}

func (s *OSKeyring) indexLoad(service string) ([]string, error) {
	raw, err := keyring.Get(service, service+indexSuffix)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, basterr.Wrapf(err, basterr.CodeSecretStoreFailure, "loading name index for service %s", service)
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, basterr.Wrapf(err, basterr.CodeSecretStoreFailure, "decoding name index for service %s", service)
	}
	return names, nil
}

func (s *OSKeyring) indexSave(service string, names []string) error {
	indexName := service + indexSuffix

	if len(names) == 0 {
		if err := keyring.Delete(service, indexName); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("failed to remove empty secret name index", "service", service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(names)
	if err != nil {
		return basterr.Wrapf(err, basterr.CodeSecretStoreFailure, "encoding name index for service %s", service)
	}
	if err := keyring.Set(service, indexName, string(data)); err != nil {
		return basterr.Wrapf(err, basterr.CodeSecretStoreFailure, "saving name index for service %s", service)
	}
	return nil
}

func (s *OSKeyring) indexAdd(service, name string) error {
	names, err := s.indexLoad(service)
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == name {
			return nil
		}
	}
	return s.indexSave(service, append(names, name))
}

func (s *OSKeyring) indexRemove(service, name string) error {
	names, err := s.indexLoad(service)
	if err != nil {
		return err
	}
	kept := names[:0]
	for _, n := range names {
		if n != name {
			kept = append(kept, n)
		}
	}
	return s.indexSave(service, kept)
}
