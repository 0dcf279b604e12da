// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

// Package secrets keeps credentials such as gateway and search API keys
// out of config files. Config values may use keyring://service/name
// references which are resolved against a Store after loading.
package secrets

// Store is a named secret backend. The default implementation uses the
// OS keyring; tests substitute an in-memory fake.
type Store interface {
	// Put saves value under service/name, overwriting any existing entry.
	Put(service, name, value string) error

	// Get returns the value stored under service/name. Missing entries
	// report CodeSecretNotFound.
	Get(service, name string) (string, error)

	// Delete removes the entry under service/name. Missing entries
	// report CodeSecretNotFound.
	Delete(service, name string) error

	// Names lists the entry names stored under service.
	Names(service string) ([]string, error)
}
