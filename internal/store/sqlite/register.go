// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package sqlite

import (
	"path/filepath"

	"github.com/bastion-dev/bastion/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", func(dataPath string) (store.Store, error) {
		return NewStore(filepath.Join(dataPath, "bastion.db"))
	})
}
