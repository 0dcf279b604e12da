// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package config

// WarnInsecurePermissions is a no-op on Windows: POSIX permission bits do
// not map onto Windows ACLs, so the check would always misreport.
func WarnInsecurePermissions(path string) {}
