// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package openai

// Exported for white-box testing.
var (
	BuildParams     = buildParams
	ConvertMessages = convertMessages
	ConvertTools    = convertTools
)
