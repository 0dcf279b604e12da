// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

// Package policy resolves per-scope tool allow-lists, iteration caps,
// and lookback bounds from an externally loaded policy document.
package policy

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

// Built-in fallbacks used when neither the scope entry nor the document
// defaults set a value.
const (
	DefaultIterationCap = 10
	DefaultLookback     = 100
)

// Entry is one policy block: the defaults block or a per-scope override.
// Pointer fields distinguish "unset, inherit" from an explicit zero.
type Entry struct {
	Enabled         *bool    `yaml:"enabled,omitempty"`
	MaxIterations   *int     `yaml:"max_iterations,omitempty"`
	Lookback        *int     `yaml:"lookback,omitempty"`
	RequiresMention *bool    `yaml:"requires_mention,omitempty"`
	AllowedTools    []string `yaml:"allowed_tools,omitempty"`
	DeniedTools     []string `yaml:"denied_tools,omitempty"`
}

// Document is the parsed policies.yaml. Stream keys are either
// "stream/topic" for a single topic or "stream" for every topic in the
// stream; user keys match the private-scope user identifier.
type Document struct {
	Defaults Entry            `yaml:"defaults"`
	Streams  map[string]Entry `yaml:"streams,omitempty"`
	Users    map[string]Entry `yaml:"users,omitempty"`
}

// Parse parses YAML data into a Document and validates it.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, basterr.Errorf(basterr.CodePolicyParseInvalid,
			"policy parse: %s", err)
	}

	if errs := doc.Validate(); len(errs) > 0 {
		return nil, errs[0]
	}

	return &doc, nil
}

// Load reads and parses a policy document from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, basterr.Wrapf(err, basterr.CodePolicyLoadFailure,
			"reading policy document %q", path)
	}
	return Parse(data)
}

// Validate checks that the Document is well-formed. It returns all
// validation errors found rather than stopping at the first one.
func (d *Document) Validate() []error {
	var errs []error

	errs = append(errs, validateEntry("defaults", d.Defaults)...)
	for key, e := range d.Streams {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, basterr.New(basterr.CodePolicyParseInvalid,
				"policy validation: stream key must not be empty"))
		}
		errs = append(errs, validateEntry("streams."+key, e)...)
	}
	for key, e := range d.Users {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, basterr.New(basterr.CodePolicyParseInvalid,
				"policy validation: user key must not be empty"))
		}
		errs = append(errs, validateEntry("users."+key, e)...)
	}

	return errs
}

func validateEntry(where string, e Entry) []error {
	var errs []error
	if e.MaxIterations != nil && *e.MaxIterations < 1 {
		errs = append(errs, basterr.Errorf(basterr.CodePolicyParseInvalid,
			"policy validation: %s.max_iterations must be positive, got %d", where, *e.MaxIterations))
	}
	if e.Lookback != nil && *e.Lookback < 0 {
		errs = append(errs, basterr.Errorf(basterr.CodePolicyParseInvalid,
			"policy validation: %s.lookback must not be negative, got %d", where, *e.Lookback))
	}
	for _, name := range e.AllowedTools {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, basterr.Errorf(basterr.CodePolicyParseInvalid,
				"policy validation: %s.allowed_tools contains an empty name", where))
		}
	}
	return errs
}
