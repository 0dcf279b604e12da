// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package security

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

// Config controls the validator's pattern checks and filesystem confinement.
type Config struct {
	// Root is the directory all file operations are confined to.
	Root string

	// AllowedCommands, when non-empty, restricts shell commands to those
	// whose first word matches an entry exactly.
	AllowedCommands []string

	// MaxCommandTimeout is the ceiling for a declared command execution
	// bound. Zero uses DefaultMaxCommandTimeout.
	MaxCommandTimeout time.Duration
}

// DefaultMaxCommandTimeout bounds how long any single command may declare.
const DefaultMaxCommandTimeout = 5 * time.Minute

// Result is the typed outcome of a validation check. A block is a value,
// not a panic: callers surface it to the model as a tool-error observation.
type Result struct {
	Allowed bool
	Reason  string
}

// Allow is the passing result.
var Allow = Result{Allowed: true}

// Block returns a blocking result with the given reason.
func Block(reason string) Result {
	return Result{Reason: reason}
}

// dangerousPatterns are substring matches (case-insensitive) for commands
// that are catastrophic regardless of context. Validation is fail-closed:
// false positives are acceptable, false negatives are not.
var dangerousPatterns = []string{
	"rm -rf",
	"rm -fr",
	"rm --recursive",
	"mkfs",
	"dd if=",
	"dd of=",
	":(){",      // fork bomb
	"chmod 777",
	"chmod -r 777",
	"chown -r",
	"> /dev/",
	"of=/dev/",
	"nc -l",
	"nc -e",
	"socat",
	"shutdown",
	"reboot",
	"init 0",
	"init 6",
	"halt",
	"poweroff",
}

// shellMetachars enable chaining into a second, unvalidated command.
// A backslash-escaped occurrence is treated as literal text.
const shellMetachars = ";&|$`><"

// reservedWritePrefixes are system paths never writable even when the
// sandbox root is configured broadly.
var reservedWritePrefixes = []string{
	"/etc/", "/dev/", "/proc/", "/sys/", "/boot/", "/usr/", "/bin/", "/sbin/", "/lib/",
}

// Validator classifies requested commands and paths as allowed or blocked
// before they reach the operating system.
type Validator struct {
	root       string
	realRoot   string
	allowed    map[string]struct{}
	maxTimeout time.Duration
	logger     *slog.Logger
}

// NewValidator creates a Validator confined to cfg.Root. The root directory
// is created if it does not exist.
func NewValidator(cfg Config, logger *slog.Logger) (*Validator, error) {
	if cfg.Root == "" {
		return nil, basterr.New(basterr.CodeConfigValidateInvalidValue, "security root must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, basterr.Wrapf(err, basterr.CodeConfigValidateInvalidValue, "resolving security root %q", cfg.Root)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, basterr.Wrapf(err, basterr.CodeConfigValidateInvalidValue, "creating security root %q", root)
	}

	// Resolve symlinks in the root itself once, so containment checks
	// compare against the real directory (/tmp is a symlink on macOS).
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, basterr.Wrapf(err, basterr.CodeConfigValidateInvalidValue, "resolving security root %q", root)
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedCommands))
	for _, cmd := range cfg.AllowedCommands {
		cmd = strings.TrimSpace(cmd)
		if cmd != "" {
			allowed[cmd] = struct{}{}
		}
	}

	maxTimeout := cfg.MaxCommandTimeout
	if maxTimeout <= 0 {
		maxTimeout = DefaultMaxCommandTimeout
	}

	return &Validator{
		root:       root,
		realRoot:   realRoot,
		allowed:    allowed,
		maxTimeout: maxTimeout,
		logger:     logger.With("component", "security"),
	}, nil
}

// Root returns the configured sandbox root.
func (v *Validator) Root() string { return v.root }

// ValidateCommand runs the layered command checks: catastrophic pattern
// deny-list, shell metacharacter rejection, then the allowed-command list
// when one is configured. Unrecognized or ambiguous input is blocked.
func (v *Validator) ValidateCommand(command string) Result {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return Block("empty command")
	}

	lowered := strings.ToLower(trimmed)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lowered, pattern) {
			v.logger.Warn("command blocked by deny-list", "pattern", pattern)
			return Block(fmt.Sprintf("command matches dangerous pattern %q", pattern))
		}
	}

	if ch, found := firstUnescapedMetachar(trimmed); found {
		v.logger.Warn("command blocked by metacharacter check", "char", string(ch))
		return Block(fmt.Sprintf("command contains shell metacharacter %q", string(ch)))
	}

	if len(v.allowed) > 0 {
		first := strings.Fields(trimmed)[0]
		if _, ok := v.allowed[first]; !ok {
			v.logger.Warn("command blocked by allow-list", "command", first)
			return Block(fmt.Sprintf("command %q is not in the allowed command list", first))
		}
	}

	return Allow
}

// ValidateTimeout checks a tool's declared execution bound against the
// configured ceiling.
func (v *Validator) ValidateTimeout(declared time.Duration) Result {
	if declared <= 0 {
		return Allow
	}
	if declared > v.maxTimeout {
		return Block(fmt.Sprintf("declared timeout %s exceeds ceiling %s", declared, v.maxTimeout))
	}
	return Allow
}

// ValidatePath confirms the path resolves inside the sandbox root, rejecting
// parent-directory traversal and symlink escape. It returns the resolved
// absolute path on success.
func (v *Validator) ValidatePath(path string) (string, Result) {
	if strings.TrimSpace(path) == "" {
		return "", Block("empty path")
	}
	if strings.ContainsRune(path, '\x00') {
		return "", Block("path contains NUL byte")
	}

	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(v.root, resolved)
	}
	resolved = filepath.Clean(resolved)

	if !within(v.root, resolved) && !within(v.realRoot, resolved) {
		v.logger.Warn("path blocked: escapes sandbox root", "path", path)
		return "", Block(fmt.Sprintf("path %q escapes the sandbox root", path))
	}

	// Resolve symlinks in the deepest existing ancestor so a link inside
	// the root cannot point the operation outside it.
	real, err := resolveExisting(resolved)
	if err != nil {
		// Fail closed: a path we cannot resolve is a path we cannot trust.
		return "", Block(fmt.Sprintf("path %q could not be resolved", path))
	}
	if !within(v.realRoot, real) {
		v.logger.Warn("path blocked: symlink escape", "path", path)
		return "", Block(fmt.Sprintf("path %q escapes the sandbox root via symlink", path))
	}

	return resolved, Allow
}

// ValidateWritePath applies ValidatePath plus the reserved system path
// check for mutating operations.
func (v *Validator) ValidateWritePath(path string) (string, Result) {
	resolved, res := v.ValidatePath(path)
	if !res.Allowed {
		return "", res
	}
	for _, prefix := range reservedWritePrefixes {
		if strings.HasPrefix(resolved, prefix) {
			return "", Block(fmt.Sprintf("path %q is a reserved system path", path))
		}
	}
	return resolved, Allow
}

// firstUnescapedMetachar returns the first shell metacharacter in s that is
// not preceded by a backslash.
func firstUnescapedMetachar(s string) (byte, bool) {
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if strings.IndexByte(shellMetachars, c) >= 0 {
			return c, true
		}
	}
	return 0, false
}

// within reports whether p equals root or lives beneath it.
func within(root, p string) bool {
	if root == string(filepath.Separator) {
		return strings.HasPrefix(p, root)
	}
	return p == root || strings.HasPrefix(p, root+string(filepath.Separator))
}

// resolveExisting resolves symlinks in the deepest existing ancestor of p
// and rejoins the non-existing remainder.
func resolveExisting(p string) (string, error) {
	remainder := ""
	current := p
	for {
		if _, err := os.Lstat(current); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		remainder = filepath.Join(filepath.Base(current), remainder)
		current = parent
	}

	real, err := filepath.EvalSymlinks(current)
	if err != nil {
		return "", err
	}
	return filepath.Clean(filepath.Join(real, remainder)), nil
}
