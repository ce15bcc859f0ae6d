// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ServerNameRegex validates MCP server names.
// Names must start with a letter and contain only letters, numbers, hyphens, and underscores.
// Maximum length is 64 characters.
var ServerNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

var envKeyRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// GlobalServerEntry is one server in the user's global configuration file.
type GlobalServerEntry struct {
	// Type is the transport kind; only "stdio" is supported
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Command is the executable to run (e.g., "npx", "python").
	Command string `json:"command" yaml:"command"`

	// Args are command-line arguments.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Env are environment overrides. Values may reference ${VAR} from the
	// host environment.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// Disabled excludes the server from resolution.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// GlobalConfig is the persisted mapping from server name to entry. The file
// holds the mapping at its top level.
type GlobalConfig struct {
	Servers map[string]*GlobalServerEntry
}

// NewGlobalConfig returns an empty configuration.
func NewGlobalConfig() *GlobalConfig {
	return &GlobalConfig{Servers: make(map[string]*GlobalServerEntry)}
}

// Names returns server names in lexical order.
func (c *GlobalConfig) Names() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy.
func (c *GlobalConfig) Clone() *GlobalConfig {
	out := NewGlobalConfig()
	for name, entry := range c.Servers {
		if entry == nil {
			continue
		}
		cp := *entry
		cp.Args = append([]string(nil), entry.Args...)
		if entry.Env != nil {
			cp.Env = make(map[string]string, len(entry.Env))
			for k, v := range entry.Env {
				cp.Env[k] = v
			}
		}
		out.Servers[name] = &cp
	}
	return out
}

// Validate validates the entire configuration.
func (c *GlobalConfig) Validate() error {
	for _, name := range c.Names() {
		if err := ValidateServerName(name); err != nil {
			return fmt.Errorf("server %q: %w", name, err)
		}
		entry := c.Servers[name]
		if entry == nil {
			return fmt.Errorf("server %q: entry is empty", name)
		}
		if err := entry.Validate(); err != nil {
			return fmt.Errorf("server %q: %w", name, err)
		}
	}
	return nil
}

// Validate validates a single server entry.
func (e *GlobalServerEntry) Validate() error {
	if strings.TrimSpace(e.Command) == "" {
		return fmt.Errorf("command is required")
	}
	if e.Type != "" && !strings.EqualFold(e.Type, TransportStdio) {
		return fmt.Errorf("unsupported type %q (only %q is supported)", e.Type, TransportStdio)
	}
	return ValidateEnv(e.Env)
}

// ToDefinition converts the entry into a ServerDefinition.
func (e *GlobalServerEntry) ToDefinition(name string) ServerDefinition {
	enabled := !e.Disabled
	def := ServerDefinition{
		Name:      name,
		Command:   e.Command,
		Args:      e.Args,
		Env:       e.Env,
		Transport: e.Type,
		Enabled:   &enabled,
		Source:    SourceGlobal,
	}
	return def.clone()
}

// ValidateDefinition checks a definition before it is started.
func ValidateDefinition(def ServerDefinition) error {
	if err := ValidateServerName(def.Name); err != nil {
		return err
	}
	if strings.TrimSpace(def.Command) == "" {
		return fmt.Errorf("command is required")
	}
	if def.TransportKind() != TransportStdio {
		return fmt.Errorf("unsupported transport %q (only %q is supported)", def.Transport, TransportStdio)
	}
	return ValidateEnv(def.Env)
}

// ValidateServerName validates an MCP server name.
func ValidateServerName(name string) error {
	if name == "" {
		return fmt.Errorf("server name is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("server name exceeds 64 character limit")
	}
	if !ServerNameRegex.MatchString(name) {
		return fmt.Errorf("invalid server name: must start with a letter and contain only letters, numbers, hyphens, and underscores")
	}
	return nil
}

// ValidateEnv validates environment override keys.
func ValidateEnv(env map[string]string) error {
	for key := range env {
		if !envKeyRegex.MatchString(key) {
			return fmt.Errorf("invalid environment variable key: %q", key)
		}
	}
	return nil
}

// ValidateCommand checks that a command can be found and executed.
func ValidateCommand(cmd string) error {
	if cmd == "" {
		return fmt.Errorf("command is required")
	}

	if filepath.IsAbs(cmd) {
		info, err := os.Stat(cmd)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("command not found: %s", cmd)
			}
			return fmt.Errorf("cannot access command: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("command is a directory: %s", cmd)
		}
		if info.Mode()&0111 == 0 {
			return fmt.Errorf("command is not executable: %s", cmd)
		}
		return nil
	}

	if _, err := exec.LookPath(cmd); err != nil {
		return fmt.Errorf("command not found in PATH: %s", cmd)
	}
	return nil
}

// envRefRegex matches a ${NAME} reference.
var envRefRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces ${VAR} references in values using lookup. Unset
// variables expand to the empty string. Any other "$" is kept as written.
func ExpandEnv(env map[string]string, lookup func(string) (string, bool)) map[string]string {
	if env == nil {
		return nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = envRefRegex.ReplaceAllStringFunc(v, func(ref string) string {
			val, _ := lookup(ref[2 : len(ref)-1])
			return val
		})
	}
	return out
}

// sensitiveKeyPatterns are patterns that indicate a sensitive value.
var sensitiveKeyPatterns = []string{
	"SECRET", "TOKEN", "KEY", "PASSWORD", "CREDENTIAL", "AUTH",
}

// IsSensitiveEnvKey returns true if the key appears to contain sensitive data.
func IsSensitiveEnvKey(key string) bool {
	upperKey := strings.ToUpper(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(upperKey, pattern) {
			return true
		}
	}
	return false
}

// RedactEnv returns a copy of env with sensitive values masked.
func RedactEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		if IsSensitiveEnvKey(k) {
			out[k] = "***REDACTED***"
		} else {
			out[k] = v
		}
	}
	return out
}
