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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// BundledServer is a server record shipped with an agent.
type BundledServer struct {
	Name    string            `json:"name" yaml:"name"`
	Command string            `json:"command" yaml:"command"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Type    string            `json:"type,omitempty" yaml:"type,omitempty"`
}

// ToDefinition converts the record into a ServerDefinition.
func (b BundledServer) ToDefinition() ServerDefinition {
	def := ServerDefinition{
		Name:      b.Name,
		Command:   b.Command,
		Args:      b.Args,
		Env:       b.Env,
		Transport: b.Type,
		Source:    SourceBundled,
	}
	return def.clone()
}

// LoadBundled reads a list of bundled server records from a YAML or JSON file.
func LoadBundled(path string) ([]BundledServer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundled servers: %w", err)
	}

	var servers []BundledServer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &servers)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), &servers)
	}
	if err != nil {
		return nil, ErrInvalidConfig(fmt.Sprintf("failed to parse bundled servers %s: %v", path, err)).WithCause(err)
	}
	return servers, nil
}

// ResolveWarning describes a definition left out of a resolution.
type ResolveWarning struct {
	Server string           `json:"server"`
	Source DefinitionSource `json:"source"`
	Reason string           `json:"reason"`
}

func (w ResolveWarning) String() string {
	return fmt.Sprintf("%s server %q skipped: %s", w.Source, w.Server, w.Reason)
}

// Resolution is the outcome of one Resolve call.
type Resolution struct {
	// Definitions are the servers to start, bundled first, then global by name
	Definitions []ServerDefinition
	// Warnings explain every definition that was left out
	Warnings []ResolveWarning
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// Store holds the global configuration; nil means bundled servers only
	Store ConfigStore

	// Logger is used for warnings; defaults to slog.Default()
	Logger *slog.Logger

	// LookupEnv resolves ${VAR} references; defaults to os.LookupEnv
	LookupEnv func(string) (string, bool)
}

// Resolver merges bundled and global server definitions.
type Resolver struct {
	store     ConfigStore
	logger    *slog.Logger
	lookupEnv func(string) (string, bool)
}

// NewResolver creates a resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lookup := cfg.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Resolver{store: cfg.Store, logger: logger, lookupEnv: lookup}
}

// Resolve produces the ordered definitions for one run. Bundled definitions
// win by name. Disabled and invalid definitions are excluded with a warning.
// The global store is read exactly once.
func (r *Resolver) Resolve(bundled []ServerDefinition) *Resolution {
	res := &Resolution{}
	seen := make(map[string]DefinitionSource)

	warn := func(name string, source DefinitionSource, reason string) {
		w := ResolveWarning{Server: name, Source: source, Reason: reason}
		res.Warnings = append(res.Warnings, w)
		r.logger.Warn("mcp server skipped", "server", name, "source", source, "reason", reason)
	}

	for _, def := range bundled {
		def = def.clone()
		def.Source = SourceBundled
		if _, dup := seen[def.Name]; dup {
			warn(def.Name, SourceBundled, "duplicate bundled server name; the first definition is used")
			continue
		}
		seen[def.Name] = SourceBundled
		if err := ValidateDefinition(def); err != nil {
			warn(def.Name, SourceBundled, err.Error())
			continue
		}
		if !def.IsEnabled() {
			warn(def.Name, SourceBundled, "disabled")
			continue
		}
		def.Env = ExpandEnv(def.Env, r.lookupEnv)
		res.Definitions = append(res.Definitions, def)
	}

	if r.store == nil {
		return res
	}

	cfg, err := r.store.Load()
	if err != nil {
		warn("*", SourceGlobal, fmt.Sprintf("global configuration unavailable: %v", err))
		return res
	}

	for _, name := range cfg.Names() {
		entry := cfg.Servers[name]
		if _, taken := seen[name]; taken {
			r.logger.Debug("global mcp server shadowed by bundled server", "server", name)
			continue
		}
		if entry == nil {
			warn(name, SourceGlobal, "entry is empty")
			continue
		}
		if entry.Disabled {
			r.logger.Debug("global mcp server disabled", "server", name)
			continue
		}
		def := entry.ToDefinition(name)
		if err := ValidateDefinition(def); err != nil {
			warn(name, SourceGlobal, err.Error())
			continue
		}
		def.Env = ExpandEnv(def.Env, r.lookupEnv)
		seen[name] = SourceGlobal
		res.Definitions = append(res.Definitions, def)
	}
	return res
}
