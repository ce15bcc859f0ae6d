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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ConfigStore persists the global server configuration. Each Load reads the
// backing store afresh; nothing is cached across calls.
type ConfigStore interface {
	Load() (*GlobalConfig, error)
	Save(cfg *GlobalConfig) error
}

// FileStore keeps the configuration in a single file. Paths ending in .yaml
// or .yml are YAML; anything else is JSON, with comments and trailing commas
// tolerated on read.
type FileStore struct {
	Path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.Path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads the configuration. A missing file yields an empty configuration.
func (s *FileStore) Load() (*GlobalConfig, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewGlobalConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return decodeGlobalConfig(data, s.isYAML())
}

// Save writes the configuration atomically with owner-only permissions.
func (s *FileStore) Save(cfg *GlobalConfig) error {
	data, err := encodeGlobalConfig(cfg, s.isYAML())
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if err := os.Rename(tmpPath, s.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

func decodeGlobalConfig(data []byte, isYAML bool) (*GlobalConfig, error) {
	cfg := NewGlobalConfig()
	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}

	var err error
	if isYAML {
		err = yaml.Unmarshal(data, &cfg.Servers)
	} else {
		err = json.Unmarshal(jsonc.ToJSON(data), &cfg.Servers)
	}
	if err != nil {
		return nil, ErrInvalidConfig(fmt.Sprintf("failed to parse config file: %v", err)).WithCause(err)
	}
	if cfg.Servers == nil {
		cfg.Servers = make(map[string]*GlobalServerEntry)
	}
	return cfg, nil
}

func encodeGlobalConfig(cfg *GlobalConfig, isYAML bool) ([]byte, error) {
	servers := cfg.Servers
	if servers == nil {
		servers = map[string]*GlobalServerEntry{}
	}
	if isYAML {
		data, err := yaml.Marshal(servers)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal config: %w", err)
		}
		return data, nil
	}
	data, err := json.MarshalIndent(servers, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return append(data, '\n'), nil
}

// MemoryStore is an in-memory ConfigStore.
type MemoryStore struct {
	mu    sync.Mutex
	cfg   *GlobalConfig
	loads int
}

// NewMemoryStore returns a store holding a copy of cfg.
func NewMemoryStore(cfg *GlobalConfig) *MemoryStore {
	if cfg == nil {
		cfg = NewGlobalConfig()
	}
	return &MemoryStore{cfg: cfg.Clone()}
}

// Load returns a copy of the stored configuration.
func (s *MemoryStore) Load() (*GlobalConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return s.cfg.Clone(), nil
}

// Save replaces the stored configuration with a copy of cfg.
func (s *MemoryStore) Save(cfg *GlobalConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.Clone()
	return nil
}

// Loads reports how many times Load was called.
func (s *MemoryStore) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// update applies fn to a freshly loaded configuration and saves the result.
func update(store ConfigStore, fn func(cfg *GlobalConfig) error) error {
	cfg, err := store.Load()
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	return store.Save(cfg)
}

// AddServer adds a new server to the global configuration.
func AddServer(store ConfigStore, name string, entry GlobalServerEntry) error {
	if err := ValidateServerName(name); err != nil {
		return ErrInvalidServerName(name).WithCause(err)
	}
	if err := entry.Validate(); err != nil {
		return ErrInvalidConfig(err.Error()).WithServer(name).WithCause(err)
	}
	return update(store, func(cfg *GlobalConfig) error {
		if _, exists := cfg.Servers[name]; exists {
			return ErrServerAlreadyExists(name)
		}
		if entry.Type == "" {
			entry.Type = TransportStdio
		}
		cfg.Servers[name] = &entry
		return nil
	})
}

// RemoveServer deletes a server from the global configuration.
func RemoveServer(store ConfigStore, name string) error {
	return update(store, func(cfg *GlobalConfig) error {
		if _, exists := cfg.Servers[name]; !exists {
			return ErrServerNotFound(name)
		}
		delete(cfg.Servers, name)
		return nil
	})
}

// EnableServer clears the disabled flag of a server.
func EnableServer(store ConfigStore, name string) error {
	return setDisabled(store, name, false)
}

// DisableServer sets the disabled flag of a server.
func DisableServer(store ConfigStore, name string) error {
	return setDisabled(store, name, true)
}

func setDisabled(store ConfigStore, name string, disabled bool) error {
	return update(store, func(cfg *GlobalConfig) error {
		entry, exists := cfg.Servers[name]
		if !exists || entry == nil {
			return ErrServerNotFound(name)
		}
		entry.Disabled = disabled
		return nil
	})
}
