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

// Package config locates mcphost's configuration files.
package config

import (
	"os"
	"path/filepath"
)

// AppName is the directory name used under the XDG config home.
const AppName = "mcphost"

// MCPServersFile is the file name of the global server configuration.
const MCPServersFile = "mcp-servers.json"

// ConfigDir returns the XDG config directory for mcphost, creating it if
// needed. On every platform this is $XDG_CONFIG_HOME/mcphost, falling back to
// ~/.config/mcphost.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}

	configDir := filepath.Join(base, AppName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", err
	}
	return configDir, nil
}

// MCPServersPath returns the full path to the global server configuration.
// MCPHOST_CONFIG overrides the default location.
func MCPServersPath() (string, error) {
	if path := os.Getenv("MCPHOST_CONFIG"); path != "" {
		return path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, MCPServersFile), nil
}
