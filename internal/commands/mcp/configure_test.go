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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcphost/internal/commands/shared"
	"github.com/tombee/mcphost/internal/mcp"
)

func TestNewMCPCommand(t *testing.T) {
	cmd := NewMCPCommand()
	assert.Equal(t, "mcp", cmd.Use)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"list", "add", "remove", "enable", "disable", "tools", "call", "test", "status"}, names)

	for _, flag := range []string{"start-timeout", "call-timeout", "shutdown-grace"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}

	runtime := map[string]bool{"tools": true, "call": true, "test": true, "status": true}
	for _, sub := range cmd.Commands() {
		if runtime[sub.Name()] {
			assert.Equal(t, shared.GroupRuntime, sub.GroupID, sub.Name())
			assert.True(t, shared.StartsServers(sub), sub.Name())
		} else {
			assert.Equal(t, shared.GroupConfig, sub.GroupID, sub.Name())
			assert.False(t, shared.StartsServers(sub), sub.Name())
		}
	}
}

func TestConfigCommands_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")

	res := execute(t, path, "mcp", "list")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "No MCP servers configured.")

	res = execute(t, path, "mcp", "add", "github",
		"--command", "npx",
		"--args", "-y", "--args", "@modelcontextprotocol/server-github",
		"--env", "GITHUB_TOKEN=${GITHUB_TOKEN}")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Added MCP server: github")

	res = execute(t, path, "mcp", "disable", "github")
	require.NoError(t, res.err)

	res = execute(t, path, "--json", "mcp", "list")
	require.NoError(t, res.err)
	var listing struct {
		Success bool            `json:"success"`
		Path    string          `json:"path"`
		Servers []serverListing `json:"servers"`
	}
	decodeJSON(t, res.stdout, &listing)
	assert.True(t, listing.Success)
	assert.Equal(t, path, listing.Path)
	require.Len(t, listing.Servers, 1)
	assert.Equal(t, "github", listing.Servers[0].Name)
	assert.False(t, listing.Servers[0].Enabled)
	assert.Equal(t, []string{"-y", "@modelcontextprotocol/server-github"}, listing.Servers[0].Args)
	assert.NotEqual(t, "${GITHUB_TOKEN}", listing.Servers[0].Env["GITHUB_TOKEN"], "sensitive values are redacted")

	res = execute(t, path, "mcp", "enable", "github")
	require.NoError(t, res.err)
	res = execute(t, path, "mcp", "list")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "enabled")

	res = execute(t, path, "mcp", "remove", "github")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Removed MCP server: github")

	cfg, err := mcp.NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Servers)
}

func TestConfigCommands_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"missing command flag", []string{"mcp", "add", "x"}, shared.ExitFailure},
		{"bad env", []string{"mcp", "add", "x", "--command", "npx", "--env", "NOEQUALS"}, shared.ExitUsage},
		{"bad name", []string{"mcp", "add", "1bad", "--command", "npx"}, shared.ExitFailure},
		{"remove unknown", []string{"mcp", "remove", "ghost"}, shared.ExitFailure},
		{"enable unknown", []string{"mcp", "enable", "ghost"}, shared.ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := execute(t, path, tt.args...)
			require.Error(t, res.err)
			assert.Equal(t, tt.code, shared.ExitCode(res.err))
		})
	}

	require.NoError(t, execute(t, path, "mcp", "add", "dup", "--command", "npx").err)
	res := execute(t, path, "mcp", "add", "dup", "--command", "npx")
	require.Error(t, res.err)
	assert.Equal(t, mcp.ErrorCodeAlreadyExists, mcp.GetMCPError(res.err).Code)

	res = execute(t, path, "mcp", "remove", "ghost")
	require.NotNil(t, mcp.GetMCPError(res.err))
	assert.Equal(t, mcp.ErrorCodeNotFound, mcp.GetMCPError(res.err).Code)
}
