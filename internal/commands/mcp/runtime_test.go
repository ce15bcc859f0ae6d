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
	"github.com/tombee/mcphost/internal/mcp/mcptest"
)

func TestToolsCommand(t *testing.T) {
	path := configWith(t, map[string]string{"calc": mcptest.ModeCalculator})

	res := execute(t, path, "mcp", "tools")
	require.NoError(t, res.err, res.stderr)
	for _, name := range []string{"mcp_calc_add", "mcp_calc_subtract", "mcp_calc_multiply", "mcp_calc_divide", "mcp_calc_echo"} {
		assert.Contains(t, res.stdout, name)
	}
	assert.Contains(t, res.stderr, "5 tools from 1 servers")

	res = execute(t, path, "--json", "mcp", "tools", "--match", "mcp_calc_[ad]*")
	require.NoError(t, res.err)
	var catalog struct {
		Tools []mcp.CatalogEntry `json:"tools"`
	}
	decodeJSON(t, res.stdout, &catalog)
	var names []string
	for _, tool := range catalog.Tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"mcp_calc_add", "mcp_calc_divide"}, names)

	res = execute(t, path, "mcp", "tools", "--match", "[")
	require.Error(t, res.err)
	assert.Equal(t, shared.ExitUsage, shared.ExitCode(res.err))
}

func TestToolsCommand_FailedServer(t *testing.T) {
	path := configWith(t, map[string]string{
		"calc":   mcptest.ModeCalculator,
		"broken": mcptest.ModeCrash,
	})

	res := execute(t, path, "mcp", "tools")
	require.Error(t, res.err)
	assert.Equal(t, shared.ExitServerFailed, shared.ExitCode(res.err))
	assert.Contains(t, res.stdout, "mcp_calc_add", "healthy servers still contribute tools")
	assert.NotContains(t, res.stdout, "mcp_broken_")
	assert.Contains(t, res.stderr, `server "broken" failed`)
	assert.Contains(t, res.stderr, "fatal: missing API_TOKEN")

	res = execute(t, path, "--json", "mcp", "tools")
	require.Error(t, res.err)
	var catalog struct {
		Failed []mcp.StartFailure `json:"failed"`
	}
	decodeJSON(t, res.stdout, &catalog)
	require.Len(t, catalog.Failed, 1)
	assert.Equal(t, "broken", catalog.Failed[0].Server)
	assert.Equal(t, []string{"fatal: missing API_TOKEN"}, catalog.Failed[0].StderrTail)
}

func TestCallCommand(t *testing.T) {
	path := configWith(t, map[string]string{"calc": mcptest.ModeCalculator})

	t.Run("text result", func(t *testing.T) {
		res := execute(t, path, "mcp", "call", "mcp_calc_add", "--args", `{"a": 15, "b": 27}`)
		require.NoError(t, res.err, res.stderr)
		assert.Equal(t, "42\n", res.stdout)
	})

	t.Run("jq filter", func(t *testing.T) {
		res := execute(t, path, "mcp", "call", "mcp_calc_echo", "--args", `{"text": "hi"}`, "--jq", ".content[0].text")
		require.NoError(t, res.err, res.stderr)
		assert.Equal(t, "Echo: hi\n", res.stdout)

		res = execute(t, path, "mcp", "call", "mcp_calc_echo", "--args", `{"text": "hi"}`, "--jq", ".isError")
		require.NoError(t, res.err)
		assert.Equal(t, "false\n", res.stdout, "isError is present even when the server omits it")

		res = execute(t, path, "mcp", "call", "mcp_calc_add", "--args", `{"a": 1, "b": 2}`, "--jq", ".content[] | {type, text}")
		require.NoError(t, res.err)
		assert.JSONEq(t, `{"type":"text","text":"3"}`, res.stdout)
	})

	t.Run("json output", func(t *testing.T) {
		res := execute(t, path, "--json", "mcp", "call", "mcp_calc_multiply", "--args", `{"a": 6, "b": 7}`)
		require.NoError(t, res.err)
		var out struct {
			Tool   string          `json:"tool"`
			Result *mcp.ToolResult `json:"result"`
		}
		decodeJSON(t, res.stdout, &out)
		assert.Equal(t, "mcp_calc_multiply", out.Tool)
		require.NotNil(t, out.Result)
		require.NotEmpty(t, out.Result.Content)
		assert.Equal(t, "42", out.Result.Content[0].Text)
	})

	t.Run("tool error", func(t *testing.T) {
		res := execute(t, path, "mcp", "call", "mcp_calc_divide", "--args", `{"a": 1, "b": 0}`)
		require.Error(t, res.err)
		assert.Equal(t, shared.ExitToolError, shared.ExitCode(res.err))
		assert.Contains(t, res.stdout, "division by zero")
	})

	t.Run("bad arguments", func(t *testing.T) {
		for _, args := range []string{`[1, 2]`, `not json`, `null`} {
			res := execute(t, path, "mcp", "call", "mcp_calc_add", "--args", args)
			require.Error(t, res.err, args)
			assert.Equal(t, shared.ExitUsage, shared.ExitCode(res.err), args)
		}
	})

	t.Run("bad jq", func(t *testing.T) {
		res := execute(t, path, "mcp", "call", "mcp_calc_add", "--jq", ".[")
		require.Error(t, res.err)
		assert.Equal(t, shared.ExitUsage, shared.ExitCode(res.err))
	})

	t.Run("unknown tool", func(t *testing.T) {
		res := execute(t, path, "mcp", "call", "mcp_other_add")
		require.Error(t, res.err)
		require.NotNil(t, mcp.GetMCPError(res.err))
		assert.Equal(t, mcp.ErrorCodeNotFound, mcp.GetMCPError(res.err).Code)

		res = execute(t, path, "mcp", "call", "mcp_calc_sqrt")
		require.Error(t, res.err)
		assert.Equal(t, mcp.ErrorCodeNotFound, mcp.GetMCPError(res.err).Code)
	})
}

func TestCallCommand_ServerFailed(t *testing.T) {
	path := configWith(t, map[string]string{"broken": mcptest.ModeCrash})

	res := execute(t, path, "mcp", "call", "mcp_broken_add")
	require.Error(t, res.err)
	assert.Equal(t, shared.ExitServerFailed, shared.ExitCode(res.err))
}

func TestCallCommand_Bundled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	bundled := bundledFile(t, "agent", mcptest.ModeCalculator)

	res := execute(t, path, "mcp", "call", "mcp_agent_subtract", "--bundled", bundled, "--args", `{"a": 50, "b": 8}`)
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "42\n", res.stdout)

	res = execute(t, path, "mcp", "call", "mcp_agent_add", "--bundled", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, res.err)
	assert.Equal(t, shared.ExitUsage, shared.ExitCode(res.err))
}

func TestTestCommand(t *testing.T) {
	path := configWith(t, map[string]string{
		"calc":   mcptest.ModeCalculator,
		"broken": mcptest.ModeCrash,
	})

	t.Run("passes", func(t *testing.T) {
		res := execute(t, path, "mcp", "test", "calc")
		require.NoError(t, res.err, res.stderr)
		assert.Contains(t, res.stdout, "Testing MCP server: calc")
		assert.Contains(t, res.stdout, "1. Resolving configuration... OK (global)")
		assert.Contains(t, res.stdout, "OK (calculator")
		assert.Contains(t, res.stdout, "5 tools found")
		assert.Contains(t, res.stdout, "mcp_calc_echo")
		assert.Contains(t, res.stdout, "3. Stopping server... OK")
		assert.Contains(t, res.stdout, "Test PASSED for MCP server: calc")
	})

	t.Run("json", func(t *testing.T) {
		res := execute(t, path, "--json", "mcp", "test", "calc")
		require.NoError(t, res.err)
		var report testReport
		decodeJSON(t, res.stdout, &report)
		assert.True(t, report.Passed)
		assert.Equal(t, "calculator", report.ServerName)
		assert.Equal(t, mcp.DefaultProtocolVersion, report.Protocol)
		assert.Len(t, report.Tools, 5)
	})

	t.Run("fails with stderr", func(t *testing.T) {
		res := execute(t, path, "--json", "mcp", "test", "broken")
		require.Error(t, res.err)
		assert.Equal(t, shared.ExitServerFailed, shared.ExitCode(res.err))

		var report testReport
		decodeJSON(t, res.stdout, &report)
		assert.False(t, report.Passed)
		assert.False(t, report.Success)
		assert.NotEmpty(t, report.Error)
		assert.Equal(t, []string{"fatal: missing API_TOKEN"}, report.StderrTail)
	})

	t.Run("not found", func(t *testing.T) {
		res := execute(t, path, "mcp", "test", "ghost")
		require.Error(t, res.err)
		assert.Equal(t, mcp.ErrorCodeNotFound, mcp.GetMCPError(res.err).Code)
	})

	t.Run("invalid bundled definition", func(t *testing.T) {
		bundled := bundledFile(t, "bad name", mcptest.ModeCalculator)
		res := execute(t, path, "mcp", "test", "bad name", "--bundled", bundled)
		require.Error(t, res.err)
		assert.Equal(t, shared.ExitUsage, shared.ExitCode(res.err))
	})
}

func TestStatusCommand(t *testing.T) {
	path := configWith(t, map[string]string{
		"calc":   mcptest.ModeCalculator,
		"broken": mcptest.ModeCrash,
	})

	res := execute(t, path, "mcp", "status")
	require.Error(t, res.err)
	assert.Equal(t, shared.ExitServerFailed, shared.ExitCode(res.err))
	assert.Contains(t, res.stdout, "NAME")
	assert.Contains(t, res.stdout, "active")
	assert.Contains(t, res.stdout, "failed")
	assert.Contains(t, res.stdout, "calculator")
	assert.Contains(t, res.stdout, "fatal: missing API_TOKEN")
	assert.NotContains(t, res.stderr, `server "broken" failed`, "failures are reported in the table only")

	res = execute(t, path, "--json", "mcp", "status")
	require.Error(t, res.err)
	var out struct {
		RunID    string              `json:"run_id"`
		Sessions []mcp.SessionStatus `json:"sessions"`
	}
	decodeJSON(t, res.stdout, &out)
	assert.NotEmpty(t, out.RunID)
	require.Len(t, out.Sessions, 2)

	states := map[string]mcp.SessionState{}
	for _, s := range out.Sessions {
		states[s.Name] = s.State
	}
	assert.Equal(t, mcp.StateActive, states["calc"])
	assert.Equal(t, mcp.StateFailed, states["broken"])
}

func TestStatusCommand_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")

	res := execute(t, path, "mcp", "status")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "No MCP servers to start.")
}
