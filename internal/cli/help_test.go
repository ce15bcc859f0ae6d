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

package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcphost/internal/commands/shared"
)

func newHelpTestRoot() *cobra.Command {
	rootCmd := NewRootCommand()

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Manage MCP servers",
	}
	mcpCmd.AddGroup(shared.Groups()...)
	mcpCmd.PersistentFlags().Duration("start-timeout", 0, "Handshake deadline")

	addCmd := &cobra.Command{
		Use:     "add <name>",
		Short:   "Add a server",
		Example: "  mcphost mcp add calc --command mcp-calculator",
		RunE:    func(*cobra.Command, []string) error { return nil },
	}
	addCmd.Flags().String("command", "", "Command to run")
	_ = addCmd.MarkFlagRequired("command")
	addCmd.Flags().StringArray("args", nil, "Arguments")

	callCmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Call a tool",
		RunE:  func(*cobra.Command, []string) error { return nil },
	}
	callCmd.Flags().String("jq", "", "Filter")

	mcpCmd.AddCommand(shared.InGroup(addCmd, shared.GroupConfig), shared.InGroup(callCmd, shared.GroupRuntime))
	rootCmd.AddCommand(mcpCmd)

	rootCmd.SetHelpCommand(NewHelpCommand(rootCmd))
	return rootCmd
}

func findCommand(resp HelpResponse, path string) *CommandMetadata {
	for i := range resp.Commands {
		if resp.Commands[i].Path == path {
			return &resp.Commands[i]
		}
	}
	return nil
}

func runHelp(t *testing.T, args ...string) HelpResponse {
	t.Helper()
	rootCmd := newHelpTestRoot()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append([]string{"help"}, args...))

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var resp HelpResponse
	if err := json.NewDecoder(strings.NewReader(buf.String())).Decode(&resp); err != nil {
		t.Fatalf("Failed to parse JSON output: %v\nOutput: %s", err, buf.String())
	}
	return resp
}

func TestHelpCommandJSON_AllCommands(t *testing.T) {
	resp := runHelp(t, "--json")

	assert.Equal(t, "1.0", resp.Version)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.DocsURL)
	assert.Nil(t, resp.Command)

	mcpCmd := findCommand(resp, "mcphost mcp")
	require.NotNil(t, mcpCmd, "mcp command missing from help output")
	assert.Equal(t, []string{"add", "call"}, mcpCmd.Subcommands)
	assert.False(t, mcpCmd.StartsServers)

	add := findCommand(resp, "mcphost mcp add")
	require.NotNil(t, add, "nested commands are flattened into the catalog")
	assert.Equal(t, shared.GroupConfig, add.GroupID)
	assert.Equal(t, "Configuration Commands", add.Group)
	assert.False(t, add.StartsServers)

	call := findCommand(resp, "mcphost mcp call")
	require.NotNil(t, call)
	assert.Equal(t, shared.GroupRuntime, call.GroupID)
	assert.Equal(t, "Server Commands", call.Group)
	assert.True(t, call.StartsServers)
	assert.Equal(t, docsBaseURL+"/reference/cli/mcphost-mcp-call", call.DocsURL)

	names := map[string]bool{}
	for _, f := range resp.GlobalFlags {
		names[f.Name] = true
	}
	for _, want := range []string{"verbose", "quiet", "json", "config"} {
		assert.True(t, names[want], "global flag %q missing", want)
	}

	assert.Equal(t, shared.ExitCodes(), resp.ExitCodes)
}

func TestHelpCommandJSON_NestedCommand(t *testing.T) {
	resp := runHelp(t, "mcp", "add", "--json")

	require.NotNil(t, resp.Command)
	assert.Equal(t, "add", resp.Command.Name)
	assert.Equal(t, "mcphost mcp add", resp.Command.Path)
	assert.NotEmpty(t, resp.Command.Examples)
	assert.Equal(t, resp.Command.DocsURL, resp.DocsURL)

	flags := map[string]FlagMetadata{}
	for _, f := range resp.Command.Flags {
		flags[f.Name] = f
	}
	assert.True(t, flags["command"].Required, "--command should be reported as required")
	assert.False(t, flags["args"].Required)

	timeout, ok := flags["start-timeout"]
	require.True(t, ok, "flags inherited from mcp are listed")
	assert.True(t, timeout.Inherited)

	for _, global := range []string{"verbose", "json", "config"} {
		_, ok := flags[global]
		assert.False(t, ok, "root flag %q belongs in global_flags only", global)
	}
}

func TestHelpCommandJSON_ExitCodes(t *testing.T) {
	resp := runHelp(t, "--json")

	codes := map[int]string{}
	for _, c := range resp.ExitCodes {
		codes[c.Code] = c.Meaning
	}
	for _, code := range []int{shared.ExitSuccess, shared.ExitFailure, shared.ExitUsage, shared.ExitServerFailed, shared.ExitToolError} {
		assert.NotEmpty(t, codes[code], "exit code %d undocumented", code)
	}
}

func TestHelpCommandHumanOutput(t *testing.T) {
	rootCmd := newHelpTestRoot()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"help"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Error("Expected human output, got JSON")
	}
	if !strings.Contains(buf.String(), "mcphost") {
		t.Error("Expected root help text")
	}
}

func TestHelpCommand_UnknownCommand(t *testing.T) {
	rootCmd := newHelpTestRoot()
	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"help", "nope"})

	if err := rootCmd.Execute(); err == nil {
		t.Error("expected an error for an unknown command")
	}
}
