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

	"github.com/spf13/cobra"

	"github.com/tombee/mcphost/internal/commands/shared"
	"github.com/tombee/mcphost/internal/mcp"
)

// newMCPAddCommand creates the 'mcp add' command.
func newMCPAddCommand() *cobra.Command {
	var (
		command  string
		args     []string
		env      []string
		disabled bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a server to the global configuration",
		Long: `Add a server to the global configuration file.

Environment values may reference host variables as ${VAR}; they are expanded
each time the server is started, not when it is added.`,
		Example: `  mcphost mcp add github --command npx --args "-y" --args "@modelcontextprotocol/server-github" --env 'GITHUB_TOKEN=${GITHUB_TOKEN}'
  mcphost mcp add calc --command mcp-calculator
  mcphost mcp add py --command python --args server.py --disabled`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			return runMCPAdd(cmd, cmdArgs[0], command, args, env, disabled)
		},
	}

	cmd.Flags().StringVar(&command, "command", "", "Command to run (required)")
	cmd.Flags().StringArrayVar(&args, "args", nil, "Command arguments (can be repeated)")
	cmd.Flags().StringArrayVar(&env, "env", nil, "Environment variables in KEY=VALUE format (can be repeated)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Add the server without enabling it")

	_ = cmd.MarkFlagRequired("command")

	return cmd
}

func runMCPAdd(cmd *cobra.Command, name, command string, args, envPairs []string, disabled bool) error {
	env, err := parseEnv(envPairs)
	if err != nil {
		return shared.NewUsageError("invalid --env", err)
	}

	store, err := shared.OpenStore()
	if err != nil {
		return err
	}

	entry := mcp.GlobalServerEntry{
		Command:  command,
		Args:     args,
		Env:      env,
		Disabled: disabled,
	}
	if err := mcp.AddServer(store, name, entry); err != nil {
		return err
	}

	if shared.GetJSON() {
		return emitChange(cmd, "mcp add", name, store.Path)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Added MCP server: %s", name)))
	if err := mcp.ValidateCommand(command); err != nil && !shared.GetQuiet() {
		fmt.Fprintln(out, shared.RenderWarn(err.Error()))
	}
	fmt.Fprintln(out, "\nTo check the server:")
	fmt.Fprintf(out, "  mcphost mcp test %s\n", name)
	return nil
}

// newMCPRemoveCommand creates the 'mcp remove' command.
func newMCPRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a server from the global configuration",
		Example: `  mcphost mcp remove github`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPChange(cmd, "mcp remove", args[0], mcp.RemoveServer, "Removed MCP server: %s")
		},
	}
}

// newMCPEnableCommand creates the 'mcp enable' command.
func newMCPEnableCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "enable <name>",
		Short:   "Enable a server in the global configuration",
		Example: `  mcphost mcp enable github`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPChange(cmd, "mcp enable", args[0], mcp.EnableServer, "Enabled MCP server: %s")
		},
	}
}

// newMCPDisableCommand creates the 'mcp disable' command.
func newMCPDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <name>",
		Short: "Disable a server without removing it",
		Long: `Disable a server in the global configuration. Disabled servers are skipped
when servers are resolved.`,
		Example: `  mcphost mcp disable github`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPChange(cmd, "mcp disable", args[0], mcp.DisableServer, "Disabled MCP server: %s")
		},
	}
}

func runMCPChange(cmd *cobra.Command, command, name string, change func(mcp.ConfigStore, string) error, done string) error {
	store, err := shared.OpenStore()
	if err != nil {
		return err
	}
	if err := change(store, name); err != nil {
		return err
	}

	if shared.GetJSON() {
		return emitChange(cmd, command, name, store.Path)
	}
	fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf(done, name)))
	return nil
}

func emitChange(cmd *cobra.Command, command, name, path string) error {
	return shared.EmitJSON(cmd.OutOrStdout(), struct {
		shared.JSONResponse
		Server string `json:"server"`
		Path   string `json:"path"`
	}{shared.NewJSONResponse(command), name, path})
}
