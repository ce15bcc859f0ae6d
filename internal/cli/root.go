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
	"github.com/spf13/cobra"

	"github.com/tombee/mcphost/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for mcphost
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcphost",
		Short: "mcphost - run MCP tool servers for agents",
		Long: `mcphost launches external MCP tool servers over stdio, discovers their
tools, and exposes them under namespaced names such as mcp_github_create_issue.

Servers come from the global configuration file and from bundled definitions
passed with --bundled. Every command starts the servers it needs and shuts
them down before exiting.

Run 'mcphost mcp add' to register a server.
Run 'mcphost mcp tools' to see the tools it exposes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	verbose, quiet, json, config := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to the global server file (default: ~/.config/mcphost/mcp-servers.json)")

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
