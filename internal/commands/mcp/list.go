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
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/mcphost/internal/commands/shared"
	"github.com/tombee/mcphost/internal/mcp"
)

// serverListing is one row of 'mcp list'.
type serverListing struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Enabled bool              `json:"enabled"`
}

// newMCPListCommand creates the 'mcp list' command.
func newMCPListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List servers in the global configuration",
		Long: `List every server in the global configuration with its enabled state.
Sensitive environment values are redacted.

See also: mcphost mcp add, mcphost mcp status`,
		Example: `  # List configured servers
  mcphost mcp list

  # Extract server names for scripting
  mcphost mcp list --json | jq -r '.servers[].name'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPList(cmd)
		},
	}

	return cmd
}

func runMCPList(cmd *cobra.Command) error {
	store, err := shared.OpenStore()
	if err != nil {
		return err
	}
	cfg, err := store.Load()
	if err != nil {
		return err
	}

	servers := make([]serverListing, 0, len(cfg.Servers))
	for _, name := range cfg.Names() {
		entry := cfg.Servers[name]
		if entry == nil {
			continue
		}
		servers = append(servers, serverListing{
			Name:    name,
			Command: entry.Command,
			Args:    entry.Args,
			Env:     mcp.RedactEnv(entry.Env),
			Enabled: !entry.Disabled,
		})
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		return shared.EmitJSON(out, struct {
			shared.JSONResponse
			Path    string          `json:"path"`
			Servers []serverListing `json:"servers"`
		}{shared.NewJSONResponse("mcp list"), store.Path, servers})
	}

	if len(servers) == 0 {
		fmt.Fprintln(out, "No MCP servers configured.")
		fmt.Fprintln(out, "\nTo add a server:")
		fmt.Fprintln(out, "  mcphost mcp add <name> --command <cmd>")
		return nil
	}

	fmt.Fprintf(out, "%-20s %-10s %s\n", "NAME", "STATUS", "COMMAND")
	fmt.Fprintln(out, strings.Repeat("-", 70))
	for _, s := range servers {
		status := "enabled"
		if !s.Enabled {
			status = "disabled"
		}
		command := strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
		fmt.Fprintf(out, "%-20s %-10s %s\n", truncate(s.Name, 20), status, truncate(command, 40))
	}
	return nil
}
