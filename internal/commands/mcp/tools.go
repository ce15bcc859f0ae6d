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

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/tombee/mcphost/internal/commands/shared"
	"github.com/tombee/mcphost/internal/mcp"
)

// newMCPToolsCommand creates the 'mcp tools' command.
func newMCPToolsCommand(opts *runtimeOptions) *cobra.Command {
	var bundled, match string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Start servers and print the namespaced tool catalog",
		Long: `Resolve and start every enabled server, print the tools they expose under
their namespaced names, then shut the servers down.

Servers that fail to start are reported and their tools are left out; the
command exits with status 3 when any server failed.`,
		Example: `  mcphost mcp tools
  mcphost mcp tools --match 'mcp_github_*'
  mcphost mcp tools --bundled agent-servers.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPTools(cmd, opts, bundled, match)
		},
	}

	cmd.Flags().StringVar(&bundled, "bundled", "", "YAML or JSON file of bundled server definitions")
	cmd.Flags().StringVar(&match, "match", "", "Only show tools whose namespaced name matches this glob")

	return cmd
}

func runMCPTools(cmd *cobra.Command, opts *runtimeOptions, bundledPath, match string) error {
	if match != "" && !doublestar.ValidatePattern(match) {
		return shared.NewUsageError(fmt.Sprintf("invalid --match pattern %q", match), nil)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	r := newRun(cmd, opts)
	res, err := r.resolve(bundledPath)
	if err != nil {
		return err
	}
	report, err := r.start(ctx, res.Definitions)
	defer r.shutdown()
	if err != nil {
		return err
	}

	var tools []mcp.CatalogEntry
	for _, entry := range r.manager.ListTools() {
		if match != "" {
			if ok, _ := doublestar.Match(match, entry.Name); !ok {
				continue
			}
		}
		tools = append(tools, entry)
	}

	out := r.out()
	if shared.GetJSON() {
		if tools == nil {
			tools = []mcp.CatalogEntry{}
		}
		if err := shared.EmitJSON(out, struct {
			shared.JSONResponse
			Tools    []mcp.CatalogEntry   `json:"tools"`
			Failed   []mcp.StartFailure   `json:"failed,omitempty"`
			Warnings []mcp.ResolveWarning `json:"warnings,omitempty"`
		}{shared.NewJSONResponse("mcp tools"), tools, report.Failed, res.Warnings}); err != nil {
			return err
		}
	} else {
		printCatalog(r, tools, len(report.Active))
	}

	if len(report.Failed) > 0 {
		return shared.NewServerFailedError(fmt.Sprintf("%d of %d servers failed to start", len(report.Failed), len(res.Definitions)), nil)
	}
	return nil
}

func printCatalog(r *run, tools []mcp.CatalogEntry, active int) {
	out := r.out()
	if len(tools) == 0 {
		fmt.Fprintf(out, "No tools available from %d active servers.\n", active)
		return
	}

	for _, t := range tools {
		fmt.Fprintf(out, "  %s\n", shared.Render(shared.Bold, t.Name))
		if t.Description != "" {
			for _, line := range strings.Split(wrapText(t.Description, 60), "\n") {
				fmt.Fprintf(out, "    %s\n", line)
			}
		}
	}
	r.notice(shared.RenderLabel(fmt.Sprintf("\n%d tools from %d servers", len(tools), active)))
}
