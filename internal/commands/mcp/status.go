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

// newMCPStatusCommand creates the 'mcp status' command.
func newMCPStatusCommand(opts *runtimeOptions) *cobra.Command {
	var bundled string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Start servers and print session state",
		Long: `Resolve and start every enabled server, then print each session's state,
process id, tool count and server identity. Failed sessions include the
error and the last lines the server wrote to stderr.`,
		Example: `  mcphost mcp status
  mcphost mcp status --bundled agent-servers.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPStatus(cmd, opts, bundled)
		},
	}

	cmd.Flags().StringVar(&bundled, "bundled", "", "YAML or JSON file of bundled server definitions")

	return cmd
}

func runMCPStatus(cmd *cobra.Command, opts *runtimeOptions, bundledPath string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	r := newRun(cmd, opts)
	res, err := r.resolve(bundledPath)
	if err != nil {
		return err
	}

	// Failures are part of the table below.
	r.silentFailures = true
	report, err := r.start(ctx, res.Definitions)
	defer r.shutdown()
	if err != nil {
		return err
	}

	sessions := r.manager.Sessions()
	out := r.out()

	if shared.GetJSON() {
		if sessions == nil {
			sessions = []mcp.SessionStatus{}
		}
		if err := shared.EmitJSON(out, struct {
			shared.JSONResponse
			RunID    string               `json:"run_id"`
			Sessions []mcp.SessionStatus  `json:"sessions"`
			Warnings []mcp.ResolveWarning `json:"warnings,omitempty"`
		}{shared.NewJSONResponse("mcp status"), r.manager.RunID(), sessions, res.Warnings}); err != nil {
			return err
		}
	} else {
		printStatus(r, sessions)
	}

	if len(report.Failed) > 0 {
		return shared.NewServerFailedError(fmt.Sprintf("%d of %d servers failed to start", len(report.Failed), len(res.Definitions)), nil)
	}
	return nil
}

func printStatus(r *run, sessions []mcp.SessionStatus) {
	out := r.out()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No MCP servers to start.")
		fmt.Fprintln(out, "\nTo add a server:")
		fmt.Fprintln(out, "  mcphost mcp add <name> --command <cmd>")
		return
	}

	fmt.Fprintf(out, "%-20s %-8s %-12s %-8s %-6s %s\n", "NAME", "SOURCE", "STATE", "PID", "TOOLS", "SERVER")
	fmt.Fprintln(out, strings.Repeat("-", 78))
	for _, s := range sessions {
		pid := "-"
		if s.PID > 0 {
			pid = fmt.Sprintf("%d", s.PID)
		}
		server := strings.TrimSpace(s.Server + " " + s.Version)
		// Pad outside the styled text so escape codes do not break alignment.
		state := shared.RenderState(string(s.State)) + strings.Repeat(" ", max(0, 12-len(s.State)))
		fmt.Fprintf(out, "%-20s %-8s %s %-8s %-6d %s\n",
			truncate(s.Name, 20), s.Source, state, pid, s.Tools, server)
	}

	for _, s := range sessions {
		if s.LastError == "" {
			continue
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, shared.Render(shared.Bold, s.Name+":"))
		fmt.Fprintf(out, "  %s %s\n", shared.RenderLabel("Error:"), shared.Render(shared.StatusError, s.LastError))
		if len(s.StderrTail) > 0 {
			fmt.Fprintf(out, "  %s\n", shared.RenderLabel("Stderr:"))
			for _, line := range s.StderrTail {
				fmt.Fprintf(out, "    %s\n", line)
			}
		}
	}
}
