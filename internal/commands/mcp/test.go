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
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/mcphost/internal/commands/shared"
	"github.com/tombee/mcphost/internal/mcp"
)

// testReport is the JSON form of 'mcp test'.
type testReport struct {
	shared.JSONResponse
	Server     string   `json:"server"`
	Source     string   `json:"source"`
	Passed     bool     `json:"passed"`
	ServerName string   `json:"server_name,omitempty"`
	Version    string   `json:"server_version,omitempty"`
	Protocol   string   `json:"protocol_version,omitempty"`
	StartupMs  int64    `json:"startup_ms"`
	Tools      []string `json:"tools"`
	Error      string   `json:"error,omitempty"`
	StderrTail []string `json:"stderr_tail,omitempty"`
}

func newMCPTestCommand(opts *runtimeOptions) *cobra.Command {
	var bundled string

	cmd := &cobra.Command{
		Use:   "test <name>",
		Short: "Start one server and report its handshake",
		Long: `Test a server by starting it and verifying it completes the MCP handshake.

The test will:
1. Resolve the server's definition
2. Start the process, send initialize and list its tools
3. Stop the server

On failure the last lines the server wrote to stderr are shown.`,
		Example: `  mcphost mcp test github
  mcphost mcp test calc --bundled agent-servers.yaml --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPTest(cmd, opts, args[0], bundled)
		},
	}

	cmd.Flags().StringVar(&bundled, "bundled", "", "YAML or JSON file of bundled server definitions")

	return cmd
}

func runMCPTest(cmd *cobra.Command, opts *runtimeOptions, name, bundledPath string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	r := newRun(cmd, opts)
	res, err := r.resolve(bundledPath)
	if err != nil {
		return err
	}

	def, ok := findDefinition(res, name)
	if !ok {
		for _, w := range res.Warnings {
			if w.Server == name {
				return shared.NewUsageError(fmt.Sprintf("server %s cannot be tested", name), fmt.Errorf("%s", w.Reason))
			}
		}
		return mcp.ErrServerNotFound(name)
	}

	steps := !shared.GetJSON() && !shared.GetQuiet()
	out := r.out()
	report := testReport{
		JSONResponse: shared.NewJSONResponse("mcp test"),
		Server:       name,
		Source:       string(def.Source),
		Tools:        []string{},
	}

	if steps {
		fmt.Fprintf(out, "Testing MCP server: %s\n\n", name)
		fmt.Fprintf(out, "1. Resolving configuration... OK (%s)\n", def.Source)
		fmt.Fprint(out, "2. Starting server and handshake... ")
	}

	start := time.Now()
	started, err := r.start(ctx, []mcp.ServerDefinition{def})
	defer r.shutdown()
	if err != nil {
		return err
	}
	report.StartupMs = time.Since(start).Milliseconds()

	if len(started.Failed) > 0 {
		failure := started.Failed[0]
		report.Success = false
		report.Error = failure.Reason
		report.StderrTail = failure.StderrTail
		if shared.GetJSON() {
			if err := shared.EmitJSON(out, report); err != nil {
				return err
			}
		} else if steps {
			fmt.Fprintln(out, shared.Render(shared.StatusError, "FAILED"))
		}
		return shared.NewServerFailedError(fmt.Sprintf("test failed for MCP server %s", name), failure.Err)
	}

	sess, _ := r.manager.Session(name)
	info := sess.ServerInfo()
	report.ServerName = info.Name
	report.Version = info.Version
	report.Protocol = info.ProtocolVersion
	for _, tool := range sess.Tools() {
		report.Tools = append(report.Tools, tool.Name)
	}

	if steps {
		fmt.Fprintf(out, "OK (%s %s, protocol %s, %dms)\n", info.Name, info.Version, info.ProtocolVersion, report.StartupMs)
		fmt.Fprintf(out, "   %d tools found\n", len(report.Tools))
		for _, tool := range sess.Tools() {
			desc := tool.Description
			if len(desc) > 50 {
				desc = desc[:47] + "..."
			}
			fmt.Fprintf(out, "   - %s: %s\n", mcp.NamespacedToolName(name, tool.Name), desc)
		}
		fmt.Fprint(out, "\n3. Stopping server... ")
	}

	if err := r.manager.StopServer(ctx, name); err != nil {
		if steps {
			fmt.Fprintln(out, shared.Render(shared.StatusError, "FAILED"))
		}
		return err
	}

	report.Passed = true
	if shared.GetJSON() {
		return shared.EmitJSON(out, report)
	}
	if steps {
		fmt.Fprintln(out, "OK")
		fmt.Fprintf(out, "\n%s\n", shared.RenderOK("Test PASSED for MCP server: "+name))
	}
	return nil
}

func findDefinition(res *mcp.Resolution, name string) (mcp.ServerDefinition, bool) {
	for _, def := range res.Definitions {
		if def.Name == name {
			return def, true
		}
	}
	return mcp.ServerDefinition{}, false
}
