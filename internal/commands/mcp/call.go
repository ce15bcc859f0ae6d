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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/mcphost/internal/commands/shared"
	"github.com/tombee/mcphost/internal/jq"
	"github.com/tombee/mcphost/internal/mcp"
	pkgerrors "github.com/tombee/mcphost/pkg/errors"
)

// newMCPCallCommand creates the 'mcp call' command.
func newMCPCallCommand(opts *runtimeOptions) *cobra.Command {
	var bundled, argsJSON, filter string

	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Call one tool by its namespaced name",
		Long: `Start the server that owns a namespaced tool, call the tool once with the
given arguments, print the result, and shut the server down.

Text content is printed as-is. With --jq the full result document
({"content": [...], "isError": ..., "structuredContent": ...}) is filtered
through a jq expression; "content" and "isError" are always present even when
the server left them out. A result with isError set exits with status 4.`,
		Example: `  mcphost mcp call mcp_calc_add --args '{"a": 15, "b": 27}'
  mcphost mcp call mcp_github_search_repositories --args '{"query": "mcp"}' --jq '.content[0].text'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPCall(cmd, opts, args[0], bundled, argsJSON, filter)
		},
	}

	cmd.Flags().StringVar(&bundled, "bundled", "", "YAML or JSON file of bundled server definitions")
	cmd.Flags().StringVar(&argsJSON, "args", "{}", "Tool arguments as a JSON object")
	cmd.Flags().StringVar(&filter, "jq", "", "jq expression applied to the result document")

	return cmd
}

func runMCPCall(cmd *cobra.Command, opts *runtimeOptions, name, bundledPath, argsJSON, filter string) error {
	var inputs map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &inputs); err != nil || inputs == nil {
		return shared.NewUsageError("invalid --args", &pkgerrors.ValidationError{
			Field:   "args",
			Message: "must be a JSON object",
			Hint:    `Pass arguments such as --args '{"a": 1}'`,
		})
	}

	var jqFilter *jq.Filter
	if filter != "" {
		var err error
		if jqFilter, err = jq.Compile(filter); err != nil {
			return shared.NewUsageError("invalid --jq", err)
		}
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	r := newRun(cmd, opts)
	res, err := r.resolve(bundledPath)
	if err != nil {
		return err
	}

	// Only servers whose prefix matches can own the tool.
	var owners []mcp.ServerDefinition
	for _, def := range res.Definitions {
		if strings.HasPrefix(name, mcp.NamespacedToolName(def.Name, "")) {
			owners = append(owners, def)
		}
	}
	if len(owners) == 0 {
		return mcp.ErrUnknownTool(name)
	}

	report, err := r.start(ctx, owners)
	defer r.shutdown()
	if err != nil {
		return err
	}

	result, err := r.manager.CallTool(ctx, name, json.RawMessage(argsJSON))
	if err != nil {
		if len(report.Failed) > 0 && pkgerrors.Is(err, mcp.ErrToolNotFound) {
			return shared.NewServerFailedError(fmt.Sprintf("tool %s unavailable: its server failed to start", name), err)
		}
		return err
	}

	out := r.out()
	switch {
	case jqFilter != nil:
		if err := printFiltered(ctx, out, jqFilter, result); err != nil {
			return err
		}
	case shared.GetJSON():
		if err := shared.EmitJSON(out, struct {
			shared.JSONResponse
			Tool   string          `json:"tool"`
			Result *mcp.ToolResult `json:"result"`
		}{shared.NewJSONResponse("mcp call"), name, result}); err != nil {
			return err
		}
	default:
		fmt.Fprintln(out, mcp.RenderResult(result))
	}

	if result.IsError {
		return shared.NewToolError(fmt.Sprintf("tool %s reported an error", name))
	}
	return nil
}

// printFiltered prints each filter output on its own line, strings bare and
// everything else as JSON.
func printFiltered(ctx context.Context, out io.Writer, filter *jq.Filter, result *mcp.ToolResult) error {
	values, err := filter.Apply(ctx, result)
	if err != nil {
		return shared.NewUsageError("jq failed", err)
	}

	for _, v := range values {
		if s, ok := v.(string); ok {
			fmt.Fprintln(out, s)
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode jq output: %w", err)
		}
		fmt.Fprintln(out, string(data))
	}
	return nil
}
