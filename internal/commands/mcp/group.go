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
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/mcphost/internal/commands/shared"
	"github.com/tombee/mcphost/internal/mcp"
)

// NewMCPCommand creates the mcp command for MCP server management.
func NewMCPCommand() *cobra.Command {
	opts := &runtimeOptions{}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Manage and run MCP (Model Context Protocol) servers",
		Long: `Manage the global MCP server configuration and run servers in-process.

Commands that start servers resolve bundled definitions (--bundled) ahead of
the global configuration, start every server concurrently, and shut them all
down before exiting.`,
	}
	cmd.AddGroup(shared.Groups()...)

	cmd.PersistentFlags().DurationVar(&opts.startTimeout, "start-timeout", mcp.DefaultStartTimeout, "Deadline for each server's handshake and tool discovery")
	cmd.PersistentFlags().DurationVar(&opts.callTimeout, "call-timeout", mcp.DefaultCallTimeout, "Deadline for each tool call")
	cmd.PersistentFlags().DurationVar(&opts.shutdownGrace, "shutdown-grace", mcp.DefaultShutdownGrace, "Time a server gets to exit before it is killed")

	for _, sub := range []*cobra.Command{
		newMCPListCommand(),
		newMCPAddCommand(),
		newMCPRemoveCommand(),
		newMCPEnableCommand(),
		newMCPDisableCommand(),
	} {
		cmd.AddCommand(shared.InGroup(sub, shared.GroupConfig))
	}
	for _, sub := range []*cobra.Command{
		newMCPToolsCommand(opts),
		newMCPCallCommand(opts),
		newMCPTestCommand(opts),
		newMCPStatusCommand(opts),
	} {
		cmd.AddCommand(shared.InGroup(sub, shared.GroupRuntime))
	}

	return cmd
}

// runtimeOptions are the manager settings shared by commands that start servers.
type runtimeOptions struct {
	startTimeout  time.Duration
	callTimeout   time.Duration
	shutdownGrace time.Duration
}
