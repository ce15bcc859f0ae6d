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

// Package mcpserver provides the command that runs the calculator MCP server.
package mcpserver

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/mcphost/internal/commands/shared"
	"github.com/tombee/mcphost/internal/mcp/server"
)

// NewCommand creates the mcp-calculator command
func NewCommand() *cobra.Command {
	var (
		logLevel       string
		callsPerMinute int
	)

	cmd := &cobra.Command{
		Use:   "mcp-calculator",
		Short: "Run the calculator MCP server on stdio",
		Long: `Run a small MCP (Model Context Protocol) tool server on stdin/stdout.

The server is the reference stdio server for mcphost. It exposes these tools:
  - add, subtract, multiply, divide: arithmetic on numbers a and b
  - echo: returns "Echo: <text>"

Register it as a global server:
  mcphost mcp add calculator --command mcp-calculator

Logs are written to stderr so they never interfere with the protocol.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), logLevel, callsPerMinute)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Logging verbosity (debug, info, warn, error)")
	cmd.Flags().IntVar(&callsPerMinute, "calls-per-minute", server.DefaultCallsPerMinute, "Maximum tool calls per minute")

	return cmd
}

func runServer(ctx context.Context, logLevel string, callsPerMinute int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	versionStr, _, _ := shared.GetVersion()

	srv, err := server.NewServer(server.ServerConfig{
		Name:           "calculator",
		Version:        versionStr,
		LogLevel:       logLevel,
		CallsPerMinute: callsPerMinute,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	// SIGTERM from the host ends the server; stdin EOF ends it too.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
