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

// Package server implements mcp-calculator, a small MCP tool server used as
// the reference stdio server and in end-to-end tests.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// DefaultCallsPerMinute is the default tool call budget.
const DefaultCallsPerMinute = 600

// Server wraps the MCP server and provides calculator tools
type Server struct {
	mcpServer   *server.MCPServer
	name        string
	version     string
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// ServerConfig configures the MCP server
type ServerConfig struct {
	// Name is the server name (default: "calculator")
	Name string

	// Version is the server version
	Version string

	// LogLevel controls logging verbosity (debug, info, warn, error)
	LogLevel string

	// CallsPerMinute bounds tool calls; zero means DefaultCallsPerMinute
	CallsPerMinute int
}

// createLogger creates a logger with the specified log level.
// Writes to stderr to avoid interfering with MCP stdio protocol.
func createLogger(levelStr string) (*slog.Logger, error) {
	var level slog.Level

	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", levelStr)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(handler), nil
}

// NewServer creates a new MCP server instance
func NewServer(config ServerConfig) (*Server, error) {
	if config.Name == "" {
		config.Name = "calculator"
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	if config.CallsPerMinute <= 0 {
		config.CallsPerMinute = DefaultCallsPerMinute
	}

	logger, err := createLogger(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	s := &Server{
		mcpServer:   server.NewMCPServer(config.Name, config.Version, server.WithToolCapabilities(false)),
		name:        config.Name,
		version:     config.Version,
		rateLimiter: NewRateLimiter(config.CallsPerMinute),
		logger:      logger,
	}
	s.registerTools()
	return s, nil
}

// registerTools registers the calculator tools with the MCP server
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("add",
		mcp.WithDescription("Add two numbers and return the sum"),
		mcp.WithNumber("a", mcp.Required(), mcp.Description("First operand")),
		mcp.WithNumber("b", mcp.Required(), mcp.Description("Second operand")),
	), s.arithmetic("add", func(a, b float64) (float64, error) { return a + b, nil }))

	s.mcpServer.AddTool(mcp.NewTool("subtract",
		mcp.WithDescription("Subtract b from a"),
		mcp.WithNumber("a", mcp.Required(), mcp.Description("Minuend")),
		mcp.WithNumber("b", mcp.Required(), mcp.Description("Subtrahend")),
	), s.arithmetic("subtract", func(a, b float64) (float64, error) { return a - b, nil }))

	s.mcpServer.AddTool(mcp.NewTool("multiply",
		mcp.WithDescription("Multiply two numbers"),
		mcp.WithNumber("a", mcp.Required(), mcp.Description("First factor")),
		mcp.WithNumber("b", mcp.Required(), mcp.Description("Second factor")),
	), s.arithmetic("multiply", func(a, b float64) (float64, error) { return a * b, nil }))

	s.mcpServer.AddTool(mcp.NewTool("divide",
		mcp.WithDescription("Divide a by b"),
		mcp.WithNumber("a", mcp.Required(), mcp.Description("Dividend")),
		mcp.WithNumber("b", mcp.Required(), mcp.Description("Divisor, must not be zero")),
	), s.arithmetic("divide", divide))

	s.mcpServer.AddTool(mcp.NewTool("echo",
		mcp.WithDescription("Echo the given text back"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to echo")),
	), s.handleEcho)
}

// Run serves MCP over the process's stdin and stdout until stdin closes.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve serves MCP over the given streams until in closes or ctx is done.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("Starting MCP calculator server", slog.String("version", s.version))

	stdio := server.NewStdioServer(s.mcpServer)
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	s.logger.Info("MCP calculator server stopped")
	return nil
}

// Helper function to create error response
func errorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// Helper function to create success response
func textResponse(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}
