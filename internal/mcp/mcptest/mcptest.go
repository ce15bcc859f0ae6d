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

// Package mcptest runs scripted MCP servers for tests. The test binary
// re-executes itself: TestMain calls Main, which serves the requested mode
// and exits when the mode environment variable is set.
//
//	func TestMain(m *testing.M) { mcptest.Main(m) }
//
//	srv := mcptest.Command(mcptest.ModeCalculator)
//	def := mcp.ServerDefinition{Name: "calc", Command: srv.Command, Args: srv.Args, Env: srv.Env}
package mcptest

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"testing"

	"github.com/tombee/mcphost/internal/mcp/server"
)

// ModeEnv selects the server mode in the child process.
const ModeEnv = "MCPTEST_SERVER_MODE"

// Scripted server knobs.
const (
	// ToolPrefixEnv is prepended to every advertised scripted tool name.
	ToolPrefixEnv = "MCPTEST_TOOL_PREFIX"
	// InitDelayEnv delays the initialize response by a time.Duration string.
	InitDelayEnv = "MCPTEST_INIT_DELAY"
)

// Server modes.
const (
	// ModeCalculator serves the real calculator over mcp-go.
	ModeCalculator = "calculator"
	// ModeScripted serves a hand-rolled JSON-RPC loop with test tools.
	ModeScripted = "scripted"
	// ModeCrash writes to stderr and exits with status 3 before reading.
	ModeCrash = "crash"
	// ModeHang reads stdin and never answers.
	ModeHang = "hang"
	// ModeNoVersion answers initialize without a protocolVersion.
	ModeNoVersion = "no-version"
	// ModeInitError answers initialize with a JSON-RPC error.
	ModeInitError = "init-error"
	// ModeNoisy writes two malformed lines before every response.
	ModeNoisy = "noisy"
	// ModeFlood writes malformed lines forever after the handshake.
	ModeFlood = "flood"
	// ModeStubborn ignores SIGTERM and stdin EOF.
	ModeStubborn = "stubborn"
	// ModePaged returns tools/list in two pages.
	ModePaged = "paged"
	// ModeDuplicateTools advertises the same tool twice and one unnamed tool.
	ModeDuplicateTools = "duplicate-tools"
)

// Server describes how to launch a mock server.
type Server struct {
	Command string
	Args    []string
	Env     map[string]string
}

// Command returns the invocation that runs mode in a child test binary.
func Command(mode string) Server {
	return Server{
		Command: os.Args[0],
		Args:    []string{"-test.run=^$"},
		Env:     map[string]string{ModeEnv: mode},
	}
}

// Main runs the requested server mode when ModeEnv is set and otherwise runs
// the tests. It never returns.
func Main(m *testing.M) {
	if mode := os.Getenv(ModeEnv); mode != "" {
		os.Exit(serve(mode))
	}
	os.Exit(m.Run())
}

func serve(mode string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	switch mode {
	case ModeCalculator:
		srv, err := server.NewServer(server.ServerConfig{Name: "calculator", LogLevel: "error"})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if err := srv.Run(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	case ModeCrash:
		fmt.Fprintln(os.Stderr, "fatal: missing API_TOKEN")
		return 3
	case ModeStubborn:
		signal.Ignore(syscall.SIGTERM)
		return newScripted(os.Stdin, os.Stdout, mode).run(context.Background())
	default:
		return newScripted(os.Stdin, os.Stdout, mode).run(ctx)
	}
}
