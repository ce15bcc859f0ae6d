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

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLogger_ValidLevels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"info level", "info", slog.LevelInfo},
		{"warn level", "warn", slog.LevelWarn},
		{"error level", "error", slog.LevelError},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := createLogger(tt.level)
			require.NoError(t, err)
			require.NotNil(t, logger)
			assert.True(t, logger.Enabled(context.Background(), tt.expected))
		})
	}
}

func TestCreateLogger_InvalidLevel(t *testing.T) {
	for _, level := range []string{"invalid", "INFO", "1"} {
		t.Run(level, func(t *testing.T) {
			logger, err := createLogger(level)
			assert.Error(t, err)
			assert.Nil(t, logger)
		})
	}
}

func TestNewServer_Defaults(t *testing.T) {
	s, err := NewServer(ServerConfig{LogLevel: "error"})
	require.NoError(t, err)
	assert.Equal(t, "calculator", s.name)
	assert.Equal(t, "dev", s.version)
}

func TestNewServer_InvalidLogLevel(t *testing.T) {
	_, err := NewServer(ServerConfig{LogLevel: "loud"})
	assert.Error(t, err)
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, r)
	require.NotEmpty(t, r.Content)
	text, ok := r.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", r.Content[0])
	return text.Text
}

func TestArithmeticTools(t *testing.T) {
	s, err := NewServer(ServerConfig{LogLevel: "error"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		op      func(a, b float64) (float64, error)
		args    map[string]any
		want    string
		isError bool
	}{
		{"add", func(a, b float64) (float64, error) { return a + b, nil }, map[string]any{"a": 15.0, "b": 27.0}, "42", false},
		{"add fractions", func(a, b float64) (float64, error) { return a + b, nil }, map[string]any{"a": 0.5, "b": 0.25}, "0.75", false},
		{"divide", divide, map[string]any{"a": 9.0, "b": 3.0}, "3", false},
		{"divide by zero", divide, map[string]any{"a": 1.0, "b": 0.0}, "division by zero", true},
		{"missing operand", func(a, b float64) (float64, error) { return a + b, nil }, map[string]any{"a": 1.0}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.arithmetic(tt.name, tt.op)(context.Background(), callRequest(tt.name, tt.args))
			require.NoError(t, err)
			assert.Equal(t, tt.isError, result.IsError)
			if tt.want != "" {
				assert.Equal(t, tt.want, resultText(t, result))
			}
		})
	}
}

func TestHandleEcho(t *testing.T) {
	s, err := NewServer(ServerConfig{LogLevel: "error"})
	require.NoError(t, err)

	result, err := s.handleEcho(context.Background(), callRequest("echo", map[string]any{"text": "hi"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "Echo: hi", resultText(t, result))

	result, err = s.handleEcho(context.Background(), callRequest("echo", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2)
	assert.True(t, rl.AllowCall())
	assert.True(t, rl.AllowCall())
	assert.False(t, rl.AllowCall())
}

func TestServe_StdioRoundTrip(t *testing.T) {
	s, err := NewServer(ServerConfig{LogLevel: "error"})
	require.NoError(t, err)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	go func() {
		served <- s.Serve(ctx, inR, outW)
		outW.Close()
	}()

	lines := bufio.NewScanner(outR)
	send := func(msg string) {
		_, err := io.WriteString(inW, msg+"\n")
		require.NoError(t, err)
	}
	recv := func() map[string]any {
		require.True(t, lines.Scan(), "no response: %v", lines.Err())
		var m map[string]any
		require.NoError(t, json.Unmarshal(lines.Bytes(), &m))
		return m
	}

	send(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`)
	init := recv()
	require.Contains(t, init, "result")
	assert.Equal(t, "calculator", init["result"].(map[string]any)["serverInfo"].(map[string]any)["name"])

	send(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	send(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"add","arguments":{"a":15,"b":27}}}`)
	call := recv()
	content := call["result"].(map[string]any)["content"].([]any)
	assert.Equal(t, "42", content[0].(map[string]any)["text"])

	inW.Close()
	select {
	case <-served:
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("server did not stop after stdin closed")
	}
}
