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
	"errors"
	"fmt"
	"strings"
	"time"
)

// MCPErrorCode represents a category of MCP error.
type MCPErrorCode string

const (
	// ErrorCodeSpawnFailure indicates the server process could not be launched.
	ErrorCodeSpawnFailure MCPErrorCode = "SPAWN_FAILURE"
	// ErrorCodeProtocol indicates the server sent data that is not valid JSON-RPC.
	ErrorCodeProtocol MCPErrorCode = "PROTOCOL_ERROR"
	// ErrorCodeHandshakeTimeout indicates initialize or tools/list did not finish in time.
	ErrorCodeHandshakeTimeout MCPErrorCode = "HANDSHAKE_TIMEOUT"
	// ErrorCodeCallTimeout indicates a tools/call did not complete in time.
	ErrorCodeCallTimeout MCPErrorCode = "CALL_TIMEOUT"
	// ErrorCodeApplication indicates the server rejected a request.
	ErrorCodeApplication MCPErrorCode = "APPLICATION_ERROR"
	// ErrorCodeProcessExit indicates the server process exited unexpectedly.
	ErrorCodeProcessExit MCPErrorCode = "PROCESS_EXIT"
	// ErrorCodeNotFound indicates a server or tool was not found.
	ErrorCodeNotFound MCPErrorCode = "NOT_FOUND"
	// ErrorCodeNotActive indicates the owning session is not accepting calls.
	ErrorCodeNotActive MCPErrorCode = "NOT_ACTIVE"
	// ErrorCodeTerminated indicates the session shut down while a call was in flight.
	ErrorCodeTerminated MCPErrorCode = "TERMINATED"
	// ErrorCodeConfig indicates a configuration error.
	ErrorCodeConfig MCPErrorCode = "CONFIG"
	// ErrorCodeValidation indicates a validation error.
	ErrorCodeValidation MCPErrorCode = "VALIDATION"
	// ErrorCodeAlreadyExists indicates a server already exists.
	ErrorCodeAlreadyExists MCPErrorCode = "ALREADY_EXISTS"
)

// Sentinel errors. MCPError values match these through errors.Is by code.
var (
	ErrToolNotFound      = &MCPError{Code: ErrorCodeNotFound, Message: "tool not found"}
	ErrSessionNotActive  = &MCPError{Code: ErrorCodeNotActive, Message: "session not active"}
	ErrSessionTerminated = &MCPError{Code: ErrorCodeTerminated, Message: "session terminated"}
	ErrHandshakeTimeout  = &MCPError{Code: ErrorCodeHandshakeTimeout, Message: "handshake timed out"}
	ErrCallTimeout       = &MCPError{Code: ErrorCodeCallTimeout, Message: "call timed out"}
	ErrProcessExited     = &MCPError{Code: ErrorCodeProcessExit, Message: "server process exited"}
	ErrSpawnFailure      = &MCPError{Code: ErrorCodeSpawnFailure, Message: "failed to spawn server"}
	ErrProtocol          = &MCPError{Code: ErrorCodeProtocol, Message: "protocol error"}
)

// ErrInvalidTransition is returned for a state change the session state
// machine does not allow.
var ErrInvalidTransition = errors.New("invalid session state transition")

// MCPError is an error type that includes suggestions for resolution.
type MCPError struct {
	// Code is the error category.
	Code MCPErrorCode
	// Server names the server involved, if any.
	Server string
	// Message is the primary error message.
	Message string
	// Detail provides additional context.
	Detail string
	// Suggestions are actionable steps to resolve the error.
	Suggestions []string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *MCPError) Unwrap() error {
	return e.Cause
}

// Is matches any MCPError with the same code, so package sentinels work with
// errors.Is regardless of message or detail.
func (e *MCPError) Is(target error) bool {
	t, ok := target.(*MCPError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// IsUserVisible implements pkg/errors.UserVisibleError.
func (e *MCPError) IsUserVisible() bool {
	return true
}

// UserMessage implements pkg/errors.UserVisibleError.
func (e *MCPError) UserMessage() string {
	return e.Error()
}

// Suggestion implements pkg/errors.UserVisibleError.
func (e *MCPError) Suggestion() string {
	if len(e.Suggestions) == 0 {
		return ""
	}
	return e.Suggestions[0]
}

// ErrorType implements pkg/errors.ErrorClassifier.
func (e *MCPError) ErrorType() string {
	return strings.ToLower(string(e.Code))
}

// IsRetryable implements pkg/errors.ErrorClassifier. Timeouts and crashes may
// succeed on a later run; everything else needs a configuration change.
func (e *MCPError) IsRetryable() bool {
	switch e.Code {
	case ErrorCodeCallTimeout, ErrorCodeHandshakeTimeout, ErrorCodeProcessExit:
		return true
	default:
		return false
	}
}

// NewMCPError creates a new MCPError.
func NewMCPError(code MCPErrorCode, message string) *MCPError {
	return &MCPError{
		Code:    code,
		Message: message,
	}
}

// WithServer records the server the error concerns.
func (e *MCPError) WithServer(name string) *MCPError {
	e.Server = name
	return e
}

// WithDetail adds detail to the error.
func (e *MCPError) WithDetail(detail string) *MCPError {
	e.Detail = detail
	return e
}

// WithSuggestions adds suggestions to the error.
func (e *MCPError) WithSuggestions(suggestions ...string) *MCPError {
	e.Suggestions = suggestions
	return e
}

// WithCause adds an underlying cause to the error.
func (e *MCPError) WithCause(cause error) *MCPError {
	e.Cause = cause
	return e
}

// CallTimeoutError reports a tools/call that did not complete in time.
// errors.Is(err, ErrCallTimeout) holds for it.
type CallTimeoutError struct {
	Server  string
	Tool    string
	Timeout time.Duration
}

func (e *CallTimeoutError) Error() string {
	return fmt.Sprintf("tool %q on server %q timed out after %s", e.Tool, e.Server, e.Timeout)
}

// Is matches ErrCallTimeout.
func (e *CallTimeoutError) Is(target error) bool {
	return target == ErrCallTimeout
}

// ErrServerNotFound creates an error for when a server is not found.
func ErrServerNotFound(name string) *MCPError {
	return NewMCPError(ErrorCodeNotFound, fmt.Sprintf("MCP server '%s' not found", name)).
		WithServer(name).
		WithSuggestions(
			"Check the server name: mcphost mcp list",
			fmt.Sprintf("Register the server: mcphost mcp add %s --command <cmd>", name),
		)
}

// ErrUnknownTool creates an error for a namespaced tool name with no live owner.
func ErrUnknownTool(name string) *MCPError {
	return NewMCPError(ErrorCodeNotFound, fmt.Sprintf("tool '%s' not found", name)).
		WithSuggestions("List available tools: mcphost mcp tools")
}

// ErrServerAlreadyExists creates an error for when a server already exists.
func ErrServerAlreadyExists(name string) *MCPError {
	return NewMCPError(ErrorCodeAlreadyExists, fmt.Sprintf("MCP server '%s' already exists", name)).
		WithServer(name).
		WithSuggestions(
			"Use a different name for the new server",
			fmt.Sprintf("Remove existing server: mcphost mcp remove %s", name),
		)
}

// ErrSpawnFailed creates an error for a process that could not be launched.
func ErrSpawnFailed(name, command string, cause error) *MCPError {
	suggestions := []string{
		"Verify the command is installed and in your PATH",
		fmt.Sprintf("Use an absolute path: --command /path/to/%s", command),
	}

	switch command {
	case "npx", "node":
		suggestions = append(suggestions, "Install Node.js: https://nodejs.org/")
	case "python", "python3":
		suggestions = append(suggestions, "Install Python: https://python.org/")
	case "uvx", "uv":
		suggestions = append(suggestions, "Install uv: https://docs.astral.sh/uv/")
	}

	return NewMCPError(ErrorCodeSpawnFailure, fmt.Sprintf("failed to start MCP server '%s'", name)).
		WithServer(name).
		WithDetail(cause.Error()).
		WithCause(cause).
		WithSuggestions(suggestions...)
}

// ErrHandshakeTimedOut creates an error for a server that did not finish the
// handshake within the start timeout.
func ErrHandshakeTimedOut(name, phase string, timeout time.Duration) *MCPError {
	return NewMCPError(ErrorCodeHandshakeTimeout, fmt.Sprintf("MCP server '%s' did not respond to %s", name, phase)).
		WithServer(name).
		WithDetail(fmt.Sprintf("no response within %s", timeout)).
		WithSuggestions(
			fmt.Sprintf("Test the server on its own: mcphost mcp test %s", name),
			"Verify the server speaks MCP over stdio",
		)
}

// ErrServerExited creates an error for a process that exited while the session
// was still in use.
func ErrServerExited(name string, cause error) *MCPError {
	e := NewMCPError(ErrorCodeProcessExit, fmt.Sprintf("MCP server '%s' exited", name)).
		WithServer(name).
		WithSuggestions(fmt.Sprintf("Check server output: mcphost mcp status %s", name))
	if cause != nil {
		e.WithDetail(cause.Error()).WithCause(cause)
	}
	return e
}

// ErrProtocolViolation creates an error for a server that kept sending
// malformed data.
func ErrProtocolViolation(name, detail string) *MCPError {
	return NewMCPError(ErrorCodeProtocol, fmt.Sprintf("MCP server '%s' sent invalid protocol data", name)).
		WithServer(name).
		WithDetail(detail).
		WithSuggestions("Ensure the server writes only JSON-RPC messages to stdout and logs to stderr")
}

// ErrApplication creates an error for a JSON-RPC error response.
func ErrApplication(name, method string, rpcErr *RPCError) *MCPError {
	return NewMCPError(ErrorCodeApplication, fmt.Sprintf("MCP server '%s' rejected %s", name, method)).
		WithServer(name).
		WithDetail(rpcErr.Message).
		WithCause(rpcErr)
}

// ErrInvalidServerName creates an error for an invalid server name.
func ErrInvalidServerName(name string) *MCPError {
	return NewMCPError(ErrorCodeValidation, fmt.Sprintf("Invalid server name '%s'", name)).
		WithDetail("names must start with a letter, contain only letters, numbers, hyphens and underscores, and be at most 64 characters").
		WithSuggestions("Example valid names: my-server, server_1, mcpServer")
}

// ErrInvalidConfig creates an error for invalid configuration.
func ErrInvalidConfig(detail string) *MCPError {
	return NewMCPError(ErrorCodeConfig, "Invalid MCP server configuration").
		WithDetail(detail).
		WithSuggestions("Check the configuration file: mcphost mcp list")
}

// GetMCPError extracts an MCPError from an error chain.
func GetMCPError(err error) *MCPError {
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	return nil
}
