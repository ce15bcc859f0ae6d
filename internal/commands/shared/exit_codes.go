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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	pkgerrors "github.com/tombee/mcphost/pkg/errors"
)

// Exit codes for mcphost commands
const (
	ExitSuccess = 0
	// ExitFailure is a general error
	ExitFailure = 1
	// ExitUsage is an invalid invocation or configuration
	ExitUsage = 2
	// ExitServerFailed means one or more servers failed to start
	ExitServerFailed = 3
	// ExitToolError means the tool ran and reported isError
	ExitToolError = 4
)

// ExitCodeInfo describes one exit code.
type ExitCodeInfo struct {
	Code    int    `json:"code"`
	Meaning string `json:"meaning"`
}

// ExitCodes lists every exit code mcphost uses, in ascending order.
func ExitCodes() []ExitCodeInfo {
	return []ExitCodeInfo{
		{ExitSuccess, "success"},
		{ExitFailure, "general error"},
		{ExitUsage, "invalid flags, arguments or configuration"},
		{ExitServerFailed, "one or more servers failed to start"},
		{ExitToolError, "the tool ran and reported isError"},
	}
}

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewUsageError creates an error for bad flags, arguments, or config
func NewUsageError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitUsage, Message: msg, Cause: cause}
}

// NewServerFailedError creates an error for servers that did not become active
func NewServerFailedError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitServerFailed, Message: msg, Cause: cause}
}

// NewToolError creates an error for a tool result with isError set
func NewToolError(msg string) *ExitError {
	return &ExitError{Code: ExitToolError, Message: msg}
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// HandleExitError prints err and exits with its exit code. With --json the
// error is written to stdout as a JSON envelope instead.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	if GetJSON() {
		_ = EmitJSONError(os.Stdout, "", []JSONError{NewJSONError(err)})
	} else {
		PrintError(os.Stderr, err)
	}
	os.Exit(ExitCode(err))
}

// PrintError writes err and, when available, its suggestion.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err.Error())
	if _, suggestion := pkgerrors.Describe(err); suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
	}
}
