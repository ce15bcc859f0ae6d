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

package errors

import (
	"fmt"
	"time"
)

// ValidationError represents invalid user input, such as a malformed
// --args document or a bad server name.
type ValidationError struct {
	// Field identifies which input failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Hint provides actionable guidance for fixing the error
	Hint string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) IsUserVisible() bool { return true }
func (e *ValidationError) UserMessage() string { return e.Error() }
func (e *ValidationError) ErrorType() string   { return "validation" }
func (e *ValidationError) IsRetryable() bool   { return false }

// Suggestion implements UserVisibleError.
func (e *ValidationError) Suggestion() string {
	return e.Hint
}

// NotFoundError represents a missing resource.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "server", "tool")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsUserVisible() bool { return true }
func (e *NotFoundError) UserMessage() string { return e.Error() }
func (e *NotFoundError) ErrorType() string   { return "not_found" }
func (e *NotFoundError) IsRetryable() bool   { return false }

// Suggestion implements UserVisibleError.
func (e *NotFoundError) Suggestion() string {
	return fmt.Sprintf("Check the %s name and try again", e.Resource)
}

// ConfigError represents configuration problems.
type ConfigError struct {
	// Key is the configuration key or file that has the problem
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

func (e *ConfigError) IsUserVisible() bool { return true }
func (e *ConfigError) UserMessage() string { return e.Error() }
func (e *ConfigError) ErrorType() string   { return "config" }
func (e *ConfigError) IsRetryable() bool   { return false }

// Suggestion implements UserVisibleError.
func (e *ConfigError) Suggestion() string {
	return "Fix the configuration file and run the command again"
}

// TimeoutError represents an operation that exceeded its deadline.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "tool call", "handshake")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

func (e *TimeoutError) IsUserVisible() bool { return true }
func (e *TimeoutError) UserMessage() string { return e.Error() }
func (e *TimeoutError) ErrorType() string   { return "timeout" }
func (e *TimeoutError) IsRetryable() bool   { return true }

// Suggestion implements UserVisibleError.
func (e *TimeoutError) Suggestion() string {
	return "Increase the timeout or check that the server is responsive"
}
