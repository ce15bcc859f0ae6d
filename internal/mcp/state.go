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

import "fmt"

// SessionState is the lifecycle state of a server session.
type SessionState string

const (
	StateNotStarted       SessionState = "not_started"
	StateStarting         SessionState = "starting"
	StateInitializing     SessionState = "initializing"
	StateToolsDiscovering SessionState = "tools_discovering"
	StateActive           SessionState = "active"
	StateShuttingDown     SessionState = "shutting_down"
	StateTerminated       SessionState = "terminated"
	StateFailed           SessionState = "failed"
)

// validTransitions lists the forward edges of the state machine. Failed is
// reachable from every non-terminal state and is handled separately.
var validTransitions = map[SessionState][]SessionState{
	StateNotStarted:       {StateStarting},
	StateStarting:         {StateInitializing},
	StateInitializing:     {StateToolsDiscovering},
	StateToolsDiscovering: {StateActive, StateShuttingDown},
	StateActive:           {StateShuttingDown},
	StateShuttingDown:     {StateTerminated},
}

// IsTerminal reports whether no further transitions are possible.
func (s SessionState) IsTerminal() bool {
	return s == StateTerminated || s == StateFailed
}

// CanTransition reports whether moving from s to next is allowed.
func (s SessionState) CanTransition(next SessionState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func checkTransition(from, to SessionState) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
