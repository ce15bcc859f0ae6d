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
	"fmt"
	"log/slog"
	"sync"
)

// ToolNamePrefix starts every namespaced tool name.
const ToolNamePrefix = "mcp_"

// NamespacedToolName returns the name a tool is exposed under.
func NamespacedToolName(serverName, rawName string) string {
	return ToolNamePrefix + serverName + "_" + rawName
}

// CollisionWarning reports a tool registration rejected because another
// server already owns the namespaced name.
type CollisionWarning struct {
	// Name is the contested namespaced name
	Name string
	// Owner is the server that keeps the name
	Owner string
	// Rejected is the server whose tool was dropped
	Rejected string
	// RawName is the dropped tool's name on the rejected server
	RawName string
}

func (w CollisionWarning) String() string {
	return fmt.Sprintf("tool %q from server %q collides with server %q; keeping %q",
		w.Name, w.Rejected, w.Owner, w.Owner)
}

type registeredTool struct {
	sessionID  string
	descriptor ToolDescriptor
}

// ToolRegistry maps namespaced tool names to the owning session. Tools are
// only visible while their session is marked active.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]*registeredTool
	order  []string
	active map[string]bool
	logger *slog.Logger
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry(logger *slog.Logger) *ToolRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolRegistry{
		tools:  make(map[string]*registeredTool),
		active: make(map[string]bool),
		logger: logger,
	}
}

// Register adds a tool for a session. The first registration of a namespaced
// name wins; a later one is rejected and described by the returned warning.
func (r *ToolRegistry) Register(sessionID string, tool ToolDefinition) (ToolDescriptor, *CollisionWarning) {
	desc := ToolDescriptor{
		ServerName:     sessionID,
		RawName:        tool.Name,
		NamespacedName: NamespacedToolName(sessionID, tool.Name),
		Description:    tool.Description,
		InputSchema:    tool.InputSchema,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tools[desc.NamespacedName]; ok {
		warning := &CollisionWarning{
			Name:     desc.NamespacedName,
			Owner:    existing.sessionID,
			Rejected: sessionID,
			RawName:  tool.Name,
		}
		r.logger.Warn("mcp tool name collision",
			"tool", desc.NamespacedName,
			"owner", existing.sessionID,
			"rejected", sessionID)
		return desc, warning
	}

	r.tools[desc.NamespacedName] = &registeredTool{sessionID: sessionID, descriptor: desc}
	r.order = append(r.order, desc.NamespacedName)
	return desc, nil
}

// Activate makes a session's tools visible.
func (r *ToolRegistry) Activate(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[sessionID] = true
}

// Deactivate hides a session's tools without removing them.
func (r *ToolRegistry) Deactivate(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, sessionID)
}

// Resolve returns the owning session and the server-side tool name.
func (r *ToolRegistry) Resolve(name string) (sessionID, rawName string, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok || !r.active[tool.sessionID] {
		return "", "", ErrUnknownTool(name)
	}
	return tool.sessionID, tool.descriptor.RawName, nil
}

// Lookup returns the descriptor for a namespaced name, active or not.
func (r *ToolRegistry) Lookup(name string) (ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return ToolDescriptor{}, false
	}
	return tool.descriptor, true
}

// List returns descriptors of active sessions in registration order.
func (r *ToolRegistry) List() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		if r.active[tool.sessionID] {
			out = append(out, tool.descriptor)
		}
	}
	return out
}

// Unregister removes every tool owned by a session and reports how many
// were removed.
func (r *ToolRegistry) Unregister(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.active, sessionID)

	kept := r.order[:0]
	removed := 0
	for _, name := range r.order {
		if r.tools[name].sessionID == sessionID {
			delete(r.tools, name)
			removed++
			continue
		}
		kept = append(kept, name)
	}
	r.order = kept
	return removed
}

// Len returns the number of registered tools, active or not.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
