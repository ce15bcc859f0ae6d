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
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Tool adapts one catalog entry to the shape an agent loop expects: a name,
// a description, a decoded parameter schema and an Execute function.
type Tool struct {
	entry   CatalogEntry
	invoker ToolInvoker
}

// NewTool creates an adapter for a catalog entry.
func NewTool(entry CatalogEntry, invoker ToolInvoker) *Tool {
	return &Tool{entry: entry, invoker: invoker}
}

// AgentTools wraps every tool in the catalog.
func AgentTools(p ToolProvider) []*Tool {
	entries := p.ListTools()
	out := make([]*Tool, len(entries))
	for i, e := range entries {
		out[i] = NewTool(e, p)
	}
	return out
}

// Name returns the namespaced tool name (e.g., "mcp_github_list_repos").
func (t *Tool) Name() string {
	return t.entry.Name
}

// Description returns the tool description.
func (t *Tool) Description() string {
	return t.entry.Description
}

// Parameters returns the input schema as a generic JSON object. A schema
// that cannot be decoded is replaced by an empty object schema.
func (t *Tool) Parameters() map[string]any {
	schema := map[string]any{}
	if len(t.entry.InputSchema) > 0 {
		if err := json.Unmarshal(t.entry.InputSchema, &schema); err != nil {
			schema = map[string]any{}
		}
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	return schema
}

// Execute runs the tool and returns the text the model should see. A
// tool-level error is returned as text with isError reported, so the model
// can react to it; transport and protocol failures return an error.
func (t *Tool) Execute(ctx context.Context, inputs map[string]any) (output string, isError bool, err error) {
	var args json.RawMessage
	if inputs != nil {
		args, err = json.Marshal(inputs)
		if err != nil {
			return "", false, fmt.Errorf("encode arguments for %s: %w", t.entry.Name, err)
		}
	}

	result, err := t.invoker.CallTool(ctx, t.entry.Name, args)
	if err != nil {
		return "", false, fmt.Errorf("mcp tool call failed: %w", err)
	}
	return RenderResult(result), result.IsError, nil
}

// RenderResult flattens a result into the text a model or terminal sees.
// Non-text items are summarized.
func RenderResult(r *ToolResult) string {
	if text := r.Text(); text != "" {
		return text
	}
	if len(r.StructuredContent) > 0 {
		return string(r.StructuredContent)
	}

	parts := make([]string, 0, len(r.Content))
	for _, item := range r.Content {
		switch {
		case item.MimeType != "":
			parts = append(parts, fmt.Sprintf("[%s %s]", item.Type, item.MimeType))
		default:
			parts = append(parts, fmt.Sprintf("[%s]", item.Type))
		}
	}
	if len(parts) == 0 && r.IsError {
		return "tool execution failed"
	}
	return strings.Join(parts, " ")
}
