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
	"encoding/json"
	"strings"
)

// TransportStdio is the only supported transport kind: a local subprocess
// speaking newline-delimited JSON-RPC over stdin/stdout.
const TransportStdio = "stdio"

// DefinitionSource records where a ServerDefinition came from.
type DefinitionSource string

const (
	// SourceBundled marks definitions packaged with the agent itself.
	SourceBundled DefinitionSource = "bundled"
	// SourceGlobal marks definitions from the user's global config file.
	SourceGlobal DefinitionSource = "global"
)

// ServerDefinition describes how to launch one tool server. Values are produced
// by the Resolver and are not mutated afterwards.
type ServerDefinition struct {
	// Name is unique within one resolved set
	Name string `json:"name" yaml:"name"`

	// Command is the executable to run
	Command string `json:"command" yaml:"command"`

	// Args are the command-line arguments
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Env overrides environment variables for the subprocess
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// Transport is the transport kind; empty means stdio
	Transport string `json:"type,omitempty" yaml:"type,omitempty"`

	// Enabled defaults to true; see IsEnabled
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// Source is where the definition came from
	Source DefinitionSource `json:"-" yaml:"-"`
}

// IsEnabled reports whether the definition should be started.
func (d ServerDefinition) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// TransportKind returns the effective transport kind.
func (d ServerDefinition) TransportKind() string {
	if d.Transport == "" {
		return TransportStdio
	}
	return strings.ToLower(d.Transport)
}

// clone returns a deep copy so callers cannot mutate resolved definitions.
func (d ServerDefinition) clone() ServerDefinition {
	out := d
	if d.Args != nil {
		out.Args = append([]string(nil), d.Args...)
	}
	if d.Env != nil {
		out.Env = make(map[string]string, len(d.Env))
		for k, v := range d.Env {
			out.Env[k] = v
		}
	}
	if d.Enabled != nil {
		enabled := *d.Enabled
		out.Enabled = &enabled
	}
	return out
}

// ToolDefinition is a tool as advertised by a server in tools/list.
type ToolDefinition struct {
	// Name is the tool name as reported by the server
	Name string `json:"name"`

	// Description explains what the tool does
	Description string `json:"description,omitempty"`

	// InputSchema is kept verbatim so the model sees exactly what the server sent
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ToolDescriptor is a registered, namespaced tool.
type ToolDescriptor struct {
	// ServerName is the owning server
	ServerName string `json:"server"`

	// RawName is the name the server uses for the tool
	RawName string `json:"raw_name"`

	// NamespacedName is unique within one run: mcp_{server}_{tool}
	NamespacedName string `json:"name"`

	// Description is passed through from the server
	Description string `json:"description,omitempty"`

	// InputSchema is passed through verbatim
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// CatalogEntry is the model-facing view of one tool.
type CatalogEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ContentItem represents a piece of content in a tools/call result.
type ContentItem struct {
	// Type is the content type (text, image, audio, resource, resource_link)
	Type string `json:"type"`

	// Text is the text content (for type="text")
	Text string `json:"text,omitempty"`

	// Data is the base64-encoded data (for type="image" and "audio")
	Data string `json:"data,omitempty"`

	// MimeType is the MIME type for binary content
	MimeType string `json:"mimeType,omitempty"`

	// Resource holds embedded resource contents, untouched
	Resource json.RawMessage `json:"resource,omitempty"`
}

// ToolResult is the outcome of a tools/call request.
type ToolResult struct {
	// Content contains the tool's output
	Content []ContentItem `json:"content"`

	// StructuredContent is optional machine-readable output
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`

	// IsError is set when the server reports an application-level failure.
	// IsError results are returned as values, not Go errors.
	IsError bool `json:"isError,omitempty"`

	// Raw is the result document exactly as the server sent it
	Raw json.RawMessage `json:"-"`
}

// Text joins all text content items with newlines.
func (r *ToolResult) Text() string {
	if r == nil {
		return ""
	}
	var parts []string
	for _, c := range r.Content {
		if c.Type == "text" && c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ServerCapabilities describes what features an MCP server supports.
type ServerCapabilities struct {
	// Tools indicates if the server provides tools
	Tools *ToolsCapability `json:"tools,omitempty"`

	// Resources indicates if the server provides resources
	Resources *ResourcesCapability `json:"resources,omitempty"`

	// Prompts indicates if the server provides prompts
	Prompts *PromptsCapability `json:"prompts,omitempty"`
}

// ToolsCapability describes tool-related capabilities.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability describes resource-related capabilities.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// PromptsCapability describes prompt-related capabilities.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerInfo is the identity a server reports during initialize.
type ServerInfo struct {
	Name            string
	Version         string
	ProtocolVersion string
	Instructions    string
	Capabilities    ServerCapabilities
}
