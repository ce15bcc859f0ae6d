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
)

// ToolInvoker calls tools by namespaced name. Implemented by Manager; agents
// depend on this interface so they can be tested without subprocesses.
type ToolInvoker interface {
	// CallTool executes a tool. Tool-level failures come back as a result
	// with IsError set.
	CallTool(ctx context.Context, name string, args json.RawMessage) (*ToolResult, error)
}

// ToolCatalog lists the tools currently offered to the model.
type ToolCatalog interface {
	// ListTools returns the catalog of active tools.
	ListTools() []CatalogEntry
}

// ToolProvider is both a catalog and an invoker.
type ToolProvider interface {
	ToolInvoker
	ToolCatalog
}

var _ ToolProvider = (*Manager)(nil)
