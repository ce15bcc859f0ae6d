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

/*
Package mcp runs external tool servers that speak the Model Context Protocol
over stdio and exposes their tools to an agent under namespaced names.

# Overview

The package is built from a few cooperating parts:

  - Transport: newline-delimited JSON-RPC 2.0 over a byte stream
  - Session: one server subprocess, its handshake and its request table
  - ToolRegistry: namespaced tool names mapped to the owning session
  - Resolver: bundled and global server definitions merged for one run
  - Manager: starts sessions concurrently, routes calls, shuts down

# Resolving servers

Bundled definitions ship with an agent; global definitions live in the
user's configuration file. Bundled definitions win by name:

	res := mcp.NewResolver(mcp.ResolverConfig{
	    Store:  mcp.NewFileStore(path),
	    Logger: logger,
	}).Resolve(bundled)

Invalid and disabled definitions are left out and explained in res.Warnings.

# Running a session

	mgr := mcp.NewManager(mcp.ManagerConfig{Logger: logger})
	defer mgr.Shutdown(context.Background())

	report, err := mgr.Start(ctx, res.Definitions)

Start returns once every server is Active or Failed. A failed server never
affects the others; its reason and stderr tail are in report.Failed.

# Calling tools

Tools are exposed as mcp_{server}_{tool}:

	for _, entry := range mgr.ListTools() {
	    fmt.Println(entry.Name, entry.Description)
	}

	result, err := mgr.CallTool(ctx, "mcp_calculator_add", json.RawMessage(`{"a":40,"b":2}`))

A tool that reports a failure returns a result with IsError set. Errors are
reserved for timeouts, protocol failures and servers that went away; use
errors.Is with ErrCallTimeout, ErrSessionTerminated and friends to tell
them apart.

# Session lifecycle

	NotStarted -> Starting -> Initializing -> ToolsDiscovering -> Active -> ShuttingDown -> Terminated

Any non-terminal state may move to Failed. Terminated and Failed are final;
a failed server is not restarted within a run.
*/
package mcp
