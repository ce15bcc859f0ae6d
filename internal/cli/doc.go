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
Package cli provides the root command and shared configuration for the mcphost CLI.

This package creates the root Cobra command and handles global concerns like
version information, persistent flags, and error handling. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

	mcphost
	├── mcp
	│   ├── list      List global servers
	│   ├── add       Add a global server
	│   ├── remove    Remove a global server
	│   ├── enable    Enable a global server
	│   ├── disable   Disable a global server
	│   ├── tools     Start servers and print the tool catalog
	│   ├── call      Call one namespaced tool
	│   ├── test      Check one server's handshake
	│   └── status    Start servers and print session state
	├── version       Show version
	└── help          Show help

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	rootCmd.AddCommand(mcp.NewMCPCommand())
	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

	--verbose, -v    Enable debug logging
	--quiet, -q      Suppress non-error output
	--json           Output in JSON format
	--config         Path to the global server file

# Exit Codes

  - 0: Success
  - 1: General error
  - 2: Invalid usage or configuration
  - 3: One or more servers failed to start
  - 4: The tool reported an error
*/
package cli
