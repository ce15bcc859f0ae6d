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

import "github.com/spf13/cobra"

// Command groups of 'mcphost mcp'.
const (
	// GroupConfig holds commands that edit the global server file
	GroupConfig = "config"
	// GroupRuntime holds commands that start servers
	GroupRuntime = "runtime"
)

// AnnotationStartsServers marks a command that spawns server processes.
const AnnotationStartsServers = "mcphost/starts-servers"

// Groups returns the command groups in display order.
func Groups() []*cobra.Group {
	return []*cobra.Group{
		{ID: GroupConfig, Title: "Configuration Commands:"},
		{ID: GroupRuntime, Title: "Server Commands:"},
	}
}

// InGroup assigns cmd to group. Runtime commands are also marked as
// starting servers.
func InGroup(cmd *cobra.Command, group string) *cobra.Command {
	cmd.GroupID = group
	if group == GroupRuntime {
		if cmd.Annotations == nil {
			cmd.Annotations = map[string]string{}
		}
		cmd.Annotations[AnnotationStartsServers] = "true"
	}
	return cmd
}

// StartsServers reports whether cmd spawns server processes.
func StartsServers(cmd *cobra.Command) bool {
	return cmd.Annotations[AnnotationStartsServers] == "true"
}
