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

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tombee/mcphost/internal/commands/shared"
)

const docsBaseURL = "https://tombee.github.io/mcphost"

// CommandMetadata describes one command in the help catalog.
type CommandMetadata struct {
	Path          string         `json:"path"`
	Name          string         `json:"name"`
	Short         string         `json:"short"`
	Long          string         `json:"long,omitempty"`
	Usage         string         `json:"usage"`
	GroupID       string         `json:"group_id,omitempty"`
	Group         string         `json:"group,omitempty"`
	StartsServers bool           `json:"starts_servers"`
	Flags         []FlagMetadata `json:"flags,omitempty"`
	Examples      string         `json:"examples,omitempty"`
	Subcommands   []string       `json:"subcommands,omitempty"`
	Aliases       []string       `json:"aliases,omitempty"`
	DocsURL       string         `json:"docs_url"`
}

// FlagMetadata describes a flag. Inherited flags come from a parent
// command other than the root; root flags are listed once as global flags.
type FlagMetadata struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
	Required  bool   `json:"required"`
	Inherited bool   `json:"inherited,omitempty"`
}

// HelpResponse is the JSON response for help command
type HelpResponse struct {
	shared.JSONResponse
	Commands    []CommandMetadata     `json:"commands,omitempty"`
	Command     *CommandMetadata      `json:"command,omitempty"`
	GlobalFlags []FlagMetadata        `json:"global_flags,omitempty"`
	ExitCodes   []shared.ExitCodeInfo `json:"exit_codes"`
	DocsURL     string                `json:"docs_url"`
}

// NewHelpCommand creates the help command
func NewHelpCommand(rootCmd *cobra.Command) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		Long: `Help provides detailed information about commands and their usage.

Run 'mcphost help' to see all available commands.
Run 'mcphost help mcp call' to see detailed help for a specific command.
Use --json to get the full command catalog, including which commands start
servers and the exit codes they can return.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			useJSON := shared.GetJSON() || jsonOutput

			if len(args) == 0 {
				if !useJSON {
					return rootCmd.Help()
				}
				return shared.EmitJSON(cmd.OutOrStdout(), HelpResponse{
					JSONResponse: shared.NewJSONResponse("help"),
					Commands:     catalog(rootCmd),
					GlobalFlags:  globalFlags(rootCmd),
					ExitCodes:    shared.ExitCodes(),
					DocsURL:      docsBaseURL + "/reference/cli/",
				})
			}

			target, rest, err := rootCmd.Find(args)
			if err != nil || len(rest) > 0 {
				return fmt.Errorf("command %q not found", strings.Join(args, " "))
			}
			if !useJSON {
				return target.Help()
			}

			metadata := describe(rootCmd, target)
			return shared.EmitJSON(cmd.OutOrStdout(), HelpResponse{
				JSONResponse: shared.NewJSONResponse("help " + strings.Join(args, " ")),
				Command:      &metadata,
				GlobalFlags:  globalFlags(rootCmd),
				ExitCodes:    shared.ExitCodes(),
				DocsURL:      metadata.DocsURL,
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

// catalog flattens the visible command tree below root, parents first.
func catalog(rootCmd *cobra.Command) []CommandMetadata {
	commands := []CommandMetadata{}
	var walk func(*cobra.Command)
	walk = func(c *cobra.Command) {
		for _, sub := range c.Commands() {
			if sub.Hidden || sub.Name() == "help" {
				continue
			}
			commands = append(commands, describe(rootCmd, sub))
			walk(sub)
		}
	}
	walk(rootCmd)
	return commands
}

func describe(rootCmd, cmd *cobra.Command) CommandMetadata {
	metadata := CommandMetadata{
		Path:          cmd.CommandPath(),
		Name:          cmd.Name(),
		Short:         cmd.Short,
		Long:          cmd.Long,
		Usage:         cmd.UseLine(),
		GroupID:       cmd.GroupID,
		StartsServers: shared.StartsServers(cmd),
		Examples:      cmd.Example,
		Aliases:       cmd.Aliases,
		DocsURL:       docsBaseURL + "/reference/cli/" + strings.ReplaceAll(cmd.CommandPath(), " ", "-"),
	}

	if parent := cmd.Parent(); parent != nil && cmd.GroupID != "" {
		for _, g := range parent.Groups() {
			if g.ID == cmd.GroupID {
				metadata.Group = strings.TrimSuffix(g.Title, ":")
			}
		}
	}

	flags := []FlagMetadata{}
	cmd.LocalFlags().VisitAll(func(flag *pflag.Flag) {
		if flag.Hidden || flag.Name == "help" || rootCmd.PersistentFlags().Lookup(flag.Name) != nil {
			return
		}
		flags = append(flags, flagMetadata(flag, false))
	})
	cmd.InheritedFlags().VisitAll(func(flag *pflag.Flag) {
		if flag.Hidden || rootCmd.PersistentFlags().Lookup(flag.Name) != nil {
			return
		}
		flags = append(flags, flagMetadata(flag, true))
	})
	if len(flags) > 0 {
		metadata.Flags = flags
	}

	for _, sub := range cmd.Commands() {
		if !sub.Hidden && sub.Name() != "help" {
			metadata.Subcommands = append(metadata.Subcommands, sub.Name())
		}
	}

	return metadata
}

func flagMetadata(flag *pflag.Flag, inherited bool) FlagMetadata {
	meta := FlagMetadata{
		Name:      flag.Name,
		Shorthand: flag.Shorthand,
		Usage:     flag.Usage,
		Default:   flag.DefValue,
		Inherited: inherited,
	}
	if ann, ok := flag.Annotations[cobra.BashCompOneRequiredFlag]; ok && len(ann) > 0 && ann[0] == "true" {
		meta.Required = true
	}
	return meta
}

// globalFlags lists the root persistent flags, which every command accepts.
func globalFlags(rootCmd *cobra.Command) []FlagMetadata {
	flags := []FlagMetadata{}
	rootCmd.PersistentFlags().VisitAll(func(flag *pflag.Flag) {
		if !flag.Hidden {
			flags = append(flags, flagMetadata(flag, false))
		}
	})
	return flags
}
