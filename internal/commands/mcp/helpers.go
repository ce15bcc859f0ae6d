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
	"strings"
	"time"

	"github.com/tombee/mcphost/internal/commands/shared"
	"github.com/tombee/mcphost/internal/mcp"
	pkgerrors "github.com/tombee/mcphost/pkg/errors"
)

func formatDuration(d time.Duration) string {
	return shared.FormatDuration(d)
}

func wrapText(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	var lines []string
	var currentLine strings.Builder

	for _, word := range words {
		if currentLine.Len()+len(word)+1 > width {
			lines = append(lines, currentLine.String())
			currentLine.Reset()
		}
		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}
	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}

	return strings.Join(lines, "\n")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// parseEnv turns KEY=VALUE flags into a map.
func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, &pkgerrors.ValidationError{
				Field:   "env",
				Message: fmt.Sprintf("%q is not in KEY=VALUE form", pair),
				Hint:    "Pass each variable as --env KEY=VALUE",
			}
		}
		env[key] = value
	}
	if err := mcp.ValidateEnv(env); err != nil {
		return nil, &pkgerrors.ValidationError{Field: "env", Message: err.Error()}
	}
	return env, nil
}
