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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateServerName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "myserver", false},
		{"valid with hyphen", "my-server", false},
		{"valid with underscore", "my_server", false},
		{"valid with numbers", "server123", false},
		{"valid mixed", "my-server_v2", false},
		{"empty", "", true},
		{"starts with number", "123server", true},
		{"starts with hyphen", "-server", true},
		{"starts with underscore", "_server", true},
		{"contains space", "my server", true},
		{"contains dot", "my.server", true},
		{"too long", "a" + strings.Repeat("b", 64), true},
		{"max length", "a" + strings.Repeat("b", 63), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServerName(tt.input)
			assert.Equal(t, tt.wantErr, err != nil, "ValidateServerName(%q) = %v", tt.input, err)
		})
	}
}

func TestValidateDefinition(t *testing.T) {
	tests := []struct {
		name    string
		def     ServerDefinition
		wantErr string
	}{
		{"valid", ServerDefinition{Name: "calc", Command: "mcp-calculator"}, ""},
		{"explicit stdio", ServerDefinition{Name: "calc", Command: "x", Transport: "STDIO"}, ""},
		{"missing name", ServerDefinition{Command: "x"}, "server name is required"},
		{"bad name", ServerDefinition{Name: "1calc", Command: "x"}, "invalid server name"},
		{"missing command", ServerDefinition{Name: "calc", Command: "  "}, "command is required"},
		{"unsupported transport", ServerDefinition{Name: "calc", Command: "x", Transport: "sse"}, "unsupported transport"},
		{"bad env key", ServerDefinition{Name: "calc", Command: "x", Env: map[string]string{"BAD-KEY": "v"}}, "invalid environment variable key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDefinition(tt.def)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGlobalServerEntry_Validate(t *testing.T) {
	assert.NoError(t, (&GlobalServerEntry{Command: "npx"}).Validate())
	assert.NoError(t, (&GlobalServerEntry{Command: "npx", Type: "stdio"}).Validate())
	assert.Error(t, (&GlobalServerEntry{}).Validate())
	assert.Error(t, (&GlobalServerEntry{Command: "npx", Type: "http"}).Validate())
}

func TestGlobalServerEntry_ToDefinition(t *testing.T) {
	entry := &GlobalServerEntry{Command: "npx", Args: []string{"-y", "srv"}, Env: map[string]string{"A": "1"}, Disabled: true}
	def := entry.ToDefinition("fs")

	assert.Equal(t, "fs", def.Name)
	assert.Equal(t, SourceGlobal, def.Source)
	assert.False(t, def.IsEnabled())

	// The definition does not share memory with the entry.
	def.Args[0] = "changed"
	def.Env["A"] = "2"
	assert.Equal(t, "-y", entry.Args[0])
	assert.Equal(t, "1", entry.Env["A"])
}

func TestGlobalConfig_NamesAndValidate(t *testing.T) {
	cfg := NewGlobalConfig()
	cfg.Servers["zeta"] = &GlobalServerEntry{Command: "z"}
	cfg.Servers["alpha"] = &GlobalServerEntry{Command: "a"}

	assert.Equal(t, []string{"alpha", "zeta"}, cfg.Names())
	assert.NoError(t, cfg.Validate())

	cfg.Servers["bad name"] = &GlobalServerEntry{Command: "x"}
	assert.Error(t, cfg.Validate())
}

func TestGlobalConfig_Clone(t *testing.T) {
	cfg := NewGlobalConfig()
	cfg.Servers["a"] = &GlobalServerEntry{Command: "a", Args: []string{"x"}, Env: map[string]string{"K": "v"}}

	cp := cfg.Clone()
	cp.Servers["a"].Args[0] = "y"
	cp.Servers["a"].Env["K"] = "w"
	delete(cp.Servers, "a")

	require.Contains(t, cfg.Servers, "a")
	assert.Equal(t, "x", cfg.Servers["a"].Args[0])
	assert.Equal(t, "v", cfg.Servers["a"].Env["K"])
}

func TestExpandEnv(t *testing.T) {
	lookup := func(name string) (string, bool) {
		vals := map[string]string{"TOKEN": "s3cret", "HOME": "/home/me"}
		v, ok := vals[name]
		return v, ok
	}

	got := ExpandEnv(map[string]string{
		"API_TOKEN": "${TOKEN}",
		"DATA":      "${HOME}/data",
		"BARE":      "$HOME/data",
		"MISSING":   "${NOPE}",
		"PLAIN":     "value",
		"DB_PASS":   "pa$$w0rd",
		"PRICE":     "$5",
		"TRAILING":  "cost$",
		"UNCLOSED":  "${TOKEN",
		"BAD_NAME":  "${1X}",
		"MIXED":     "$${TOKEN}$",
	}, lookup)

	assert.Equal(t, "s3cret", got["API_TOKEN"])
	assert.Equal(t, "/home/me/data", got["DATA"])
	assert.Equal(t, "$HOME/data", got["BARE"])
	assert.Equal(t, "", got["MISSING"])
	assert.Equal(t, "value", got["PLAIN"])
	assert.Equal(t, "pa$$w0rd", got["DB_PASS"])
	assert.Equal(t, "$5", got["PRICE"])
	assert.Equal(t, "cost$", got["TRAILING"])
	assert.Equal(t, "${TOKEN", got["UNCLOSED"])
	assert.Equal(t, "${1X}", got["BAD_NAME"])
	assert.Equal(t, "$s3cret$", got["MIXED"])
	assert.Nil(t, ExpandEnv(nil, lookup))
}

func TestRedactEnv(t *testing.T) {
	got := RedactEnv(map[string]string{"GITHUB_TOKEN": "abc", "DEBUG": "1", "api_key": "k"})
	assert.Equal(t, "***REDACTED***", got["GITHUB_TOKEN"])
	assert.Equal(t, "***REDACTED***", got["api_key"])
	assert.Equal(t, "1", got["DEBUG"])
	assert.Nil(t, RedactEnv(nil))
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "tool")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0755))
	plain := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(plain, []byte("x"), 0644))

	assert.NoError(t, ValidateCommand(exe))
	assert.ErrorContains(t, ValidateCommand(plain), "not executable")
	assert.ErrorContains(t, ValidateCommand(dir), "is a directory")
	assert.ErrorContains(t, ValidateCommand(filepath.Join(dir, "missing")), "not found")
	assert.ErrorContains(t, ValidateCommand("definitely-not-a-real-command-xyz"), "not found in PATH")
	assert.Error(t, ValidateCommand(""))
}
