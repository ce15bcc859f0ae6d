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

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}
	if cfg.Format != FormatJSON {
		t.Errorf("expected default format 'json', got %q", cfg.Format)
	}
	if cfg.Output != os.Stderr {
		t.Errorf("expected default output to be os.Stderr")
	}
	if cfg.AddSource {
		t.Errorf("expected default AddSource to be false")
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name      string
		envVars   map[string]string
		level     string
		format    Format
		addSource bool
	}{
		{
			name:   "defaults when no env vars",
			level:  "info",
			format: FormatJSON,
		},
		{
			name:    "LOG_LEVEL=DEBUG (case insensitive)",
			envVars: map[string]string{"LOG_LEVEL": "DEBUG"},
			level:   "debug",
			format:  FormatJSON,
		},
		{
			name:    "MCPHOST_LOG_LEVEL wins over LOG_LEVEL",
			envVars: map[string]string{"MCPHOST_LOG_LEVEL": "trace", "LOG_LEVEL": "error"},
			level:   "trace",
			format:  FormatJSON,
		},
		{
			name:      "MCPHOST_DEBUG wins over everything",
			envVars:   map[string]string{"MCPHOST_DEBUG": "1", "MCPHOST_LOG_LEVEL": "error"},
			level:     "debug",
			format:    FormatJSON,
			addSource: true,
		},
		{
			name:      "format and source",
			envVars:   map[string]string{"LOG_FORMAT": "text", "LOG_SOURCE": "1"},
			level:     "info",
			format:    FormatText,
			addSource: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"MCPHOST_DEBUG", "MCPHOST_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := FromEnv()

			if cfg.Level != tt.level {
				t.Errorf("expected level %q, got %q", tt.level, cfg.Level)
			}
			if cfg.Format != tt.format {
				t.Errorf("expected format %q, got %q", tt.format, cfg.Format)
			}
			if cfg.AddSource != tt.addSource {
				t.Errorf("expected AddSource %v, got %v", tt.addSource, cfg.AddSource)
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})
	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON output, got error: %v", err)
	}
	if entry["msg"] != "test message" {
		t.Errorf("expected msg 'test message', got: %v", entry["msg"])
	}
	if entry["key"] != "value" {
		t.Errorf("expected key 'value', got: %v", entry["key"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("expected level 'INFO', got: %v", entry["level"])
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatText, Output: &buf})
	logger.Info("test message", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("expected output to contain 'test message', got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("expected output to contain 'key=value', got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if level := ParseLevel(tt.input); level != tt.expected {
				t.Errorf("expected level %v, got %v", tt.expected, level)
			}
		})
	}
}

func TestTrace(t *testing.T) {
	t.Run("suppressed above trace", func(t *testing.T) {
		var buf bytes.Buffer
		Trace(New(&Config{Level: "debug", Output: &buf}), "wire")
		if buf.Len() != 0 {
			t.Errorf("expected no output at debug level, got: %s", buf.String())
		}
	})

	t.Run("emitted with TRACE label", func(t *testing.T) {
		var buf bytes.Buffer
		Trace(New(&Config{Level: "trace", Output: &buf}), "wire", slog.String("method", "tools/list"))

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("expected valid JSON output, got error: %v", err)
		}
		if entry["level"] != "TRACE" {
			t.Errorf("expected level 'TRACE', got: %v", entry["level"])
		}
		if entry["method"] != "tools/list" {
			t.Errorf("expected method attr, got: %v", entry["method"])
		}
	})
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Output: &buf})
	logger = WithRunID(WithServer(WithComponent(logger, "manager"), "calculator"), "run-1")
	logger.Info("hello", Error(errors.New("boom")))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON output, got error: %v", err)
	}
	for key, want := range map[string]string{
		ComponentKey: "manager",
		ServerKey:    "calculator",
		RunIDKey:     "run-1",
		"error":      "boom",
	} {
		if entry[key] != want {
			t.Errorf("expected %s=%q, got %v", key, want, entry[key])
		}
	}
}

func TestLogWire(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "trace", Output: &buf})

	LogWire(logger, WireMessage{
		Direction: DirectionOutbound,
		Kind:      "request",
		Method:    "tools/call",
		ID:        "7",
		Body:      []byte(`{"jsonrpc":"2.0"}`),
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON output, got error: %v", err)
	}
	if entry["direction"] != "send" || entry["method"] != "tools/call" || entry["id"] != "7" {
		t.Errorf("unexpected wire entry: %v", entry)
	}
	if entry["body"] != `{"jsonrpc":"2.0"}` {
		t.Errorf("expected body to be attached, got: %v", entry["body"])
	}
}

func TestNilConfig(t *testing.T) {
	if New(nil) == nil {
		t.Fatal("New(nil) should return a logger")
	}
}

func TestSanitizeSecret(t *testing.T) {
	if got := SanitizeSecret("hunter2"); got != "[REDACTED]" {
		t.Errorf("expected [REDACTED], got %q", got)
	}
}
