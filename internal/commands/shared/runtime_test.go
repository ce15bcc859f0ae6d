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

import (
	"path/filepath"
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "-"},
		{45 * time.Second, "45s"},
		{3*time.Minute + 12*time.Second, "3m12s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("MCPHOST_CONFIG", "")

	SetConfigPathForTest("")
	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() error = %v", err)
	}
	if want := filepath.Join(dir, "mcphost", "mcp-servers.json"); path != want {
		t.Errorf("ConfigPath() = %q, want %q", path, want)
	}

	SetConfigPathForTest("/tmp/custom.yaml")
	defer SetConfigPathForTest("")
	path, err = ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() error = %v", err)
	}
	if path != "/tmp/custom.yaml" {
		t.Errorf("ConfigPath() = %q, want --config value", path)
	}

	store, err := OpenStore()
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	if store.Path != "/tmp/custom.yaml" {
		t.Errorf("store path = %q", store.Path)
	}
}

func TestRenderWithoutColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	if got := RenderOK("done"); got != SymbolOK+" done" {
		t.Errorf("RenderOK() = %q", got)
	}
	if got := RenderState("failed"); got != "failed" {
		t.Errorf("RenderState() = %q", got)
	}
}
