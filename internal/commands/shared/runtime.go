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
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/tombee/mcphost/internal/config"
	"github.com/tombee/mcphost/internal/log"
	"github.com/tombee/mcphost/internal/mcp"
)

// NewLogger returns the logger for a command run. Logs go to w as text at
// error level, since commands print warnings and failures themselves.
// --verbose lowers the level to debug. MCPHOST_LOG_LEVEL and friends still
// apply when neither --verbose nor --quiet is set.
func NewLogger(w io.Writer) *slog.Logger {
	cfg := log.FromEnv()
	cfg.Output = w
	if os.Getenv("LOG_FORMAT") == "" {
		cfg.Format = log.FormatText
	}
	switch {
	case GetVerbose():
		cfg.Level = "debug"
	case GetQuiet():
		cfg.Level = "error"
	case os.Getenv("MCPHOST_LOG_LEVEL") == "" && os.Getenv("LOG_LEVEL") == "" && os.Getenv("MCPHOST_DEBUG") == "":
		cfg.Level = "error"
	}
	return log.New(cfg)
}

// ConfigPath returns --config, or the default global server file.
func ConfigPath() (string, error) {
	if path := GetConfigPath(); path != "" {
		return path, nil
	}
	path, err := config.MCPServersPath()
	if err != nil {
		return "", NewUsageError("cannot locate config directory", err)
	}
	return path, nil
}

// OpenStore returns the store for the global server configuration.
func OpenStore() (*mcp.FileStore, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return mcp.NewFileStore(path), nil
}

// FormatDuration formats d for tables: 45s, 3m12s, 2h5m.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
