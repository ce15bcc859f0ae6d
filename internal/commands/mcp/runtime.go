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
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/mcphost/internal/commands/shared"
	"github.com/tombee/mcphost/internal/mcp"
)

// run is one command invocation that resolves and starts servers.
type run struct {
	cmd     *cobra.Command
	opts    *runtimeOptions
	logger  *slog.Logger
	manager *mcp.Manager

	// silentFailures leaves start failures to the caller's own output
	silentFailures bool
}

func newRun(cmd *cobra.Command, opts *runtimeOptions) *run {
	return &run{cmd: cmd, opts: opts, logger: shared.NewLogger(cmd.ErrOrStderr())}
}

func (r *run) out() io.Writer    { return r.cmd.OutOrStdout() }
func (r *run) errOut() io.Writer { return r.cmd.ErrOrStderr() }

// notice prints a human-facing message to stderr unless --quiet or --json.
func (r *run) notice(msg string) {
	if shared.GetQuiet() || shared.GetJSON() {
		return
	}
	fmt.Fprintln(r.errOut(), msg)
}

// resolve loads bundled definitions from bundledPath, if set, and merges them
// with the global configuration.
func (r *run) resolve(bundledPath string) (*mcp.Resolution, error) {
	var bundled []mcp.ServerDefinition
	if bundledPath != "" {
		records, err := mcp.LoadBundled(bundledPath)
		if err != nil {
			return nil, shared.NewUsageError("cannot load bundled servers", err)
		}
		for _, rec := range records {
			bundled = append(bundled, rec.ToDefinition())
		}
	}

	store, err := shared.OpenStore()
	if err != nil {
		return nil, err
	}

	res := mcp.NewResolver(mcp.ResolverConfig{Store: store, Logger: r.logger}).Resolve(bundled)
	for _, w := range res.Warnings {
		r.notice(shared.RenderWarn(w.String()))
	}
	return res, nil
}

// start launches defs and reports failures. The returned report is never nil
// when err is nil.
func (r *run) start(ctx context.Context, defs []mcp.ServerDefinition) (*mcp.StartReport, error) {
	version, _, _ := shared.GetVersion()
	r.manager = mcp.NewManager(mcp.ManagerConfig{
		Logger:        r.logger,
		ClientInfo:    mcp.ClientInfo{Name: "mcphost", Version: version},
		StartTimeout:  r.opts.startTimeout,
		CallTimeout:   r.opts.callTimeout,
		ShutdownGrace: r.opts.shutdownGrace,
	})

	report, err := r.manager.Start(ctx, defs)
	if err != nil {
		return nil, err
	}
	for _, f := range report.Failed {
		if r.silentFailures {
			break
		}
		r.notice(shared.RenderError(fmt.Sprintf("server %q failed: %s", f.Server, f.Reason)))
		for _, line := range f.StderrTail {
			r.notice("    " + shared.RenderLabel(line))
		}
	}
	for _, c := range report.Collisions {
		r.notice(shared.RenderWarn(c.String()))
	}
	return report, nil
}

// shutdown stops every server started by this run.
func (r *run) shutdown() {
	if r.manager == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*r.opts.shutdownGrace+mcp.DefaultShutdownGrace)
	defer cancel()
	if err := r.manager.Shutdown(ctx); err != nil {
		r.logger.Warn("mcp shutdown incomplete", "error", err)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
