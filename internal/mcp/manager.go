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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tombee/mcphost/internal/log"
)

// Defaults for ManagerConfig.
const (
	DefaultStartTimeout           = 30 * time.Second
	DefaultCallTimeout            = 60 * time.Second
	DefaultShutdownGrace          = 5 * time.Second
	DefaultProtocolErrorThreshold = 10
)

// failureTailLines is how many stderr lines a failure report carries.
const failureTailLines = 20

// ManagerConfig configures the MCP manager.
type ManagerConfig struct {
	// Logger is used for structured logging (optional)
	Logger *slog.Logger

	// Tracer creates spans for starts and calls (optional)
	Tracer trace.Tracer

	// RunID tags logs and events; generated when empty
	RunID string

	// ClientInfo identifies this host to servers
	ClientInfo ClientInfo

	// ProtocolVersion requested during initialize; empty means the latest
	ProtocolVersion string

	// StartTimeout bounds each server's handshake (default 30s)
	StartTimeout time.Duration

	// CallTimeout bounds each tool call (default 60s)
	CallTimeout time.Duration

	// ShutdownGrace bounds graceful shutdown of each server (default 5s)
	ShutdownGrace time.Duration

	// ProtocolErrorThreshold is how many malformed lines fail a server (default 10)
	ProtocolErrorThreshold int

	// MaxLineSize bounds a single inbound message (default 10 MiB)
	MaxLineSize int

	// StderrLines is the per-server stderr buffer size
	StderrLines int

	// CallRate limits tool calls per server per second; zero disables limiting
	CallRate rate.Limit

	// CallBurst is the per-server limiter burst
	CallBurst int

	// EventBuffer is the channel size of each subscriber
	EventBuffer int
}

// StartFailure describes one server that did not become active.
type StartFailure struct {
	Server     string   `json:"server"`
	Reason     string   `json:"reason"`
	Err        error    `json:"-"`
	StderrTail []string `json:"stderr_tail,omitempty"`
}

// StartReport summarizes a Start call.
type StartReport struct {
	// Active lists servers that reached Active, in definition order
	Active []string `json:"active"`
	// Failed lists servers that did not, in definition order
	Failed []StartFailure `json:"failed,omitempty"`
	// Collisions lists tools dropped because their name was taken
	Collisions []CollisionWarning `json:"collisions,omitempty"`
}

// Manager owns every server session of one run. It starts them concurrently,
// routes tool calls through the ToolRegistry and tears everything down.
type Manager struct {
	cfg      ManagerConfig
	logger   *slog.Logger
	tracer   trace.Tracer
	runID    string
	registry *ToolRegistry
	events   *eventBus

	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
	closed   bool
}

// NewManager creates a new MCP server manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = log.WithRunID(log.WithComponent(logger, "mcp"), cfg.RunID)

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = defaultTracer()
	}

	return &Manager{
		cfg:      cfg,
		logger:   logger,
		tracer:   tracer,
		runID:    cfg.RunID,
		registry: NewToolRegistry(logger),
		events:   newEventBus(cfg.EventBuffer, logger),
		sessions: make(map[string]*Session),
	}
}

// RunID returns the identifier of this run.
func (m *Manager) RunID() string {
	return m.runID
}

// Subscribe returns a channel of events and a function that cancels the
// subscription. Channels are closed by Shutdown.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.events.subscribe()
}

func (m *Manager) emit(event Event) {
	event.RunID = m.runID
	m.events.publish(event)
}

// Start launches every definition concurrently and returns once each has
// reached Active or Failed. One server's failure never affects the others.
func (m *Manager) Start(ctx context.Context, defs []ServerDefinition) (*StartReport, error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrSessionTerminated
	}

	type outcome struct {
		name       string
		sess       *Session
		err        error
		collisions []CollisionWarning
		tail       []string
	}
	outcomes := make([]outcome, len(defs))

	var g errgroup.Group
	for i, def := range defs {
		g.Go(func() error {
			sess, tail, err := m.launch(ctx, def)
			outcomes[i] = outcome{name: def.Name, sess: sess, err: err, tail: tail}
			return nil
		})
	}
	_ = g.Wait()

	// Tools are published in definition order so the earlier definition
	// keeps a contested name regardless of which handshake finished first.
	for i := range outcomes {
		o := &outcomes[i]
		if o.err != nil {
			continue
		}
		o.collisions, o.tail, o.err = m.publish(o.sess)
	}

	report := &StartReport{}
	for _, o := range outcomes {
		report.Collisions = append(report.Collisions, o.collisions...)
		if o.err != nil {
			report.Failed = append(report.Failed, StartFailure{
				Server:     o.name,
				Reason:     o.err.Error(),
				Err:        o.err,
				StderrTail: o.tail,
			})
			continue
		}
		report.Active = append(report.Active, o.name)
	}

	m.logger.Info("mcp servers started",
		"active", len(report.Active),
		"failed", len(report.Failed),
		"tools", len(m.registry.List()))
	return report, nil
}

// launch spawns def and runs its handshake. The session is left in
// ToolsDiscovering until publish.
func (m *Manager) launch(ctx context.Context, def ServerDefinition) (*Session, []string, error) {
	if err := ValidateDefinition(def); err != nil {
		sessionStarts.WithLabelValues("failed").Inc()
		return nil, nil, ErrInvalidConfig(err.Error()).WithServer(def.Name).WithCause(err)
	}

	sess := NewSession(SessionConfig{
		Definition:             def,
		Logger:                 m.logger,
		Tracer:                 m.tracer,
		ClientInfo:             m.cfg.ClientInfo,
		ProtocolVersion:        m.cfg.ProtocolVersion,
		StartTimeout:           m.cfg.StartTimeout,
		CallTimeout:            m.cfg.CallTimeout,
		ShutdownGrace:          m.cfg.ShutdownGrace,
		ProtocolErrorThreshold: m.cfg.ProtocolErrorThreshold,
		MaxLineSize:            m.cfg.MaxLineSize,
		StderrLines:            m.cfg.StderrLines,
		CallRate:               m.cfg.CallRate,
		CallBurst:              m.cfg.CallBurst,
		OnStateChange:          m.onStateChange,
		OnNotification:         m.onNotification,
	})

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, ErrSessionTerminated
	}
	if _, exists := m.sessions[def.Name]; exists {
		m.mu.Unlock()
		sessionStarts.WithLabelValues("failed").Inc()
		return nil, nil, ErrServerAlreadyExists(def.Name)
	}
	m.sessions[def.Name] = sess
	m.order = append(m.order, def.Name)
	m.mu.Unlock()

	if err := sess.Start(ctx); err != nil {
		sessionStarts.WithLabelValues("failed").Inc()
		return nil, sess.StderrTail(failureTailLines), err
	}
	return sess, nil, nil
}

// publish registers the tools of a started session and makes it Active.
func (m *Manager) publish(sess *Session) ([]CollisionWarning, []string, error) {
	def := sess.Definition()

	var collisions []CollisionWarning
	for _, tool := range sess.Tools() {
		desc, warning := m.registry.Register(def.Name, tool)
		if warning != nil {
			collisions = append(collisions, *warning)
			m.emit(Event{
				Type:    EventToolCollision,
				Server:  def.Name,
				Tool:    desc.NamespacedName,
				Message: warning.String(),
			})
		}
	}

	if err := sess.Activate(); err != nil {
		m.registry.Unregister(def.Name)
		sessionStarts.WithLabelValues("failed").Inc()
		if cause := sess.Err(); cause != nil {
			err = cause
		}
		return collisions, sess.StderrTail(failureTailLines), err
	}
	m.registry.Activate(def.Name)
	if sess.State() != StateActive {
		// Failed between activation and publishing its tools.
		m.registry.Unregister(def.Name)
	}

	sessionStarts.WithLabelValues("active").Inc()
	info := sess.ServerInfo()
	m.logger.Info("mcp server started",
		"server", def.Name,
		"source", def.Source,
		"pid", sess.PID(),
		"tools", len(sess.Tools()),
		"server_version", info.Version)
	return collisions, nil, nil
}

// onStateChange keeps the registry and event stream in step with sessions.
func (m *Manager) onStateChange(s *Session, from, to SessionState, cause error) {
	switch to {
	case StateStarting:
		m.emit(Event{Type: EventServerStarting, Server: s.Name()})
	case StateActive:
		m.emit(Event{Type: EventServerActive, Server: s.Name()})
	case StateShuttingDown:
		m.registry.Deactivate(s.Name())
	case StateTerminated:
		m.registry.Unregister(s.Name())
		m.emit(Event{Type: EventServerStopped, Server: s.Name()})
	case StateFailed:
		m.registry.Unregister(s.Name())
		if errors.Is(cause, ErrSessionTerminated) {
			m.emit(Event{Type: EventServerStopped, Server: s.Name()})
			return
		}
		m.logger.Warn("mcp server unavailable", "server", s.Name(), "state", from, "error", cause)
		m.emit(Event{Type: EventServerFailed, Server: s.Name(), Err: cause, Message: fmt.Sprint(cause)})
	}
}

func (m *Manager) onNotification(s *Session, method string, _ json.RawMessage) {
	if method == MethodToolsListChanged {
		m.logger.Info("mcp server tool list changed; the change applies to the next run", "server", s.Name())
		m.emit(Event{Type: EventToolsChanged, Server: s.Name()})
	}
}

// CallTool invokes a tool by its namespaced name. A tool-level failure is
// returned as a result with IsError set, not as an error.
func (m *Manager) CallTool(ctx context.Context, name string, args json.RawMessage) (result *ToolResult, err error) {
	server, rawName, err := m.registry.Resolve(name)
	if err != nil {
		if desc, ok := m.registry.Lookup(name); ok {
			return nil, NewMCPError(ErrorCodeNotActive, fmt.Sprintf("MCP server '%s' is not active", desc.ServerName)).
				WithServer(desc.ServerName)
		}
		return nil, err
	}

	sess, ok := m.session(server)
	if !ok {
		return nil, ErrUnknownTool(name)
	}

	ctx, span := startCallSpan(ctx, m.tracer, server, name)
	defer func() { endSpan(span, err) }()

	m.emit(Event{Type: EventToolCallStarted, Server: server, Tool: name})
	start := time.Now()

	result, err = sess.CallTool(ctx, rawName, args)
	elapsed := time.Since(start)

	status := callStatusOK
	var rpcErr *RPCError
	var timeoutErr *CallTimeoutError
	switch {
	case err == nil && result.IsError:
		status = callStatusToolError
	case errors.As(err, &timeoutErr):
		status = callStatusTimeout
	case errors.As(err, &rpcErr):
		status = callStatusRPCError
	case err != nil:
		status = callStatusFailed
	}
	recordCall(server, status, elapsed)

	event := Event{
		Type:     EventToolCallCompleted,
		Server:   server,
		Tool:     name,
		Duration: elapsed,
		Err:      err,
	}
	if result != nil {
		event.IsError = result.IsError
	}
	m.emit(event)

	if err != nil {
		m.logger.Warn("mcp tool call failed", "tool", name, "error", err, log.DurationKey, elapsed.Milliseconds())
	} else {
		m.logger.Debug("mcp tool call completed", "tool", name, "is_error", result.IsError, log.DurationKey, elapsed.Milliseconds())
	}
	return result, err
}

// ListTools returns the model-facing catalog of active tools.
func (m *Manager) ListTools() []CatalogEntry {
	descs := m.registry.List()
	out := make([]CatalogEntry, len(descs))
	for i, d := range descs {
		schema := d.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		out[i] = CatalogEntry{Name: d.NamespacedName, Description: d.Description, InputSchema: schema}
	}
	return out
}

// Tools returns descriptors of active tools in registration order.
func (m *Manager) Tools() []ToolDescriptor {
	return m.registry.List()
}

func (m *Manager) session(name string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[name]
	return s, ok
}

// Session returns the session for a server.
func (m *Manager) Session(name string) (*Session, bool) {
	return m.session(name)
}

// Sessions returns a status snapshot of every session in start order.
func (m *Manager) Sessions() []SessionStatus {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.order))
	for _, name := range m.order {
		sessions = append(sessions, m.sessions[name])
	}
	m.mu.RUnlock()

	out := make([]SessionStatus, len(sessions))
	for i, s := range sessions {
		out[i] = s.Status(failureTailLines)
	}
	return out
}

// StopServer shuts down one server for the rest of the run.
func (m *Manager) StopServer(ctx context.Context, name string) error {
	sess, ok := m.session(name)
	if !ok {
		return ErrServerNotFound(name)
	}
	return sess.Stop(ctx)
}

// Shutdown stops every session concurrently. Each session gets the grace
// period before it is killed, so Shutdown always returns. Subscriber channels
// are closed once every session has stopped.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, name := range m.order {
		sessions = append(sessions, m.sessions[name])
	}
	m.mu.Unlock()

	var g errgroup.Group
	for _, s := range sessions {
		g.Go(func() error {
			return s.Stop(ctx)
		})
	}
	err := g.Wait()

	m.events.close()
	m.logger.Info("mcp servers stopped", "count", len(sessions))
	return err
}
