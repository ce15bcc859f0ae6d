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
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/tombee/mcphost/internal/log"
)

const (
	// maxToolPages bounds tools/list pagination against a server that keeps
	// returning a cursor.
	maxToolPages = 100

	// exitObserveWindow is how long the reader waits for the exit status after
	// stdout closes.
	exitObserveWindow = 2 * time.Second

	// stderrDrainWindow is how long the waiter lets stderr drain after stdout
	// closes before forcing the pipe shut.
	stderrDrainWindow = time.Second

	// killWaitWindow bounds the wait for a process after SIGKILL.
	killWaitWindow = 2 * time.Second

	// cancelSendWindow bounds the best-effort cancellation notice.
	cancelSendWindow = time.Second
)

// SessionConfig configures a Session.
type SessionConfig struct {
	// Definition describes the server process
	Definition ServerDefinition

	// Logger is used for session logging; defaults to slog.Default()
	Logger *slog.Logger

	// Tracer creates spans; defaults to the global otel tracer
	Tracer trace.Tracer

	// ClientInfo is sent in the initialize request
	ClientInfo ClientInfo

	// ProtocolVersion requested during initialize; empty means the latest
	ProtocolVersion string

	// StartTimeout bounds the whole handshake: initialize plus tools/list
	StartTimeout time.Duration

	// CallTimeout bounds a single tools/call
	CallTimeout time.Duration

	// ShutdownGrace bounds the graceful part of Stop
	ShutdownGrace time.Duration

	// ProtocolErrorThreshold is how many malformed lines are tolerated
	ProtocolErrorThreshold int

	// MaxLineSize bounds one inbound message
	MaxLineSize int

	// StderrLines is the size of the stderr ring buffer
	StderrLines int

	// CallRate limits tools/call per second; zero disables limiting
	CallRate rate.Limit

	// CallBurst is the limiter burst; defaults to 1 when CallRate is set
	CallBurst int

	// OnStateChange is invoked after every state transition
	OnStateChange func(s *Session, from, to SessionState, err error)

	// OnNotification is invoked for every notification from the server
	OnNotification func(s *Session, method string, params json.RawMessage)
}

func (c *SessionConfig) applyDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Tracer == nil {
		c.Tracer = defaultTracer()
	}
	if c.ClientInfo.Name == "" {
		c.ClientInfo = DefaultClientInfo
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = DefaultStartTimeout
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	if c.ProtocolErrorThreshold <= 0 {
		c.ProtocolErrorThreshold = DefaultProtocolErrorThreshold
	}
	if c.MaxLineSize <= 0 {
		c.MaxLineSize = DefaultMaxLineSize
	}
	if c.StderrLines <= 0 {
		c.StderrLines = DefaultStderrLines
	}
	if c.CallRate > 0 && c.CallBurst <= 0 {
		c.CallBurst = 1
	}
}

type rpcResult struct {
	msg *Message
	err error
}

// pendingRequest is an outbound request awaiting its response. The channel is
// buffered so delivery never blocks the reader.
type pendingRequest struct {
	id     int64
	method string
	sent   time.Time
	ch     chan rpcResult
}

type outbound struct {
	msg *Message
	id  int64
}

// Session owns one server subprocess and the JSON-RPC conversation with it.
type Session struct {
	cfg    SessionConfig
	def    ServerDefinition
	logger *slog.Logger

	mu        sync.Mutex
	state     SessionState
	lastErr   error
	startedAt time.Time
	info      ServerInfo
	tools     []ToolDefinition

	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    io.ReadCloser
	stderrR   io.ReadCloser
	transport *Transport
	stderr    *LogCapture
	limiter   *rate.Limiter

	nextID atomic.Int64

	pmu        sync.Mutex
	pending    map[int64]*pendingRequest
	pendingErr error

	protocolErrs int

	outbox     chan outbound
	readerDone chan struct{}
	exited     chan struct{}
	exitErr    error
	done       chan struct{}
	doneOnce   sync.Once
	release    sync.Once
	stdinOnce  sync.Once
}

// NewSession creates a session in the NotStarted state.
func NewSession(cfg SessionConfig) *Session {
	cfg.applyDefaults()
	def := cfg.Definition.clone()

	s := &Session{
		cfg:        cfg,
		def:        def,
		logger:     log.WithServer(cfg.Logger, def.Name),
		state:      StateNotStarted,
		pending:    make(map[int64]*pendingRequest),
		outbox:     make(chan outbound),
		readerDone: make(chan struct{}),
		exited:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.stderr = NewLogCapture(cfg.StderrLines, s.logger)
	if cfg.CallRate > 0 {
		s.limiter = rate.NewLimiter(cfg.CallRate, cfg.CallBurst)
	}
	return s
}

// Name returns the server name.
func (s *Session) Name() string {
	return s.def.Name
}

// Definition returns a copy of the server definition.
func (s *Session) Definition() ServerDefinition {
	return s.def.clone()
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that moved the session to Failed, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Tools returns the tools discovered during the handshake.
func (s *Session) Tools() []ToolDefinition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ToolDefinition(nil), s.tools...)
}

// ServerInfo returns what the server reported during initialize.
func (s *Session) ServerInfo() ServerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// StderrTail returns the last n lines the server wrote to stderr.
func (s *Session) StderrTail(n int) []string {
	return s.stderr.Tail(n)
}

// Done is closed once the session reaches Terminated or Failed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// PID returns the process id, or 0 if the process was never started.
func (s *Session) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// transition moves to the next state. Reaching a terminal state closes Done.
func (s *Session) transition(to SessionState, cause error) error {
	s.mu.Lock()
	from := s.state
	if err := checkTransition(from, to); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = to
	if to == StateFailed {
		s.lastErr = cause
	}
	if to == StateActive {
		s.startedAt = time.Now()
		activeSessions.Inc()
	} else if from == StateActive {
		activeSessions.Dec()
	}
	s.mu.Unlock()

	if to.IsTerminal() {
		s.doneOnce.Do(func() { close(s.done) })
	}

	s.logger.Debug("mcp session state changed", "from", from, "to", to)
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(s, from, to, cause)
	}
	return nil
}

// Start spawns the server and runs the initialize and tools/list exchange. On
// success the session is in ToolsDiscovering and waits for Activate. Any
// failure leaves the session Failed with its process released.
func (s *Session) Start(ctx context.Context) (err error) {
	ctx, span := startSessionSpan(ctx, s.cfg.Tracer, s.def)
	defer func() { endSpan(span, err) }()

	if err := s.transition(StateStarting, nil); err != nil {
		return err
	}

	if err := s.spawn(); err != nil {
		s.fail(err)
		return err
	}

	hctx, cancel := context.WithTimeout(ctx, s.cfg.StartTimeout)
	defer cancel()

	if err := s.transition(StateInitializing, nil); err != nil {
		return s.abortStart(err)
	}
	if err := s.initialize(ctx, hctx); err != nil {
		return s.abortStart(err)
	}

	if err := s.transition(StateToolsDiscovering, nil); err != nil {
		return s.abortStart(err)
	}
	tools, err := s.listTools(ctx, hctx)
	if err != nil {
		return s.abortStart(err)
	}

	s.mu.Lock()
	s.tools = tools
	s.mu.Unlock()
	return nil
}

// abortStart fails the session unless something else already moved it to a
// terminal state, and returns the error that best explains the outcome.
func (s *Session) abortStart(err error) error {
	s.fail(err)
	if cause := s.Err(); cause != nil {
		return cause
	}
	return err
}

// Activate marks a session that finished its handshake as ready for calls.
func (s *Session) Activate() error {
	return s.transition(StateActive, nil)
}

func (s *Session) spawn() error {
	if s.def.TransportKind() != TransportStdio {
		return ErrInvalidConfig(fmt.Sprintf("server %q: unsupported transport %q", s.def.Name, s.def.Transport)).
			WithServer(s.def.Name)
	}

	cmd := exec.Command(s.def.Command, s.def.Args...)
	cmd.Env = buildEnv(os.Environ(), s.def.Env)
	configureProcess(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return ErrSpawnFailed(s.def.Name, s.def.Command, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return ErrSpawnFailed(s.def.Name, s.def.Command, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return ErrSpawnFailed(s.def.Name, s.def.Command, err)
	}

	if err := cmd.Start(); err != nil {
		return ErrSpawnFailed(s.def.Name, s.def.Command, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.stdout = stdout
	s.stderrR = stderr
	s.transport = NewTransport(stdout, stdin, WithMaxLineSize(s.cfg.MaxLineSize))
	aborted := s.state.IsTerminal()
	s.mu.Unlock()

	s.logger.Debug("mcp server process started", "command", s.def.Command, "pid", cmd.Process.Pid)

	go s.stderr.Consume(stderr)
	go s.writeLoop()
	go s.readLoop()
	go s.waitLoop()

	// Stopped while the process was being launched.
	if aborted {
		s.releaseProcess()
		return ErrSessionTerminated
	}
	return nil
}

// buildEnv overlays overrides on the host environment in a stable order.
func buildEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(base)+len(keys))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, overridden := overrides[name]; !overridden {
			env = append(env, kv)
		}
	}
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}

func (s *Session) initialize(ctx, hctx context.Context) error {
	params := initializeParams(s.cfg.ClientInfo, s.cfg.ProtocolVersion)
	resp, err := s.request(hctx, MethodInitialize, params)
	if err != nil {
		return s.handshakeError(ctx, hctx, MethodInitialize, err)
	}
	if resp.Error != nil {
		return ErrApplication(s.def.Name, MethodInitialize, resp.Error)
	}

	info, err := parseInitializeResult(resp.Result)
	if err != nil {
		return ErrProtocolViolation(s.def.Name, err.Error()).WithCause(err)
	}
	if info.ProtocolVersion == "" {
		return ErrProtocolViolation(s.def.Name, "initialize result has no protocolVersion")
	}

	s.mu.Lock()
	s.info = info
	s.mu.Unlock()

	s.logger.Debug("mcp server initialized",
		"server_name", info.Name,
		"server_version", info.Version,
		"protocol_version", info.ProtocolVersion)

	note, err := NewNotification(MethodInitialized, nil)
	if err != nil {
		return err
	}
	if err := s.enqueue(hctx, note, 0); err != nil {
		return s.handshakeError(ctx, hctx, MethodInitialized, err)
	}
	return nil
}

func (s *Session) listTools(ctx, hctx context.Context) ([]ToolDefinition, error) {
	var (
		tools  []ToolDefinition
		cursor string
		seen   = make(map[string]bool)
	)
	for page := 0; page < maxToolPages; page++ {
		var params any
		if cursor != "" {
			params = listToolsParams{Cursor: cursor}
		}
		resp, err := s.request(hctx, MethodToolsList, params)
		if err != nil {
			return nil, s.handshakeError(ctx, hctx, MethodToolsList, err)
		}
		if resp.Error != nil {
			return nil, ErrApplication(s.def.Name, MethodToolsList, resp.Error)
		}

		var result listToolsResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, ErrProtocolViolation(s.def.Name, fmt.Sprintf("decode tools/list result: %v", err)).WithCause(err)
		}
		for _, tool := range result.Tools {
			if tool.Name == "" {
				s.logger.Warn("mcp server advertised a tool without a name")
				continue
			}
			if seen[tool.Name] {
				s.logger.Warn("mcp server advertised a duplicate tool", "tool", tool.Name)
				continue
			}
			seen[tool.Name] = true
			tools = append(tools, tool)
		}

		if result.NextCursor == "" || result.NextCursor == cursor {
			return tools, nil
		}
		cursor = result.NextCursor
	}
	s.logger.Warn("mcp server tools/list pagination stopped early", "pages", maxToolPages)
	return tools, nil
}

// handshakeError maps request failures during the handshake onto the error
// taxonomy. The start timeout maps to HANDSHAKE_TIMEOUT; the caller's own
// cancellation is returned unchanged.
func (s *Session) handshakeError(ctx, hctx context.Context, phase string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && hctx.Err() != nil {
		return ErrHandshakeTimedOut(s.def.Name, phase, s.cfg.StartTimeout)
	}
	return err
}

// CallTool invokes a tool by the name the server uses for it. Application
// errors come back as a result with IsError set. JSON-RPC errors wrap an
// *RPCError, and a timeout yields *CallTimeoutError.
func (s *Session) CallTool(ctx context.Context, rawName string, args json.RawMessage) (*ToolResult, error) {
	if st := s.State(); st != StateActive {
		return nil, s.notActiveError(st)
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	if s.limiter != nil {
		// Wait fails early when the next token is due after the deadline.
		if err := s.limiter.Wait(cctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &CallTimeoutError{Server: s.def.Name, Tool: rawName, Timeout: s.cfg.CallTimeout}
		}
	}

	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	params := callToolParams{Name: rawName, Arguments: args}

	id, resp, err := s.roundTrip(cctx, MethodToolsCall, params)
	if err != nil {
		if ctxErr := cctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			s.cancelRequest(id, ctxErr.Error())
			return nil, s.callContextError(ctx, rawName, err)
		}
		return nil, err
	}
	if resp.Error != nil {
		return nil, ErrApplication(s.def.Name, MethodToolsCall, resp.Error)
	}

	result, err := parseToolResult(resp.Result)
	if err != nil {
		return nil, ErrProtocolViolation(s.def.Name, err.Error()).WithCause(err)
	}
	return result, nil
}

func (s *Session) callContextError(ctx context.Context, rawName string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &CallTimeoutError{Server: s.def.Name, Tool: rawName, Timeout: s.cfg.CallTimeout}
	}
	return err
}

func (s *Session) notActiveError(st SessionState) error {
	e := NewMCPError(ErrorCodeNotActive, fmt.Sprintf("MCP server '%s' is not active", s.def.Name)).
		WithServer(s.def.Name).
		WithDetail(fmt.Sprintf("state %s", st))
	if cause := s.Err(); cause != nil {
		e.WithCause(cause)
	}
	return e
}

// cancelRequest tells the server to stop working on a request we gave up on.
func (s *Session) cancelRequest(id int64, reason string) {
	if id == 0 {
		return
	}
	note, err := NewNotification(MethodCancelled, cancelledParams{RequestID: id, Reason: reason})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cancelSendWindow)
	defer cancel()
	if err := s.enqueue(ctx, note, 0); err != nil {
		s.logger.Debug("mcp cancel notification not sent", "id", id, "error", err)
	}
}

func (s *Session) request(ctx context.Context, method string, params any) (*Message, error) {
	_, resp, err := s.roundTrip(ctx, method, params)
	return resp, err
}

// roundTrip registers a pending entry before the request is written, so a
// fast response can never race ahead of its waiter.
func (s *Session) roundTrip(ctx context.Context, method string, params any) (int64, *Message, error) {
	id := s.nextID.Add(1)
	msg, err := NewRequest(id, method, params)
	if err != nil {
		return 0, nil, err
	}

	p := &pendingRequest{id: id, method: method, sent: time.Now(), ch: make(chan rpcResult, 1)}
	if err := s.addPending(p); err != nil {
		return 0, nil, err
	}

	if err := s.enqueue(ctx, msg, id); err != nil {
		s.removePending(id)
		return 0, nil, err
	}

	select {
	case res := <-p.ch:
		return id, res.msg, res.err
	case <-ctx.Done():
		s.removePending(id)
		return id, nil, ctx.Err()
	}
}

func (s *Session) addPending(p *pendingRequest) error {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	if s.pendingErr != nil {
		return s.pendingErr
	}
	s.pending[p.id] = p
	return nil
}

func (s *Session) removePending(id int64) {
	s.pmu.Lock()
	delete(s.pending, id)
	s.pmu.Unlock()
}

// deliver completes a pending request exactly once. It reports false when no
// request with that id is waiting.
func (s *Session) deliver(id int64, res rpcResult) bool {
	s.pmu.Lock()
	p, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.pmu.Unlock()
	if !ok {
		return false
	}
	p.ch <- res
	return true
}

// failPending fails every in-flight request and rejects new ones.
func (s *Session) failPending(err error) {
	s.pmu.Lock()
	if s.pendingErr == nil {
		s.pendingErr = err
	}
	pending := s.pending
	s.pending = make(map[int64]*pendingRequest)
	s.pmu.Unlock()

	for _, p := range pending {
		p.ch <- rpcResult{err: err}
	}
}

// enqueue hands a message to the writer. A blocked writer never blocks the
// caller past its context.
func (s *Session) enqueue(ctx context.Context, msg *Message, id int64) error {
	select {
	case s.outbox <- outbound{msg: msg, id: id}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return s.terminalError()
	}
}

func (s *Session) terminalError() error {
	if err := s.Err(); err != nil {
		return err
	}
	return ErrSessionTerminated
}

func (s *Session) writeLoop() {
	for {
		select {
		case out := <-s.outbox:
			s.logWire(log.DirectionOutbound, out.msg)
			if err := s.transport.Send(out.msg); err != nil {
				s.logger.Debug("mcp write failed", "method", out.msg.Method, "error", err)
				if out.id != 0 {
					s.deliver(out.id, rpcResult{err: ErrServerExited(s.def.Name, err)})
				}
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) readLoop() {
	streamErr := s.consume()
	close(s.readerDone)

	if streamErr != nil {
		if !s.stopping() {
			s.logger.Warn("mcp server stream failed", "error", streamErr)
			s.fail(ErrProtocolViolation(s.def.Name, streamErr.Error()).WithCause(streamErr))
		}
		return
	}

	// stdout closed. Wait briefly for the exit status so the failure can name it.
	select {
	case <-s.exited:
	case <-time.After(exitObserveWindow):
	case <-s.done:
		return
	}
	s.handleExit()
}

// consume dispatches inbound messages until stdout closes. It returns the
// error that ended the stream, or nil on EOF.
func (s *Session) consume() error {
	for msg, err := range s.transport.Receive() {
		if err != nil {
			var perr *ProtocolError
			if errors.As(err, &perr) {
				s.handleProtocolError(perr)
				continue
			}
			return err
		}
		s.logWire(log.DirectionInbound, msg)

		switch msg.Kind() {
		case KindResponse:
			s.handleResponse(msg)
		case KindRequest:
			go s.handleServerRequest(msg)
		case KindNotification:
			s.handleNotification(msg)
		}
	}
	return nil
}

// stopping reports whether the session is being or has been torn down.
func (s *Session) stopping() bool {
	st := s.State()
	return st == StateShuttingDown || st.IsTerminal()
}

func (s *Session) handleProtocolError(perr *ProtocolError) {
	protocolErrors.WithLabelValues(s.def.Name).Inc()
	s.protocolErrs++
	s.logger.Warn("mcp server sent malformed message",
		"error", perr.Err,
		"line", perr.Line,
		"count", s.protocolErrs)

	if s.protocolErrs >= s.cfg.ProtocolErrorThreshold && !s.stopping() {
		s.fail(ErrProtocolViolation(s.def.Name,
			fmt.Sprintf("%d malformed messages", s.protocolErrs)).WithCause(perr))
	}
}

func (s *Session) handleResponse(msg *Message) {
	id, ok := msg.IntID()
	if !ok || !s.deliver(id, rpcResult{msg: msg}) {
		unmatchedResponses.WithLabelValues(s.def.Name).Inc()
		s.logger.Warn("mcp response discarded: no pending request", "id", string(msg.ID))
	}
}

func (s *Session) handleServerRequest(msg *Message) {
	var reply *Message
	if msg.Method == MethodPing {
		var err error
		if reply, err = NewResponse(msg.ID, struct{}{}); err != nil {
			return
		}
	} else {
		s.logger.Debug("mcp server request not supported", "method", msg.Method)
		reply = NewErrorResponse(msg.ID, CodeMethodNotFound, "method not found: "+msg.Method)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
	defer cancel()
	if err := s.enqueue(ctx, reply, 0); err != nil {
		s.logger.Debug("mcp reply not sent", "method", msg.Method, "error", err)
	}
}

func (s *Session) handleNotification(msg *Message) {
	s.logger.Debug("mcp server notification", "method", msg.Method)
	if s.cfg.OnNotification != nil {
		s.cfg.OnNotification(s, msg.Method, msg.Params)
	}
}

// waitLoop reaps the process. cmd.Wait must not run before the pipes are
// drained, so it waits on the readers first.
func (s *Session) waitLoop() {
	<-s.readerDone
	select {
	case <-s.stderr.Done():
	case <-time.After(stderrDrainWindow):
		s.stderrR.Close()
	}

	err := s.cmd.Wait()

	s.mu.Lock()
	s.exitErr = err
	s.mu.Unlock()
	close(s.exited)

	s.logger.Debug("mcp server process exited", "error", err)
	s.handleExit()
}

// handleExit fails the session if the process went away while it was still
// expected to be running.
func (s *Session) handleExit() {
	if s.stopping() {
		return
	}

	var exitErr error
	select {
	case <-s.exited:
		s.mu.Lock()
		exitErr = s.exitErr
		s.mu.Unlock()
	default:
	}
	if exitErr == nil {
		exitErr = errors.New("stdout closed")
	}
	s.fail(ErrServerExited(s.def.Name, exitErr))
}

// fail moves the session to Failed, fails in-flight requests and releases the
// process. It is a no-op once the session is terminal.
func (s *Session) fail(err error) {
	if terr := s.transition(StateFailed, err); terr != nil {
		return
	}
	s.logger.Warn("mcp server failed", "error", err)
	s.failPending(err)
	s.releaseProcess()
}

// releaseProcess kills the process group and closes every pipe. It never
// waits, so it is safe to call from the reader goroutine.
func (s *Session) releaseProcess() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil {
		return
	}

	s.release.Do(func() {
		select {
		case <-s.exited:
		default:
			if err := killProcess(cmd.Process); err != nil {
				s.logger.Debug("mcp kill failed", "error", err)
			}
		}
		s.closeStdin()
		s.stdout.Close()
		s.stderrR.Close()
	})
}

func (s *Session) closeStdin() {
	s.stdinOnce.Do(func() {
		if s.stdin != nil {
			s.stdin.Close()
		}
	})
}

// Stop shuts the session down: in-flight calls fail with ErrSessionTerminated,
// stdin is closed, then the process group gets SIGTERM and finally SIGKILL if
// it outlives the grace period. Stop always returns.
func (s *Session) Stop(ctx context.Context) error {
	st := s.State()
	switch {
	case st.IsTerminal():
		s.waitExited(ctx, killWaitWindow)
		return nil
	case st == StateShuttingDown:
		select {
		case <-s.done:
		case <-ctx.Done():
		}
		return nil
	case st == StateNotStarted, st == StateStarting, st == StateInitializing:
		s.fail(ErrSessionTerminated)
		s.waitExited(ctx, killWaitWindow)
		return nil
	}

	if err := s.transition(StateShuttingDown, nil); err != nil {
		// Lost a race with a failure; the failure path already released everything.
		s.waitExited(ctx, killWaitWindow)
		return nil
	}

	s.failPending(ErrSessionTerminated)
	s.closeStdin()

	half := s.cfg.ShutdownGrace / 2
	if !s.waitExited(ctx, half) {
		s.mu.Lock()
		proc := s.cmd.Process
		s.mu.Unlock()
		s.logger.Debug("mcp server still running after stdin close, sending SIGTERM")
		if err := terminateProcess(proc); err != nil {
			s.logger.Debug("mcp terminate failed", "error", err)
		}
		if !s.waitExited(ctx, s.cfg.ShutdownGrace-half) {
			s.logger.Warn("mcp server did not exit within grace period, killing", "grace", s.cfg.ShutdownGrace)
		}
	}

	s.releaseProcess()
	s.waitExited(ctx, killWaitWindow)

	if err := s.transition(StateTerminated, nil); err != nil {
		return nil
	}
	s.logger.Info("mcp server stopped")
	return nil
}

// waitExited waits for the process to be reaped. It reports false on timeout
// or when ctx is done.
func (s *Session) waitExited(ctx context.Context, d time.Duration) bool {
	s.mu.Lock()
	started := s.cmd != nil
	s.mu.Unlock()
	if !started {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.exited:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Session) logWire(direction string, msg *Message) {
	if !s.logger.Enabled(context.Background(), log.LevelTrace) {
		return
	}
	body, _ := json.Marshal(msg)
	log.LogWire(s.logger, log.WireMessage{
		Direction: direction,
		Kind:      msg.Kind().String(),
		Method:    msg.Method,
		ID:        string(msg.ID),
		Body:      body,
	})
}

// SessionStatus is a point-in-time view of a session.
type SessionStatus struct {
	Name       string           `json:"name"`
	Source     DefinitionSource `json:"source"`
	State      SessionState     `json:"state"`
	PID        int              `json:"pid,omitempty"`
	Tools      int              `json:"tools"`
	Server     string           `json:"server_name,omitempty"`
	Version    string           `json:"server_version,omitempty"`
	Protocol   string           `json:"protocol_version,omitempty"`
	Uptime     time.Duration    `json:"uptime,omitempty"`
	LastError  string           `json:"last_error,omitempty"`
	StderrTail []string         `json:"stderr_tail,omitempty"`
}

// Status returns a snapshot of the session.
func (s *Session) Status(stderrLines int) SessionStatus {
	pid := s.PID()

	s.mu.Lock()
	defer s.mu.Unlock()

	status := SessionStatus{
		Name:     s.def.Name,
		Source:   s.def.Source,
		State:    s.state,
		PID:      pid,
		Tools:    len(s.tools),
		Server:   s.info.Name,
		Version:  s.info.Version,
		Protocol: s.info.ProtocolVersion,
	}
	if s.state == StateActive && !s.startedAt.IsZero() {
		status.Uptime = time.Since(s.startedAt)
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
		status.StderrTail = s.stderr.Tail(stderrLines)
	}
	return status
}
