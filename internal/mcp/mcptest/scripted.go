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

package mcptest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Tools served in scripted modes.
var scriptedTools = []map[string]any{
	{"name": "add", "description": "Add a and b", "inputSchema": map[string]any{
		"type":       "object",
		"properties": map[string]any{"a": map[string]any{"type": "number"}, "b": map[string]any{"type": "number"}},
		"required":   []string{"a", "b"},
	}},
	{"name": "echo", "description": "Echo text", "inputSchema": map[string]any{
		"type":       "object",
		"properties": map[string]any{"text": map[string]any{"type": "string"}},
	}},
	{"name": "slow", "description": "Reply with tag after delay_ms"},
	{"name": "fail", "description": "Always reports a tool error"},
	{"name": "rpc_error", "description": "Always answers with a JSON-RPC error"},
	{"name": "env", "description": "Return the value of environment variable name"},
	{"name": "ping", "description": "Ping the client before answering"},
	{"name": "stray", "description": "Send a response with an unknown id first"},
	{"name": "notify", "description": "Announce a tool list change"},
	{"name": "crash", "description": "Exit while the call is in flight"},
	{"name": "stderr", "description": "Write count lines to stderr"},
	{"name": "cancelled", "description": "List request ids the client cancelled"},
}

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

type scripted struct {
	in   io.Reader
	mode string

	wmu sync.Mutex
	out io.Writer

	prefix    string
	initDelay time.Duration

	mu        sync.Mutex
	cancelled []string
	pongs     chan struct{}
}

func newScripted(in io.Reader, out io.Writer, mode string) *scripted {
	s := &scripted{in: in, out: out, mode: mode, pongs: make(chan struct{}, 1)}
	s.prefix = os.Getenv(ToolPrefixEnv)
	if d, err := time.ParseDuration(os.Getenv(InitDelayEnv)); err == nil {
		s.initDelay = d
	}
	return s
}

// tools returns list with the configured name prefix applied.
func (s *scripted) tools(list []map[string]any) []map[string]any {
	if s.prefix == "" {
		return list
	}
	out := make([]map[string]any, len(list))
	for i, tool := range list {
		renamed := make(map[string]any, len(tool))
		for k, v := range tool {
			renamed[k] = v
		}
		if name, ok := tool["name"].(string); ok {
			renamed["name"] = s.prefix + name
		}
		out[i] = renamed
	}
	return out
}

func (s *scripted) run(ctx context.Context) int {
	lines := make(chan []byte)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		scanner.Buffer(make([]byte, 64*1024), 16<<20)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return 0
		case line, ok := <-lines:
			if !ok {
				if s.mode == ModeStubborn {
					time.Sleep(time.Hour)
				}
				return 0
			}
			var msg rpcMessage
			if err := json.Unmarshal(line, &msg); err != nil {
				fmt.Fprintf(os.Stderr, "bad input: %v\n", err)
				continue
			}
			s.dispatch(&msg)
		}
	}
}

func (s *scripted) dispatch(msg *rpcMessage) {
	if s.mode == ModeHang {
		return
	}

	switch {
	case msg.Method == "" && len(msg.ID) > 0:
		if string(msg.ID) == `"srv-1"` {
			select {
			case s.pongs <- struct{}{}:
			default:
			}
		}
	case len(msg.ID) == 0:
		s.notification(msg)
	default:
		s.request(msg)
	}
}

func (s *scripted) notification(msg *rpcMessage) {
	switch msg.Method {
	case "notifications/initialized":
		if s.mode == ModeFlood {
			go func() {
				for {
					if err := s.writeLine([]byte("garbage that is not json")); err != nil {
						return
					}
					time.Sleep(5 * time.Millisecond)
				}
			}()
		}
	case "notifications/cancelled":
		var p struct {
			RequestID json.RawMessage `json:"requestId"`
		}
		_ = json.Unmarshal(msg.Params, &p)
		s.mu.Lock()
		s.cancelled = append(s.cancelled, string(p.RequestID))
		s.mu.Unlock()
	}
}

func (s *scripted) request(msg *rpcMessage) {
	switch msg.Method {
	case "initialize":
		s.initialize(msg)
	case "tools/list":
		s.listTools(msg)
	case "tools/call":
		go s.callTool(msg)
	case "ping":
		s.result(msg.ID, map[string]any{})
	default:
		s.error(msg.ID, -32601, "method not found: "+msg.Method)
	}
}

func (s *scripted) initialize(msg *rpcMessage) {
	time.Sleep(s.initDelay)

	switch s.mode {
	case ModeInitError:
		s.error(msg.ID, -32603, "initialize refused")
		return
	case ModeNoVersion:
		s.result(msg.ID, map[string]any{
			"capabilities": map[string]any{},
			"serverInfo":   map[string]any{"name": "scripted", "version": "1.0.0"},
		})
		return
	}

	var p struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	_ = json.Unmarshal(msg.Params, &p)
	if p.ProtocolVersion == "" {
		p.ProtocolVersion = "2025-03-26"
	}
	s.result(msg.ID, map[string]any{
		"protocolVersion": p.ProtocolVersion,
		"capabilities":    map[string]any{"tools": map[string]any{"listChanged": true}},
		"serverInfo":      map[string]any{"name": "scripted", "version": "1.0.0"},
		"instructions":    "test server",
	})
}

func (s *scripted) listTools(msg *rpcMessage) {
	switch s.mode {
	case ModePaged:
		var p struct {
			Cursor string `json:"cursor"`
		}
		_ = json.Unmarshal(msg.Params, &p)
		if p.Cursor == "" {
			s.result(msg.ID, map[string]any{"tools": s.tools(scriptedTools[:1]), "nextCursor": "page2"})
			return
		}
		s.result(msg.ID, map[string]any{"tools": s.tools(scriptedTools[1:2])})
	case ModeDuplicateTools:
		s.result(msg.ID, map[string]any{"tools": []map[string]any{
			scriptedTools[0], scriptedTools[0], {"description": "no name"}, scriptedTools[1],
		}})
	default:
		s.result(msg.ID, map[string]any{"tools": s.tools(scriptedTools)})
	}
}

func (s *scripted) callTool(msg *rpcMessage) {
	var p struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		s.error(msg.ID, -32602, err.Error())
		return
	}
	args := p.Arguments

	switch strings.TrimPrefix(p.Name, s.prefix) {
	case "add":
		a, _ := args["a"].(float64)
		b, _ := args["b"].(float64)
		s.text(msg.ID, strconv.FormatFloat(a+b, 'f', -1, 64), false)
	case "echo":
		text, _ := args["text"].(string)
		s.text(msg.ID, "Echo: "+text, false)
	case "slow":
		delay, _ := args["delay_ms"].(float64)
		tag, _ := args["tag"].(string)
		time.Sleep(time.Duration(delay) * time.Millisecond)
		s.text(msg.ID, tag, false)
	case "fail":
		s.text(msg.ID, "boom", true)
	case "rpc_error":
		s.error(msg.ID, -32000, "tool exploded")
	case "env":
		name, _ := args["name"].(string)
		s.text(msg.ID, os.Getenv(name), false)
	case "ping":
		s.write(map[string]any{"jsonrpc": "2.0", "id": "srv-1", "method": "ping"})
		select {
		case <-s.pongs:
			s.text(msg.ID, "pong", false)
		case <-time.After(5 * time.Second):
			s.text(msg.ID, "no pong", true)
		}
	case "stray":
		s.write(map[string]any{"jsonrpc": "2.0", "id": 9999, "result": map[string]any{}})
		s.text(msg.ID, "ok", false)
	case "notify":
		s.write(map[string]any{"jsonrpc": "2.0", "method": "notifications/tools/list_changed"})
		s.text(msg.ID, "ok", false)
	case "crash":
		fmt.Fprintln(os.Stderr, "panic: crash requested")
		os.Exit(2)
	case "stderr":
		count, _ := args["count"].(float64)
		for i := 0; i < int(count); i++ {
			fmt.Fprintf(os.Stderr, "line %d\n", i+1)
		}
		s.text(msg.ID, "ok", false)
	case "cancelled":
		s.mu.Lock()
		ids := strings.Join(s.cancelled, ",")
		s.mu.Unlock()
		s.text(msg.ID, ids, false)
	default:
		s.error(msg.ID, -32602, "unknown tool: "+p.Name)
	}
}

func (s *scripted) text(id json.RawMessage, text string, isError bool) {
	s.result(id, map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
		"isError": isError,
	})
}

func (s *scripted) result(id json.RawMessage, result any) {
	s.write(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func (s *scripted) error(id json.RawMessage, code int, message string) {
	s.write(map[string]any{"jsonrpc": "2.0", "id": id, "error": map[string]any{"code": code, "message": message}})
}

func (s *scripted) write(msg map[string]any) {
	data, err := json.Marshal(msg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal: %v\n", err)
		return
	}
	if s.mode == ModeNoisy {
		_ = s.writeLine([]byte("this is not json"))
		_ = s.writeLine([]byte(`{"jsonrpc":"1.0","id":1}`))
	}
	_ = s.writeLine(data)
}

func (s *scripted) writeLine(line []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err := s.out.Write(append(line, '\n'))
	return err
}
