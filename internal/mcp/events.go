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
	"log/slog"
	"sync"
	"time"
)

// EventType represents the type of manager event.
type EventType string

const (
	// EventServerStarting indicates a server process is being launched.
	EventServerStarting EventType = "server_starting"
	// EventServerActive indicates a server finished its handshake and is callable.
	EventServerActive EventType = "server_active"
	// EventServerFailed indicates a server failed to start or crashed.
	EventServerFailed EventType = "server_failed"
	// EventServerStopped indicates a server was shut down.
	EventServerStopped EventType = "server_stopped"
	// EventToolCallStarted indicates a tool call was sent.
	EventToolCallStarted EventType = "tool_call_started"
	// EventToolCallCompleted indicates a tool call finished, successfully or not.
	EventToolCallCompleted EventType = "tool_call_completed"
	// EventToolsChanged indicates the server announced a new tool list.
	EventToolsChanged EventType = "tools_changed"
	// EventToolCollision indicates a tool was dropped because of a name collision.
	EventToolCollision EventType = "tool_collision"
)

// DefaultEventBuffer is the channel size of each subscriber.
const DefaultEventBuffer = 64

// Event is emitted by the Manager.
type Event struct {
	// Type is the event type.
	Type EventType `json:"type"`

	// RunID identifies the manager run.
	RunID string `json:"run_id"`

	// Server is the name of the server.
	Server string `json:"server,omitempty"`

	// Tool is the namespaced tool name for call and collision events.
	Tool string `json:"tool,omitempty"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Duration is set on ToolCallCompleted.
	Duration time.Duration `json:"duration,omitempty"`

	// IsError is set on ToolCallCompleted when the tool reported an error.
	IsError bool `json:"is_error,omitempty"`

	// Err is set on ServerFailed and failed ToolCallCompleted events.
	Err error `json:"-"`

	// Message is an optional human-readable message.
	Message string `json:"message,omitempty"`
}

// eventBus fans events out to subscribers. A subscriber that falls behind
// loses events instead of stalling the publisher.
type eventBus struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	buffer  int
	closed  bool
	dropped int
	logger  *slog.Logger
}

func newEventBus(buffer int, logger *slog.Logger) *eventBus {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &eventBus{
		subs:   make(map[int]chan Event),
		buffer: buffer,
		logger: logger,
	}
}

func (b *eventBus) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

func (b *eventBus) publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{"type", string(event.Type)}
	if event.Server != "" {
		attrs = append(attrs, "server", event.Server)
	}
	if event.Tool != "" {
		attrs = append(attrs, "tool", event.Tool)
	}
	if event.Err != nil {
		attrs = append(attrs, "error", event.Err)
	}
	b.logger.Debug("mcp event", attrs...)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.dropped++
		}
	}
}

// close closes every subscriber channel. Later publishes are discarded.
func (b *eventBus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

func (b *eventBus) droppedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
