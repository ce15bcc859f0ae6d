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
	"log/slog"
)

// Direction of a wire message relative to this process.
const (
	DirectionOutbound = "send"
	DirectionInbound  = "recv"
)

// WireMessage describes one JSON-RPC message for trace logging.
type WireMessage struct {
	// Direction is DirectionOutbound or DirectionInbound
	Direction string

	// Kind is request, response or notification
	Kind string

	// Method is empty for responses
	Method string

	// ID is the raw JSON-RPC id, if any
	ID string

	// Body is the full encoded message
	Body []byte
}

// LogWire logs a JSON-RPC message at trace level. The body is only attached
// when trace logging is enabled, so callers can pass it unconditionally.
func LogWire(logger *slog.Logger, msg WireMessage) {
	attrs := []slog.Attr{
		slog.String("direction", msg.Direction),
		slog.String("kind", msg.Kind),
	}
	if msg.Method != "" {
		attrs = append(attrs, slog.String("method", msg.Method))
	}
	if msg.ID != "" {
		attrs = append(attrs, slog.String("id", msg.ID))
	}
	if len(msg.Body) > 0 {
		attrs = append(attrs, slog.String("body", string(msg.Body)))
	}
	Trace(logger, "jsonrpc message", attrs...)
}
