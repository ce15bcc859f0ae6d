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
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// JSONRPCVersion is the only protocol version accepted on the wire.
const JSONRPCVersion = "2.0"

// Methods used by the client side of the protocol.
const (
	MethodInitialize          = "initialize"
	MethodInitialized         = "notifications/initialized"
	MethodToolsList           = "tools/list"
	MethodToolsCall           = "tools/call"
	MethodPing                = "ping"
	MethodCancelled           = "notifications/cancelled"
	MethodToolsListChanged    = "notifications/tools/list_changed"
	MethodLoggingNotification = "notifications/message"
)

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// MessageKind is the variant of a decoded JSON-RPC message.
type MessageKind int

const (
	// KindInvalid is a well-formed JSON object that is not a JSON-RPC message.
	KindInvalid MessageKind = iota
	// KindRequest carries an id and a method.
	KindRequest
	// KindResponse carries an id and either result or error.
	KindResponse
	// KindNotification carries a method and no id.
	KindNotification
)

func (k MessageKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	default:
		return "invalid"
	}
}

// Message is a single JSON-RPC 2.0 message. Raw fields are left undecoded so
// payloads pass through untouched until a consumer needs them.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Kind classifies the message from the fields present.
func (m *Message) Kind() MessageKind {
	if m.JSONRPC != JSONRPCVersion {
		return KindInvalid
	}
	hasID := len(m.ID) > 0 && !bytes.Equal(m.ID, []byte("null"))
	switch {
	case m.Method != "" && hasID:
		return KindRequest
	case m.Method != "":
		return KindNotification
	case hasID && (m.Result != nil || m.Error != nil):
		return KindResponse
	default:
		return KindInvalid
	}
}

// IntID returns the numeric id of the message. Ids we generate are always
// integers, so anything else cannot correlate with a pending request.
func (m *Message) IntID() (int64, bool) {
	if len(m.ID) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(string(m.ID), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// RPCError is a JSON-RPC error object. When returned from a call it means the
// server rejected the request at the protocol level.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewRequest builds a request with a numeric id.
func NewRequest(id int64, method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{
		JSONRPC: JSONRPCVersion,
		ID:      json.RawMessage(strconv.FormatInt(id, 10)),
		Method:  method,
		Params:  raw,
	}, nil
}

// NewNotification builds a notification.
func NewNotification(method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: JSONRPCVersion, Method: method, Params: raw}, nil
}

// NewResponse builds a success response echoing the request id.
func NewResponse(id json.RawMessage, result any) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Message{JSONRPC: JSONRPCVersion, ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response echoing the request id.
func NewErrorResponse(id json.RawMessage, code int, message string) *Message {
	return &Message{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return raw, nil
}

// ClientInfo identifies this host during the initialize handshake.
type ClientInfo struct {
	Name    string
	Version string
}

// DefaultProtocolVersion is requested when the manager is not configured
// with a specific version.
const DefaultProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION

// DefaultClientInfo is sent when the manager is not given an identity.
var DefaultClientInfo = ClientInfo{Name: "mcphost", Version: "dev"}

func initializeParams(info ClientInfo, protocolVersion string) mcpgo.InitializeParams {
	if protocolVersion == "" {
		protocolVersion = DefaultProtocolVersion
	}
	return mcpgo.InitializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    mcpgo.ClientCapabilities{},
		ClientInfo: mcpgo.Implementation{
			Name:    info.Name,
			Version: info.Version,
		},
	}
}

// parseInitializeResult decodes the initialize response into a ServerInfo.
func parseInitializeResult(raw json.RawMessage) (ServerInfo, error) {
	var res mcpgo.InitializeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return ServerInfo{}, fmt.Errorf("decode initialize result: %w", err)
	}
	info := ServerInfo{
		Name:            res.ServerInfo.Name,
		Version:         res.ServerInfo.Version,
		ProtocolVersion: res.ProtocolVersion,
		Instructions:    res.Instructions,
	}
	if res.Capabilities.Tools != nil {
		info.Capabilities.Tools = &ToolsCapability{ListChanged: res.Capabilities.Tools.ListChanged}
	}
	if res.Capabilities.Resources != nil {
		info.Capabilities.Resources = &ResourcesCapability{
			Subscribe:   res.Capabilities.Resources.Subscribe,
			ListChanged: res.Capabilities.Resources.ListChanged,
		}
	}
	if res.Capabilities.Prompts != nil {
		info.Capabilities.Prompts = &PromptsCapability{ListChanged: res.Capabilities.Prompts.ListChanged}
	}
	return info, nil
}

type listToolsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

type listToolsResult struct {
	Tools      []ToolDefinition `json:"tools"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type cancelledParams struct {
	RequestID int64  `json:"requestId"`
	Reason    string `json:"reason,omitempty"`
}

func parseToolResult(raw json.RawMessage) (*ToolResult, error) {
	var res ToolResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode tools/call result: %w", err)
	}
	res.Raw = raw
	return &res, nil
}
