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
	"encoding/json"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_Kind(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want MessageKind
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, KindRequest},
		{"request with string id", `{"jsonrpc":"2.0","id":"abc","method":"ping"}`, KindRequest},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, KindNotification},
		{"notification with null id", `{"jsonrpc":"2.0","id":null,"method":"notifications/message"}`, KindNotification},
		{"result response", `{"jsonrpc":"2.0","id":7,"result":{}}`, KindResponse},
		{"error response", `{"jsonrpc":"2.0","id":7,"error":{"code":-32601,"message":"nope"}}`, KindResponse},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, KindInvalid},
		{"missing version", `{"id":1,"method":"ping"}`, KindInvalid},
		{"id only", `{"jsonrpc":"2.0","id":1}`, KindInvalid},
		{"empty object", `{}`, KindInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg Message
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &msg))
			assert.Equal(t, tt.want, msg.Kind())
		})
	}
}

func TestMessageKind_String(t *testing.T) {
	assert.Equal(t, "request", KindRequest.String())
	assert.Equal(t, "response", KindResponse.String())
	assert.Equal(t, "notification", KindNotification.String())
	assert.Equal(t, "invalid", KindInvalid.String())
}

func TestMessage_IntID(t *testing.T) {
	tests := []struct {
		id     string
		want   int64
		wantOK bool
	}{
		{"42", 42, true},
		{`"42"`, 0, false},
		{"1.5", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		msg := Message{ID: json.RawMessage(tt.id)}
		got, ok := msg.IntID()
		assert.Equal(t, tt.wantOK, ok, "id %q", tt.id)
		assert.Equal(t, tt.want, got, "id %q", tt.id)
	}
}

func TestNewRequest(t *testing.T) {
	msg, err := NewRequest(3, MethodToolsCall, callToolParams{Name: "add", Arguments: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)
	assert.Equal(t, KindRequest, msg.Kind())

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"add","arguments":{"a":1}}}`, string(data))
}

func TestNewRequest_NilParams(t *testing.T) {
	msg, err := NewRequest(1, MethodToolsList, nil)
	require.NoError(t, err)
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, string(data))
}

func TestNewResponses(t *testing.T) {
	ok, err := NewResponse(json.RawMessage(`"srv-1"`), struct{}{})
	require.NoError(t, err)
	data, err := json.Marshal(ok)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"srv-1","result":{}}`, string(data))

	fail := NewErrorResponse(json.RawMessage(`5`), CodeMethodNotFound, "method not found: sampling/createMessage")
	assert.Equal(t, KindResponse, fail.Kind())
	assert.Equal(t, CodeMethodNotFound, fail.Error.Code)
	assert.Contains(t, fail.Error.Error(), "-32601")
}

func TestInitializeParams(t *testing.T) {
	p := initializeParams(ClientInfo{Name: "host", Version: "1.2.3"}, "")
	assert.Equal(t, mcpgo.LATEST_PROTOCOL_VERSION, p.ProtocolVersion)
	assert.Equal(t, "host", p.ClientInfo.Name)
	assert.Equal(t, "1.2.3", p.ClientInfo.Version)

	p = initializeParams(DefaultClientInfo, "2024-11-05")
	assert.Equal(t, "2024-11-05", p.ProtocolVersion)
}

func TestParseInitializeResult(t *testing.T) {
	raw := json.RawMessage(`{
		"protocolVersion": "2025-03-26",
		"capabilities": {"tools": {"listChanged": true}, "prompts": {}},
		"serverInfo": {"name": "calc", "version": "0.1.0"},
		"instructions": "be nice"
	}`)
	info, err := parseInitializeResult(raw)
	require.NoError(t, err)
	assert.Equal(t, "calc", info.Name)
	assert.Equal(t, "0.1.0", info.Version)
	assert.Equal(t, "2025-03-26", info.ProtocolVersion)
	assert.Equal(t, "be nice", info.Instructions)
	require.NotNil(t, info.Capabilities.Tools)
	assert.True(t, info.Capabilities.Tools.ListChanged)
	assert.NotNil(t, info.Capabilities.Prompts)
	assert.Nil(t, info.Capabilities.Resources)

	_, err = parseInitializeResult(json.RawMessage(`[]`))
	assert.Error(t, err)
}

func TestParseToolResult(t *testing.T) {
	raw := json.RawMessage(`{"content":[{"type":"text","text":"42"},{"type":"image","data":"AAAA","mimeType":"image/png"}],"isError":false}`)
	res, err := parseToolResult(raw)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 2)
	assert.Equal(t, "42", res.Text())
	assert.Equal(t, "image/png", res.Content[1].MimeType)
	assert.JSONEq(t, string(raw), string(res.Raw))

	_, err = parseToolResult(json.RawMessage(`"nope"`))
	assert.Error(t, err)
}
