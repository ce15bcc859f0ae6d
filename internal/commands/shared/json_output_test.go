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
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/tombee/mcphost/internal/mcp"
)

func TestEmitJSON_Envelope(t *testing.T) {
	var buf bytes.Buffer
	resp := struct {
		JSONResponse
		Servers []string `json:"servers"`
	}{
		JSONResponse: NewJSONResponse("mcp list"),
		Servers:      []string{"github"},
	}
	if err := EmitJSON(&buf, resp); err != nil {
		t.Fatalf("EmitJSON() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded["@version"] != JSONVersion {
		t.Errorf("@version = %v", decoded["@version"])
	}
	if decoded["command"] != "mcp list" {
		t.Errorf("command = %v", decoded["command"])
	}
	if decoded["success"] != true {
		t.Errorf("success = %v", decoded["success"])
	}
}

func TestEmitJSONError(t *testing.T) {
	var buf bytes.Buffer
	errs := []JSONError{
		NewJSONError(mcp.ErrServerExited("calc", errors.New("exit status 2"))),
		NewJSONError(errors.New("plain")),
	}
	if err := EmitJSONError(&buf, "mcp call", errs); err != nil {
		t.Fatalf("EmitJSONError() error = %v", err)
	}

	var decoded struct {
		Success bool        `json:"success"`
		Errors  []JSONError `json:"errors"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded.Success {
		t.Error("success should be false")
	}
	if len(decoded.Errors) != 2 {
		t.Fatalf("errors = %d, want 2", len(decoded.Errors))
	}
	if decoded.Errors[0].Code != "process_exit" || !decoded.Errors[0].Retryable {
		t.Errorf("first error = %+v", decoded.Errors[0])
	}
	if decoded.Errors[1].Code != "internal" || decoded.Errors[1].Message != "plain" {
		t.Errorf("second error = %+v", decoded.Errors[1])
	}
}
