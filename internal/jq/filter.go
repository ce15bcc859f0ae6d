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

// Package jq applies jq expressions to MCP tool-call results.
//
// A filter runs against the result document of a tools/call response:
//
//	{"content": [...], "isError": false, "structuredContent": {...}}
//
// Servers may omit "content" or "isError"; the document is normalized so
// both are always present.
package jq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/itchyny/gojq"

	"github.com/tombee/mcphost/internal/mcp"
	pkgerrors "github.com/tombee/mcphost/pkg/errors"
)

const (
	// DefaultTimeout bounds one filter run.
	DefaultTimeout = 1 * time.Second

	// DefaultMaxDocumentSize is the largest result document a filter accepts (10MB).
	DefaultMaxDocumentSize = 10 << 20
)

// ErrDocumentTooLarge is returned when a result document exceeds the limit.
var ErrDocumentTooLarge = errors.New("jq: result document too large")

// Option configures a Filter.
type Option func(*Filter)

// WithTimeout sets the per-run timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Filter) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxDocumentSize sets the document size limit in bytes.
func WithMaxDocumentSize(n int) Option {
	return func(f *Filter) {
		if n > 0 {
			f.maxSize = n
		}
	}
}

// Filter is a compiled jq expression. It is safe for concurrent use.
type Filter struct {
	expr    string
	code    *gojq.Code
	timeout time.Duration
	maxSize int
}

// Compile parses and compiles expr. Errors are validation errors so a bad
// expression is rejected before any server is started.
func Compile(expr string, opts ...Option) (*Filter, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, &pkgerrors.ValidationError{
			Field:   "jq",
			Message: fmt.Sprintf("invalid jq expression: %v", err),
			Hint:    `Filter the result document, e.g. --jq '.content[0].text'`,
		}
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, &pkgerrors.ValidationError{
			Field:   "jq",
			Message: fmt.Sprintf("jq compilation failed: %v", err),
		}
	}

	f := &Filter{expr: expr, code: code, timeout: DefaultTimeout, maxSize: DefaultMaxDocumentSize}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expr
}

// Apply runs the filter over the document of r and returns every output in
// order.
func (f *Filter) Apply(ctx context.Context, r *mcp.ToolResult) ([]any, error) {
	doc, err := f.document(r)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var out []any
	iter := f.code.RunWithContext(ctx, doc)
	for {
		v, ok := iter.Next()
		if !ok {
			return out, nil
		}
		err, isErr := v.(error)
		if !isErr {
			out = append(out, v)
			continue
		}

		var halt *gojq.HaltError
		if errors.As(err, &halt) && halt.Value() == nil {
			return out, nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &pkgerrors.TimeoutError{Operation: "jq filter", Duration: f.timeout, Cause: err}
		}
		return nil, fmt.Errorf("jq filter %q: %w", f.expr, err)
	}
}

// document decodes the result document of r within the size limit.
func (f *Filter) document(r *mcp.ToolResult) (map[string]any, error) {
	if r == nil {
		return nil, errors.New("jq: no tool result")
	}
	raw := r.Raw
	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(r); err != nil {
			return nil, fmt.Errorf("failed to encode tool result: %w", err)
		}
	}
	if len(raw) > f.maxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrDocumentTooLarge, len(raw), f.maxSize)
	}
	return Document(raw)
}

// Document decodes a tools/call result document and fills in the
// "content" and "isError" fields when the server left them out.
func Document(raw json.RawMessage) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode tool result: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if _, ok := doc["content"].([]any); !ok {
		doc["content"] = []any{}
	}
	if _, ok := doc["isError"].(bool); !ok {
		doc["isError"] = false
	}
	return doc, nil
}
