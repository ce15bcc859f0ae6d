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

package server

import (
	"context"
	"errors"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
)

var errDivideByZero = errors.New("division by zero")

func divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errDivideByZero
	}
	return a / b, nil
}

// arithmetic builds a handler for a binary operation on a and b.
func (s *Server) arithmetic(name string, op func(a, b float64) (float64, error)) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !s.rateLimiter.AllowCall() {
			return errorResponse("Rate limit exceeded. Please try again later."), nil
		}

		a, err := request.RequireFloat("a")
		if err != nil {
			return errorResponse(err.Error()), nil
		}
		b, err := request.RequireFloat("b")
		if err != nil {
			return errorResponse(err.Error()), nil
		}

		result, err := op(a, b)
		if err != nil {
			s.logger.Debug("calculator operation failed", "tool", name, "error", err)
			return errorResponse(err.Error()), nil
		}
		s.logger.Debug("calculator operation", "tool", name, "a", a, "b", b, "result", result)
		return textResponse(formatNumber(result)), nil
	}
}

func (s *Server) handleEcho(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.rateLimiter.AllowCall() {
		return errorResponse("Rate limit exceeded. Please try again later."), nil
	}

	text, err := request.RequireString("text")
	if err != nil {
		return errorResponse(err.Error()), nil
	}
	return textResponse("Echo: " + text), nil
}

// formatNumber prints integers without a fractional part.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
