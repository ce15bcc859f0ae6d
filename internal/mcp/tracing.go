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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/tombee/mcphost/internal/mcp"

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// startSessionSpan covers spawn and handshake of one server.
func startSessionSpan(ctx context.Context, tracer trace.Tracer, def ServerDefinition) (context.Context, trace.Span) {
	return tracer.Start(ctx, fmt.Sprintf("mcp.session.start: %s", def.Name),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("mcp.server", def.Name),
			attribute.String("mcp.command", def.Command),
			attribute.String("mcp.source", string(def.Source)),
		),
	)
}

// startCallSpan covers one tools/call round trip.
func startCallSpan(ctx context.Context, tracer trace.Tracer, server, tool string) (context.Context, trace.Span) {
	return tracer.Start(ctx, fmt.Sprintf("mcp.tool.call: %s", tool),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("mcp.server", server),
			attribute.String("mcp.tool", tool),
		),
	)
}

// endSpan records the outcome and ends the span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
