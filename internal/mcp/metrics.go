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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcphost_session_starts_total",
			Help: "Server session start attempts by outcome",
		},
		[]string{"outcome"},
	)

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mcphost_sessions_active",
		Help: "Server sessions currently accepting tool calls",
	})

	toolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcphost_tool_calls_total",
			Help: "Tool calls by server and status",
		},
		[]string{"server", "status"},
	)

	toolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcphost_tool_call_duration_seconds",
			Help:    "Duration of tool calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"server"},
	)

	protocolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcphost_protocol_errors_total",
			Help: "Malformed lines received from servers",
		},
		[]string{"server"},
	)

	unmatchedResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcphost_unmatched_responses_total",
			Help: "Responses discarded because no request was pending for their id",
		},
		[]string{"server"},
	)
)

// Tool call statuses used as metric labels.
const (
	callStatusOK        = "ok"
	callStatusToolError = "tool_error"
	callStatusRPCError  = "rpc_error"
	callStatusTimeout   = "timeout"
	callStatusFailed    = "failed"
)

func recordCall(server, status string, elapsed time.Duration) {
	toolCalls.WithLabelValues(server, status).Inc()
	toolCallDuration.WithLabelValues(server).Observe(elapsed.Seconds())
}
