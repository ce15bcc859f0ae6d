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
	"bufio"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultStderrLines is how many stderr lines a session keeps.
const DefaultStderrLines = 200

// LogEntry is one line of captured server output.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// RingBuffer is a fixed-size circular buffer for log entries.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	head    int
	count   int
}

// NewRingBuffer creates a new ring buffer with the specified capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultStderrLines
	}
	return &RingBuffer{entries: make([]LogEntry, capacity)}
}

// Add appends an entry, overwriting the oldest once full.
func (rb *RingBuffer) Add(entry LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	size := len(rb.entries)
	rb.entries[(rb.head+rb.count)%size] = entry
	if rb.count < size {
		rb.count++
	} else {
		rb.head = (rb.head + 1) % size
	}
}

// Last returns up to n entries, oldest first. n <= 0 returns everything.
func (rb *RingBuffer) Last(n int) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || n > rb.count {
		n = rb.count
	}
	result := make([]LogEntry, n)
	start := rb.count - n
	for i := 0; i < n; i++ {
		result[i] = rb.entries[(rb.head+start+i)%len(rb.entries)]
	}
	return result
}

// Count returns the number of entries in the buffer.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// LogCapture collects a server's stderr. Lines are kept in a ring buffer and
// mirrored to the logger at debug level.
type LogCapture struct {
	buf    *RingBuffer
	logger *slog.Logger
	done   chan struct{}
}

// NewLogCapture creates a capture keeping the last capacity lines.
func NewLogCapture(capacity int, logger *slog.Logger) *LogCapture {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogCapture{
		buf:    NewRingBuffer(capacity),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Consume reads r line by line until EOF. It is run in its own goroutine.
func (lc *LogCapture) Consume(r io.Reader) {
	defer close(lc.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		lc.buf.Add(LogEntry{Timestamp: time.Now(), Message: line})
		lc.logger.Debug("server stderr", "line", line)
	}
}

// Done is closed once the underlying reader reaches EOF.
func (lc *LogCapture) Done() <-chan struct{} {
	return lc.done
}

// Tail returns the last n captured lines.
func (lc *LogCapture) Tail(n int) []string {
	entries := lc.buf.Last(n)
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Message
	}
	return lines
}
