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
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer(3)
	assert.Empty(t, rb.Last(10))

	for i := 1; i <= 5; i++ {
		rb.Add(LogEntry{Timestamp: time.Now(), Message: fmt.Sprintf("line %d", i)})
	}
	assert.Equal(t, 3, rb.Count())

	last := rb.Last(0)
	require.Len(t, last, 3)
	assert.Equal(t, "line 3", last[0].Message)
	assert.Equal(t, "line 5", last[2].Message)

	last = rb.Last(2)
	require.Len(t, last, 2)
	assert.Equal(t, "line 4", last[0].Message)
}

func TestRingBuffer_DefaultCapacity(t *testing.T) {
	rb := NewRingBuffer(0)
	for i := 0; i < DefaultStderrLines+10; i++ {
		rb.Add(LogEntry{Message: "x"})
	}
	assert.Equal(t, DefaultStderrLines, rb.Count())
}

func TestLogCapture_Consume(t *testing.T) {
	lc := NewLogCapture(2, nil)
	lc.Consume(strings.NewReader("first\r\n\nsecond\nthird\n"))

	select {
	case <-lc.Done():
	default:
		t.Fatal("Done should be closed after Consume returns")
	}
	assert.Equal(t, []string{"second", "third"}, lc.Tail(5))
	assert.Equal(t, []string{"third"}, lc.Tail(1))
}
