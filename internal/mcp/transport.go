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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
)

// DefaultMaxLineSize bounds a single inbound message.
const DefaultMaxLineSize = 10 << 20

// ErrLineTooLong is returned when an inbound line exceeds the size limit. The
// stream cannot be resynchronized after it.
var ErrLineTooLong = errors.New("mcp: message exceeds maximum line size")

// ProtocolError reports one malformed inbound line. It does not end the stream.
type ProtocolError struct {
	// Line is the offending input, truncated for logging
	Line string
	// Err is the decode failure
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v (line %q)", e.Err, e.Line)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Transport frames JSON-RPC messages as newline-delimited JSON over a byte
// stream pair. Send is safe for concurrent use; Next must be called from a
// single reader goroutine.
type Transport struct {
	wmu sync.Mutex
	w   io.Writer

	scanner *bufio.Scanner
	done    bool
}

// TransportOption configures a Transport.
type TransportOption func(*transportOptions)

type transportOptions struct {
	maxLineSize int
}

// WithMaxLineSize overrides DefaultMaxLineSize.
func WithMaxLineSize(n int) TransportOption {
	return func(o *transportOptions) {
		if n > 0 {
			o.maxLineSize = n
		}
	}
}

// NewTransport creates a transport reading from r and writing to w.
func NewTransport(r io.Reader, w io.Writer, opts ...TransportOption) *Transport {
	o := transportOptions{maxLineSize: DefaultMaxLineSize}
	for _, opt := range opts {
		opt(&o)
	}

	scanner := bufio.NewScanner(r)
	initial := 64 * 1024
	if initial > o.maxLineSize {
		initial = o.maxLineSize
	}
	scanner.Buffer(make([]byte, 0, initial), o.maxLineSize)

	return &Transport{w: w, scanner: scanner}
}

// Send writes one message followed by a newline. Writes from concurrent callers
// never interleave, and a slow peer blocks the caller instead of losing data.
func (t *Transport) Send(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	data = append(data, '\n')

	t.wmu.Lock()
	defer t.wmu.Unlock()

	if _, err := t.w.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Next returns the next decoded message. A malformed line yields a
// *ProtocolError and the caller may keep reading. io.EOF means the peer closed
// its end; any other error is fatal.
func (t *Transport) Next() (*Message, error) {
	for {
		if t.done {
			return nil, io.EOF
		}
		if !t.scanner.Scan() {
			t.done = true
			err := t.scanner.Err()
			switch {
			case err == nil:
				return nil, io.EOF
			case errors.Is(err, bufio.ErrTooLong):
				return nil, ErrLineTooLong
			default:
				return nil, fmt.Errorf("read message: %w", err)
			}
		}

		line := t.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return decodeLine(line)
	}
}

// Receive yields decoded messages lazily until the stream ends. Protocol errors
// are yielded and iteration continues; io.EOF ends iteration silently.
func (t *Transport) Receive() iter.Seq2[*Message, error] {
	return func(yield func(*Message, error) bool) {
		for {
			msg, err := t.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(msg, err) {
				return
			}
			var perr *ProtocolError
			if err != nil && !errors.As(err, &perr) {
				return
			}
		}
	}
}

func decodeLine(line []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, &ProtocolError{Line: truncate(line), Err: err}
	}
	if msg.Kind() == KindInvalid {
		return nil, &ProtocolError{Line: truncate(line), Err: errors.New("not a JSON-RPC 2.0 message")}
	}
	return &msg, nil
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
