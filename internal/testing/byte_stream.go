// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package testing

import (
	"io"

	"github.com/ZaparooProject/go-packet/internal/syncutil"
)

type streamStep struct {
	err  error
	data []byte
	gap  int
}

// ByteStream is a scripted byte source. Steps are replayed in order: data
// bytes are returned one per call, gaps return the configured no-data error
// a fixed number of times, and failures are returned once. When the script
// is exhausted ReadByte returns io.EOF.
type ByteStream struct {
	noData error
	steps  []streamStep
	mu     syncutil.Mutex
	reads  int
}

// NewByteStream creates an empty script. noData is returned for gaps.
func NewByteStream(noData error) *ByteStream {
	return &ByteStream{noData: noData}
}

// Bytes appends data to the script.
func (s *ByteStream) Bytes(data ...byte) *ByteStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned := make([]byte, len(data))
	copy(owned, data)
	s.steps = append(s.steps, streamStep{data: owned})
	return s
}

// Gap appends n no-data results to the script.
func (s *ByteStream) Gap(n int) *ByteStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, streamStep{gap: n})
	return s
}

// Fail appends a single error result to the script.
func (s *ByteStream) Fail(err error) *ByteStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, streamStep{err: err})
	return s
}

// ReadByte replays the next scripted result.
func (s *ByteStream) ReadByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++

	for len(s.steps) > 0 {
		step := &s.steps[0]
		switch {
		case step.err != nil:
			err := step.err
			s.steps = s.steps[1:]
			return 0, err
		case step.gap > 0:
			step.gap--
			if step.gap == 0 {
				s.steps = s.steps[1:]
			}
			return 0, s.noData
		case len(step.data) > 0:
			b := step.data[0]
			step.data = step.data[1:]
			if len(step.data) == 0 {
				s.steps = s.steps[1:]
			}
			return b, nil
		default:
			s.steps = s.steps[1:]
		}
	}
	return 0, io.EOF
}

// Reads returns the number of ReadByte calls made.
func (s *ByteStream) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Remaining returns the number of scripted data bytes not yet read.
func (s *ByteStream) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, step := range s.steps {
		n += len(step.data)
	}
	return n
}
