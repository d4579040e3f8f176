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

package frame

import "encoding/binary"

// State is a position in the frame validation state machine. States advance
// strictly in declaration order; there are no branches or backward moves.
type State uint8

const (
	StateStartByte State = iota
	StateCmdByte
	StateLengthByte
	StatePayloadBytes
	StateCRCBytes
	StateEndByte
	StateComplete
)

var stateNames = [...]string{
	StateStartByte:    "StartByte",
	StateCmdByte:      "CmdByte",
	StateLengthByte:   "LengthByte",
	StatePayloadBytes: "PayloadBytes",
	StateCRCBytes:     "CRCBytes",
	StateEndByte:      "EndByte",
	StateComplete:     "Complete",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// machine walks one candidate buffer. Each step consumes one run of bytes and
// returns the next state or the categorized failure.
type machine struct {
	buf        []byte
	cursor     int
	payloadLen int
	state      State
}

type stepFunc func(m *machine) (State, error)

// transitions maps every non-terminal state to its single step.
var transitions = [...]stepFunc{
	StateStartByte:    (*machine).startByte,
	StateCmdByte:      (*machine).cmdByte,
	StateLengthByte:   (*machine).lengthByte,
	StatePayloadBytes: (*machine).payloadBytes,
	StateCRCBytes:     (*machine).crcBytes,
	StateEndByte:      (*machine).endByte,
}

func newMachine(buf []byte) *machine {
	return &machine{buf: buf, state: StateStartByte}
}

// run drives the machine to StateComplete. Running out of bytes before the
// end marker is a schema error.
func (m *machine) run() error {
	for m.state != StateComplete {
		if m.cursor >= len(m.buf) {
			return newValidationError(ErrSchema, m.state, m.cursor)
		}
		next, err := transitions[m.state](m)
		if err != nil {
			return err
		}
		m.state = next
	}
	return nil
}

func (m *machine) startByte() (State, error) {
	if len(m.buf) < MinFrameLength {
		return m.state, &ValidationError{
			Kind: ErrSchema, State: m.state, Offset: m.cursor,
			Want: MinFrameLength, Got: len(m.buf),
		}
	}
	if m.buf[m.cursor] != StartByte {
		return m.state, &ValidationError{
			Kind: ErrSchema, State: m.state, Offset: m.cursor,
			Want: StartByte, Got: int(m.buf[m.cursor]),
		}
	}
	m.cursor++
	return StateCmdByte, nil
}

func (m *machine) cmdByte() (State, error) {
	if IsSentinel(m.buf[m.cursor]) {
		return m.state, newValidationError(ErrSchema, m.state, m.cursor)
	}
	m.cursor++
	return StateLengthByte, nil
}

func (m *machine) lengthByte() (State, error) {
	declared := int(m.buf[m.cursor])
	total := FrameLength(declared)
	if total > len(m.buf) {
		return m.state, &ValidationError{
			Kind: ErrLength, State: m.state, Offset: m.cursor,
			Want: total, Got: len(m.buf),
		}
	}
	if total > MaxFrameLength {
		return m.state, &ValidationError{
			Kind: ErrLength, State: m.state, Offset: m.cursor,
			Want: MaxFrameLength, Got: total,
		}
	}
	m.payloadLen = declared
	m.cursor++
	return StatePayloadBytes, nil
}

// payloadBytes consumes the whole payload in one step.
func (m *machine) payloadBytes() (State, error) {
	for i := range m.payloadLen {
		pos := m.cursor + i
		if pos >= len(m.buf) || IsSentinel(m.buf[pos]) {
			return m.state, newValidationError(ErrLength, m.state, pos)
		}
	}
	m.cursor += m.payloadLen
	return StateCRCBytes, nil
}

func (m *machine) crcBytes() (State, error) {
	if m.cursor+CRCLength > len(m.buf) {
		return m.state, newValidationError(ErrSchema, m.state, m.cursor)
	}
	want := CalculateCRC16(m.buf[PayloadOffset : PayloadOffset+m.payloadLen])
	got := binary.BigEndian.Uint16(m.buf[m.cursor:])
	if want != got {
		return m.state, &ValidationError{
			Kind: ErrCRC, State: m.state, Offset: m.cursor,
			Want: int(want), Got: int(got),
		}
	}
	m.cursor += CRCLength
	return StateEndByte, nil
}

func (m *machine) endByte() (State, error) {
	if m.buf[m.cursor] != EndByte {
		return m.state, &ValidationError{
			Kind: ErrSchema, State: m.state, Offset: m.cursor,
			Want: EndByte, Got: int(m.buf[m.cursor]),
		}
	}
	m.cursor++
	return StateComplete, nil
}

// Validate checks that buf starts with one well-formed frame.
// Bytes after the end marker are never inspected.
func Validate(buf []byte) error {
	_, err := ValidateFrame(buf)
	return err
}

// ValidateFrame is Validate that also reports how many bytes the frame spans.
func ValidateFrame(buf []byte) (int, error) {
	m := newMachine(buf)
	if err := m.run(); err != nil {
		return 0, err
	}
	return m.cursor, nil
}

// Decode validates buf and returns the identifier and the payload.
// The payload aliases buf.
func Decode(buf []byte) (identifier byte, payload []byte, err error) {
	n, err := ValidateFrame(buf)
	if err != nil {
		return 0, nil, err
	}
	payloadLen := n - Overhead
	return buf[IdentifierOffset], buf[PayloadOffset : PayloadOffset+payloadLen], nil
}
