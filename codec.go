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

package packet

import "github.com/ZaparooProject/go-packet/internal/frame"

// Frame markers
const (
	StartByte = frame.StartByte
	EndByte   = frame.EndByte
)

// Frame geometry
const (
	HeaderSize       = frame.HeaderSize
	FooterSize       = frame.FooterSize
	CRCLength        = frame.CRCLength
	Overhead         = frame.Overhead
	MinFrameLength   = frame.MinFrameLength
	MaxFrameLength   = frame.MaxFrameLength
	MaxPayloadLength = frame.MaxPayloadLength
)

// ProtocolIdentifier marks a protocol/control frame.
const ProtocolIdentifier = frame.ProtocolIdentifier

// State is a step of the frame validator. ValidationError reports the state
// that rejected a frame.
type State = frame.State

// Validator states, in the order a well-formed frame visits them
const (
	StateStartByte    = frame.StateStartByte
	StateCmdByte      = frame.StateCmdByte
	StateLengthByte   = frame.StateLengthByte
	StatePayloadBytes = frame.StatePayloadBytes
	StateCRCBytes     = frame.StateCRCBytes
	StateEndByte      = frame.StateEndByte
	StateComplete     = frame.StateComplete
)

// CRC16 computes the CRC-16/CCITT-FALSE checksum of data
// (polynomial 0x1021, initial value 0xFFFF).
func CRC16(data []byte) uint16 {
	return frame.CalculateCRC16(data)
}

// Compile serializes identifier and payload into a new frame.
// Marker bytes inside the payload are not escaped.
func Compile(identifier byte, payload []byte) ([]byte, error) {
	return frame.Compile(identifier, payload)
}

// CompileInto writes a frame into dst and returns its length.
func CompileInto(dst []byte, identifier byte, payload []byte) (int, error) {
	return frame.CompileInto(dst, identifier, payload)
}

// CheckPayload reports whether identifier and payload can travel in a frame
// that a receiver will accept.
func CheckPayload(identifier byte, payload []byte) error {
	return frame.CheckPayload(identifier, payload)
}

// Validate checks that buf begins with one well-formed frame.
// It returns nil or a *ValidationError.
func Validate(buf []byte) error {
	return frame.Validate(buf)
}

// FrameLength returns the on-wire size of a frame carrying payloadLen bytes.
func FrameLength(payloadLen int) int {
	return frame.FrameLength(payloadLen)
}
