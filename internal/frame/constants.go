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

// Frame markers. The end marker must differ from the start marker so that a
// reader can tell an opening frame from a closing one.
const (
	StartByte = 0x7E // Opens every frame
	EndByte   = 0x7F // Closes every frame
)

// Frame geometry
const (
	HeaderSize = 3 // start + identifier + length
	FooterSize = 1 // end marker
	CRCLength  = 2 // CRC16, high byte first

	// Overhead is every byte of a frame that is not payload
	Overhead = HeaderSize + CRCLength + FooterSize

	MinFrameLength   = Overhead // Empty payload
	MaxFrameLength   = 257      // Largest frame a reader will accumulate
	MaxPayloadLength = MaxFrameLength - Overhead
)

// Byte locations within a frame
const (
	StartOffset      = 0x00
	IdentifierOffset = 0x01
	LengthOffset     = 0x02
	PayloadOffset    = 0x03
)

// ProtocolIdentifier marks a protocol/control frame rather than a data frame.
// Every other non-sentinel identifier is free for application use.
const ProtocolIdentifier = 0xFF

// CRC parameters (CRC-16/CCITT-FALSE)
const (
	CRCPolynomial = 0x1021
	CRCInitial    = 0xFFFF
)

// FrameLength returns the on-wire size of a frame carrying payloadLen bytes.
func FrameLength(payloadLen int) int {
	return Overhead + payloadLen
}

// IsSentinel reports whether b is one of the frame markers.
func IsSentinel(b byte) bool {
	return b == StartByte || b == EndByte
}
