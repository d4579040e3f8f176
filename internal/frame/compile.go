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

// Compile serializes identifier and payload into a new frame buffer of exact size.
//
// Marker bytes inside the payload are not escaped. Such a frame compiles but is
// rejected with ErrLength when read back; use CheckPayload to refuse it earlier.
func Compile(identifier byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLength {
		return nil, ErrPayloadTooLarge
	}
	buf := make([]byte, FrameLength(len(payload)))
	n, err := CompileInto(buf, identifier, payload)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// CompileInto writes the frame into dst and returns the number of bytes written,
// which is always FrameLength(len(payload)).
func CompileInto(dst []byte, identifier byte, payload []byte) (int, error) {
	if len(payload) > MaxPayloadLength {
		return 0, ErrPayloadTooLarge
	}
	total := FrameLength(len(payload))
	if len(dst) < total {
		return 0, ErrBufferTooSmall
	}

	dst[StartOffset] = StartByte
	dst[IdentifierOffset] = identifier
	dst[LengthOffset] = byte(len(payload))
	copy(dst[PayloadOffset:], payload)

	crc := CalculateCRC16(payload)
	crcOff := PayloadOffset + len(payload)
	dst[crcOff] = byte(crc >> 8)
	dst[crcOff+1] = byte(crc)
	dst[crcOff+CRCLength] = EndByte

	return total, nil
}

// CheckPayload reports ErrReservedByte when the identifier or any payload byte
// is a frame marker, and ErrPayloadTooLarge when the payload cannot fit a frame.
func CheckPayload(identifier byte, payload []byte) error {
	if len(payload) > MaxPayloadLength {
		return ErrPayloadTooLarge
	}
	if IsSentinel(identifier) {
		return ErrReservedByte
	}
	for _, b := range payload {
		if IsSentinel(b) {
			return ErrReservedByte
		}
	}
	return nil
}
