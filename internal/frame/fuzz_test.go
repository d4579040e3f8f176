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

import (
	"bytes"
	"errors"
	"testing"
)

// =============================================================================
// Fuzz Tests for Frame Parsing
// =============================================================================
// Malformed input from a noisy serial line must never crash the validator.
//
// Run with: go test -fuzz=FuzzValidate -fuzztime=30s ./internal/frame/
// Run all: go test -fuzz=Fuzz -fuzztime=10s ./internal/frame/

// FuzzValidate feeds arbitrary buffers to the state machine. Any failure must be
// one of the three categorized kinds.
func FuzzValidate(f *testing.F) {
	f.Add([]byte{0x7E, 0x01, 0x02, 0xAB, 0xCD, 0xD4, 0x6A, 0x7F}) // Example frame
	f.Add([]byte{0x7E, 0xFF, 0x00, 0xFF, 0xFF, 0x7F})             // Empty protocol frame

	f.Add([]byte{})                                   // Empty
	f.Add([]byte{0x7E})                               // Start only
	f.Add([]byte{0x7E, 0x7F, 0x00, 0x00, 0x00, 0x7F}) // Identifier collides
	f.Add([]byte{0x7E, 0x01, 0xFF, 0x00, 0x00, 0x7F}) // Length overflow
	f.Add([]byte{0x7F, 0x7F, 0x7F, 0x7F, 0x7F, 0x7F}) // All end markers

	f.Fuzz(func(t *testing.T, buf []byte) {
		err := Validate(buf)
		if err == nil {
			return
		}
		if !errors.Is(err, ErrSchema) && !errors.Is(err, ErrLength) && !errors.Is(err, ErrCRC) {
			t.Errorf("Validate returned uncategorized error: %v", err)
		}
	})
}

// FuzzRoundTrip checks that every clean payload survives Compile and Decode.
func FuzzRoundTrip(f *testing.F) {
	f.Add(byte(0x01), []byte{0xAB, 0xCD})
	f.Add(byte(0xFF), []byte{})
	f.Add(byte(0x00), []byte("123456789"))

	f.Fuzz(func(t *testing.T, identifier byte, payload []byte) {
		if CheckPayload(identifier, payload) != nil {
			return
		}

		buf, err := Compile(identifier, payload)
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}

		gotID, gotPayload, err := Decode(buf)
		if err != nil {
			t.Fatalf("Decode(%X) failed: %v", buf, err)
		}
		if gotID != identifier || !bytes.Equal(gotPayload, payload) {
			t.Errorf("round trip mismatch: got (0x%02X, %X), want (0x%02X, %X)",
				gotID, gotPayload, identifier, payload)
		}
	})
}

// FuzzCalculateCRC16 checks determinism and agreement with the bitwise reference.
func FuzzCalculateCRC16(f *testing.F) {
	f.Add([]byte{0xAB, 0xCD})
	f.Add([]byte("123456789"))
	f.Add([]byte{})
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, data []byte) {
		first := CalculateCRC16(data)
		if second := CalculateCRC16(data); first != second {
			t.Errorf("CalculateCRC16 is not deterministic: 0x%04X != 0x%04X", first, second)
		}
		if ref := crc16Bitwise(data); first != ref {
			t.Errorf("CalculateCRC16(%X) = 0x%04X, reference 0x%04X", data, first, ref)
		}
	})
}
