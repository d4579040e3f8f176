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
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exampleFrame is Compile(0x01, []byte{0xAB, 0xCD}).
var exampleFrame = []byte{0x7E, 0x01, 0x02, 0xAB, 0xCD, 0xD4, 0x6A, 0x7F}

func TestValidate(t *testing.T) {
	t.Parallel()

	oversized := make([]byte, FrameLength(255))
	oversized[0] = StartByte
	oversized[1] = 0x01
	oversized[2] = 0xFF

	tests := []struct {
		wantKind  error
		name      string
		buf       []byte
		wantState State
	}{
		{
			name: "valid example frame",
			buf:  exampleFrame,
		},
		{
			name: "valid empty payload",
			buf:  []byte{0x7E, 0x01, 0x00, 0xFF, 0xFF, 0x7F},
		},
		{
			name: "valid protocol frame",
			buf:  []byte{0x7E, 0xFF, 0x00, 0xFF, 0xFF, 0x7F},
		},
		{
			name: "trailing bytes are not inspected",
			buf:  append(append([]byte{}, exampleFrame...), 0x7E, 0x00),
		},
		{
			name:      "nil buffer",
			buf:       nil,
			wantKind:  ErrSchema,
			wantState: StateStartByte,
		},
		{
			name:      "shorter than minimum",
			buf:       []byte{0x7E, 0x01, 0x00, 0xFF, 0xFF},
			wantKind:  ErrSchema,
			wantState: StateStartByte,
		},
		{
			name:      "wrong start byte",
			buf:       []byte{0x7D, 0x01, 0x02, 0xAB, 0xCD, 0xD4, 0x6A, 0x7F},
			wantKind:  ErrSchema,
			wantState: StateStartByte,
		},
		{
			name:      "identifier equals start byte",
			buf:       []byte{0x7E, 0x7E, 0x02, 0xAB, 0xCD, 0xD4, 0x6A, 0x7F},
			wantKind:  ErrSchema,
			wantState: StateCmdByte,
		},
		{
			name:      "identifier equals end byte",
			buf:       []byte{0x7E, 0x7F, 0x02, 0xAB, 0xCD, 0xD4, 0x6A, 0x7F},
			wantKind:  ErrSchema,
			wantState: StateCmdByte,
		},
		{
			name:      "declared length exceeds buffer",
			buf:       []byte{0x7E, 0x01, 0x05, 0xAB, 0xCD, 0xD4, 0x6A, 0x7F},
			wantKind:  ErrLength,
			wantState: StateLengthByte,
		},
		{
			name:      "declared length exceeds maximum frame",
			buf:       oversized,
			wantKind:  ErrLength,
			wantState: StateLengthByte,
		},
		{
			name:      "payload holds start byte",
			buf:       []byte{0x7E, 0x01, 0x02, 0x7E, 0xCD, 0xD4, 0x6A, 0x7F},
			wantKind:  ErrLength,
			wantState: StatePayloadBytes,
		},
		{
			name:      "payload holds end byte",
			buf:       []byte{0x7E, 0x01, 0x02, 0xAB, 0x7F, 0xD4, 0x6A, 0x7F},
			wantKind:  ErrLength,
			wantState: StatePayloadBytes,
		},
		{
			name:      "crc mismatch",
			buf:       []byte{0x7E, 0x01, 0x02, 0xAB, 0xCD, 0xD4, 0x6B, 0x7F},
			wantKind:  ErrCRC,
			wantState: StateCRCBytes,
		},
		{
			name:      "wrong end byte",
			buf:       []byte{0x7E, 0x01, 0x02, 0xAB, 0xCD, 0xD4, 0x6A, 0x7E},
			wantKind:  ErrSchema,
			wantState: StateEndByte,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(tt.buf)
			if tt.wantKind == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantKind)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantState, ve.State)
		})
	}
}

func TestValidateFrame_ReportsFrameLength(t *testing.T) {
	t.Parallel()
	buf := append(append([]byte{}, exampleFrame...), 0x01, 0x02, 0x03)
	n, err := ValidateFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, len(exampleFrame), n)
}

func TestValidate_CRCErrorDetails(t *testing.T) {
	t.Parallel()
	buf := []byte{0x7E, 0x01, 0x02, 0xAB, 0xCD, 0x00, 0x01, 0x7F}
	err := Validate(buf)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 5, ve.Offset)
	assert.Equal(t, 0xD46A, ve.Want)
	assert.Equal(t, 0x0001, ve.Got)
	assert.Contains(t, ve.Error(), "0xD46A")
}

func TestMachineSteps(t *testing.T) {
	t.Parallel()

	t.Run("start byte advances to cmd byte", func(t *testing.T) {
		t.Parallel()
		m := newMachine(exampleFrame)
		next, err := m.startByte()
		require.NoError(t, err)
		assert.Equal(t, StateCmdByte, next)
		assert.Equal(t, 1, m.cursor)
	})

	t.Run("length byte records payload length", func(t *testing.T) {
		t.Parallel()
		m := &machine{buf: exampleFrame, cursor: LengthOffset, state: StateLengthByte}
		next, err := m.lengthByte()
		require.NoError(t, err)
		assert.Equal(t, StatePayloadBytes, next)
		assert.Equal(t, 2, m.payloadLen)
		assert.Equal(t, PayloadOffset, m.cursor)
	})

	t.Run("payload consumed in one step", func(t *testing.T) {
		t.Parallel()
		m := &machine{buf: exampleFrame, cursor: PayloadOffset, payloadLen: 2, state: StatePayloadBytes}
		next, err := m.payloadBytes()
		require.NoError(t, err)
		assert.Equal(t, StateCRCBytes, next)
		assert.Equal(t, 5, m.cursor)
	})

	t.Run("payload running past buffer is a length error", func(t *testing.T) {
		t.Parallel()
		m := &machine{buf: exampleFrame[:4], cursor: PayloadOffset, payloadLen: 2, state: StatePayloadBytes}
		_, err := m.payloadBytes()
		assert.ErrorIs(t, err, ErrLength)
	})

	t.Run("absent crc bytes are a schema error", func(t *testing.T) {
		t.Parallel()
		m := &machine{buf: exampleFrame[:6], cursor: 5, payloadLen: 2, state: StateCRCBytes}
		_, err := m.crcBytes()
		assert.ErrorIs(t, err, ErrSchema)
	})

	t.Run("end of buffer before complete is a schema error", func(t *testing.T) {
		t.Parallel()
		m := &machine{buf: exampleFrame[:7], cursor: 7, payloadLen: 2, state: StateEndByte}
		err := m.run()
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.ErrorIs(t, err, ErrSchema)
		assert.Equal(t, StateEndByte, ve.State)
	})

	t.Run("complete is terminal", func(t *testing.T) {
		t.Parallel()
		m := &machine{buf: exampleFrame, cursor: len(exampleFrame), state: StateComplete}
		assert.NoError(t, m.run())
		assert.Equal(t, len(exampleFrame), m.cursor)
	})
}

func TestValidate_Truncation(t *testing.T) {
	t.Parallel()
	buf, err := Compile(0x10, []byte("123456789"))
	require.NoError(t, err)

	for cut := range len(buf) {
		err := Validate(buf[:cut])
		require.Error(t, err, "truncated at %d must not validate", cut)
		assert.True(t, errors.Is(err, ErrSchema) || errors.Is(err, ErrLength),
			"truncated at %d: unexpected error %v", cut, err)
	}
}

func TestValidate_SingleBitCorruption(t *testing.T) {
	t.Parallel()
	payload := []byte{0x01, 0x02, 0x03, 0xAB, 0xCD, 0x10}
	buf, err := Compile(0x05, payload)
	require.NoError(t, err)

	// Payload and CRC bytes
	for pos := PayloadOffset; pos < PayloadOffset+len(payload)+CRCLength; pos++ {
		for bit := range 8 {
			corrupted := append([]byte{}, buf...)
			corrupted[pos] ^= 1 << bit

			err := Validate(corrupted)
			if pos < PayloadOffset+len(payload) && IsSentinel(corrupted[pos]) {
				assert.ErrorIs(t, err, ErrLength, "pos %d bit %d", pos, bit)
				continue
			}
			assert.ErrorIs(t, err, ErrCRC, "pos %d bit %d", pos, bit)
		}
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "StartByte", StateStartByte.String())
	assert.Equal(t, "PayloadBytes", StatePayloadBytes.String())
	assert.Equal(t, "Complete", StateComplete.String())
	assert.Equal(t, "Unknown", State(42).String())
}

func TestValidationError_MatchesKindThroughWrapping(t *testing.T) {
	t.Parallel()

	bad := append([]byte(nil), exampleFrame...)
	bad[5] ^= 0xFF

	err := fmt.Errorf("read: %w", Validate(bad))

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ErrCRC, errors.Unwrap(ve))
	require.ErrorIs(t, err, ErrCRC)
	assert.NotErrorIs(t, err, ErrLength)
	assert.NotErrorIs(t, err, ErrSchema)
}
