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

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exampleFrame is identifier 0x01 carrying AB CD; CRC16(AB CD) = 0xD46A.
var exampleFrame = []byte{0x7E, 0x01, 0x02, 0xAB, 0xCD, 0xD4, 0x6A, 0x7F}

func TestNew(t *testing.T) {
	t.Parallel()

	payload := []byte{0xAB, 0xCD}
	p, err := New(0x01, payload)
	require.NoError(t, err)

	assert.Equal(t, exampleFrame, p.Raw)
	assert.Equal(t, byte(0x01), p.Identifier)
	assert.Equal(t, payload, p.Payload)
	assert.Equal(t, 2, p.PayloadLength())
	assert.Equal(t, 8, p.Len())
	assert.Equal(t, uint16(0xD46A), p.CRC())
	assert.False(t, p.IsProtocol())

	// The packet owns its bytes
	payload[0] = 0x00
	assert.Equal(t, byte(0xAB), p.Payload[0])
}

func TestNew_PayloadTooLarge(t *testing.T) {
	t.Parallel()

	_, err := New(0x01, make([]byte, MaxPayloadLength+1))
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestNew_EmptyPayload(t *testing.T) {
	t.Parallel()

	p, err := New(ProtocolIdentifier, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7E, 0xFF, 0x00, 0xFF, 0xFF, 0x7F}, p.Raw)
	assert.Empty(t, p.Payload)
	assert.True(t, p.IsProtocol())
	assert.Equal(t, uint16(0xFFFF), p.CRC())
}

func TestParse(t *testing.T) {
	t.Parallel()

	buf := append(bytes.Clone(exampleFrame), 0x55, 0x66)
	p, err := Parse(buf)
	require.NoError(t, err)

	assert.Equal(t, exampleFrame, p.Raw, "trailing bytes are not part of the frame")
	assert.Equal(t, []byte{0xAB, 0xCD}, p.Payload)
	assert.Equal(t, byte(0x01), p.Identifier)

	// Parse copies; mutating the input does not affect the packet
	buf[3] = 0x00
	assert.Equal(t, byte(0xAB), p.Payload[0])
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want error
		name string
		buf  []byte
	}{
		{name: "empty", buf: nil, want: ErrSchema},
		{name: "bad start", buf: []byte{0x00, 0x01, 0x00, 0xFF, 0xFF, 0x7F}, want: ErrSchema},
		{name: "identifier is end marker", buf: []byte{0x7E, 0x7F, 0x00, 0xFF, 0xFF, 0x7F}, want: ErrSchema},
		{name: "declared length overflows buffer", buf: []byte{0x7E, 0x01, 0x09, 0xFF, 0xFF, 0x7F}, want: ErrLength},
		{name: "bad crc", buf: []byte{0x7E, 0x01, 0x02, 0xAB, 0xCD, 0xD4, 0x6B, 0x7F}, want: ErrCRC},
		{name: "bad end", buf: []byte{0x7E, 0x01, 0x02, 0xAB, 0xCD, 0xD4, 0x6A, 0x7E}, want: ErrSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := Parse(tt.buf)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, p)
		})
	}
}

func TestPacket_String(t *testing.T) {
	t.Parallel()

	p, err := New(0x2A, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "packet(id=0x2A len=5 payload=68 65 6C 6C 6F)", p.String())
}

func TestCodecReexports(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint16(0xFFFF), CRC16(nil))
	assert.Equal(t, uint16(0x29B1), CRC16([]byte("123456789")))
	assert.Equal(t, 8, FrameLength(2))
	assert.Equal(t, 251, MaxPayloadLength)
	assert.Equal(t, 257, MaxFrameLength)

	raw, err := Compile(0x01, []byte{0xAB, 0xCD})
	require.NoError(t, err)
	assert.Equal(t, exampleFrame, raw)
	require.NoError(t, Validate(raw))

	dst := make([]byte, 16)
	n, err := CompileInto(dst, 0x01, []byte{0xAB, 0xCD})
	require.NoError(t, err)
	assert.Equal(t, exampleFrame, dst[:n])

	require.ErrorIs(t, CheckPayload(0x01, []byte{0x7E}), ErrReservedByte)
	require.NoError(t, CheckPayload(0x01, []byte{0x7D}))
}
