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

import "testing"

// crc16Bitwise is the shift-register form of the frame checksum, kept here as
// an independent reference for the table-driven implementation.
func crc16Bitwise(data []byte) uint16 {
	crc := uint16(CRCInitial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ CRCPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func TestCalculateCRC16(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{
			name: "empty data",
			data: []byte{},
			want: 0xFFFF,
		},
		{
			name: "nil data",
			data: nil,
			want: 0xFFFF,
		},
		{
			name: "check string",
			data: []byte("123456789"),
			want: 0x29B1,
		},
		{
			name: "two bytes",
			data: []byte{0xAB, 0xCD},
			want: 0xD46A,
		},
		{
			name: "single zero",
			data: []byte{0x00},
			want: 0xE1F0,
		},
		{
			name: "three bytes",
			data: []byte{0x01, 0x02, 0x03},
			want: 0xADAD,
		},
		{
			name: "bench script payload",
			data: []byte{0x00, 0x77, 0x01, 0x13, 0x00, 0x76, 0x00, 0x00},
			want: 0x699B,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CalculateCRC16(tt.data); got != tt.want {
				t.Errorf("CalculateCRC16() = 0x%04X, want 0x%04X", got, tt.want)
			}
			if got := crc16Bitwise(tt.data); got != tt.want {
				t.Errorf("crc16Bitwise() = 0x%04X, want 0x%04X", got, tt.want)
			}
		})
	}
}

func TestCalculateCRC16_Deterministic(t *testing.T) {
	t.Parallel()
	data := []byte("hello")
	first := CalculateCRC16(data)
	for range 10 {
		if got := CalculateCRC16(data); got != first {
			t.Fatalf("CalculateCRC16 not deterministic: 0x%04X != 0x%04X", got, first)
		}
	}
}

func TestAppendCRC16(t *testing.T) {
	t.Parallel()
	got := AppendCRC16([]byte{0x01}, []byte{0xAB, 0xCD})
	want := []byte{0x01, 0xD4, 0x6A}
	if string(got) != string(want) {
		t.Errorf("AppendCRC16() = %X, want %X", got, want)
	}
}
