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

import "github.com/sigurn/crc16"

// crcTable is the CRC-16/CCITT-FALSE table: init 0xFFFF, polynomial 0x1021,
// no reflection and no final XOR.
var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// CalculateCRC16 computes the frame checksum over data.
// An empty input yields the initial register value 0xFFFF.
func CalculateCRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// AppendCRC16 appends the checksum of data to dst, high byte first.
func AppendCRC16(dst, data []byte) []byte {
	crc := CalculateCRC16(data)
	return append(dst, byte(crc>>8), byte(crc))
}
