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

// Package packet implements a framed binary packet protocol for
// point-to-point byte streams such as UART and SPI links.
//
// Every frame on the wire has the layout
//
//	START(0x7E) | IDENTIFIER | LENGTH | PAYLOAD... | CRC_HI | CRC_LO | END(0x7F)
//
// where the CRC is CRC-16/CCITT-FALSE over the payload bytes only. Markers are
// not escaped, so payloads and identifiers must avoid 0x7E and 0x7F.
//
// The package offers three layers:
//   - a pure codec: Compile, Validate and Parse
//   - a stream reader that resynchronizes on noise: ReadPacket and Reader
//   - a Link that binds a Transport to the codec and dispatches frames to
//     registered Handlers
package packet

import (
	"fmt"

	"github.com/ZaparooProject/go-packet/internal/frame"
)

// Packet is one validated (or freshly compiled) frame.
type Packet struct {
	Raw        []byte // Exact on-wire bytes, start to end marker
	Payload    []byte // Slice of Raw
	Identifier byte
}

// New compiles a packet from identifier and payload. The payload is copied.
func New(identifier byte, payload []byte) (*Packet, error) {
	raw, err := frame.Compile(identifier, payload)
	if err != nil {
		return nil, err
	}
	return &Packet{
		Raw:        raw,
		Identifier: identifier,
		Payload:    raw[frame.PayloadOffset : frame.PayloadOffset+len(payload)],
	}, nil
}

// Parse validates buf and returns the frame it begins with.
// The packet owns a copy of the frame bytes; buf may be reused afterwards.
func Parse(buf []byte) (*Packet, error) {
	n, err := frame.ValidateFrame(buf)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, n)
	copy(raw, buf[:n])
	return &Packet{
		Raw:        raw,
		Identifier: raw[frame.IdentifierOffset],
		Payload:    raw[frame.PayloadOffset : n-frame.CRCLength-frame.FooterSize],
	}, nil
}

// PayloadLength returns the number of payload bytes.
func (p *Packet) PayloadLength() int {
	return len(p.Payload)
}

// Len returns the on-wire size of the frame.
func (p *Packet) Len() int {
	return len(p.Raw)
}

// IsProtocol reports whether the packet carries the protocol identifier.
func (p *Packet) IsProtocol() bool {
	return p.Identifier == ProtocolIdentifier
}

// CRC returns the checksum carried by the frame.
func (p *Packet) CRC() uint16 {
	off := frame.PayloadOffset + len(p.Payload)
	return uint16(p.Raw[off])<<8 | uint16(p.Raw[off+1])
}

func (p *Packet) String() string {
	return fmt.Sprintf("packet(id=0x%02X len=%d payload=%s)",
		p.Identifier, len(p.Payload), formatHexBytes(p.Payload))
}
