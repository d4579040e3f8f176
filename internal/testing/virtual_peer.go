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

package testing

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-packet/internal/frame"
	"github.com/ZaparooProject/go-packet/internal/syncutil"
)

// ReceivedFrame is a frame the peer accepted from the host.
type ReceivedFrame struct {
	Payload    []byte
	Identifier byte
}

// PeerHandler decides how the peer answers a frame. Returning reply=false
// sends nothing back.
type PeerHandler func(identifier byte, payload []byte) (respID byte, respPayload []byte, reply bool)

// EchoHandler answers every frame with an identical frame.
func EchoHandler(identifier byte, payload []byte) (respID byte, respPayload []byte, reply bool) {
	return identifier, payload, true
}

// VirtualPeer simulates the far end of a framed link at the wire level.
// It implements io.ReadWriter to plug directly into transport layer tests:
// bytes written by the host are parsed as frames, and replies are queued
// for the host to read.
//
// The peer frames its own replies with the real compiler, and can inject
// line noise and CRC corruption into them.
type VirtualPeer struct {
	handler     PeerHandler
	received    []ReceivedFrame
	noiseNext   []byte
	rxBuffer    bytes.Buffer
	txBuffer    bytes.Buffer
	mu          syncutil.Mutex
	badFrames   int
	corruptNext bool
}

// NewVirtualPeer creates a peer that echoes every frame it receives.
func NewVirtualPeer() *VirtualPeer {
	return &VirtualPeer{handler: EchoHandler}
}

// Write implements io.Writer - receives data from the host.
func (v *VirtualPeer) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rxBuffer.Write(data)
	if err := v.processReceivedData(); err != nil {
		return len(data), err
	}
	return len(data), nil
}

// Read implements io.Reader - returns queued bytes to the host.
// It returns 0, nil when nothing is pending, like a serial read timeout.
func (v *VirtualPeer) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.txBuffer.Len() == 0 {
		return 0, nil
	}
	n, err := v.txBuffer.Read(buf)
	if err != nil {
		return n, fmt.Errorf("read from tx buffer: %w", err)
	}
	return n, nil
}

// SetHandler replaces the reply policy. Nil disables replies.
func (v *VirtualPeer) SetHandler(h PeerHandler) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.handler = h
}

// QueueFrame compiles a frame and queues it for the host to read.
func (v *VirtualPeer) QueueFrame(identifier byte, payload []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.queueFrameLocked(identifier, payload)
}

// QueueRaw queues bytes for the host to read without framing them.
func (v *VirtualPeer) QueueRaw(data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.txBuffer.Write(data)
}

// InjectNoise places data on the line ahead of the next queued frame.
func (v *VirtualPeer) InjectNoise(data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.noiseNext = append(v.noiseNext, data...)
}

// InjectCRCError flips one bit of the CRC in the next queued frame.
func (v *VirtualPeer) InjectCRCError() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.corruptNext = true
}

// Received returns the frames accepted so far.
func (v *VirtualPeer) Received() []ReceivedFrame {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]ReceivedFrame, len(v.received))
	copy(out, v.received)
	return out
}

// BadFrames returns how many candidate frames failed validation.
func (v *VirtualPeer) BadFrames() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.badFrames
}

// HasPendingResponse returns true if bytes are waiting to be read.
func (v *VirtualPeer) HasPendingResponse() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txBuffer.Len() > 0
}

// Pending returns the number of bytes waiting to be read.
func (v *VirtualPeer) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txBuffer.Len()
}

// Reset clears all state and buffers. The handler is kept.
func (v *VirtualPeer) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rxBuffer.Reset()
	v.txBuffer.Reset()
	v.received = nil
	v.noiseNext = nil
	v.badFrames = 0
	v.corruptNext = false
}

func (v *VirtualPeer) queueFrameLocked(identifier byte, payload []byte) error {
	raw, err := frame.Compile(identifier, payload)
	if err != nil {
		return fmt.Errorf("compile reply: %w", err)
	}
	if v.corruptNext {
		raw[frame.PayloadOffset+len(payload)+1] ^= 0x01
		v.corruptNext = false
	}
	if len(v.noiseNext) > 0 {
		v.txBuffer.Write(v.noiseNext)
		v.noiseNext = nil
	}
	v.txBuffer.Write(raw)
	return nil
}

var errIncompleteFrame = errors.New("incomplete frame")

// processReceivedData pulls complete frames out of the receive buffer.
func (v *VirtualPeer) processReceivedData() error {
	for {
		candidate, err := v.nextCandidate()
		if errors.Is(err, errIncompleteFrame) {
			return nil
		}

		identifier, payload, err := frame.Decode(candidate)
		if err != nil {
			v.badFrames++
			continue
		}

		owned := make([]byte, len(payload))
		copy(owned, payload)
		v.received = append(v.received, ReceivedFrame{Identifier: identifier, Payload: owned})

		if v.handler == nil {
			continue
		}
		if respID, resp, reply := v.handler(identifier, owned); reply {
			if err := v.queueFrameLocked(respID, resp); err != nil {
				return err
			}
		}
	}
}

// nextCandidate consumes one start-to-end run from the receive buffer.
// Bytes before a start marker are discarded, as are runs that reach the
// maximum frame size without an end marker.
func (v *VirtualPeer) nextCandidate() ([]byte, error) {
	data := v.rxBuffer.Bytes()
	start := bytes.IndexByte(data, frame.StartByte)
	if start < 0 {
		v.rxBuffer.Reset()
		return nil, errIncompleteFrame
	}
	v.rxBuffer.Next(start)
	data = v.rxBuffer.Bytes()

	end := bytes.IndexByte(data[1:], frame.EndByte)
	if end < 0 || end+2 > frame.MaxFrameLength {
		if len(data) >= frame.MaxFrameLength {
			v.rxBuffer.Next(frame.MaxFrameLength)
			v.badFrames++
			return v.nextCandidate()
		}
		return nil, errIncompleteFrame
	}

	candidate := make([]byte, end+2)
	copy(candidate, data[:end+2])
	v.rxBuffer.Next(end + 2)
	return candidate, nil
}
