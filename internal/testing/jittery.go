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
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig configures the behavior of JitteryConnection.
type JitterConfig struct {
	MaxLatency        time.Duration
	StallDuration     time.Duration
	FragmentMinBytes  int
	StallAfterBytes   int
	CorruptEveryBytes int // Flip one bit in every Nth byte delivered (0 = never)
	Seed              uint64
	FragmentReads     bool
	USBBoundaryStress bool
}

// DefaultJitterConfig returns a sensible default configuration for testing.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatency:       5 * time.Millisecond,
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// JitteryConnection wraps an io.ReadWriter to simulate real-world serial
// links such as USB-UART bridges (FTDI, CH340): unpredictable latency,
// fragmented delivery, stalls and occasional bit errors.
//
// Backend reads are buffered so fragmentation never loses data.
type JitteryConnection struct {
	backend             io.ReadWriter
	rng                 *rand.Rand
	readBuf             []byte
	config              JitterConfig
	bytesDelivered      int
	bytesReadSinceStall int
	corrupted           int
	stallTriggered      bool
}

// NewJitteryConnection wraps a backend io.ReadWriter with jitter simulation.
func NewJitteryConnection(backend io.ReadWriter, config JitterConfig) *JitteryConnection {
	var rng *rand.Rand
	if config.Seed != 0 {
		rng = rand.New(rand.NewPCG(config.Seed, config.Seed^0xDEADBEEF)) //nolint:gosec // Test code, not crypto
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // Test code, not crypto
	}

	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}

	return &JitteryConnection{
		backend: backend,
		config:  config,
		rng:     rng,
		readBuf: make([]byte, 0, 1024),
	}
}

// Write passes writes through to the backend without modification.
// Jitter only affects reads.
func (j *JitteryConnection) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // Pass-through wrapper
}

// Read delivers buffered backend bytes in jittered, fragmented chunks.
func (j *JitteryConnection) Read(buf []byte) (int, error) {
	j.sleepLatency()

	if len(j.readBuf) == 0 {
		n, err := j.fill()
		if err != nil || n == 0 {
			return 0, err
		}
	}

	n := j.chunk(min(len(j.readBuf), len(buf)))
	copy(buf, j.readBuf[:n])
	j.readBuf = j.readBuf[n:]
	j.corrupt(buf[:n])

	j.bytesDelivered += n
	j.bytesReadSinceStall += n
	return n, nil
}

func (j *JitteryConnection) sleepLatency() {
	if j.config.MaxLatency <= 0 {
		return
	}
	if d := time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)); d > 0 {
		time.Sleep(d)
	}
}

// fill appends whatever the backend has to the read buffer.
func (j *JitteryConnection) fill() (int, error) {
	var chunk [1024]byte
	n, err := j.backend.Read(chunk[:])
	if err != nil {
		return 0, err //nolint:wrapcheck // pass-through
	}
	j.readBuf = append(j.readBuf, chunk[:n]...)
	return n, nil
}

// chunk shrinks an available byte count to what this read delivers.
func (j *JitteryConnection) chunk(n int) int {
	if limit := j.config.StallAfterBytes; limit > 0 && !j.stallTriggered {
		if j.bytesReadSinceStall < limit {
			n = min(n, limit-j.bytesReadSinceStall)
		} else {
			j.stallTriggered = true
			time.Sleep(j.config.StallDuration)
		}
	}

	// USB full-speed bulk transfers arrive in 64-byte packets
	if j.config.USBBoundaryStress && n > 0 {
		n = min(n, 64-j.bytesReadSinceStall%64)
	}

	if lo := j.config.FragmentMinBytes; j.config.FragmentReads && n > lo {
		n = lo + j.rng.IntN(n-lo+1)
	}
	return n
}

// corrupt flips one random bit in every CorruptEveryBytes-th delivered byte.
func (j *JitteryConnection) corrupt(out []byte) {
	every := j.config.CorruptEveryBytes
	if every <= 0 {
		return
	}
	for i := range out {
		if (j.bytesDelivered+i+1)%every == 0 {
			out[i] ^= 1 << j.rng.IntN(8)
			j.corrupted++
		}
	}
}

// ResetStallState resets the stall tracking state.
func (j *JitteryConnection) ResetStallState() {
	j.bytesReadSinceStall = 0
	j.stallTriggered = false
}

// ClearBuffer clears any buffered read data.
func (j *JitteryConnection) ClearBuffer() {
	j.readBuf = j.readBuf[:0]
}

// Corrupted returns the number of bytes that had a bit flipped.
func (j *JitteryConnection) Corrupted() int {
	return j.corrupted
}
