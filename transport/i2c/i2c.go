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

// Package i2c carries frames to a polled I2C peripheral.
//
// The peripheral answers the same three commands as the SPI variant: status
// (number of bytes pending), read (up to n pending bytes) and write.
package i2c

import (
	"fmt"
	"strings"
	"time"

	packet "github.com/ZaparooProject/go-packet"
	"github.com/ZaparooProject/go-packet/internal/syncutil"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// DefaultAddress is the 7-bit peripheral address used unless WithAddress
	// says otherwise.
	DefaultAddress = 0x24

	// Peripheral commands
	cmdDataWrite = 0x01
	cmdStatRead  = 0x02
	cmdDataRead  = 0x03

	// Max clock frequency (400 kHz).
	maxClockFreq = 400 * physic.KiloHertz

	readChunk      = 64
	pollInterval   = time.Millisecond
	defaultTimeout = 100 * time.Millisecond
)

// Option configures a Transport.
type Option func(*Transport)

// WithAddress sets the 7-bit peripheral address.
func WithAddress(addr uint16) Option {
	return func(t *Transport) {
		t.addr = addr
	}
}

// Transport implements packet.Transport for I2C communication
type Transport struct {
	dev     *i2c.Dev
	bus     i2c.BusCloser // Held so Close() can release the OS file descriptor
	busName string
	buf     []byte
	timeout time.Duration
	mu      syncutil.Mutex
	addr    uint16
}

// parseI2CPath extracts the bus path from a composite path.
// Accepts "/dev/i2c-1:0x24" or "/dev/i2c-1" (bare bus).
func parseI2CPath(path string) string {
	bus, _, _ := strings.Cut(path, ":")
	return bus
}

// New opens the named I2C bus through the periph host drivers.
func New(busName string, opts ...Option) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(parseI2CPath(busName))
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}

	return NewFromBus(bus, busName, opts...), nil
}

// NewFromBus talks to the peripheral on an already opened bus.
func NewFromBus(bus i2c.BusCloser, busName string, opts ...Option) *Transport {
	t := &Transport{
		bus:     bus,
		busName: busName,
		timeout: defaultTimeout,
		addr:    DefaultAddress,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.dev = &i2c.Dev{Addr: t.addr, Bus: bus}

	_ = bus.SetSpeed(maxClockFreq) // Ignore error, continue with default speed
	return t
}

// pending asks the peripheral how many bytes it has for us.
func (t *Transport) pending() (int, error) {
	resp := make([]byte, 1)
	if err := t.dev.Tx([]byte{cmdStatRead}, resp); err != nil {
		return 0, packet.NewTransportReadError("status", t.busName, err)
	}
	return int(resp[0]), nil
}

// fill reads up to n pending bytes into the read buffer.
func (t *Transport) fill(n int) error {
	n = min(n, readChunk)
	r := make([]byte, n)
	if err := t.dev.Tx([]byte{cmdDataRead, byte(n)}, r); err != nil {
		return packet.NewTransportReadError("read", t.busName, err)
	}
	t.buf = r
	return nil
}

// ReadByte returns the next byte from the peripheral, polling its status
// until data is pending or the timeout passes.
func (t *Transport) ReadByte() (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev == nil {
		return 0, packet.NewTransportClosedError("ReadByte", t.busName)
	}

	if len(t.buf) == 0 {
		deadline := time.Now().Add(t.timeout)
		for {
			n, err := t.pending()
			if err != nil {
				return 0, err
			}
			if n > 0 {
				if err := t.fill(n); err != nil {
					return 0, err
				}
				break
			}
			if !time.Now().Before(deadline) {
				return 0, packet.ErrNoData
			}
			time.Sleep(pollInterval)
		}
	}

	b := t.buf[0]
	t.buf = t.buf[1:]
	return b, nil
}

// Write sends p to the peripheral in one transaction.
func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev == nil {
		return 0, packet.NewTransportClosedError("Write", t.busName)
	}

	w := make([]byte, len(p)+1)
	w[0] = cmdDataWrite
	copy(w[1:], p)
	if err := t.dev.Tx(w, nil); err != nil {
		return 0, packet.NewTransportError("Write", t.busName, err, packet.ErrorTypeTransient)
	}
	return len(p), nil
}

// ResetInput drops bytes already read from the peripheral but not consumed.
func (t *Transport) ResetInput() error {
	t.mu.Lock()
	t.buf = nil
	t.mu.Unlock()
	return nil
}

// SetTimeout sets how long ReadByte polls for data
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	t.timeout = timeout
	t.mu.Unlock()
	return nil
}

// Close closes the transport connection and releases the I2C bus file descriptor.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bus != nil {
		if err := t.bus.Close(); err != nil {
			return fmt.Errorf("failed to close I2C bus: %w", err)
		}
		t.bus = nil
		t.dev = nil // IsConnected() returns false after Close
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dev != nil
}

// Type returns the transport type
func (*Transport) Type() packet.TransportType {
	return packet.TransportI2C
}

var (
	_ packet.Transport     = (*Transport)(nil)
	_ packet.InputResetter = (*Transport)(nil)
)
