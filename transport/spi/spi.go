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

// Package spi carries frames to a polled SPI peripheral.
//
// The peripheral buffers outgoing bytes and answers three commands: status
// (one byte giving the number of bytes pending), read (clock out pending
// bytes) and write (accept a frame).
package spi

import (
	"fmt"
	"time"

	packet "github.com/ZaparooProject/go-packet"
	"github.com/ZaparooProject/go-packet/internal/syncutil"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	// SPI protocol commands
	cmdDataWrite = 0x01
	cmdStatRead  = 0x02
	cmdDataRead  = 0x03

	// Default SPI settings
	defaultFreq = 1 * physic.MegaHertz
	mode        = spi.Mode0

	// readChunk caps the bytes clocked out by one read command.
	readChunk = 64
	// pollInterval is the pause between status polls while waiting for data.
	pollInterval = time.Millisecond
	// defaultTimeout is how long ReadByte polls before reporting no data.
	defaultTimeout = 50 * time.Millisecond
)

// Option configures a Transport.
type Option func(*Transport)

// WithFrequency sets the bus clock.
func WithFrequency(f physic.Frequency) Option {
	return func(t *Transport) {
		t.freq = f
	}
}

// WithLSBFirst bit-reverses every byte on the bus, for peripherals that
// shift least significant bit first on controllers that cannot.
func WithLSBFirst() Option {
	return func(t *Transport) {
		t.lsbFirst = true
	}
}

// Transport implements packet.Transport for SPI communication
type Transport struct {
	port     spi.PortCloser
	conn     spi.Conn
	portName string
	buf      []byte
	timeout  time.Duration
	freq     physic.Frequency
	mu       syncutil.Mutex
	lsbFirst bool
}

// New opens the named SPI port through the periph host drivers.
func New(portName string, opts ...Option) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	t, err := NewFromPort(port, portName, opts...)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewFromPort connects to an already opened port.
func NewFromPort(port spi.PortCloser, portName string, opts ...Option) (*Transport, error) {
	t := &Transport{
		port:     port,
		portName: portName,
		timeout:  defaultTimeout,
		freq:     defaultFreq,
	}
	for _, opt := range opts {
		opt(t)
	}

	conn, err := port.Connect(t.freq, mode, 8)
	if err != nil {
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}
	t.conn = conn
	t.wakeup()
	return t, nil
}

// wakeup clocks a dummy byte so a sleeping peripheral starts listening
func (t *Transport) wakeup() {
	time.Sleep(1 * time.Millisecond)
	_ = t.conn.Tx([]byte{0x00}, nil) // Ignore error for wakeup
	time.Sleep(1 * time.Millisecond)
}

// reverseBit reverses the bits in a byte (LSB <-> MSB)
func reverseBit(b byte) byte {
	var result byte
	for range 8 {
		result <<= 1
		result |= b & 1
		b >>= 1
	}
	return result
}

// order applies the configured bit order to data in place.
func (t *Transport) order(data []byte) []byte {
	if t.lsbFirst {
		for i, b := range data {
			data[i] = reverseBit(b)
		}
	}
	return data
}

// tx runs one bus transaction. Caller holds t.mu.
func (t *Transport) tx(w, r []byte) error {
	if err := t.conn.Tx(t.order(w), r); err != nil {
		return err //nolint:wrapcheck // callers classify the failure
	}
	t.order(r)
	return nil
}

// pending asks the peripheral how many bytes it has for us.
func (t *Transport) pending() (int, error) {
	resp := make([]byte, 2)
	if err := t.tx([]byte{cmdStatRead, 0x00}, resp); err != nil {
		return 0, packet.NewTransportReadError("status", t.portName, err)
	}
	return int(resp[1]), nil
}

// fill clocks out up to n pending bytes into the read buffer.
func (t *Transport) fill(n int) error {
	n = min(n, readChunk)
	w := make([]byte, n+1)
	w[0] = cmdDataRead
	r := make([]byte, n+1)
	if err := t.tx(w, r); err != nil {
		return packet.NewTransportReadError("read", t.portName, err)
	}
	t.buf = r[1:]
	return nil
}

// ReadByte returns the next byte from the peripheral. It polls the status
// command until data is pending or the timeout passes, then reports
// packet.ErrNoData.
func (t *Transport) ReadByte() (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return 0, packet.NewTransportClosedError("ReadByte", t.portName)
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

	if t.port == nil {
		return 0, packet.NewTransportClosedError("Write", t.portName)
	}

	w := make([]byte, len(p)+1)
	w[0] = cmdDataWrite
	copy(w[1:], p)
	if err := t.tx(w, nil); err != nil {
		return 0, packet.NewTransportError("Write", t.portName, err, packet.ErrorTypeTransient)
	}
	return len(p), nil
}

// ResetInput drops bytes already clocked out but not yet read.
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

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	port := t.port
	t.port = nil
	t.mu.Unlock()

	if port != nil {
		if err := port.Close(); err != nil {
			return fmt.Errorf("SPI close failed: %w", err)
		}
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Type returns the transport type
func (*Transport) Type() packet.TransportType {
	return packet.TransportSPI
}

var (
	_ packet.Transport     = (*Transport)(nil)
	_ packet.InputResetter = (*Transport)(nil)
)
