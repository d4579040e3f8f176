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
	"io"
	"time"

	"github.com/ZaparooProject/go-packet/internal/syncutil"
)

// Transport is a byte-oriented link to one peer. It can be implemented by
// UART, SPI or any in-memory stream.
type Transport interface {
	// ReadByte returns the next received byte, or ErrNoData when none
	// arrived within the transport's read timeout
	ByteSource

	// Write sends raw bytes to the peer
	io.Writer

	// Close closes the transport connection
	Close() error

	// SetTimeout sets the read timeout for the transport
	SetTimeout(timeout time.Duration) error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportSPI represents SPI bus transport.
	TransportSPI TransportType = "spi"
	// TransportI2C represents I2C bus transport.
	TransportI2C TransportType = "i2c"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// InputResetter is implemented by transports that can discard bytes already
// received but not yet read.
type InputResetter interface {
	ResetInput() error
}

// MockTransport provides an in-memory Transport for testing
type MockTransport struct {
	readErr   error
	rx        []byte
	tx        [][]byte
	timeout   time.Duration
	delay     time.Duration
	reads     int
	mu        syncutil.RWMutex
	connected bool
	eofEmpty  bool
	loopback  bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		timeout:   time.Second,
	}
}

// ReadByte implements Transport interface
func (m *MockTransport) ReadByte() (byte, error) {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return 0, NewTransportClosedError("ReadByte", "mock")
	}
	m.reads++
	if err := m.readErr; err != nil {
		m.readErr = nil
		m.mu.Unlock()
		return 0, err
	}
	if len(m.rx) == 0 {
		eof, delay := m.eofEmpty, m.delay
		m.mu.Unlock()
		if eof {
			return 0, io.EOF
		}
		// Simulate a serial read timeout if configured
		if delay > 0 {
			time.Sleep(delay)
		}
		return 0, ErrNoData
	}
	b := m.rx[0]
	m.rx = m.rx[1:]
	m.mu.Unlock()
	return b, nil
}

// Write implements Transport interface
func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, NewTransportClosedError("Write", "mock")
	}
	data := make([]byte, len(p))
	copy(data, p)
	m.tx = append(m.tx, data)
	if m.loopback {
		m.rx = append(m.rx, data...)
	}
	return len(p), nil
}

// ResetInput discards queued receive bytes
func (m *MockTransport) ResetInput() error {
	m.mu.Lock()
	m.rx = nil
	m.mu.Unlock()
	return nil
}

// Close implements Transport interface
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// SetTimeout implements Transport interface
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
	return nil
}

// IsConnected implements Transport interface
func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	connected := m.connected
	m.mu.RUnlock()
	return connected
}

// Type implements Transport interface
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// Feed queues bytes to be returned by ReadByte
func (m *MockTransport) Feed(data ...byte) {
	m.mu.Lock()
	m.rx = append(m.rx, data...)
	m.mu.Unlock()
}

// SetReadError makes the next ReadByte call return err
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// SetEOFWhenEmpty makes ReadByte return io.EOF instead of ErrNoData once the
// receive queue is drained
func (m *MockTransport) SetEOFWhenEmpty(eof bool) {
	m.mu.Lock()
	m.eofEmpty = eof
	m.mu.Unlock()
}

// SetLoopback echoes every write back into the receive queue
func (m *MockTransport) SetLoopback(enabled bool) {
	m.mu.Lock()
	m.loopback = enabled
	m.mu.Unlock()
}

// SetDelay configures how long ReadByte waits before reporting ErrNoData
func (m *MockTransport) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

// Written returns a copy of every Write call made so far
func (m *MockTransport) Written() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(m.tx))
	copy(out, m.tx)
	return out
}

// Pending returns the number of queued receive bytes
func (m *MockTransport) Pending() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rx)
}

// ReadCalls returns how many times ReadByte was called
func (m *MockTransport) ReadCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads
}

// Timeout returns the last timeout passed to SetTimeout
func (m *MockTransport) Timeout() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timeout
}
