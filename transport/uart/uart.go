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

// Package uart carries frames over a serial port.
package uart

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	packet "github.com/ZaparooProject/go-packet"
	"github.com/ZaparooProject/go-packet/internal/syncutil"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is used unless WithBaudRate says otherwise.
	DefaultBaudRate = 115200
	// readChunk is the largest single read from the port.
	readChunk = 64
)

// Option configures a Transport.
type Option func(*config)

type config struct {
	baudRate    int
	readTimeout time.Duration
}

// WithBaudRate sets the line speed. Data format is always 8N1.
func WithBaudRate(baud int) Option {
	return func(c *config) {
		c.baudRate = baud
	}
}

// WithReadTimeout overrides the platform default read timeout.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.readTimeout = timeout
	}
}

// Transport implements packet.Transport over a serial port. Reads and writes
// take separate locks so a Link can receive while it sends.
type Transport struct {
	port     serial.Port
	portName string
	buf      []byte
	rbuf     [readChunk]byte
	readMu   syncutil.Mutex
	writeMu  syncutil.Mutex
	stateMu  syncutil.RWMutex
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// getWindowsTimeout returns the platform read timeout
func getWindowsTimeout() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// windowsPostWriteDelay gives the Windows driver time to flush its buffer
func windowsPostWriteDelay() {
	if isWindows() {
		time.Sleep(15 * time.Millisecond)
	}
}

// windowsPortRecovery drains the port before an input reset on Windows
func (t *Transport) windowsPortRecovery(port serial.Port) error {
	if !isWindows() || port == nil {
		return nil
	}
	return t.drainWithRetry(port, "Windows recovery")
}

// New opens portName at 115200 8N1 unless options say otherwise.
func New(portName string, opts ...Option) (*Transport, error) {
	cfg := config{
		baudRate:    DefaultBaudRate,
		readTimeout: getWindowsTimeout(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.baudRate <= 0 {
		return nil, fmt.Errorf("invalid baud rate %d", cfg.baudRate)
	}

	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: cfg.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(cfg.readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	return NewFromPort(port, portName), nil
}

// NewFromPort wraps an already configured port.
func NewFromPort(port serial.Port, portName string) *Transport {
	return &Transport{
		port:     port,
		portName: portName,
	}
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

func (t *Transport) currentPort() serial.Port {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	return t.port
}

// ReadByte returns the next received byte. A read that times out with
// nothing received reports packet.ErrNoData.
func (t *Transport) ReadByte() (byte, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	if len(t.buf) == 0 {
		port := t.currentPort()
		if port == nil {
			return 0, packet.NewTransportClosedError("ReadByte", t.portName)
		}
		n, err := port.Read(t.rbuf[:])
		if err != nil {
			return 0, t.readError(err)
		}
		if n == 0 {
			return 0, packet.ErrNoData
		}
		t.buf = t.rbuf[:n]
	}

	b := t.buf[0]
	t.buf = t.buf[1:]
	return b, nil
}

func (t *Transport) readError(err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return packet.NewTransportError("ReadByte", t.portName, err, packet.ErrorTypePermanent)
	}
	if isInterruptedSystemCall(err) {
		return packet.NewTransportError("ReadByte", t.portName, err, packet.ErrorTypeTransient)
	}
	return fmt.Errorf("UART read failed: %w", err)
}

// Write sends p and waits for the port to drain.
func (t *Transport) Write(p []byte) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	port := t.currentPort()
	if port == nil {
		return 0, packet.NewTransportClosedError("Write", t.portName)
	}

	n, err := port.Write(p)
	if err != nil {
		return n, fmt.Errorf("UART write failed: %w", err)
	} else if n != len(p) {
		return n, packet.NewTransportWriteError("Write", t.portName)
	}

	if err := t.drainWithRetry(port, "write"); err != nil {
		return n, err
	}
	windowsPostWriteDelay()
	return n, nil
}

// ResetInput discards buffered and pending input.
func (t *Transport) ResetInput() error {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	t.buf = nil
	port := t.currentPort()
	if port == nil {
		return packet.NewTransportClosedError("ResetInput", t.portName)
	}
	if err := t.windowsPortRecovery(port); err != nil {
		return err
	}
	if err := port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("UART input reset failed: %w", err)
	}
	return nil
}

// SetTimeout sets the read timeout for the transport
func (t *Transport) SetTimeout(timeout time.Duration) error {
	port := t.currentPort()
	if port == nil {
		return packet.NewTransportClosedError("SetTimeout", t.portName)
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("UART set timeout failed: %w", err)
	}
	return nil
}

// Close closes the port. Later reads and writes report ErrTransportClosed.
func (t *Transport) Close() error {
	t.stateMu.Lock()
	port := t.port
	t.port = nil
	t.stateMu.Unlock()

	if port != nil {
		if err := port.Close(); err != nil {
			return fmt.Errorf("UART close failed: %w", err)
		}
	}
	return nil
}

// IsConnected returns true until Close is called
func (t *Transport) IsConnected() bool {
	return t.currentPort() != nil
}

// Type returns the transport type
func (*Transport) Type() packet.TransportType {
	return packet.TransportUART
}

// PortName returns the name the port was opened with.
func (t *Transport) PortName() string {
	return t.portName
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(port serial.Port, operation string) error {
	maxRetries := packet.TransportDrainRetries
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt)) // 2ms, 4ms, 8ms
			continue
		}

		return packet.NewTransportError(operation+" drain", t.portName, err, packet.ErrorTypeTransient)
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}

var (
	_ packet.Transport     = (*Transport)(nil)
	_ packet.InputResetter = (*Transport)(nil)
)
