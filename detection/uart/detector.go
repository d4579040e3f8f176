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

// Package uart detects framing peers behind serial ports.
package uart

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	packet "github.com/ZaparooProject/go-packet"
	"github.com/ZaparooProject/go-packet/detection"
	"github.com/ZaparooProject/go-packet/transport/uart"
	"go.bug.st/serial/enumerator"
)

// detector implements the Detector interface for UART devices.
type detector struct {
	listPorts func() ([]*enumerator.PortDetails, error)
	open      func(path string, baud int) (packet.Transport, error)
}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{
		listPorts: enumerator.GetDetailedPortsList,
		open:      openPort,
	}
}

// init registers the detector on package import
func init() {
	detection.RegisterDetector(New())
}

func openPort(path string, baud int) (packet.Transport, error) {
	var opts []uart.Option
	if baud > 0 {
		opts = append(opts, uart.WithBaudRate(baud))
	}
	t, err := uart.New(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return t, nil
}

// Transport returns the transport type
func (*detector) Transport() string {
	return string(packet.TransportUART)
}

// serialPort represents a serial port with metadata
type serialPort struct {
	Path         string
	Name         string
	VIDPID       string
	Product      string
	SerialNumber string
	IsUSB        bool
}

// Detect searches for peers on serial ports
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.enumeratePorts()
	if err != nil {
		return nil, err
	}

	filtered := filterPorts(ports, opts)
	var devices []detection.DeviceInfo
	for i := range filtered {
		select {
		case <-ctx.Done():
			return devices, nil
		default:
		}

		if device, ok := d.processPort(ctx, &filtered[i], opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// enumeratePorts gets the list of available serial ports
func (d *detector) enumeratePorts() ([]serialPort, error) {
	details, err := d.listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	if len(details) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	ports := make([]serialPort, 0, len(details))
	for _, pd := range details {
		port := serialPort{
			Path:  pd.Name,
			Name:  filepath.Base(pd.Name),
			IsUSB: pd.IsUSB,
		}
		if pd.IsUSB {
			port.VIDPID = detection.FormatVIDPID(pd.VID, pd.PID)
			port.Product = pd.Product
			port.SerialNumber = pd.SerialNumber
		}
		ports = append(ports, port)
	}
	return ports, nil
}

// filterPorts removes blocked and ignored ports
func filterPorts(ports []serialPort, opts *detection.Options) []serialPort {
	var filtered []serialPort
	for _, port := range ports {
		if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		filtered = append(filtered, port)
	}
	return filtered
}

// processPort decides whether a port is reported, probing it when the mode
// allows.
func (d *detector) processPort(ctx context.Context, port *serialPort,
	opts *detection.Options,
) (detection.DeviceInfo, bool) {
	switch opts.Mode {
	case detection.Passive:
		if !port.IsUSB {
			return detection.DeviceInfo{}, false
		}
		confidence := detection.Low
		if isLikelyBridge(port) {
			confidence = detection.Medium
		}
		return createDeviceInfo(port, confidence), true

	case detection.Safe:
		// Built-in UARTs are often consoles; only Full mode writes to them
		if !port.IsUSB {
			return detection.DeviceInfo{}, false
		}
		return d.probePort(ctx, port, opts)

	case detection.Full:
		return d.probePort(ctx, port, opts)

	default:
		return detection.DeviceInfo{}, false
	}
}

// probePort reports the port only when a peer answers. A single attempt is
// made per port so unrelated devices see one frame at most.
func (d *detector) probePort(ctx context.Context, port *serialPort,
	opts *detection.Options,
) (detection.DeviceInfo, bool) {
	t, err := d.open(port.Path, opts.BaudRate)
	if err != nil {
		packet.Debugf("uart detection: %v", err)
		return detection.DeviceInfo{}, false
	}
	if !detection.ProbeOnce(ctx, t, opts) {
		return detection.DeviceInfo{}, false
	}
	return createDeviceInfo(port, detection.High), true
}

// createDeviceInfo builds a DeviceInfo struct from port data
func createDeviceInfo(port *serialPort, confidence detection.Confidence) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  string(packet.TransportUART),
		Path:       port.Path,
		Name:       port.Name,
		Confidence: confidence,
		Metadata:   make(map[string]string),
	}
	if port.VIDPID != "" {
		device.Metadata["vidpid"] = port.VIDPID
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	return device
}

// isLikelyBridge reports whether a USB port looks like a serial bridge or a
// microcontroller CDC port, which is where peers usually sit.
func isLikelyBridge(port *serialPort) bool {
	knownBridges := []string{
		"067B:2303", // Prolific PL2303
		"0403:6001", // FTDI FT232
		"0403:6015", // FTDI FT231X
		"10C4:EA60", // Silicon Labs CP210x
		"1A86:7523", // QinHeng CH340
		"2E8A:000A", // Raspberry Pi RP2040 CDC
		"2341:0043", // Arduino Uno
	}
	for _, known := range knownBridges {
		if port.VIDPID == known {
			return true
		}
	}

	goodPatterns := []string{"usbserial", "slab_usbtouart", "usbmodem", "ttyusb", "ttyacm"}
	lowerPath := strings.ToLower(port.Path)
	for _, pattern := range goodPatterns {
		if strings.Contains(lowerPath, pattern) {
			return true
		}
	}
	return false
}
