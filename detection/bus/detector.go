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

// Package bus detects polled peripherals on Linux I2C and SPI device nodes.
//
// Bus nodes carry no identifying metadata and a probe frame is written to
// whatever device answers at the configured address, so buses are only
// probed in Full mode. Passive mode lists the nodes at low confidence.
package bus

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	packet "github.com/ZaparooProject/go-packet"
	"github.com/ZaparooProject/go-packet/detection"
	"github.com/ZaparooProject/go-packet/transport/i2c"
	"github.com/ZaparooProject/go-packet/transport/spi"
)

type detector struct {
	glob      func(pattern string) ([]string, error)
	open      func(path string) (packet.Transport, error)
	transport packet.TransportType
	pattern   string
	goos      string
}

// NewI2C creates a detector for /dev/i2c-* buses.
func NewI2C() detection.Detector {
	return &detector{
		transport: packet.TransportI2C,
		pattern:   "/dev/i2c-*",
		glob:      filepath.Glob,
		goos:      runtime.GOOS,
		open: func(path string) (packet.Transport, error) {
			t, err := i2c.New(path)
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", path, err)
			}
			return t, nil
		},
	}
}

// NewSPI creates a detector for /dev/spidev* ports.
func NewSPI() detection.Detector {
	return &detector{
		transport: packet.TransportSPI,
		pattern:   "/dev/spidev*",
		glob:      filepath.Glob,
		goos:      runtime.GOOS,
		open: func(path string) (packet.Transport, error) {
			t, err := spi.New(path)
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", path, err)
			}
			return t, nil
		},
	}
}

func init() {
	detection.RegisterDetector(NewI2C())
	detection.RegisterDetector(NewSPI())
}

func (d *detector) Transport() string {
	return string(d.transport)
}

func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if d.goos != "linux" {
		return nil, detection.ErrUnsupportedPlatform
	}
	if opts.Mode == detection.Safe {
		return nil, detection.ErrNoDevicesFound
	}

	paths, err := d.glob(d.pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", d.pattern, err)
	}

	var devices []detection.DeviceInfo
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		if detection.IsPathIgnored(path, opts.IgnorePaths) {
			continue
		}

		device := detection.DeviceInfo{
			Transport:  string(d.transport),
			Path:       path,
			Name:       filepath.Base(path),
			Confidence: detection.Low,
			Metadata:   map[string]string{},
		}
		if opts.Mode == detection.Full {
			t, err := d.open(path)
			if err != nil {
				packet.Debugf("%s detection: %v", d.transport, err)
				continue
			}
			if !detection.ProbeOnce(ctx, t, opts) {
				continue
			}
			device.Confidence = detection.High
		}
		devices = append(devices, device)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}
