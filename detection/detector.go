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

// Package detection finds ports that have a framing peer attached.
//
// Detectors for each transport register themselves on import:
//
//	import _ "github.com/ZaparooProject/go-packet/detection/uart"
//
// A port counts as a peer when it answers a probe frame with any valid
// frame. Passive mode never writes to a port.
package detection

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	packet "github.com/ZaparooProject/go-packet"
)

// Mode represents the level of invasiveness for device detection
type Mode int

const (
	// Passive mode only inspects port metadata and never writes
	Passive Mode = iota
	// Safe mode probes USB serial ports only
	Safe
	// Full mode probes every candidate port, built-in UARTs and buses included
	Full
)

// String returns the mode name as used in config files.
func (m Mode) String() string {
	switch m {
	case Passive:
		return "passive"
	case Safe:
		return "safe"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "passive":
		return Passive, nil
	case "safe":
		return Safe, nil
	case "full":
		return Full, nil
	default:
		return 0, fmt.Errorf("unknown detection mode %q", s)
	}
}

// Confidence represents the confidence level of device detection
type Confidence int

const (
	// Low confidence - port exists but nothing is known about the far end
	Low Confidence = iota
	// Medium confidence - port metadata matches a common USB serial bridge
	Medium
	// High confidence - the port answered a probe with a valid frame
	High
)

// DeviceInfo describes a port that may have a peer attached.
type DeviceInfo struct {
	// Additional metadata (e.g., VID:PID for USB devices)
	Metadata map[string]string
	// Transport type: "uart", "i2c", "spi"
	Transport string
	// Connection path (e.g., "/dev/ttyUSB0", "/dev/i2c-1")
	Path string
	// Human-readable device name
	Name string
	// Detection confidence level
	Confidence Confidence
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	confidence := "unknown"
	switch d.Confidence {
	case Low:
		confidence = "low"
	case Medium:
		confidence = "medium"
	case High:
		confidence = "high"
	}
	return fmt.Sprintf("%s device at %s (confidence: %s)", d.Transport, d.Path, confidence)
}

// Options configures the detection behavior
type Options struct {
	// USB VID:PID pairs to skip (e.g., ["1234:5678", "ABCD:*"])
	Blocklist []string
	// Device paths to explicitly ignore (e.g., ["/dev/ttyUSB0", "COM2"])
	IgnorePaths []string
	// Which transports to check (empty = all)
	Transports []string
	// Payload of the probe frame
	ProbePayload []byte
	// Cache TTL duration
	CacheTTL time.Duration
	// Maximum time to wait for detection
	Timeout time.Duration
	// How long a single port has to answer the probe
	ProbeTimeout time.Duration
	// Serial baud rate used while probing; 0 keeps the transport default
	BaudRate int
	// Detection invasiveness level
	Mode Mode
	// Identifier of the probe frame
	ProbeIdentifier byte
	// Enable result caching
	EnableCache bool
}

// DefaultOptions returns sensible default detection options
func DefaultOptions() Options {
	return Options{
		Mode:            Safe,
		Timeout:         5 * time.Second,
		ProbeTimeout:    500 * time.Millisecond,
		Blocklist:       DefaultBlocklist(),
		EnableCache:     true,
		CacheTTL:        30 * time.Second,
		ProbeIdentifier: packet.ProtocolIdentifier,
		ProbePayload:    []byte("ping"),
	}
}

// Detector interface for transport-specific device detection
type Detector interface {
	// Detect searches for devices using the given options
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	// Transport returns the transport type this detector handles
	Transport() string
}

// Errors
var (
	// ErrNoDevicesFound indicates no peers were detected
	ErrNoDevicesFound = errors.New("no framing peers found")
	// ErrDetectionTimeout indicates detection timed out
	ErrDetectionTimeout = errors.New("detection timeout")
	// ErrUnsupportedPlatform indicates the platform doesn't support this detection method
	ErrUnsupportedPlatform = errors.New("platform not supported")
)

// registry holds all registered detectors
var registry []Detector

// RegisterDetector adds a detector to the registry
func RegisterDetector(d Detector) {
	registry = append(registry, d)
}

// getDetectors returns detectors filtered by transport types
func getDetectors(transports []string) []Detector {
	if len(transports) == 0 {
		return registry
	}

	var filtered []Detector
	for _, d := range registry {
		for _, t := range transports {
			if d.Transport() == t {
				filtered = append(filtered, d)
				break
			}
		}
	}
	return filtered
}

type detectionResult struct {
	err     error
	devices []DeviceInfo
	index   int
}

// DetectAll runs every registered detector in parallel, bounded by
// opts.Timeout when it is set. Devices come back ordered by confidence,
// then by detector registration order. A failing detector does not hide
// the devices others found.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	detectors := getDetectors(opts.Transports)
	if len(detectors) == 0 {
		return nil, errors.New("no detectors available for specified transports")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	results := make(chan detectionResult, len(detectors))
	for i, d := range detectors {
		go func() {
			res := runSingleDetector(ctx, d, opts)
			res.index = i
			results <- res
		}()
	}

	byDetector := make([]detectionResult, len(detectors))
	for range detectors {
		select {
		case res := <-results:
			byDetector[res.index] = res
		case <-ctx.Done():
			return nil, ErrDetectionTimeout
		}
	}
	return mergeResults(byDetector)
}

func runSingleDetector(ctx context.Context, detector Detector, opts *Options) detectionResult {
	transport := detector.Transport()
	if opts.EnableCache {
		if cached, found := cache.get(transport, opts.CacheTTL); found {
			// Cached results skipped Detect, so filter them against the
			// current options.
			return detectionResult{devices: filterDevices(cached, opts)}
		}
	}

	devices, err := detector.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoDevicesFound) {
		return detectionResult{err: err}
	}

	if opts.EnableCache {
		if len(devices) > 0 {
			cache.set(transport, devices)
		} else {
			// A stale entry would point callers at a port that is gone.
			cache.clear(transport)
		}
	}
	return detectionResult{devices: devices}
}

func mergeResults(results []detectionResult) ([]DeviceInfo, error) {
	var (
		devices []DeviceInfo
		errs    []error
	)
	for _, res := range results {
		if res.err != nil {
			errs = append(errs, res.err)
			continue
		}
		devices = append(devices, res.devices...)
	}

	switch {
	case len(devices) > 0:
		slices.SortStableFunc(devices, func(a, b DeviceInfo) int {
			return cmp.Compare(b.Confidence, a.Confidence)
		})
		return devices, nil
	case len(errs) > 0:
		return nil, errors.Join(errs...)
	default:
		return nil, ErrNoDevicesFound
	}
}

// Best returns the device with the highest confidence, preferring earlier
// entries on ties.
func Best(devices []DeviceInfo) (DeviceInfo, bool) {
	if len(devices) == 0 {
		return DeviceInfo{}, false
	}
	best := devices[0]
	for _, d := range devices[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best, true
}

// filterDevices applies IgnorePaths and Blocklist filtering to a device list.
func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 && len(opts.Blocklist) == 0 {
		return devices
	}

	var filtered []DeviceInfo
	for _, device := range devices {
		if IsPathIgnored(device.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid, ok := device.Metadata["vidpid"]; ok && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		filtered = append(filtered, device)
	}
	return filtered
}

// ClearDetectionCache removes all cached detection results
func ClearDetectionCache() {
	cache.clearAll()
}

// ClearDetectionCacheForTransport removes cached results for a specific transport
func ClearDetectionCacheForTransport(transport string) {
	cache.clear(transport)
}
