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

package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	packet "github.com/ZaparooProject/go-packet"
	"github.com/ZaparooProject/go-packet/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDetector(nodes []string, peers map[string]bool) *detector {
	return &detector{
		transport: packet.TransportI2C,
		pattern:   "/dev/i2c-*",
		goos:      "linux",
		glob: func(string) ([]string, error) {
			return nodes, nil
		},
		open: func(path string) (packet.Transport, error) {
			if path == "/dev/i2c-9" {
				return nil, errors.New("no such bus")
			}
			mock := packet.NewMockTransport()
			mock.SetDelay(time.Millisecond)
			mock.SetLoopback(peers[path])
			return mock, nil
		},
	}
}

func testOptions(mode detection.Mode) *detection.Options {
	opts := detection.DefaultOptions()
	opts.Mode = mode
	opts.ProbeTimeout = 20 * time.Millisecond
	return &opts
}

func TestDetect_Passive(t *testing.T) {
	t.Parallel()

	d := newTestDetector([]string{"/dev/i2c-0", "/dev/i2c-1"}, nil)
	opts := testOptions(detection.Passive)
	opts.IgnorePaths = []string{"/dev/i2c-0"}

	devices, err := d.Detect(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/i2c-1", devices[0].Path)
	assert.Equal(t, "i2c-1", devices[0].Name)
	assert.Equal(t, "i2c", devices[0].Transport)
	assert.Equal(t, detection.Low, devices[0].Confidence)
}

func TestDetect_SafeLeavesBusesAlone(t *testing.T) {
	t.Parallel()

	d := newTestDetector([]string{"/dev/i2c-1"}, map[string]bool{"/dev/i2c-1": true})
	_, err := d.Detect(context.Background(), testOptions(detection.Safe))
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
}

func TestDetect_FullProbes(t *testing.T) {
	t.Parallel()

	d := newTestDetector(
		[]string{"/dev/i2c-0", "/dev/i2c-1", "/dev/i2c-9"},
		map[string]bool{"/dev/i2c-1": true},
	)
	devices, err := d.Detect(context.Background(), testOptions(detection.Full))
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/i2c-1", devices[0].Path)
	assert.Equal(t, detection.High, devices[0].Confidence)
}

func TestDetect_UnsupportedPlatform(t *testing.T) {
	t.Parallel()

	d := newTestDetector(nil, nil)
	d.goos = "darwin"
	_, err := d.Detect(context.Background(), testOptions(detection.Full))
	require.ErrorIs(t, err, detection.ErrUnsupportedPlatform)
}

func TestDetect_GlobError(t *testing.T) {
	t.Parallel()

	d := newTestDetector(nil, nil)
	d.glob = func(string) ([]string, error) { return nil, errors.New("bad pattern") }
	_, err := d.Detect(context.Background(), testOptions(detection.Passive))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/i2c-*")
}

func TestConstructors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "i2c", NewI2C().Transport())
	assert.Equal(t, "spi", NewSPI().Transport())
}
