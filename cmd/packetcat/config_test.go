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

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ZaparooProject/go-packet/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "packetcat.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFile_Overrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[link]
device = " /dev/ttyACM0 "
length_aware = true
trace_size = 8

[uart]
baud = 57600
read_timeout = "20ms"

[retry]
max_attempts = 9
max_backoff = "10ms"
timeout = "3s"
`)

	cfg := defaultConfig()
	require.NoError(t, loadConfigFile(path, cfg))

	assert.Equal(t, "/dev/ttyACM0", cfg.device)
	assert.True(t, cfg.lengthAware)
	assert.Equal(t, 8, cfg.traceSize)
	assert.Equal(t, 57600, cfg.baud)
	assert.Equal(t, 20*time.Millisecond, cfg.readTimeout)
	assert.Equal(t, 9, cfg.retry.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.retry.MaxBackoff)
	assert.Equal(t, 3*time.Second, cfg.retry.RetryTimeout)
	assert.False(t, cfg.debug)
}

func TestLoadConfigFile_Detect(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[detect]
mode = "full"
ignore_paths = ["/dev/ttyS0"]
blocklist = ["dead:beef"]
transports = ["uart"]
timeout = "2s"
probe_timeout = "100ms"
`)

	cfg := defaultConfig()
	require.NoError(t, loadConfigFile(path, cfg))

	assert.Equal(t, detection.Full, cfg.detect.Mode)
	assert.Equal(t, []string{"/dev/ttyS0"}, cfg.detect.IgnorePaths)
	assert.Equal(t, []string{"uart"}, cfg.detect.Transports)
	assert.Equal(t, 2*time.Second, cfg.detect.Timeout)
	assert.Equal(t, 100*time.Millisecond, cfg.detect.ProbeTimeout)
	assert.True(t, detection.IsBlocked("DEAD:BEEF", cfg.detect.Blocklist))
	assert.True(t, detection.IsBlocked("1366:0101", cfg.detect.Blocklist), "built-in entries kept")
}

func TestLoadConfigFile_Session(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[session]
reconnect = true
attempts = 4
backoff = "250ms"
max_backoff = "2s"
idle_timeout = "30s"
`)
	cfg := defaultConfig()
	require.NoError(t, loadConfigFile(path, cfg))

	assert.True(t, cfg.keepAlive)
	assert.Equal(t, 4, cfg.reconnect.MaxReconnectAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.reconnect.ReconnectBackoff)
	assert.Equal(t, 2*time.Second, cfg.reconnect.MaxReconnectBackoff)
	assert.Equal(t, 30*time.Second, cfg.reconnect.IdleTimeout)
}

func TestLoadConfigFile_KeepsDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "[uart]\nbaud = 9600\n")

	cfg := defaultConfig()
	want := *cfg.retry
	require.NoError(t, loadConfigFile(path, cfg))

	assert.Equal(t, 9600, cfg.baud)
	assert.Empty(t, cfg.device)
	assert.Equal(t, 50*time.Millisecond, cfg.readTimeout)
	assert.Equal(t, want.MaxAttempts, cfg.retry.MaxAttempts)
	assert.Equal(t, want.InitialBackoff, cfg.retry.InitialBackoff)
}

func TestLoadConfigFile_DoesNotMutateSharedRetry(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "[retry]\nmax_attempts = 2\n")

	cfg := defaultConfig()
	original := cfg.retry
	require.NoError(t, loadConfigFile(path, cfg))

	assert.Equal(t, 2, cfg.retry.MaxAttempts)
	assert.NotEqual(t, 2, original.MaxAttempts)
}

func TestLoadConfigFile_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "bad toml", body: "[link\n", want: "load packetcat config"},
		{name: "unknown key", body: "[uart]\nparity = \"even\"\n", want: "unknown config key"},
		{name: "zero baud", body: "[uart]\nbaud = 0\n", want: "uart.baud must be positive"},
		{name: "bad duration", body: "[uart]\nread_timeout = \"soon\"\n", want: "parse uart.read_timeout"},
		{name: "negative backoff", body: "[retry]\nmax_backoff = \"-1s\"\n", want: "cannot be negative"},
		{name: "zero attempts", body: "[retry]\nmax_attempts = 0\n", want: "retry.max_attempts"},
		{name: "zero trace", body: "[link]\ntrace_size = 0\n", want: "link.trace_size"},
		{name: "bad mode", body: "[detect]\nmode = \"loud\"\n", want: "detect.mode"},
		{name: "negative attempts", body: "[session]\nattempts = -1\n", want: "session.attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := loadConfigFile(writeConfig(t, tt.body), defaultConfig())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	t.Parallel()

	err := loadConfigFile(filepath.Join(t.TempDir(), "absent.toml"), defaultConfig())
	require.ErrorIs(t, err, os.ErrNotExist)
}
