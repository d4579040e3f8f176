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
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	packet "github.com/ZaparooProject/go-packet"
	"github.com/ZaparooProject/go-packet/detection"
	"github.com/ZaparooProject/go-packet/session"
	"github.com/ZaparooProject/go-packet/transport/uart"
)

type config struct {
	retry       *packet.RetryConfig
	detect      detection.Options
	device      string
	send        string
	baud        int
	readTimeout time.Duration
	traceSize   int
	repeat      int
	interval    time.Duration
	reconnect   session.Config
	lengthAware bool
	keepAlive   bool
	debug       bool
	list        bool
	sessionLog  bool
	detectOnly  bool
}

func defaultConfig() *config {
	return &config{
		retry:       packet.FrameReadRetryConfig(),
		detect:      detection.DefaultOptions(),
		baud:        uart.DefaultBaudRate,
		readTimeout: 50 * time.Millisecond,
		traceSize:   packet.DefaultTraceSize,
		repeat:      1,
		interval:    time.Second,
		reconnect:   *session.DefaultConfig(),
	}
}

type fileConfig struct {
	Link struct {
		Device      string `toml:"device"`
		LengthAware bool   `toml:"length_aware"`
		TraceSize   int    `toml:"trace_size"`
		Debug       bool   `toml:"debug"`
	} `toml:"link"`
	Session struct {
		Reconnect   bool   `toml:"reconnect"`
		Attempts    int    `toml:"attempts"`
		Backoff     string `toml:"backoff"`
		MaxBackoff  string `toml:"max_backoff"`
		IdleTimeout string `toml:"idle_timeout"`
	} `toml:"session"`
	UART struct {
		Baud        int    `toml:"baud"`
		ReadTimeout string `toml:"read_timeout"`
	} `toml:"uart"`
	Detect struct {
		Mode         string   `toml:"mode"`
		IgnorePaths  []string `toml:"ignore_paths"`
		Blocklist    []string `toml:"blocklist"`
		Transports   []string `toml:"transports"`
		Timeout      string   `toml:"timeout"`
		ProbeTimeout string   `toml:"probe_timeout"`
	} `toml:"detect"`
	Retry struct {
		MaxAttempts    int    `toml:"max_attempts"`
		InitialBackoff string `toml:"initial_backoff"`
		MaxBackoff     string `toml:"max_backoff"`
		Timeout        string `toml:"timeout"`
	} `toml:"retry"`
}

// loadConfigFile applies the values defined in the TOML file at path on top
// of cfg. Keys missing from the file leave cfg untouched.
func loadConfigFile(path string, cfg *config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load packetcat config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown config key %q", undecoded[0].String())
	}

	if meta.IsDefined("link", "device") {
		cfg.device = strings.TrimSpace(raw.Link.Device)
	}
	if meta.IsDefined("link", "length_aware") {
		cfg.lengthAware = raw.Link.LengthAware
	}
	if meta.IsDefined("link", "trace_size") {
		if raw.Link.TraceSize <= 0 {
			return fmt.Errorf("link.trace_size must be positive, got %d", raw.Link.TraceSize)
		}
		cfg.traceSize = raw.Link.TraceSize
	}
	if meta.IsDefined("link", "debug") {
		cfg.debug = raw.Link.Debug
	}

	if meta.IsDefined("uart", "baud") {
		if raw.UART.Baud <= 0 {
			return fmt.Errorf("uart.baud must be positive, got %d", raw.UART.Baud)
		}
		cfg.baud = raw.UART.Baud
	}
	if meta.IsDefined("uart", "read_timeout") {
		d, err := parseDuration("uart.read_timeout", raw.UART.ReadTimeout)
		if err != nil {
			return err
		}
		cfg.readTimeout = d
	}

	if err := applySession(meta, &raw, cfg); err != nil {
		return err
	}
	if err := applyDetect(meta, &raw, cfg); err != nil {
		return err
	}
	return applyRetry(meta, &raw, cfg)
}

func applySession(meta toml.MetaData, raw *fileConfig, cfg *config) error {
	if meta.IsDefined("session", "reconnect") {
		cfg.keepAlive = raw.Session.Reconnect
	}
	if meta.IsDefined("session", "attempts") {
		if raw.Session.Attempts < 0 {
			return fmt.Errorf("session.attempts cannot be negative, got %d", raw.Session.Attempts)
		}
		cfg.reconnect.MaxReconnectAttempts = raw.Session.Attempts
	}
	if meta.IsDefined("session", "backoff") {
		d, err := parseDuration("session.backoff", raw.Session.Backoff)
		if err != nil {
			return err
		}
		cfg.reconnect.ReconnectBackoff = d
	}
	if meta.IsDefined("session", "max_backoff") {
		d, err := parseDuration("session.max_backoff", raw.Session.MaxBackoff)
		if err != nil {
			return err
		}
		cfg.reconnect.MaxReconnectBackoff = d
	}
	if meta.IsDefined("session", "idle_timeout") {
		d, err := parseDuration("session.idle_timeout", raw.Session.IdleTimeout)
		if err != nil {
			return err
		}
		cfg.reconnect.IdleTimeout = d
	}
	return nil
}

func applyDetect(meta toml.MetaData, raw *fileConfig, cfg *config) error {
	if meta.IsDefined("detect", "mode") {
		mode, err := detection.ParseMode(strings.TrimSpace(raw.Detect.Mode))
		if err != nil {
			return fmt.Errorf("detect.mode: %w", err)
		}
		cfg.detect.Mode = mode
	}
	if meta.IsDefined("detect", "ignore_paths") {
		cfg.detect.IgnorePaths = raw.Detect.IgnorePaths
	}
	if meta.IsDefined("detect", "blocklist") {
		// Entries extend the built-in list rather than replace it
		cfg.detect.Blocklist = append(detection.DefaultBlocklist(), raw.Detect.Blocklist...)
	}
	if meta.IsDefined("detect", "transports") {
		cfg.detect.Transports = raw.Detect.Transports
	}
	if meta.IsDefined("detect", "timeout") {
		d, err := parseDuration("detect.timeout", raw.Detect.Timeout)
		if err != nil {
			return err
		}
		cfg.detect.Timeout = d
	}
	if meta.IsDefined("detect", "probe_timeout") {
		d, err := parseDuration("detect.probe_timeout", raw.Detect.ProbeTimeout)
		if err != nil {
			return err
		}
		cfg.detect.ProbeTimeout = d
	}
	return nil
}

func applyRetry(meta toml.MetaData, raw *fileConfig, cfg *config) error {
	retry := *cfg.retry
	if meta.IsDefined("retry", "max_attempts") {
		if raw.Retry.MaxAttempts <= 0 {
			return fmt.Errorf("retry.max_attempts must be positive, got %d", raw.Retry.MaxAttempts)
		}
		retry.MaxAttempts = raw.Retry.MaxAttempts
	}
	if meta.IsDefined("retry", "initial_backoff") {
		d, err := parseDuration("retry.initial_backoff", raw.Retry.InitialBackoff)
		if err != nil {
			return err
		}
		retry.InitialBackoff = d
	}
	if meta.IsDefined("retry", "max_backoff") {
		d, err := parseDuration("retry.max_backoff", raw.Retry.MaxBackoff)
		if err != nil {
			return err
		}
		retry.MaxBackoff = d
	}
	if meta.IsDefined("retry", "timeout") {
		d, err := parseDuration("retry.timeout", raw.Retry.Timeout)
		if err != nil {
			return err
		}
		retry.RetryTimeout = d
	}
	cfg.retry = &retry
	return nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s cannot be negative", key)
	}
	return d, nil
}
