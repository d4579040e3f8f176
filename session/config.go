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

package session

import (
	"time"

	packet "github.com/ZaparooProject/go-packet"
)

// Config holds session options
type Config struct {
	// OnDispatch observes every dispatched packet, after the session's own
	// bookkeeping.
	OnDispatch func(p *packet.Packet, res packet.Result, err error)
	// LinkOptions are applied to every link the session opens
	LinkOptions []packet.LinkOption
	// IdleTimeout fires OnIdle once when no frame arrives for this long.
	// Zero disables the watchdog.
	IdleTimeout time.Duration
	// ReconnectBackoff is the delay before the second connect attempt
	ReconnectBackoff time.Duration
	// MaxReconnectBackoff caps the doubling reconnect delay
	MaxReconnectBackoff time.Duration
	// MaxReconnectAttempts bounds consecutive failed connects. Zero means
	// keep trying until the context ends.
	MaxReconnectAttempts int
}

// DefaultConfig returns the default session configuration
func DefaultConfig() *Config {
	return &Config{
		ReconnectBackoff:     500 * time.Millisecond,
		MaxReconnectBackoff:  10 * time.Second,
		MaxReconnectAttempts: 0,
	}
}
