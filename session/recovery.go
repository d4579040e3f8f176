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
	"context"
	"fmt"
	"time"

	packet "github.com/ZaparooProject/go-packet"
	"github.com/ZaparooProject/go-packet/internal/syncutil"
)

// OpenFunc opens the transport a session runs on. It is called again
// after the transport fails.
type OpenFunc func(ctx context.Context) (packet.Transport, error)

// Reconnector opens transports with a doubling backoff between failed
// attempts.
type Reconnector struct {
	open        OpenFunc
	backoff     time.Duration
	maxBackoff  time.Duration
	maxAttempts int
	attempts    uint64
	mu          syncutil.Mutex
}

// NewReconnector creates a Reconnector. maxAttempts of zero retries until
// the context ends.
func NewReconnector(open OpenFunc, backoff, maxBackoff time.Duration, maxAttempts int) *Reconnector {
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	if maxBackoff < backoff {
		maxBackoff = backoff
	}
	return &Reconnector{
		open:        open,
		backoff:     backoff,
		maxBackoff:  maxBackoff,
		maxAttempts: maxAttempts,
	}
}

// Connect returns the first transport that opens and reports itself
// connected.
func (r *Reconnector) Connect(ctx context.Context) (packet.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	delay := r.backoff
	for attempt := 0; r.maxAttempts == 0 || attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				safeTimerStop(timer)
				return nil, fmt.Errorf("reconnect: %w", ctx.Err())
			case <-timer.C:
			}
			delay = min(delay*2, r.maxBackoff)
		} else if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("reconnect: %w", err)
		}

		r.attempts++
		t, err := r.open(ctx)
		if err == nil && t != nil && t.IsConnected() {
			return t, nil
		}
		if err == nil {
			err = packet.NewTransportNotReadyError("open", "")
			if t != nil {
				_ = t.Close()
			}
		}
		lastErr = err
		packet.Debugf("session: connect attempt %d failed: %v", attempt+1, err)
	}
	return nil, fmt.Errorf("reconnect: giving up after %d attempts: %w", r.maxAttempts, lastErr)
}

// Attempts returns the number of open calls made so far.
func (r *Reconnector) Attempts() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}
