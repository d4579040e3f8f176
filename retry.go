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
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// RetryConfig configures how a Link repeats failed reads and writes.
type RetryConfig struct {
	// OnRetry, when set, is called after each failed attempt that will be retried
	OnRetry func(attempt int, err error)
	// ShouldRetry decides which errors are retried. Nil means IsRetryable.
	ShouldRetry func(err error) bool
	// MaxAttempts is the maximum number of attempts (0 = no retry)
	MaxAttempts int
	// InitialBackoff is the delay before the second attempt
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between attempts
	MaxBackoff time.Duration
	// BackoffMultiplier grows the delay after every retry
	BackoffMultiplier float64
	// Jitter adds up to this fraction of the delay at random
	Jitter float64
	// RetryTimeout bounds all attempts together (0 = none)
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns the configuration used for writes
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       DefaultWriteRetries,
		InitialBackoff:    WriteInitialBackoff,
		MaxBackoff:        WriteMaxBackoff,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      WriteRetryTimeout,
	}
}

// FrameReadRetryConfig returns the configuration a Link uses for reads.
// Framing errors resynchronize at once; there is no overall timeout because
// a read may legitimately wait a long time for the peer.
func FrameReadRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       DefaultFrameReadRetries,
		InitialBackoff:    FrameResyncBackoff,
		MaxBackoff:        FrameResyncMaxBackoff,
		BackoffMultiplier: 2.0,
	}
}

// RetryableFunc is one attempt of a retried operation
type RetryableFunc func() error

// RetryWithConfig runs fn until it succeeds, returns an error the config does
// not retry, or runs out of attempts. The last attempt's error is returned;
// a context that ends before the first attempt yields the context error.
func RetryWithConfig(ctx context.Context, config *RetryConfig, fn RetryableFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts <= 0 {
		return fn()
	}
	if config.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.RetryTimeout)
		defer cancel()
	}

	shouldRetry := config.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRetryable
	}
	delays := newBackoff(config)

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("retry context cancelled: %w", ctx.Err())
		}

		err := fn()
		if err == nil || !shouldRetry(err) {
			return err
		}
		lastErr = err
		if attempt == config.MaxAttempts {
			break
		}

		if config.OnRetry != nil {
			config.OnRetry(attempt, err)
		}
		if !sleepContext(ctx, delays.next()) {
			return lastErr
		}
	}
	return lastErr
}

// backoff yields the delay before each retry.
type backoff struct {
	config  *RetryConfig
	current time.Duration
}

func newBackoff(config *RetryConfig) *backoff {
	return &backoff{config: config, current: config.InitialBackoff}
}

// next returns the jittered current delay and grows it for the next call.
func (b *backoff) next() time.Duration {
	d := withJitter(b.current, b.config.Jitter)
	b.current = time.Duration(float64(b.current) * b.config.BackoffMultiplier)
	if b.current > b.config.MaxBackoff {
		b.current = b.config.MaxBackoff
	}
	return d
}

// withJitter adds a random share of up to factor*d to d.
func withJitter(d time.Duration, factor float64) time.Duration {
	if factor <= 0 || d <= 0 {
		return d
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return d
	}
	frac := float64(binary.LittleEndian.Uint64(buf[:])>>11) / (1 << 53)
	return d + time.Duration(frac*factor*float64(d))
}

// sleepContext waits for d and reports whether ctx is still live.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
