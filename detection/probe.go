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

package detection

import (
	"context"
	"errors"
	"fmt"

	packet "github.com/ZaparooProject/go-packet"
	"github.com/rs/zerolog"
)

// Probe sends one probe frame over t and waits up to opts.ProbeTimeout
// for a valid frame in return. It makes a single write attempt; bad
// frames on the way back are skipped like any link read.
//
// Probe does not close t.
func Probe(ctx context.Context, t packet.Transport, opts *Options) (*packet.Packet, error) {
	if opts.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ProbeTimeout)
		defer cancel()
	}

	link, err := packet.NewLink(t,
		packet.WithWriteRetryConfig(&packet.RetryConfig{MaxAttempts: 1}),
		packet.WithLogger(packet.Logger().Level(zerolog.WarnLevel)),
	)
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}

	if err := link.ResetInput(); err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}
	if err := link.Send(ctx, opts.ProbeIdentifier, opts.ProbePayload); err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}

	p, err := link.ReadPacket(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			timeout := packet.NewTimeoutError("ReadPacket", string(t.Type()))
			return nil, fmt.Errorf("probe: no answer within %s: %w: %w", opts.ProbeTimeout, timeout, err)
		}
		return nil, fmt.Errorf("probe: %w", err)
	}
	return p, nil
}

// ProbeOnce probes t and closes it. Reads only notice the deadline while
// the port is idle, so a port that keeps streaming bytes is cut off by
// closing it.
func ProbeOnce(ctx context.Context, t packet.Transport, opts *Options) bool {
	probeCtx := ctx
	if opts.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, opts.ProbeTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		_, err := Probe(probeCtx, t, opts)
		done <- err
	}()

	var err error
	select {
	case err = <-done:
	case <-probeCtx.Done():
		_ = t.Close()
		err = <-done
	}
	_ = t.Close()

	if err != nil {
		packet.Debugf("probe failed: %v", err)
		return false
	}
	return true
}
