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

import "time"

// Write retry constants control how often a failed frame write is repeated.
const (
	// DefaultWriteRetries is the number of attempts to write one frame.
	DefaultWriteRetries = 3
	// WriteInitialBackoff is the initial delay between write attempts.
	WriteInitialBackoff = 10 * time.Millisecond
	// WriteMaxBackoff is the maximum delay between write attempts.
	WriteMaxBackoff = 250 * time.Millisecond
	// WriteRetryTimeout is the overall timeout for all write attempts.
	WriteRetryTimeout = 2 * time.Second
)

// Frame read retry constants control how a Link recovers from framing errors.
const (
	// DefaultFrameReadRetries is the number of candidate frames a Link will
	// try before reporting the last framing error to the caller.
	DefaultFrameReadRetries = 5
	// FrameResyncBackoff is the delay before resynchronizing after a bad frame.
	// Zero resynchronizes immediately.
	FrameResyncBackoff = 0
	// FrameResyncMaxBackoff caps the resynchronization delay.
	FrameResyncMaxBackoff = 50 * time.Millisecond
)

// Transport constants shared by the byte-stream backends.
const (
	// TransportDrainRetries is the number of attempts to drain the output buffer.
	TransportDrainRetries = 3
	// DefaultTraceSize is the number of wire trace entries a Link keeps.
	DefaultTraceSize = 32
	// DefaultServeIdle is how long Serve waits after an empty read before
	// polling the transport again.
	DefaultServeIdle = time.Millisecond
)
