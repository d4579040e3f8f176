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
	"fmt"
	"io"

	"github.com/ZaparooProject/go-packet/internal/frame"
)

// WritePacket writes the packet's raw bytes to sink in a single Write call.
// A write that put only part of the frame on the wire fails with
// ErrPartialWrite and is never retryable: a resent frame would follow the
// stray prefix and the receiver would reject both.
func WritePacket(sink io.Writer, p *Packet) (int, error) {
	n, err := sink.Write(p.Raw)
	switch {
	case n > 0 && n < len(p.Raw):
		return n, partialWriteError(n, len(p.Raw), err)
	case err != nil:
		return n, wrapSourceError("WritePacket", err)
	}
	return n, nil
}

func partialWriteError(n, total int, cause error) *TransportError {
	if cause == nil {
		cause = io.ErrShortWrite
	}
	errType := ErrorTypeTransient
	if IsFatal(cause) {
		errType = ErrorTypePermanent
	}
	te := NewTransportError("WritePacket", "",
		fmt.Errorf("%w: %d of %d bytes: %w", ErrPartialWrite, n, total, cause), errType)
	te.Retryable = false
	return te
}

// Send compiles identifier and payload and writes the frame to sink.
// Payloads that a receiver would reject are refused before anything is sent.
func Send(sink io.Writer, identifier byte, payload []byte) (int, error) {
	if err := frame.CheckPayload(identifier, payload); err != nil {
		return 0, err
	}
	p, err := New(identifier, payload)
	if err != nil {
		return 0, err
	}
	return WritePacket(sink, p)
}
