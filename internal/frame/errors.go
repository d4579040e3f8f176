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

package frame

import (
	"errors"
	"fmt"
)

// Validation failure kinds. Every *ValidationError unwraps to exactly one of these.
var (
	// ErrSchema is a structural violation: bad start or end marker, an identifier
	// that collides with a marker, or bytes missing from the tail of the frame.
	ErrSchema = errors.New("frame schema error")
	// ErrLength means the declared payload length does not fit the buffer or the
	// maximum frame size, or the payload holds a reserved marker byte.
	ErrLength = errors.New("frame length error")
	// ErrCRC means a structurally sound frame failed its checksum.
	ErrCRC = errors.New("frame CRC mismatch")
)

// Compiler precondition errors
var (
	ErrPayloadTooLarge = errors.New("payload exceeds maximum frame size")
	ErrBufferTooSmall  = errors.New("destination buffer too small for frame")
	ErrReservedByte    = errors.New("frame field contains a reserved marker byte")
)

// ValidationError describes the first violation found while walking a frame.
type ValidationError struct {
	Kind   error // ErrSchema, ErrLength or ErrCRC
	State  State // State that rejected the frame
	Offset int   // Cursor position when the check failed
	Want   int   // Expected value, when meaningful
	Got    int   // Observed value, when meaningful
}

func (e *ValidationError) Error() string {
	switch {
	case errors.Is(e.Kind, ErrCRC):
		return fmt.Sprintf("%v at %s (offset %d): want 0x%04X, got 0x%04X",
			e.Kind, e.State, e.Offset, e.Want, e.Got)
	case e.Want != 0 || e.Got != 0:
		return fmt.Sprintf("%v at %s (offset %d): want %d, got %d",
			e.Kind, e.State, e.Offset, e.Want, e.Got)
	default:
		return fmt.Sprintf("%v at %s (offset %d)", e.Kind, e.State, e.Offset)
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

func newValidationError(kind error, state State, offset int) *ValidationError {
	return &ValidationError{Kind: kind, State: state, Offset: offset}
}
