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

//go:build unix

package packet

import (
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFatal_SyscallErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "EIO is fatal", err: syscall.EIO, want: true},
		{name: "ENXIO is fatal", err: syscall.ENXIO, want: true},
		{name: "ENODEV is fatal", err: syscall.ENODEV, want: true},
		{name: "wrapped EIO is fatal", err: fmt.Errorf("write failed: %w", syscall.EIO), want: true},
		{
			name: "double-wrapped ENXIO is fatal",
			err:  fmt.Errorf("operation failed: %w", fmt.Errorf("write: %w", syscall.ENXIO)),
			want: true,
		},
		{name: "EAGAIN is not fatal", err: syscall.EAGAIN, want: false},
		{name: "EINTR is not fatal", err: syscall.EINTR, want: false},
		{name: "ETIMEDOUT is not fatal", err: syscall.ETIMEDOUT, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFatal(tt.err), "IsFatal(%v)", tt.err)
		})
	}
}
