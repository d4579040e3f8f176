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
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPacket(t *testing.T, identifier byte, payload []byte) *Packet {
	t.Helper()
	p, err := New(identifier, payload)
	require.NoError(t, err)
	return p
}

func TestResult_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "complete", ResultComplete.String())
	assert.Equal(t, "resend", ResultResend.String())
	assert.Equal(t, "Result(9)", Result(9).String())
}

func TestDispatcher_Routes(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	var got []string
	require.NoError(t, d.RegisterFunc(0x01, func(_ context.Context, p *Packet) (Result, error) {
		got = append(got, "one:"+string(p.Payload))
		return ResultComplete, nil
	}))
	require.NoError(t, d.RegisterFunc(0x02, func(_ context.Context, p *Packet) (Result, error) {
		got = append(got, "two:"+string(p.Payload))
		return ResultResend, nil
	}))

	res, err := d.Dispatch(context.Background(), mustPacket(t, 0x01, []byte("a")))
	require.NoError(t, err)
	assert.Equal(t, ResultComplete, res)

	res, err = d.Dispatch(context.Background(), mustPacket(t, 0x02, []byte("b")))
	require.NoError(t, err)
	assert.Equal(t, ResultResend, res)

	assert.Equal(t, []string{"one:a", "two:b"}, got)
}

func TestDispatcher_UnknownIdentifier(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	res, err := d.Dispatch(context.Background(), mustPacket(t, 0x42, nil))
	require.ErrorIs(t, err, ErrNoHandler)
	assert.Equal(t, ResultComplete, res)

	var seen byte
	d.SetFallback(HandlerFunc(func(_ context.Context, p *Packet) (Result, error) {
		seen = p.Identifier
		return ResultComplete, nil
	}))
	_, err = d.Dispatch(context.Background(), mustPacket(t, 0x42, nil))
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), seen)

	d.SetFallback(nil)
	_, err = d.Dispatch(context.Background(), mustPacket(t, 0x42, nil))
	require.ErrorIs(t, err, ErrNoHandler)
}

func TestDispatcher_RegisterRejects(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	noop := HandlerFunc(func(context.Context, *Packet) (Result, error) { return ResultComplete, nil })

	require.ErrorIs(t, d.Register(StartByte, noop), ErrReservedIdentifier)
	require.ErrorIs(t, d.Register(EndByte, noop), ErrReservedIdentifier)
	require.Error(t, d.Register(0x01, nil))

	_, ok := d.Handler(StartByte)
	assert.False(t, ok)
}

func TestDispatcher_ReplaceAndUnregister(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	first := errors.New("first")
	second := errors.New("second")

	require.NoError(t, d.RegisterFunc(0x05, func(context.Context, *Packet) (Result, error) { return ResultComplete, first }))
	require.NoError(t, d.RegisterFunc(0x05, func(context.Context, *Packet) (Result, error) { return ResultComplete, second }))

	_, err := d.Dispatch(context.Background(), mustPacket(t, 0x05, nil))
	require.ErrorIs(t, err, second)

	d.Unregister(0x05)
	_, ok := d.Handler(0x05)
	assert.False(t, ok)
	_, err = d.Dispatch(context.Background(), mustPacket(t, 0x05, nil))
	require.ErrorIs(t, err, ErrNoHandler)
}

func TestDispatcher_ProtocolIdentifierIsOrdinary(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	called := false
	require.NoError(t, d.RegisterFunc(ProtocolIdentifier, func(_ context.Context, p *Packet) (Result, error) {
		called = p.IsProtocol()
		return ResultComplete, nil
	}))

	_, err := d.Dispatch(context.Background(), mustPacket(t, ProtocolIdentifier, []byte{0x01}))
	require.NoError(t, err)
	assert.True(t, called)
}

func TestDispatcher_Concurrent(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	var mu sync.Mutex
	count := 0
	handler := HandlerFunc(func(context.Context, *Packet) (Result, error) {
		mu.Lock()
		count++
		mu.Unlock()
		return ResultComplete, nil
	})
	require.NoError(t, d.Register(0x01, handler))

	p := mustPacket(t, 0x01, nil)
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%4 == 0 {
				_ = d.Register(0x01, handler)
				return
			}
			_, _ = d.Dispatch(context.Background(), p)
		}()
	}
	wg.Wait()

	assert.Equal(t, 12, count)
}
