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
	"testing"
	"time"

	packet "github.com/ZaparooProject/go-packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	probeFrame = []byte{0x7E, 0xFF, 0x04, 0x70, 0x69, 0x6E, 0x67, 0xF7, 0x2B, 0x7F}
	pongFrame  = []byte{0x7E, 0x01, 0x04, 0x70, 0x6F, 0x6E, 0x67, 0x45, 0x8B, 0x7F}
)

// responder answers every write with a fixed byte sequence.
type responder struct {
	*packet.MockTransport
	reply []byte
}

func (r *responder) Write(p []byte) (int, error) {
	n, err := r.MockTransport.Write(p)
	if err == nil {
		r.Feed(r.reply...)
	}
	return n, err
}

// chatterbox streams zero bytes until closed, so reads never idle.
type chatterbox struct {
	*packet.MockTransport
}

func (c *chatterbox) ReadByte() (byte, error) {
	if !c.IsConnected() {
		return 0, packet.NewTransportClosedError("ReadByte", "chatter")
	}
	return 0x00, nil
}

func probeOptions() *Options {
	opts := DefaultOptions()
	opts.ProbeTimeout = 30 * time.Millisecond
	return &opts
}

func TestProbe_Loopback(t *testing.T) {
	t.Parallel()

	mock := packet.NewMockTransport()
	mock.SetLoopback(true)

	p, err := Probe(context.Background(), mock, probeOptions())
	require.NoError(t, err)
	assert.Equal(t, probeFrame, p.Raw)
	assert.Equal(t, [][]byte{probeFrame}, mock.Written())
	assert.True(t, mock.IsConnected(), "Probe leaves the transport open")
}

func TestProbe_DiscardsStaleInput(t *testing.T) {
	t.Parallel()

	mock := packet.NewMockTransport()
	mock.Feed(0x7E, 0x01, 0x02)
	r := &responder{MockTransport: mock, reply: append([]byte{0x13, 0x37}, pongFrame...)}

	p, err := Probe(context.Background(), r, probeOptions())
	require.NoError(t, err)
	assert.Equal(t, pongFrame, p.Raw)
}

func TestProbe_CustomFrame(t *testing.T) {
	t.Parallel()

	mock := packet.NewMockTransport()
	mock.SetLoopback(true)
	opts := probeOptions()
	opts.ProbeIdentifier = 0x02
	opts.ProbePayload = []byte("hello")

	p, err := Probe(context.Background(), mock, opts)
	require.NoError(t, err)
	assert.Equal(t, byte(0x02), p.Identifier)
	assert.Equal(t, []byte("hello"), p.Payload)
}

func TestProbe_ReservedProbeFrame(t *testing.T) {
	t.Parallel()

	mock := packet.NewMockTransport()
	opts := probeOptions()
	opts.ProbePayload = []byte{0x7F}

	_, err := Probe(context.Background(), mock, opts)
	require.ErrorIs(t, err, packet.ErrReservedByte)
	assert.Empty(t, mock.Written())
}

func TestProbe_SilentPort(t *testing.T) {
	t.Parallel()

	mock := packet.NewMockTransport()
	mock.SetDelay(time.Millisecond)

	_, err := Probe(context.Background(), mock, probeOptions())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, packet.ErrTransportTimeout)
	assert.Equal(t, packet.ErrorTypeTimeout, packet.GetErrorType(err))
	assert.Contains(t, err.Error(), "no answer within 30ms")
}

func TestProbeOnce(t *testing.T) {
	t.Parallel()

	mock := packet.NewMockTransport()
	mock.SetLoopback(true)
	assert.True(t, ProbeOnce(context.Background(), mock, probeOptions()))
	assert.False(t, mock.IsConnected())

	silent := packet.NewMockTransport()
	silent.SetDelay(time.Millisecond)
	assert.False(t, ProbeOnce(context.Background(), silent, probeOptions()))
	assert.False(t, silent.IsConnected())
}

func TestProbeOnce_StreamingPortIsCutOff(t *testing.T) {
	t.Parallel()

	c := &chatterbox{MockTransport: packet.NewMockTransport()}

	start := time.Now()
	assert.False(t, ProbeOnce(context.Background(), c, probeOptions()))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, c.IsConnected())
}
