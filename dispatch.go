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
	"fmt"

	"github.com/ZaparooProject/go-packet/internal/frame"
	"github.com/ZaparooProject/go-packet/internal/syncutil"
)

// Result tells the caller what a handler made of a packet.
type Result int

const (
	// ResultComplete means the packet was consumed
	ResultComplete Result = iota
	// ResultResend means the handler wants the peer to send the packet again.
	// The link only reports it; there is no retransmission protocol on the wire.
	ResultResend
)

func (r Result) String() string {
	switch r {
	case ResultComplete:
		return "complete"
	case ResultResend:
		return "resend"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Handler processes packets for one identifier.
type Handler interface {
	HandlePacket(ctx context.Context, p *Packet) (Result, error)
}

// HandlerFunc adapts an ordinary function to Handler.
type HandlerFunc func(ctx context.Context, p *Packet) (Result, error)

// HandlePacket calls f(ctx, p).
func (f HandlerFunc) HandlePacket(ctx context.Context, p *Packet) (Result, error) {
	return f(ctx, p)
}

// Dispatcher routes packets to handlers by identifier. It is safe for
// concurrent use.
type Dispatcher struct {
	handlers map[byte]Handler
	fallback Handler
	mu       syncutil.RWMutex
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[byte]Handler),
	}
}

// Register binds h to identifier, replacing any earlier handler.
// Identifiers equal to a frame marker can never arrive and are refused.
func (d *Dispatcher) Register(identifier byte, h Handler) error {
	if frame.IsSentinel(identifier) {
		return fmt.Errorf("register 0x%02X: %w", identifier, ErrReservedIdentifier)
	}
	if h == nil {
		return fmt.Errorf("register 0x%02X: nil handler", identifier)
	}
	d.mu.Lock()
	d.handlers[identifier] = h
	d.mu.Unlock()
	return nil
}

// RegisterFunc is Register for a plain function.
func (d *Dispatcher) RegisterFunc(identifier byte, f func(context.Context, *Packet) (Result, error)) error {
	return d.Register(identifier, HandlerFunc(f))
}

// Unregister removes the handler for identifier, if any.
func (d *Dispatcher) Unregister(identifier byte) {
	d.mu.Lock()
	delete(d.handlers, identifier)
	d.mu.Unlock()
}

// Handler returns the handler registered for identifier.
func (d *Dispatcher) Handler(identifier byte) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[identifier]
	return h, ok
}

// SetFallback sets the handler used for identifiers with no registration.
// A nil handler restores ErrNoHandler for unknown identifiers.
func (d *Dispatcher) SetFallback(h Handler) {
	d.mu.Lock()
	d.fallback = h
	d.mu.Unlock()
}

// Dispatch hands p to the handler registered for its identifier.
func (d *Dispatcher) Dispatch(ctx context.Context, p *Packet) (Result, error) {
	d.mu.RLock()
	h, ok := d.handlers[p.Identifier]
	if !ok {
		h = d.fallback
	}
	d.mu.RUnlock()

	if h == nil {
		return ResultComplete, fmt.Errorf("dispatch 0x%02X: %w", p.Identifier, ErrNoHandler)
	}
	return h.HandlePacket(ctx, p)
}
