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

// Package session keeps a packet link running across transport failures.
//
// A Session opens a transport through an OpenFunc, serves it with a
// Dispatcher and, when the transport fails for good, closes it and opens a
// new one with backoff. Framing errors never end a link; only fatal
// transport errors do.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	packet "github.com/ZaparooProject/go-packet"
	"github.com/ZaparooProject/go-packet/internal/syncutil"
	"github.com/rs/zerolog"
)

// Session serves one peer for as long as the context allows.
type Session struct {
	// OnStateChange is called on every state transition. Set before Start.
	OnStateChange func(from, to State)
	// OnIdle is called when Config.IdleTimeout passes without a frame.
	OnIdle      func()
	config      *Config
	dispatcher  *packet.Dispatcher
	reconnector *Reconnector
	link        *packet.Link
	idleTimer   *time.Timer
	cancel      context.CancelFunc
	logger      zerolog.Logger
	total       packet.LinkStats
	state       State
	mu          syncutil.RWMutex
	reconnects  atomic.Uint64
	closed      atomic.Bool
	running     atomic.Bool
}

// NewSession creates a session that dispatches frames to d.
func NewSession(open OpenFunc, d *packet.Dispatcher, config *Config) *Session {
	if config == nil {
		config = DefaultConfig()
	}
	return &Session{
		config:     config,
		dispatcher: d,
		reconnector: NewReconnector(open,
			config.ReconnectBackoff, config.MaxReconnectBackoff, config.MaxReconnectAttempts),
		logger: packet.Logger(),
	}
}

// Start connects and serves until ctx ends, Close is called, or a
// reconnect gives up. It returns nil after Close.
func (s *Session) Start(ctx context.Context) error {
	if s.dispatcher == nil {
		return errors.New("dispatcher cannot be nil")
	}
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("session already running")
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	if s.closed.Load() {
		return s.finish(ctx, ErrClosed)
	}

	s.setState(StateConnecting)
	for {
		t, err := s.reconnector.Connect(ctx)
		if err != nil {
			return s.finish(ctx, err)
		}

		link, err := s.openLink(t)
		if err != nil {
			_ = t.Close()
			return s.finish(ctx, err)
		}
		s.setState(StateConnected)
		s.logger.Info().Str("transport", string(t.Type())).Msg("session connected")

		err = link.Serve(ctx, s.dispatcher)
		s.closeLink(link)
		if ctx.Err() != nil || s.closed.Load() {
			return s.finish(ctx, err)
		}

		s.reconnects.Add(1)
		s.logger.Warn().Err(err).Msg("link failed, reconnecting")
		s.setState(StateRecovering)
	}
}

func (s *Session) finish(ctx context.Context, err error) error {
	if s.closed.Load() {
		s.setState(StateClosed)
		return nil
	}
	s.setState(StateDisconnected)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("session: %w", err)
}

func (s *Session) openLink(t packet.Transport) (*packet.Link, error) {
	opts := append(slices.Clone(s.config.LinkOptions), packet.WithDispatchHook(s.onDispatch))
	link, err := packet.NewLink(t, opts...)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	s.mu.Lock()
	s.link = link
	if s.config.IdleTimeout > 0 {
		s.idleTimer = time.AfterFunc(s.config.IdleTimeout, s.fireIdle)
	}
	s.mu.Unlock()
	return link, nil
}

func (s *Session) closeLink(link *packet.Link) {
	s.mu.Lock()
	safeTimerStop(s.idleTimer)
	s.idleTimer = nil
	s.total = addStats(s.total, link.Stats())
	s.link = nil
	s.mu.Unlock()

	if err := link.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("closing failed link")
	}
}

func (s *Session) onDispatch(p *packet.Packet, res packet.Result, err error) {
	s.mu.Lock()
	if s.idleTimer != nil {
		s.idleTimer.Reset(s.config.IdleTimeout)
	}
	s.mu.Unlock()

	if s.config.OnDispatch != nil {
		s.config.OnDispatch(p, res, err)
	}
}

func (s *Session) fireIdle() {
	if s.closed.Load() {
		return
	}
	s.logger.Debug().Dur("timeout", s.config.IdleTimeout).Msg("peer idle")
	if s.OnIdle != nil {
		s.OnIdle()
	}
}

func (s *Session) setState(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	if from != to && s.OnStateChange != nil {
		s.OnStateChange(from, to)
	}
}

// State returns the current connection state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Link returns the open link, or nil between connections.
func (s *Session) Link() *packet.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.link
}

// Send writes one frame over the open link.
func (s *Session) Send(ctx context.Context, identifier byte, payload []byte) error {
	link := s.Link()
	if link == nil {
		return ErrNotConnected
	}
	if err := link.Send(ctx, identifier, payload); err != nil {
		return fmt.Errorf("session send: %w", err)
	}
	return nil
}

// Reconnects returns how many times a failed link was replaced.
func (s *Session) Reconnects() uint64 {
	return s.reconnects.Load()
}

// Stats returns counters summed over every link the session has opened.
func (s *Session) Stats() packet.LinkStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.link == nil {
		return s.total
	}
	return addStats(s.total, s.link.Stats())
}

// Close stops a running Start and prevents new ones.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !s.running.Load() {
		s.setState(StateClosed)
	}
	return nil
}

func addStats(a, b packet.LinkStats) packet.LinkStats {
	return packet.LinkStats{
		Stats: packet.Stats{
			Frames:       a.Frames + b.Frames,
			NoiseBytes:   a.NoiseBytes + b.NoiseBytes,
			Overflows:    a.Overflows + b.Overflows,
			SchemaErrors: a.SchemaErrors + b.SchemaErrors,
			LengthErrors: a.LengthErrors + b.LengthErrors,
			CRCErrors:    a.CRCErrors + b.CRCErrors,
			SourceErrors: a.SourceErrors + b.SourceErrors,
		},
		FramesSent:    a.FramesSent + b.FramesSent,
		WriteErrors:   a.WriteErrors + b.WriteErrors,
		Dispatched:    a.Dispatched + b.Dispatched,
		Resends:       a.Resends + b.Resends,
		HandlerErrors: a.HandlerErrors + b.HandlerErrors,
		Unhandled:     a.Unhandled + b.Unhandled,
	}
}
