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
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-packet/internal/syncutil"
	"github.com/rs/zerolog"
)

// LinkOption configures a Link.
type LinkOption func(*Link) error

// WithRetryConfig sets how many candidate frames ReadPacket tries before it
// gives up on framing errors. Nil restores FrameReadRetryConfig.
func WithRetryConfig(config *RetryConfig) LinkOption {
	return func(l *Link) error {
		if config == nil {
			config = FrameReadRetryConfig()
		}
		l.readRetry = config
		return nil
	}
}

// WithWriteRetryConfig sets the retry policy for frame writes.
func WithWriteRetryConfig(config *RetryConfig) LinkOption {
	return func(l *Link) error {
		if config == nil {
			config = DefaultRetryConfig()
		}
		l.writeRetry = config
		return nil
	}
}

// WithTraceSize sets how many wire trace entries are kept for error reports.
func WithTraceSize(n int) LinkOption {
	return func(l *Link) error {
		if n <= 0 {
			return fmt.Errorf("trace size must be positive, got %d", n)
		}
		l.traceSize = n
		return nil
	}
}

// WithLogger sets the logger for link events.
func WithLogger(logger zerolog.Logger) LinkOption {
	return func(l *Link) error {
		l.logger = logger
		return nil
	}
}

// WithPortName labels the link in logs and wire traces.
func WithPortName(name string) LinkOption {
	return func(l *Link) error {
		l.port = name
		return nil
	}
}

// WithLinkLengthAwareSync enables length-aware synchronization on the
// link's reader (see WithLengthAwareSync).
func WithLinkLengthAwareSync() LinkOption {
	return func(l *Link) error {
		l.lengthAware = true
		return nil
	}
}

// WithDispatchHook registers a callback invoked after every dispatched packet.
// It is how callers observe ResultResend requests.
func WithDispatchHook(hook func(p *Packet, res Result, err error)) LinkOption {
	return func(l *Link) error {
		l.onDispatch = hook
		return nil
	}
}

// LinkStats extends the reader counters with link activity.
type LinkStats struct {
	Stats
	FramesSent    uint64
	WriteErrors   uint64
	Dispatched    uint64
	Resends       uint64
	HandlerErrors uint64
	Unhandled     uint64
}

// Link binds a Transport to the frame codec. Reads are serialized with one
// lock and writes with another, so a Link may read and write concurrently.
type Link struct {
	transport  Transport
	reader     *Reader
	trace      *TraceBuffer
	readRetry  *RetryConfig
	writeRetry *RetryConfig
	onDispatch func(*Packet, Result, error)
	logger     zerolog.Logger
	port       string
	traceSize  int

	readMu  syncutil.Mutex
	writeMu syncutil.Mutex
	traceMu syncutil.Mutex

	sent        atomic.Uint64
	writeErrs   atomic.Uint64
	dispatched  atomic.Uint64
	resends     atomic.Uint64
	handlerErrs atomic.Uint64
	unhandled   atomic.Uint64
	lengthAware bool
}

// NewLink creates a link over transport.
func NewLink(transport Transport, opts ...LinkOption) (*Link, error) {
	if transport == nil {
		return nil, errors.New("transport cannot be nil")
	}

	l := &Link{
		transport:  transport,
		readRetry:  FrameReadRetryConfig(),
		writeRetry: DefaultRetryConfig(),
		logger:     Logger(),
		traceSize:  DefaultTraceSize,
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}

	l.logger = l.logger.With().
		Str("transport", string(transport.Type())).
		Str("port", l.port).
		Logger()
	l.trace = NewTraceBuffer(string(transport.Type()), l.port, l.traceSize)

	readerOpts := []ReaderOption{WithReaderLogger(l.logger)}
	if l.lengthAware {
		readerOpts = append(readerOpts, WithLengthAwareSync())
	}
	l.reader = NewReader(transport, readerOpts...)
	l.reader.observe = l.recordCandidate

	return l, nil
}

func (l *Link) recordCandidate(candidate []byte, err error) {
	note := "ok"
	if err != nil {
		note = err.Error()
	}
	l.traceMu.Lock()
	l.trace.RecordRX(candidate, note)
	l.traceMu.Unlock()
}

func (l *Link) wrapTrace(err error) error {
	l.traceMu.Lock()
	defer l.traceMu.Unlock()
	return l.trace.WrapError(err)
}

// Transport returns the underlying transport.
func (l *Link) Transport() Transport {
	return l.transport
}

// ReadPacket reads the next valid frame. Framing errors resynchronize and
// retry up to the configured attempt count; the last error is returned
// wrapped in a *TraceableError.
func (l *Link) ReadPacket(ctx context.Context) (*Packet, error) {
	l.readMu.Lock()
	defer l.readMu.Unlock()

	config := *l.readRetry
	if config.OnRetry == nil {
		config.OnRetry = func(attempt int, err error) {
			l.logger.Debug().Int("attempt", attempt).Err(err).Msg("resynchronizing after bad frame")
		}
	}

	var pkt *Packet
	err := RetryWithConfig(ctx, &config, func() error {
		p, err := l.reader.ReadPacketContext(ctx)
		if err != nil {
			return err
		}
		pkt = p
		return nil
	})
	if err != nil {
		return nil, l.wrapTrace(err)
	}

	l.logger.Debug().
		Uint8("identifier", pkt.Identifier).
		Int("len", pkt.PayloadLength()).
		Msg("frame received")
	return pkt, nil
}

// WritePacket sends p over the transport.
func (l *Link) WritePacket(ctx context.Context, p *Packet) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.traceMu.Lock()
	l.trace.RecordTX(p.Raw, fmt.Sprintf("id=0x%02X", p.Identifier))
	l.traceMu.Unlock()

	err := RetryWithConfig(ctx, l.writeRetry, func() error {
		_, err := WritePacket(l.transport, p)
		return err
	})
	if err != nil {
		l.writeErrs.Add(1)
		return l.wrapTrace(err)
	}

	l.sent.Add(1)
	l.logger.Debug().
		Uint8("identifier", p.Identifier).
		Int("len", p.PayloadLength()).
		Msg("frame sent")
	return nil
}

// Send compiles identifier and payload and writes the frame.
func (l *Link) Send(ctx context.Context, identifier byte, payload []byte) error {
	if err := CheckPayload(identifier, payload); err != nil {
		return err
	}
	p, err := New(identifier, payload)
	if err != nil {
		return err
	}
	return l.WritePacket(ctx, p)
}

// Serve reads frames and dispatches them to d until ctx is done or the
// transport fails for good. Framing errors are logged and the loop
// resynchronizes; they never end Serve.
func (l *Link) Serve(ctx context.Context, d *Dispatcher) error {
	if d == nil {
		return errors.New("dispatcher cannot be nil")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		p, err := l.ReadPacket(ctx)
		if err != nil {
			if stop := l.handleServeError(ctx, err); stop != nil {
				return stop
			}
			continue
		}

		l.dispatch(ctx, d, p)
	}
}

// handleServeError returns a non-nil error when Serve must stop.
func (l *Link) handleServeError(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case IsFatal(err):
		l.logger.Error().Err(err).Stringer("error_type", GetErrorType(err)).Msg("transport failed, stopping")
		return fmt.Errorf("serve: %w", err)
	case IsFramingError(err):
		l.logger.Warn().Err(err).Msg("dropped bad frames")
		return nil
	default:
		l.logger.Warn().Err(err).Stringer("error_type", GetErrorType(err)).Msg("transient read failure")
		timer := time.NewTimer(DefaultServeIdle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
}

func (l *Link) dispatch(ctx context.Context, d *Dispatcher, p *Packet) {
	res, err := d.Dispatch(ctx, p)
	l.dispatched.Add(1)

	switch {
	case errors.Is(err, ErrNoHandler):
		l.unhandled.Add(1)
		l.logger.Debug().Uint8("identifier", p.Identifier).Msg("no handler for frame")
	case err != nil:
		l.handlerErrs.Add(1)
		l.logger.Warn().Uint8("identifier", p.Identifier).Err(err).Msg("handler failed")
	case res == ResultResend:
		l.resends.Add(1)
		l.logger.Debug().Uint8("identifier", p.Identifier).Msg("handler requested resend")
	}

	if l.onDispatch != nil {
		l.onDispatch(p, res, err)
	}
}

// Stats returns a snapshot of the link counters.
func (l *Link) Stats() LinkStats {
	return LinkStats{
		Stats:         l.reader.Stats(),
		FramesSent:    l.sent.Load(),
		WriteErrors:   l.writeErrs.Load(),
		Dispatched:    l.dispatched.Load(),
		Resends:       l.resends.Load(),
		HandlerErrors: l.handlerErrs.Load(),
		Unhandled:     l.unhandled.Load(),
	}
}

// Trace returns the recorded wire trace, oldest first.
func (l *Link) Trace() []TraceEntry {
	l.traceMu.Lock()
	defer l.traceMu.Unlock()
	return l.trace.Entries()
}

// ResetInput discards received bytes that have not been read yet, when the
// transport supports it.
func (l *Link) ResetInput() error {
	r, ok := l.transport.(InputResetter)
	if !ok {
		return nil
	}
	l.readMu.Lock()
	defer l.readMu.Unlock()
	if err := r.ResetInput(); err != nil {
		return fmt.Errorf("failed to reset input: %w", err)
	}
	return nil
}

// Close closes the underlying transport.
func (l *Link) Close() error {
	if err := l.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}
