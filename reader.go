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
	"io"
	"sync/atomic"

	"github.com/ZaparooProject/go-packet/internal/frame"
	"github.com/rs/zerolog"
)

// ByteSource yields one byte per call. A source with nothing ready returns
// ErrNoData and the reader asks again; any other error ends the read.
type ByteSource interface {
	ReadByte() (byte, error)
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithLengthAwareSync makes the reader trust the declared length field while
// accumulating. An end marker that appears inside the CRC or length bytes no
// longer truncates the frame; the frame ends exactly where its header says.
func WithLengthAwareSync() ReaderOption {
	return func(r *Reader) {
		r.lengthAware = true
	}
}

// WithReaderLogger sets the logger used for resynchronization diagnostics.
func WithReaderLogger(l zerolog.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = l
	}
}

// Stats counts what a Reader has seen. Values are cumulative.
type Stats struct {
	Frames       uint64 // Frames returned successfully
	NoiseBytes   uint64 // Bytes discarded while hunting for a start marker
	Overflows    uint64 // Buffers abandoned at MaxFrameLength without an end marker
	SchemaErrors uint64
	LengthErrors uint64
	CRCErrors    uint64
	SourceErrors uint64 // Byte source failures other than ErrNoData
}

// FramingErrors returns the number of candidate frames rejected by the validator.
func (s Stats) FramingErrors() uint64 {
	return s.SchemaErrors + s.LengthErrors + s.CRCErrors
}

// Reader pulls frames out of a ByteSource. Each call runs a complete
// resynchronize, accumulate and validate cycle; nothing carries over between
// calls. A Reader must be the only consumer of its source.
type Reader struct {
	src         ByteSource
	logger      zerolog.Logger
	observe     func(candidate []byte, err error)
	lengthAware bool

	frames     atomic.Uint64
	noise      atomic.Uint64
	overflows  atomic.Uint64
	schemaErrs atomic.Uint64
	lengthErrs atomic.Uint64
	crcErrs    atomic.Uint64
	sourceErrs atomic.Uint64
}

// NewReader creates a Reader bound to src.
func NewReader(src ByteSource, opts ...ReaderOption) *Reader {
	r := &Reader{
		src:    src,
		logger: Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadPacket reads one frame from src with a fresh Reader.
func ReadPacket(src ByteSource) (*Packet, error) {
	return NewReader(src).ReadPacket()
}

// ReadPacketContext is ReadPacket with cancellation.
func ReadPacketContext(ctx context.Context, src ByteSource) (*Packet, error) {
	return NewReader(src).ReadPacketContext(ctx)
}

// ReadPacket blocks until a candidate frame has been accumulated and
// validated. It returns the packet or a *ValidationError; byte source
// failures come back as *TransportError.
func (r *Reader) ReadPacket() (*Packet, error) {
	return r.ReadPacketContext(context.Background())
}

// ReadPacketContext is ReadPacket that gives up when ctx is done. The context
// is checked whenever the source has no data and between abandoned buffers.
func (r *Reader) ReadPacketContext(ctx context.Context) (*Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("read packet: %w", err)
	}

	buf := make([]byte, 0, frame.MaxFrameLength)
	for {
		if err := r.synchronize(ctx); err != nil {
			return nil, err
		}
		buf = append(buf[:0], frame.StartByte)

		complete, err := r.accumulate(ctx, &buf)
		if err != nil {
			return nil, err
		}
		if !complete {
			r.overflows.Add(1)
			r.logger.Debug().Int("len", len(buf)).Msg("no end marker within maximum frame size, resynchronizing")
			if r.observe != nil {
				r.observe(buf, ErrLength)
			}
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("read packet: %w", err)
			}
			continue
		}

		pkt, err := Parse(buf)
		if r.observe != nil {
			r.observe(buf, err)
		}
		if err != nil {
			r.countFramingError(err)
			return nil, err
		}
		r.frames.Add(1)
		return pkt, nil
	}
}

// synchronize discards bytes until a start marker has been consumed.
func (r *Reader) synchronize(ctx context.Context) error {
	discarded := 0
	defer func() {
		if discarded > 0 {
			r.noise.Add(uint64(discarded))
			r.logger.Debug().Int("bytes", discarded).Msg("discarded bytes before start marker")
		}
	}()

	for {
		b, err := r.next(ctx)
		if err != nil {
			return err
		}
		if b == frame.StartByte {
			return nil
		}
		discarded++
	}
}

// accumulate appends bytes to buf until the frame ends or buf is full.
// It reports false when MaxFrameLength was reached without an end marker.
func (r *Reader) accumulate(ctx context.Context, buf *[]byte) (bool, error) {
	for len(*buf) < frame.MaxFrameLength {
		b, err := r.next(ctx)
		if err != nil {
			return false, err
		}
		*buf = append(*buf, b)
		if r.frameDone(*buf, b) {
			return true, nil
		}
	}
	return false, nil
}

// frameDone decides whether the byte just appended closes the frame.
func (r *Reader) frameDone(buf []byte, b byte) bool {
	if !r.lengthAware || len(buf) <= frame.LengthOffset {
		return b == frame.EndByte
	}
	want := frame.FrameLength(int(buf[frame.LengthOffset]))
	if want > frame.MaxFrameLength {
		return b == frame.EndByte
	}
	return len(buf) >= want
}

// next returns the next byte, retrying while the source reports ErrNoData.
func (r *Reader) next(ctx context.Context) (byte, error) {
	for {
		b, err := r.src.ReadByte()
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, ErrNoData) {
			r.sourceErrs.Add(1)
			return 0, wrapSourceError("ReadPacket", err)
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("read packet: %w", ctx.Err())
		default:
		}
	}
}

func (r *Reader) countFramingError(err error) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		r.logger.Debug().
			Str("state", ve.State.String()).
			Int("offset", ve.Offset).
			Err(ve.Kind).
			Msg("rejected candidate frame")
	}
	switch {
	case errors.Is(err, ErrCRC):
		r.crcErrs.Add(1)
	case errors.Is(err, ErrLength):
		r.lengthErrs.Add(1)
	default:
		r.schemaErrs.Add(1)
	}
}

// Stats returns a snapshot of the reader's counters.
func (r *Reader) Stats() Stats {
	return Stats{
		Frames:       r.frames.Load(),
		NoiseBytes:   r.noise.Load(),
		Overflows:    r.overflows.Load(),
		SchemaErrors: r.schemaErrs.Load(),
		LengthErrors: r.lengthErrs.Load(),
		CRCErrors:    r.crcErrs.Load(),
		SourceErrors: r.sourceErrs.Load(),
	}
}

// ByteReaderSource adapts an io.Reader to ByteSource. A read that returns no
// bytes and no error maps to ErrNoData, so polled sources such as serial
// ports with read timeouts work unchanged.
type ByteReaderSource struct {
	r   io.Reader
	br  io.ByteReader
	one [1]byte
}

// NewByteReaderSource wraps r. If r also implements io.ByteReader its
// ReadByte is used directly.
func NewByteReaderSource(r io.Reader) *ByteReaderSource {
	s := &ByteReaderSource{r: r}
	if br, ok := r.(io.ByteReader); ok {
		s.br = br
	}
	return s
}

// ReadByte implements ByteSource.
func (s *ByteReaderSource) ReadByte() (byte, error) {
	if s.br != nil {
		return s.br.ReadByte()
	}
	n, err := s.r.Read(s.one[:])
	if n == 1 {
		return s.one[0], nil
	}
	if err != nil {
		return 0, err
	}
	return 0, ErrNoData
}
