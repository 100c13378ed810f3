// Package stream replays a finite waveform buffer into a transmit endpoint as
// an endless sequence of fixed size chunks.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rjboer/sdrwave/internal/logging"
	"github.com/rjboer/sdrwave/internal/sdr"
	"github.com/rjboer/sdrwave/internal/waveform"
)

// DefaultBackoff is the pause after a rejected chunk when no policy is set.
const DefaultBackoff = time.Millisecond

var (
	// ErrInvalidChunkSize is returned when chunkSize is outside [1, buffer length].
	ErrInvalidChunkSize = errors.New("invalid chunk size")
	ErrEmptyBuffer      = errors.New("empty waveform buffer")
)

// Stats summarizes one Stream call.
type Stats struct {
	Iterations int
	Chunks     int
	Rejected   int
	Samples    int64
	Cursor     int
	Started    time.Time
	Elapsed    time.Duration
}

// Streamer writes a buffer cyclically to an endpoint. A Streamer holds no
// per-stream state and may be reused for consecutive streams.
type Streamer struct {
	newBackOff    func() backoff.BackOff
	sleep         func(ctx context.Context, d time.Duration) error
	now           func() time.Time
	logger        logging.Logger
	progress      func(Stats)
	progressEvery int
}

// Option configures a Streamer.
type Option func(*Streamer)

// WithBackOff sets the backpressure policy. newBackOff is called once per
// stream so stateful policies are not shared between streams.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(s *Streamer) {
		if newBackOff != nil {
			s.newBackOff = newBackOff
		}
	}
}

// WithSleep replaces the context aware sleep used between rejected chunks.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Streamer) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithClock sets the clock used for Stats timing.
func WithClock(now func() time.Time) Option {
	return func(s *Streamer) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(s *Streamer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProgress calls fn every n write attempts.
func WithProgress(n int, fn func(Stats)) Option {
	return func(s *Streamer) {
		if n > 0 {
			s.progressEvery = n
			s.progress = fn
		}
	}
}

// New creates a Streamer with a constant DefaultBackoff policy.
func New(opts ...Option) *Streamer {
	s := &Streamer{
		newBackOff: func() backoff.BackOff { return backoff.NewConstantBackOff(DefaultBackoff) },
		sleep:      sleepContext,
		now:        time.Now,
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stream writes chunkSize samples at a time from buf to ep, wrapping around
// the end of buf, until stop returns true or ctx is cancelled. Rejected
// chunks are not resent; the cursor moves on after every attempt.
//
// The chunk slice passed to ep is reused between writes.
func (s *Streamer) Stream(ctx context.Context, buf *waveform.Buffer, ep sdr.Writer, chunkSize int, stop StopCondition) (Stats, error) {
	if buf == nil || buf.Len() == 0 {
		return Stats{}, ErrEmptyBuffer
	}
	length := buf.Len()
	if chunkSize < 1 || chunkSize > length {
		return Stats{}, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidChunkSize, chunkSize, length)
	}
	if stop == nil {
		stop = Never()
	}

	b := s.newBackOff()
	b.Reset()
	chunk := make([]complex64, chunkSize)
	st := Stats{Started: s.now()}
	cursor := 0

	finish := func(err error) (Stats, error) {
		st.Cursor = cursor
		st.Elapsed = s.now().Sub(st.Started)
		s.logger.Debug("stream finished",
			logging.Field{Key: "subsystem", Value: "stream"},
			logging.Field{Key: "chunks", Value: st.Chunks},
			logging.Field{Key: "rejected", Value: st.Rejected},
			logging.Field{Key: "elapsed", Value: st.Elapsed},
			logging.Field{Key: "error", Value: err})
		return st, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		st.Cursor = cursor
		if stop(st) {
			return finish(nil)
		}

		Fill(chunk, buf, cursor)
		st.Iterations++
		accepted, err := ep.Write(ctx, chunk)
		if err != nil {
			return finish(fmt.Errorf("write chunk at cursor %d: %w", cursor, err))
		}
		cursor = (cursor + chunkSize) % length

		if accepted {
			st.Chunks++
			st.Samples += int64(chunkSize)
			b.Reset()
		} else {
			st.Rejected++
			d := b.NextBackOff()
			if d == backoff.Stop {
				// Exhausted policies restart; backpressure never ends a stream.
				b.Reset()
				d = b.NextBackOff()
				if d == backoff.Stop {
					d = 0
				}
			}
			if d > 0 {
				if err := s.sleep(ctx, d); err != nil {
					return finish(err)
				}
			}
		}

		if s.progress != nil && st.Iterations%s.progressEvery == 0 {
			st.Cursor = cursor
			st.Elapsed = s.now().Sub(st.Started)
			s.progress(st)
		}
	}
}

// Fill copies len(dst) samples of buf starting at cursor into dst, wrapping
// around the end of buf as often as needed.
func Fill(dst []complex64, buf *waveform.Buffer, cursor int) {
	length := buf.Len()
	filled := 0
	pos := cursor % length
	for filled < len(dst) {
		n := buf.ReadAt(dst[filled:], pos)
		filled += n
		pos = (pos + n) % length
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
