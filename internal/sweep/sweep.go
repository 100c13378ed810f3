// Package sweep hops a transmit endpoint across a list of frequencies,
// streaming a freshly synthesized buffer on each one for its dwell time
// while keeping the whole sweep inside a total time budget.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rjboer/sdrwave/internal/logging"
	"github.com/rjboer/sdrwave/internal/sdr"
	"github.com/rjboer/sdrwave/internal/stream"
	"github.com/rjboer/sdrwave/internal/waveform"
)

// DefaultChunkSize is the number of samples per write when none is set.
const DefaultChunkSize = 16384

var ErrInvalidPlan = errors.New("invalid sweep plan")

// Dwell is one stop of a sweep.
type Dwell struct {
	CenterHz float64
	Dwell    time.Duration
}

// Plan lists dwells visited in order, cycling until Total has elapsed.
// Total is a hard ceiling independent of the sum of dwells.
type Plan struct {
	Dwells []Dwell
	Total  time.Duration
}

// Validate checks the plan can make progress.
func (p Plan) Validate() error {
	if len(p.Dwells) == 0 {
		return fmt.Errorf("%w: no dwells", ErrInvalidPlan)
	}
	if p.Total <= 0 {
		return fmt.Errorf("%w: total duration must be positive, got %s", ErrInvalidPlan, p.Total)
	}
	var moving bool
	for i, d := range p.Dwells {
		if d.Dwell < 0 {
			return fmt.Errorf("%w: dwell %d has negative duration %s", ErrInvalidPlan, i, d.Dwell)
		}
		if d.CenterHz <= 0 {
			return fmt.Errorf("%w: dwell %d has non-positive frequency %g", ErrInvalidPlan, i, d.CenterHz)
		}
		moving = moving || d.Dwell > 0
	}
	if !moving {
		return fmt.Errorf("%w: every dwell is zero length", ErrInvalidPlan)
	}
	return nil
}

// SynthFunc produces the buffer transmitted while dwelling at centerHz.
type SynthFunc func(centerHz float64) (*waveform.Buffer, error)

// LegReport describes one visited dwell.
type LegReport struct {
	Index    int
	CenterHz float64
	Tuned    bool
	Started  time.Time
	Stats    stream.Stats
}

// Report summarizes a sweep.
type Report struct {
	Legs          []LegReport
	Retunes       int
	FailedRetunes int
	Elapsed       time.Duration
}

// Scheduler runs sweeps on top of a Streamer.
type Scheduler struct {
	streamer  *stream.Streamer
	chunkSize int
	now       func() time.Time
	logger    logging.Logger
	onLeg     func(LegReport)
}

type Option func(*Scheduler)

// WithClock sets the clock deadlines are measured against.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithChunkSize sets the samples per write. Zero picks
// min(DefaultChunkSize, buffer length) per leg.
func WithChunkSize(n int) Option {
	return func(s *Scheduler) { s.chunkSize = n }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLegHook calls fn after every leg, including the one that ends the sweep.
func WithLegHook(fn func(LegReport)) Option {
	return func(s *Scheduler) { s.onLeg = fn }
}

// New returns a Scheduler driving streamer, or a default Streamer when nil.
func New(streamer *stream.Streamer, opts ...Option) *Scheduler {
	if streamer == nil {
		streamer = stream.New()
	}
	s := &Scheduler{
		streamer: streamer,
		now:      time.Now,
		logger:   logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes plan against ep. Each leg re-tunes ep (best effort), asks
// synth for the leg buffer and streams it until the earlier of the dwell
// deadline and the total deadline. No leg starts once the total deadline has
// passed. Cancelling ctx ends the sweep with ctx.Err() and the partial report.
func (s *Scheduler) Run(ctx context.Context, plan Plan, synth SynthFunc, ep sdr.Endpoint) (Report, error) {
	if err := plan.Validate(); err != nil {
		return Report{}, err
	}
	if synth == nil {
		return Report{}, fmt.Errorf("%w: no synthesizer", ErrInvalidPlan)
	}

	start := s.now()
	total := start.Add(plan.Total)
	totalStop := stream.Deadline(total, s.now)
	var rep Report

	finish := func(err error) (Report, error) {
		rep.Elapsed = s.now().Sub(start)
		return rep, err
	}

	for leg := 0; ; leg++ {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		if !s.now().Before(total) {
			return finish(nil)
		}

		d := plan.Dwells[leg%len(plan.Dwells)]
		tuned := ep.SetFrequency(d.CenterHz)
		rep.Retunes++
		if !tuned {
			rep.FailedRetunes++
			s.logger.Warn("retune failed, continuing on previous frequency",
				logging.Field{Key: "subsystem", Value: "sweep"},
				logging.Field{Key: "leg", Value: leg},
				logging.Field{Key: "center_hz", Value: d.CenterHz})
		}

		buf, err := synth(d.CenterHz)
		if err != nil {
			return finish(fmt.Errorf("synthesize leg %d at %.0f Hz: %w", leg, d.CenterHz, err))
		}

		chunk := s.chunkSize
		if chunk <= 0 {
			chunk = min(DefaultChunkSize, buf.Len())
		}

		legStart := s.now()
		stop := stream.Earliest(stream.Deadline(legStart.Add(d.Dwell), s.now), totalStop)
		st, err := s.streamer.Stream(ctx, buf, ep, chunk, stop)

		lr := LegReport{Index: leg, CenterHz: d.CenterHz, Tuned: tuned, Started: legStart, Stats: st}
		rep.Legs = append(rep.Legs, lr)
		s.logger.Debug("leg complete",
			logging.Field{Key: "subsystem", Value: "sweep"},
			logging.Field{Key: "leg", Value: leg},
			logging.Field{Key: "center_hz", Value: d.CenterHz},
			logging.Field{Key: "chunks", Value: st.Chunks},
			logging.Field{Key: "rejected", Value: st.Rejected})
		if s.onLeg != nil {
			s.onLeg(lr)
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return finish(err)
			}
			return finish(fmt.Errorf("stream leg %d: %w", leg, err))
		}
	}
}
