package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rjboer/sdrwave/internal/config"
	"github.com/rjboer/sdrwave/internal/logging"
	"github.com/rjboer/sdrwave/internal/sdr"
	"github.com/rjboer/sdrwave/internal/stream"
	"github.com/rjboer/sdrwave/internal/sweep"
	"github.com/rjboer/sdrwave/internal/telemetry"
	"github.com/rjboer/sdrwave/internal/waveform"
)

// progressEvery is how many write attempts pass between stream telemetry events.
const progressEvery = 256

// Transmitter streams synthesized waveforms on one frequency or across a sweep.
type Transmitter struct {
	session
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// TransmitterOption customizes a Transmitter, mostly for tests.
type TransmitterOption func(*Transmitter)

// WithClock replaces the wall clock used for deadlines.
func WithClock(now func() time.Time) TransmitterOption {
	return func(t *Transmitter) {
		if now != nil {
			t.now = now
		}
	}
}

// WithBackoffSleep replaces the pause taken after a rejected chunk.
func WithBackoffSleep(sleep func(ctx context.Context, d time.Duration) error) TransmitterOption {
	return func(t *Transmitter) { t.sleep = sleep }
}

// NewTransmitter prepares a transmitter for dev. The device stays owned by
// the caller.
func NewTransmitter(dev sdr.Device, reporter telemetry.Reporter, logger logging.Logger, cfg config.Config, opts ...TransmitterOption) *Transmitter {
	t := &Transmitter{session: newSession(dev, reporter, logger, cfg, "transmit"), now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// synthesize builds the configured waveform. It runs before any hardware
// call so an invalid spec never touches the radio.
func (t *Transmitter) synthesize() (*waveform.Buffer, error) {
	spec, err := t.cfg.Waveform()
	if err != nil {
		return nil, err
	}
	synth := waveform.New(t.cfg.Radio.SampleRate, t.cfg.Transmit.Seed)
	buf, err := synth.Synthesize(spec)
	if err != nil {
		return nil, fmt.Errorf("synthesize %s: %w", spec.Kind(), err)
	}
	t.logger.Info("waveform ready",
		logging.Field{Key: "waveform", Value: waveform.Describe(spec)},
		logging.Field{Key: "samples", Value: humanize.Comma(int64(buf.Len()))},
		logging.Field{Key: "occupied", Value: humanize.SIWithDigits(waveform.OccupiedBandwidth(spec, t.cfg.Radio.SampleRate), 2, "Hz")},
		logging.Field{Key: "peak", Value: buf.Peak()})
	return buf, nil
}

func (t *Transmitter) streamer() (*stream.Streamer, error) {
	newBackOff, err := t.cfg.BackOff()
	if err != nil {
		return nil, err
	}
	opts := []stream.Option{
		stream.WithBackOff(newBackOff),
		stream.WithClock(t.now),
		stream.WithLogger(t.logger),
		stream.WithProgress(progressEvery, func(st stream.Stats) {
			t.report(telemetry.Event{
				Kind:     telemetry.KindStream,
				Chunks:   st.Chunks,
				Rejected: st.Rejected,
				Samples:  st.Samples,
			})
		}),
	}
	if t.sleep != nil {
		opts = append(opts, stream.WithSleep(t.sleep))
	}
	return stream.New(opts...), nil
}

// Transmit streams the configured waveform at radio.center_hz for
// transmit.duration, or until ctx is cancelled when the duration is zero.
func (t *Transmitter) Transmit(ctx context.Context) (stream.Stats, error) {
	buf, err := t.synthesize()
	if err != nil {
		return stream.Stats{}, err
	}
	streamer, err := t.streamer()
	if err != nil {
		return stream.Stats{}, err
	}

	t.configure()
	stop := stream.Never()
	if d := t.cfg.Transmit.Duration; d > 0 {
		stop = stream.Deadline(t.now().Add(d), t.now)
	}

	t.report(telemetry.Event{Kind: telemetry.KindSession, Message: "transmit started", CenterHz: t.cfg.Radio.CenterHz})
	var st stream.Stats
	err = sdr.WithStream(ctx, t.dev, sdr.TX, t.logger, func(ctx context.Context, ep sdr.Endpoint) error {
		var serr error
		st, serr = streamer.Stream(ctx, buf, ep, t.cfg.Transmit.ChunkSize, stop)
		return serr
	})
	t.report(telemetry.Event{
		Kind:     telemetry.KindSession,
		Message:  "transmit finished",
		CenterHz: t.cfg.Radio.CenterHz,
		Chunks:   st.Chunks,
		Rejected: st.Rejected,
		Samples:  st.Samples,
	})
	t.logger.Info("transmit finished",
		logging.Field{Key: "chunks", Value: humanize.Comma(int64(st.Chunks))},
		logging.Field{Key: "rejected", Value: st.Rejected},
		logging.Field{Key: "elapsed", Value: st.Elapsed},
		logging.Field{Key: "error", Value: err})
	return st, err
}

// Sweep hops across sweep.frequencies. The waveform is synthesized once and
// replayed on every leg.
func (t *Transmitter) Sweep(ctx context.Context) (sweep.Report, error) {
	plan := t.cfg.SweepPlan()
	if err := plan.Validate(); err != nil {
		return sweep.Report{}, err
	}
	buf, err := t.synthesize()
	if err != nil {
		return sweep.Report{}, err
	}
	streamer, err := t.streamer()
	if err != nil {
		return sweep.Report{}, err
	}

	t.configure()
	synth := func(float64) (*waveform.Buffer, error) { return buf, nil }

	sched := sweep.New(streamer,
		sweep.WithClock(t.now),
		sweep.WithChunkSize(t.cfg.Transmit.ChunkSize),
		sweep.WithLogger(t.logger),
		sweep.WithLegHook(func(l sweep.LegReport) {
			tuned := l.Tuned
			t.report(telemetry.Event{
				Kind:     telemetry.KindLeg,
				CenterHz: l.CenterHz,
				Leg:      l.Index,
				Chunks:   l.Stats.Chunks,
				Rejected: l.Stats.Rejected,
				Samples:  l.Stats.Samples,
				Tuned:    &tuned,
			})
		}),
	)

	t.report(telemetry.Event{Kind: telemetry.KindSession, Message: "sweep started"})
	var rep sweep.Report
	err = sdr.WithStream(ctx, t.dev, sdr.TX, t.logger, func(ctx context.Context, ep sdr.Endpoint) error {
		var serr error
		rep, serr = sched.Run(ctx, plan, synth, ep)
		return serr
	})
	t.report(telemetry.Event{Kind: telemetry.KindSession, Message: "sweep finished", Leg: len(rep.Legs)})
	t.logger.Info("sweep finished",
		logging.Field{Key: "legs", Value: len(rep.Legs)},
		logging.Field{Key: "failed_retunes", Value: rep.FailedRetunes},
		logging.Field{Key: "elapsed", Value: rep.Elapsed},
		logging.Field{Key: "error", Value: err})
	return rep, err
}
