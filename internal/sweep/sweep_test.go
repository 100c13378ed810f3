package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rjboer/sdrwave/internal/sdr"
	"github.com/rjboer/sdrwave/internal/stream"
	"github.com/rjboer/sdrwave/internal/waveform"
)

// fakeClock advances by step on every write to the mock endpoint.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newHarness(step time.Duration) (*fakeClock, *sdr.Mock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	mock := sdr.NewMock(sdr.MockConfig{OnWrite: func([]complex64, bool) { clock.Advance(step) }})
	return clock, mock
}

func toneSynth(t *testing.T) SynthFunc {
	synth := waveform.New(1e6, 1)
	return func(float64) (*waveform.Buffer, error) {
		return synth.Synthesize(waveform.Tone{OffsetHz: 1e3, Samples: 256})
	}
}

func newScheduler(clock *fakeClock, opts ...Option) *Scheduler {
	streamer := stream.New(stream.WithClock(clock.Now), stream.WithSleep(func(context.Context, time.Duration) error { return nil }))
	return New(streamer, append([]Option{WithClock(clock.Now), WithChunkSize(64)}, opts...)...)
}

func TestRunCyclesDwellsUntilTotal(t *testing.T) {
	clock, mock := newHarness(10 * time.Millisecond)
	plan := Plan{
		Dwells: []Dwell{
			{CenterHz: 2.412e9, Dwell: 30 * time.Millisecond},
			{CenterHz: 2.437e9, Dwell: 30 * time.Millisecond},
			{CenterHz: 2.462e9, Dwell: 30 * time.Millisecond},
		},
		Total: 100 * time.Millisecond,
	}
	rep, err := newScheduler(clock).Run(context.Background(), plan, toneSynth(t), mock)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []float64{2.412e9, 2.437e9, 2.462e9, 2.412e9}
	tunes := mock.Tunes()
	if len(tunes) != len(want) {
		t.Fatalf("tunes %v want %v", tunes, want)
	}
	for i := range want {
		if tunes[i] != want[i] {
			t.Fatalf("tune %d = %v want %v", i, tunes[i], want[i])
		}
	}
	if rep.Elapsed != 100*time.Millisecond {
		t.Fatalf("elapsed %v want 100ms", rep.Elapsed)
	}
	if len(rep.Legs) != 4 || rep.Legs[3].Stats.Iterations != 1 {
		t.Fatalf("legs %+v", rep.Legs)
	}
	if rep.Retunes != 4 || rep.FailedRetunes != 0 {
		t.Fatalf("retunes %d failed %d", rep.Retunes, rep.FailedRetunes)
	}
}

func TestRunTotalShorterThanFirstDwell(t *testing.T) {
	clock, mock := newHarness(10 * time.Millisecond)
	plan := Plan{
		Dwells: []Dwell{{CenterHz: 915e6, Dwell: time.Second}, {CenterHz: 920e6, Dwell: time.Second}},
		Total:  45 * time.Millisecond,
	}
	rep, err := newScheduler(clock).Run(context.Background(), plan, toneSynth(t), mock)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(mock.Tunes()) != 1 {
		t.Fatalf("tunes %v", mock.Tunes())
	}
	// the deadline can overshoot by at most one write
	if rep.Elapsed < 45*time.Millisecond || rep.Elapsed > 55*time.Millisecond {
		t.Fatalf("elapsed %v", rep.Elapsed)
	}
}

func TestRunContinuesAfterFailedRetune(t *testing.T) {
	clock, mock := newHarness(10 * time.Millisecond)
	mock.FailTuneAt(2.437e9)
	plan := Plan{
		Dwells: []Dwell{
			{CenterHz: 2.412e9, Dwell: 20 * time.Millisecond},
			{CenterHz: 2.437e9, Dwell: 20 * time.Millisecond},
		},
		Total: 40 * time.Millisecond,
	}
	var legs []LegReport
	rep, err := newScheduler(clock, WithLegHook(func(l LegReport) { legs = append(legs, l) })).
		Run(context.Background(), plan, toneSynth(t), mock)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.FailedRetunes != 1 || len(legs) != 2 || legs[1].Tuned {
		t.Fatalf("report %+v legs %+v", rep, legs)
	}
	if legs[1].Stats.Chunks == 0 {
		t.Fatalf("leg after failed retune did not stream")
	}
}

func TestRunSynthErrorIsFatal(t *testing.T) {
	clock, mock := newHarness(time.Millisecond)
	boom := errors.New("synth failed")
	plan := Plan{Dwells: []Dwell{{CenterHz: 1e9, Dwell: time.Second}}, Total: time.Second}
	_, err := newScheduler(clock).Run(context.Background(), plan, func(float64) (*waveform.Buffer, error) {
		return nil, boom
	}, mock)
	if !errors.Is(err, boom) {
		t.Fatalf("expected synth error, got %v", err)
	}
	if writes, _, _ := mock.Counters(); writes != 0 {
		t.Fatalf("wrote %d chunks after synth failure", writes)
	}
}

func TestRunCancel(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	ctx, cancel := context.WithCancel(context.Background())
	writes := 0
	mock := sdr.NewMock(sdr.MockConfig{OnWrite: func([]complex64, bool) {
		clock.Advance(time.Millisecond)
		writes++
		if writes == 5 {
			cancel()
		}
	}})
	plan := Plan{Dwells: []Dwell{{CenterHz: 1e9, Dwell: time.Hour}}, Total: time.Hour}
	rep, err := newScheduler(clock).Run(ctx, plan, toneSynth(t), mock)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(rep.Legs) != 1 || rep.Legs[0].Stats.Iterations != 5 {
		t.Fatalf("partial report %+v", rep)
	}
}

func TestPlanValidate(t *testing.T) {
	cases := map[string]Plan{
		"empty":    {Total: time.Second},
		"no total": {Dwells: []Dwell{{CenterHz: 1e9, Dwell: time.Second}}},
		"negative": {Dwells: []Dwell{{CenterHz: 1e9, Dwell: -time.Second}}, Total: time.Second},
		"all zero": {Dwells: []Dwell{{CenterHz: 1e9}}, Total: time.Second},
		"bad freq": {Dwells: []Dwell{{CenterHz: 0, Dwell: time.Second}}, Total: time.Second},
	}
	for name, p := range cases {
		if err := p.Validate(); !errors.Is(err, ErrInvalidPlan) {
			t.Fatalf("%s: expected ErrInvalidPlan, got %v", name, err)
		}
	}
	ok := Plan{Dwells: []Dwell{{CenterHz: 1e9}, {CenterHz: 2e9, Dwell: time.Second}}, Total: time.Second}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid plan rejected: %v", err)
	}
	if _, err := New(nil).Run(context.Background(), ok, nil, sdr.NewMock(sdr.MockConfig{})); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("nil synth accepted: %v", err)
	}
}
