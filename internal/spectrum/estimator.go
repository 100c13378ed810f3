// Package spectrum estimates averaged power spectra from captured frames and
// integrates them over channel bands.
package spectrum

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rjboer/sdrwave/internal/dsp"
	"github.com/rjboer/sdrwave/internal/logging"
	"github.com/rjboer/sdrwave/internal/sdr"
)

// Epsilon keeps log10 finite for empty bins.
const Epsilon = 1e-12

const (
	DefaultRetryDelay = time.Millisecond
	DefaultMaxRetries = 64
)

var (
	// ErrInsufficientFrames is returned when the endpoint keeps failing to
	// deliver full frames beyond the retry budget.
	ErrInsufficientFrames = errors.New("insufficient frames")
	ErrInvalidRequest     = errors.New("invalid estimate request")
)

// Estimator averages windowed periodograms of captured frames.
type Estimator struct {
	retryDelay time.Duration
	maxRetries uint64
	plans      *dsp.PlanCache
	sleep      func(ctx context.Context, d time.Duration) error
	logger     logging.Logger
}

type Option func(*Estimator)

// WithRetry sets the pause between failed reads and how many consecutive
// failures are tolerated before giving up. Zero fails on the first
// discarded read.
func WithRetry(delay time.Duration, maxRetries uint64) Option {
	return func(e *Estimator) {
		e.retryDelay = delay
		e.maxRetries = maxRetries
	}
}

// WithPlanCache shares FFT plans with other components.
func WithPlanCache(c *dsp.PlanCache) Option {
	return func(e *Estimator) {
		if c != nil {
			e.plans = c
		}
	}
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Estimator) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(e *Estimator) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEstimator returns an Estimator with the default retry budget.
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{
		retryDelay: DefaultRetryDelay,
		maxRetries: DefaultMaxRetries,
		plans:      dsp.NewPlanCache(),
		sleep:      sleepContext,
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate captures avgFrames full frames of win.Size samples from ep and
// returns their averaged power spectrum in dB, DC centered, with bin
// frequencies offset by centerHz. Short or failed reads are discarded and
// retried; the retry budget resets after every accepted frame.
func (e *Estimator) Estimate(ctx context.Context, ep sdr.Reader, win CaptureWindow, centerHz, sampleRate float64, avgFrames int) (*Frame, error) {
	switch {
	case win.Size < 1 || len(win.Weights) != win.Size || win.Energy <= 0:
		return nil, fmt.Errorf("%w: malformed capture window", ErrInvalidRequest)
	case sampleRate <= 0:
		return nil, fmt.Errorf("%w: sample rate %g", ErrInvalidRequest, sampleRate)
	case avgFrames < 1:
		return nil, fmt.Errorf("%w: average of %d frames", ErrInvalidRequest, avgFrames)
	}

	plan := e.plans.Get(win.Size)
	// WithMaxRetries treats zero as unlimited; zero here means no retries.
	var retry backoff.BackOff = &backoff.StopBackOff{}
	if e.maxRetries > 0 {
		retry = backoff.WithMaxRetries(backoff.NewConstantBackOff(e.retryDelay), e.maxRetries)
	}
	retry.Reset()

	acc := make([]float64, win.Size)
	accepted, discarded := 0, 0
	for accepted < avgFrames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		samples, err := ep.Read(ctx, win.Size)
		if err == nil && len(samples) >= win.Size {
			spec := plan.Forward(dsp.ApplyWindow(samples[:win.Size], win.Weights))
			for i, v := range spec {
				acc[i] += (real(v)*real(v) + imag(v)*imag(v)) / win.Energy
			}
			accepted++
			retry.Reset()
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			e.logger.Debug("capture failed",
				logging.Field{Key: "subsystem", Value: "spectrum"},
				logging.Field{Key: "error", Value: err})
		}

		discarded++
		d := retry.NextBackOff()
		if d == backoff.Stop {
			return nil, fmt.Errorf("%w: %d of %d frames at %.0f Hz after %d discarded reads",
				ErrInsufficientFrames, accepted, avgFrames, centerHz, discarded)
		}
		if d > 0 {
			if err := e.sleep(ctx, d); err != nil {
				return nil, err
			}
		}
	}

	power := make([]float64, win.Size)
	for i, p := range acc {
		power[i] = dsp.PowerDB(p/float64(accepted), Epsilon)
	}
	freqs := dsp.FFTShift(dsp.FFTFreq(win.Size, sampleRate))
	for i := range freqs {
		freqs[i] += centerHz
	}
	return &Frame{
		Frequencies: freqs,
		PowerDB:     dsp.FFTShift(power),
		CenterHz:    centerHz,
		SampleRate:  sampleRate,
		Frames:      accepted,
		Discarded:   discarded,
	}, nil
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
