package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rjboer/sdrwave/internal/sdr"
	"github.com/rjboer/sdrwave/internal/spectrum"
	"github.com/rjboer/sdrwave/internal/stream"
	"github.com/rjboer/sdrwave/internal/sweep"
	"github.com/rjboer/sdrwave/internal/waveform"
)

// SDR converts the radio section into a backend configuration.
func (c Config) SDR() sdr.Config {
	r := c.Radio
	return sdr.Config{
		Backend:        strings.ToLower(r.Backend),
		SampleRate:     r.SampleRate,
		CenterHz:       r.CenterHz,
		Bandwidth:      r.Bandwidth,
		Gains:          r.Gains,
		Amplifier:      r.Amplifier,
		ToneOffset:     r.Mock.ToneOffset,
		ToneAmplitude:  r.Mock.ToneAmplitude,
		NoiseLevel:     r.Mock.NoiseLevel,
		Seed:           r.Mock.Seed,
		Address:        r.Address,
		Discover:       r.Discover,
		DiscoverTTL:    r.DiscoverTTL,
		Service:        r.Service,
		WriteTimeout:   r.WriteTimeout,
		ReadTimeout:    r.ReadTimeout,
		ConnectTimeout: r.ConnectTimeout,
		SSH: sdr.SSHConfig{
			Host:     r.SSH.Host,
			User:     r.SSH.User,
			Password: r.SSH.Password,
			KeyPath:  r.SSH.KeyPath,
			Port:     r.SSH.Port,
			Device:   r.SSH.Device,
			Timeout:  r.SSH.Timeout,
		},
	}
}

// Waveform builds the spec named by transmit.waveform. The spec is not
// validated here; the synthesizer does that.
func (c Config) Waveform() (waveform.Spec, error) {
	t := c.Transmit
	switch waveform.Kind(strings.ToLower(t.Waveform)) {
	case waveform.KindTone:
		return waveform.Tone{OffsetHz: t.Tone.OffsetHz, Samples: t.Tone.Samples, Amplitude: t.Tone.Amplitude}, nil
	case waveform.KindOFDM:
		return waveform.OFDM{
			FFTSize:           t.OFDM.FFTSize,
			NumSubcarriers:    t.OFDM.Subcarriers,
			Modulation:        waveform.Modulation(strings.ToLower(t.OFDM.Modulation)),
			CyclicPrefixRatio: t.OFDM.CyclicPrefix,
			SymbolsPerBuffer:  t.OFDM.Symbols,
			Amplitude:         t.OFDM.Amplitude,
		}, nil
	case waveform.KindNoise:
		return waveform.BandLimitedNoise{
			TotalSamples: t.Noise.Samples,
			BandwidthHz:  t.Noise.BandwidthHz,
			Amplitude:    t.Noise.Amplitude,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown waveform %q", ErrInvalid, t.Waveform)
	}
}

// BackOff returns the backpressure policy factory.
func (c Config) BackOff() (func() backoff.BackOff, error) {
	b := c.Transmit.Backoff
	f, err := stream.Policy(b.Policy, b.Interval, b.MaxInterval)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return f, nil
}

// SweepPlan builds a plan giving every frequency the same dwell.
func (c Config) SweepPlan() sweep.Plan {
	plan := sweep.Plan{Total: c.Sweep.Total}
	for _, f := range c.Sweep.Frequencies {
		plan.Dwells = append(plan.Dwells, sweep.Dwell{CenterHz: f, Dwell: c.Sweep.Dwell})
	}
	return plan
}

// CaptureWindow builds the scan window.
func (c Config) CaptureWindow() (spectrum.CaptureWindow, error) {
	return spectrum.NewCaptureWindow(c.Scan.FFTSize, spectrum.WindowKind(c.Scan.Window))
}

// RetryBudget returns the estimator retry delay and count. Counts below one
// fall back to spectrum.DefaultMaxRetries so a scan always gives up.
func (c Config) RetryBudget() (time.Duration, uint64) {
	if c.Scan.MaxRetries < 1 {
		return c.Scan.RetryDelay, spectrum.DefaultMaxRetries
	}
	return c.Scan.RetryDelay, uint64(c.Scan.MaxRetries)
}
