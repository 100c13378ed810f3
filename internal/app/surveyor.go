package app

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rjboer/sdrwave/internal/config"
	"github.com/rjboer/sdrwave/internal/logging"
	"github.com/rjboer/sdrwave/internal/sdr"
	"github.com/rjboer/sdrwave/internal/spectrum"
	"github.com/rjboer/sdrwave/internal/telemetry"
)

// Surveyor captures power spectra and channel power tables.
type Surveyor struct {
	session
	sink  SpectrumSink
	sleep func(ctx context.Context, d time.Duration) error
}

// SurveyorOption customizes a Surveyor.
type SurveyorOption func(*Surveyor)

// WithSpectrumSink publishes every estimated frame to sink.
func WithSpectrumSink(sink SpectrumSink) SurveyorOption {
	return func(s *Surveyor) { s.sink = sink }
}

// WithRetrySleep replaces the pause between discarded reads.
func WithRetrySleep(sleep func(ctx context.Context, d time.Duration) error) SurveyorOption {
	return func(s *Surveyor) { s.sleep = sleep }
}

// NewSurveyor prepares a surveyor for dev. The device stays owned by the
// caller.
func NewSurveyor(dev sdr.Device, reporter telemetry.Reporter, logger logging.Logger, cfg config.Config, opts ...SurveyorOption) *Surveyor {
	s := &Surveyor{session: newSession(dev, reporter, logger, cfg, "survey")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Surveyor) estimator() *spectrum.Estimator {
	delay, retries := s.cfg.RetryBudget()
	opts := []spectrum.Option{
		spectrum.WithRetry(delay, retries),
		spectrum.WithLogger(s.logger),
	}
	if s.sleep != nil {
		opts = append(opts, spectrum.WithSleep(s.sleep))
	}
	return spectrum.NewEstimator(opts...)
}

func (s *Surveyor) publish(source string, f *spectrum.Frame) {
	peakHz, peakDB := f.Peak()
	s.report(telemetry.Event{
		Kind:         telemetry.KindPSD,
		Message:      source,
		CenterHz:     f.CenterHz,
		PeakHz:       peakHz,
		PeakDB:       peakDB,
		NoiseFloorDB: f.NoiseFloor(),
		Frames:       f.Frames,
	})
	if s.sink != nil {
		s.sink.UpdateSpectrum(source, f.CenterHz, f.Frequencies, f.PowerDB)
	}
}

// PSD captures one averaged spectrum at radio.center_hz.
func (s *Surveyor) PSD(ctx context.Context) (*spectrum.Frame, error) {
	win, err := s.cfg.CaptureWindow()
	if err != nil {
		return nil, err
	}
	est := s.estimator()

	s.configure()
	var frame *spectrum.Frame
	err = sdr.WithStream(ctx, s.dev, sdr.RX, s.logger, func(ctx context.Context, ep sdr.Endpoint) error {
		var eerr error
		frame, eerr = est.Estimate(ctx, ep, win, s.cfg.Radio.CenterHz, s.cfg.Radio.SampleRate, s.cfg.Scan.Average)
		return eerr
	})
	if err != nil {
		return nil, err
	}

	peakHz, peakDB := frame.Peak()
	s.logger.Info("psd captured",
		logging.Field{Key: "bins", Value: frame.Len()},
		logging.Field{Key: "rbw", Value: humanize.SIWithDigits(frame.BinWidth(), 2, "Hz")},
		logging.Field{Key: "peak", Value: humanize.SIWithDigits(peakHz, 4, "Hz")},
		logging.Field{Key: "peak_db", Value: peakDB},
		logging.Field{Key: "discarded", Value: frame.Discarded})
	s.publish("psd", frame)
	return frame, nil
}

// Scan measures channel power across cmap, tuning to each channel center in
// ascending channel order.
func (s *Surveyor) Scan(ctx context.Context, cmap spectrum.ChannelMap) ([]spectrum.ChannelResult, error) {
	win, err := s.cfg.CaptureWindow()
	if err != nil {
		return nil, err
	}
	scanner := spectrum.NewScanner(s.estimator(),
		spectrum.WithWindow(win),
		spectrum.WithSampleRate(s.cfg.Radio.SampleRate),
		spectrum.WithAverage(s.cfg.Scan.Average),
		spectrum.WithWarmup(s.cfg.Scan.Warmup),
		spectrum.WithScanLogger(s.logger),
		spectrum.WithChannelHook(func(r spectrum.ChannelResult, f *spectrum.Frame) {
			s.report(telemetry.Event{
				Kind:     telemetry.KindChannel,
				Channel:  r.Channel,
				CenterHz: r.CenterHz,
				PowerDB:  r.PowerDB,
				Frames:   f.Frames,
			})
			if s.sink != nil {
				s.sink.UpdateSpectrum("scan", f.CenterHz, f.Frequencies, f.PowerDB)
			}
		}),
	)

	s.configure()
	var powers map[int]float64
	err = sdr.WithStream(ctx, s.dev, sdr.RX, s.logger, func(ctx context.Context, ep sdr.Endpoint) error {
		var serr error
		powers, serr = scanner.Scan(ctx, ep, cmap, s.cfg.Scan.ChannelWidth)
		return serr
	})
	results := spectrum.Results(cmap, powers)
	s.logger.Info("scan finished",
		logging.Field{Key: "channels", Value: len(results)},
		logging.Field{Key: "error", Value: err})
	return results, err
}
