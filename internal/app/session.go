// Package app wires configuration, radio backends and the signal chain into
// transmit and survey sessions.
package app

import (
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/rjboer/sdrwave/internal/config"
	"github.com/rjboer/sdrwave/internal/logging"
	"github.com/rjboer/sdrwave/internal/sdr"
	"github.com/rjboer/sdrwave/internal/telemetry"
)

// SpectrumSink receives full PSD frames; telemetry.Hub implements it.
type SpectrumSink interface {
	UpdateSpectrum(source string, centerHz float64, freqs, powerDB []float64)
}

// session holds what every app operation shares: the device, its
// configuration, a telemetry sink and a logger tagged with a session id.
type session struct {
	dev      sdr.Device
	cfg      config.Config
	reporter telemetry.Reporter
	logger   logging.Logger
	id       string
}

func newSession(dev sdr.Device, reporter telemetry.Reporter, logger logging.Logger, cfg config.Config, kind string) session {
	if reporter == nil {
		reporter = telemetry.Discard{}
	}
	id := uuid.NewString()
	return session{
		dev:      dev,
		cfg:      cfg,
		reporter: reporter,
		logger:   logging.Subsystem(logger, kind).With(logging.Field{Key: "session", Value: id}),
		id:       id,
	}
}

// ID returns the session identifier attached to logs and telemetry.
func (s *session) ID() string { return s.id }

// configure applies the radio section best effort and logs what did not stick.
func (s *session) configure() sdr.Settings {
	rc := s.cfg.SDR()
	settings := sdr.Configure(s.dev, rc)
	fields := []logging.Field{
		{Key: "sample_rate", Value: humanize.SIWithDigits(rc.SampleRate, 2, "S/s")},
		{Key: "center", Value: humanize.SIWithDigits(rc.CenterHz, 3, "Hz")},
		{Key: "sample_rate_ok", Value: settings.SampleRate},
		{Key: "frequency_ok", Value: settings.Frequency},
		{Key: "bandwidth_ok", Value: settings.Bandwidth},
		{Key: "amplifier_ok", Value: settings.Amplifier},
	}
	for stage, ok := range settings.Gains {
		fields = append(fields, logging.Field{Key: "gain_" + stage + "_ok", Value: ok})
	}
	s.logger.Info("radio configured", fields...)
	return settings
}

func (s *session) report(ev telemetry.Event) {
	ev.Session = s.id
	s.reporter.Report(ev)
}
