package telemetry

import (
	"github.com/dustin/go-humanize"

	"github.com/rjboer/sdrwave/internal/logging"
)

// StdoutReporter writes events through a logger.
type StdoutReporter struct {
	logger logging.Logger
}

// NewStdoutReporter builds a stdout reporter with the provided logger.
func NewStdoutReporter(logger logging.Logger) StdoutReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return StdoutReporter{logger: logger}
}

func (r StdoutReporter) Report(ev Event) {
	fields := []logging.Field{
		{Key: "subsystem", Value: "telemetry"},
		{Key: "kind", Value: ev.Kind},
	}
	if ev.Session != "" {
		fields = append(fields, logging.Field{Key: "session", Value: ev.Session})
	}
	if ev.CenterHz != 0 {
		fields = append(fields, logging.Field{Key: "center", Value: humanize.SIWithDigits(ev.CenterHz, 3, "Hz")})
	}

	switch ev.Kind {
	case KindStream, KindLeg:
		fields = append(fields,
			logging.Field{Key: "chunks", Value: humanize.Comma(int64(ev.Chunks))},
			logging.Field{Key: "rejected", Value: ev.Rejected},
			logging.Field{Key: "samples", Value: humanize.Comma(ev.Samples)},
		)
		if ev.Tuned != nil {
			fields = append(fields, logging.Field{Key: "tuned", Value: *ev.Tuned})
		}
	case KindPSD:
		fields = append(fields,
			logging.Field{Key: "peak", Value: humanize.SIWithDigits(ev.PeakHz, 6, "Hz")},
			logging.Field{Key: "peak_db", Value: ev.PeakDB},
			logging.Field{Key: "noise_floor_db", Value: ev.NoiseFloorDB},
			logging.Field{Key: "frames", Value: ev.Frames},
		)
	case KindChannel:
		fields = append(fields,
			logging.Field{Key: "channel", Value: ev.Channel},
			logging.Field{Key: "power_db", Value: ev.PowerDB},
		)
	}

	msg := ev.Message
	if msg == "" {
		msg = "telemetry " + string(ev.Kind)
	}
	r.logger.Info(msg, fields...)
}
