package sdr

import (
	"context"
	"fmt"
	"time"

	"github.com/rjboer/sdrwave/internal/logging"
)

// Direction selects the transmit or receive path of a device.
type Direction int

const (
	RX Direction = iota
	TX
)

func (d Direction) String() string {
	switch d {
	case RX:
		return "rx"
	case TX:
		return "tx"
	default:
		return "unknown"
	}
}

// Tuner is the best-effort configuration surface of a radio. Every call
// reports whether the setting was applied; callers decide whether a false
// return matters. Implementations must not block indefinitely.
type Tuner interface {
	SetFrequency(hz float64) bool
	SetSampleRate(hz float64) bool
	SetBandwidth(hz float64) bool
	SetGain(stage string, db float64) bool
	SetAmplifier(enabled bool) bool
}

// Writer pushes samples to the transmit path. accepted is false when the
// device applied backpressure and dropped the chunk; err is reserved for
// failures that end the session. Implementations must not retain chunk.
type Writer interface {
	Write(ctx context.Context, chunk []complex64) (accepted bool, err error)
}

// Reader captures up to count samples. Returning fewer than count samples is
// a normal outcome.
type Reader interface {
	Read(ctx context.Context, count int) ([]complex64, error)
}

// Endpoint is the capability the streaming and estimation code needs.
type Endpoint interface {
	Tuner
	Writer
	Reader
}

// Device is an opened radio that owns stream resources.
type Device interface {
	Endpoint
	Activate(dir Direction) error
	Deactivate(dir Direction) error
	Close() error
}

// Config carries parameters required to open and prepare a backend.
type Config struct {
	Backend    string
	SampleRate float64
	CenterHz   float64
	Bandwidth  float64
	Gains      map[string]float64
	Amplifier  bool

	// Mock backend.
	ToneOffset    float64
	ToneAmplitude float64
	NoiseLevel    float64
	Seed          int64

	// TCP backend.
	Address        string
	Discover       bool
	DiscoverTTL    time.Duration
	Service        string
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	ConnectTimeout time.Duration

	// Optional SSH sysfs tuner used by the TCP backend.
	SSH SSHConfig
}

// Settings is the outcome of Configure: which best-effort settings stuck.
type Settings struct {
	SampleRate bool
	Frequency  bool
	Bandwidth  bool
	Gains      map[string]bool
	Amplifier  bool
}

// Configure applies the tuning parts of cfg to t. Sample rate and frequency
// are applied first; bandwidth, gains and the amplifier toggle are optional
// and only reported. A zero bandwidth defaults to the sample rate.
func Configure(t Tuner, cfg Config) Settings {
	s := Settings{Gains: make(map[string]bool, len(cfg.Gains))}
	if cfg.SampleRate > 0 {
		s.SampleRate = t.SetSampleRate(cfg.SampleRate)
	}
	if cfg.CenterHz > 0 {
		s.Frequency = t.SetFrequency(cfg.CenterHz)
	}
	bw := cfg.Bandwidth
	if bw == 0 {
		bw = cfg.SampleRate
	}
	if bw > 0 {
		s.Bandwidth = t.SetBandwidth(bw)
	}
	for stage, db := range cfg.Gains {
		s.Gains[stage] = t.SetGain(stage, db)
	}
	s.Amplifier = t.SetAmplifier(cfg.Amplifier)
	return s
}

// Open constructs the backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config, logger logging.Logger) (Device, error) {
	switch cfg.Backend {
	case "", "mock":
		return NewMock(MockConfig{
			SampleRate:    cfg.SampleRate,
			ToneOffset:    cfg.ToneOffset,
			ToneAmplitude: cfg.ToneAmplitude,
			NoiseLevel:    cfg.NoiseLevel,
			Seed:          cfg.Seed,
		}), nil
	case "tcp":
		return DialTCP(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
