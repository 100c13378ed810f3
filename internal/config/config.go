// Package config loads sdrwave settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rjboer/sdrwave/internal/logging"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete application configuration.
type Config struct {
	Radio     RadioConfig     `yaml:"radio"`
	Transmit  TransmitConfig  `yaml:"transmit"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Scan      ScanConfig      `yaml:"scan"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// RadioConfig selects and tunes the backend.
type RadioConfig struct {
	Backend        string             `yaml:"backend"`
	Address        string             `yaml:"address"`
	Discover       bool               `yaml:"discover"`
	Service        string             `yaml:"service"`
	DiscoverTTL    time.Duration      `yaml:"discover_ttl"`
	SampleRate     float64            `yaml:"sample_rate"`
	CenterHz       float64            `yaml:"center_hz"`
	Bandwidth      float64            `yaml:"bandwidth"`
	Gains          map[string]float64 `yaml:"gains"`
	Amplifier      bool               `yaml:"amplifier"`
	WriteTimeout   time.Duration      `yaml:"write_timeout"`
	ReadTimeout    time.Duration      `yaml:"read_timeout"`
	ConnectTimeout time.Duration      `yaml:"connect_timeout"`
	SSH            SSHConfig          `yaml:"ssh"`
	Mock           MockConfig         `yaml:"mock"`
}

// SSHConfig reaches the radio host for sysfs tuning.
type SSHConfig struct {
	Host     string        `yaml:"host"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	KeyPath  string        `yaml:"key_path"`
	Port     int           `yaml:"port"`
	Device   string        `yaml:"device"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MockConfig shapes the in-process backend.
type MockConfig struct {
	ToneOffset    float64 `yaml:"tone_offset"`
	ToneAmplitude float64 `yaml:"tone_amplitude"`
	NoiseLevel    float64 `yaml:"noise_level"`
	Seed          int64   `yaml:"seed"`
}

// TransmitConfig describes the waveform and how it is streamed.
type TransmitConfig struct {
	Waveform  string        `yaml:"waveform"`
	Duration  time.Duration `yaml:"duration"`
	ChunkSize int           `yaml:"chunk_size"`
	Seed      int64         `yaml:"seed"`
	Backoff   BackoffConfig `yaml:"backoff"`
	Tone      ToneConfig    `yaml:"tone"`
	OFDM      OFDMConfig    `yaml:"ofdm"`
	Noise     NoiseConfig   `yaml:"noise"`
}

// BackoffConfig is the backpressure policy.
type BackoffConfig struct {
	Policy      string        `yaml:"policy"`
	Interval    time.Duration `yaml:"interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
}

type ToneConfig struct {
	OffsetHz  float64 `yaml:"offset_hz"`
	Samples   int     `yaml:"samples"`
	Amplitude float64 `yaml:"amplitude"`
}

type OFDMConfig struct {
	FFTSize      int     `yaml:"fft_size"`
	Subcarriers  int     `yaml:"subcarriers"`
	Modulation   string  `yaml:"modulation"`
	CyclicPrefix float64 `yaml:"cyclic_prefix"`
	Symbols      int     `yaml:"symbols"`
	Amplitude    float64 `yaml:"amplitude"`
}

type NoiseConfig struct {
	Samples     int     `yaml:"samples"`
	BandwidthHz float64 `yaml:"bandwidth_hz"`
	Amplitude   float64 `yaml:"amplitude"`
}

// SweepConfig lists the frequencies a sweep hops through.
type SweepConfig struct {
	Frequencies []float64     `yaml:"frequencies"`
	Dwell       time.Duration `yaml:"dwell"`
	Total       time.Duration `yaml:"total"`
}

// ScanConfig controls PSD capture and channel scans.
type ScanConfig struct {
	FFTSize      int           `yaml:"fft_size"`
	Average      int           `yaml:"average"`
	Window       string        `yaml:"window"`
	ChannelWidth float64       `yaml:"channel_width"`
	Warmup       bool          `yaml:"warmup"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	MaxRetries   int           `yaml:"max_retries"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig enables the HTTP telemetry server when Addr is set.
type TelemetryConfig struct {
	Addr    string `yaml:"addr"`
	History int    `yaml:"history"`
}

// Default returns the configuration used when no file is present. Radio
// values follow a HackRF class transmitter at 20 MS/s.
func Default() Config {
	return Config{
		Radio: RadioConfig{
			Backend:        "mock",
			SampleRate:     20e6,
			CenterHz:       2.457e9,
			Gains:          map[string]float64{"vga": 15},
			DiscoverTTL:    3 * time.Second,
			WriteTimeout:   50 * time.Millisecond,
			ReadTimeout:    250 * time.Millisecond,
			ConnectTimeout: 5 * time.Second,
			SSH:            SSHConfig{User: "root", Port: 22, Timeout: 5 * time.Second},
			Mock:           MockConfig{ToneOffset: 1e6, ToneAmplitude: 0.5, NoiseLevel: 0.01, Seed: 1},
		},
		Transmit: TransmitConfig{
			Waveform:  "noise",
			Duration:  60 * time.Second,
			ChunkSize: 16384,
			Seed:      1,
			Backoff:   BackoffConfig{Policy: "constant", Interval: time.Millisecond, MaxInterval: 50 * time.Millisecond},
			Tone:      ToneConfig{OffsetHz: 1e6, Samples: 1 << 16, Amplitude: 0.5},
			OFDM: OFDMConfig{
				FFTSize:      4096,
				Subcarriers:  3000,
				Modulation:   "qpsk",
				CyclicPrefix: 0.125,
				Symbols:      128,
				Amplitude:    0.8,
			},
			Noise: NoiseConfig{Samples: 1 << 20, BandwidthHz: 18e6, Amplitude: 0.4},
		},
		Sweep: SweepConfig{
			Frequencies: []float64{2.452e9, 2.462e9},
			Dwell:       60 * time.Second,
			Total:       60 * time.Second,
		},
		Scan: ScanConfig{
			FFTSize:      4096,
			Average:      16,
			Window:       "hann",
			ChannelWidth: 20e6,
			Warmup:       true,
			RetryDelay:   time.Millisecond,
			MaxRetries:   64,
		},
		Log:       LogConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{History: 500},
	}
}

// Load reads path on top of Default. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the values every command relies on.
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Radio.Backend) {
	case "mock", "tcp":
	default:
		errs = append(errs, fmt.Errorf("radio.backend %q must be mock or tcp", c.Radio.Backend))
	}
	if c.Radio.Backend == "tcp" && c.Radio.Address == "" && !c.Radio.Discover {
		errs = append(errs, errors.New("radio.address is required unless radio.discover is set"))
	}
	if c.Radio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("radio.sample_rate must be positive, got %g", c.Radio.SampleRate))
	}
	if c.Radio.CenterHz <= 0 {
		errs = append(errs, fmt.Errorf("radio.center_hz must be positive, got %g", c.Radio.CenterHz))
	}
	if c.Transmit.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("transmit.chunk_size must be at least 1, got %d", c.Transmit.ChunkSize))
	}
	if c.Transmit.Duration < 0 {
		errs = append(errs, fmt.Errorf("transmit.duration must not be negative"))
	}
	if c.Scan.FFTSize < 1 || c.Scan.Average < 1 {
		errs = append(errs, fmt.Errorf("scan.fft_size and scan.average must be at least 1"))
	}
	if c.Scan.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("scan.max_retries must be at least 1, got %d", c.Scan.MaxRetries))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
