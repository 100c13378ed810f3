package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rjboer/sdrwave/internal/waveform"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sdrwave.yaml")
	yml := `
radio:
  backend: tcp
  address: 192.168.2.1:5555
  sample_rate: 10e6
transmit:
  waveform: ofdm
  duration: 90s
  ofdm:
    modulation: BPSK
sweep:
  frequencies: [2.412e9, 2.437e9]
  dwell: 500ms
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Radio.Backend != "tcp" || cfg.Radio.Address != "192.168.2.1:5555" || cfg.Radio.SampleRate != 10e6 {
		t.Fatalf("radio %+v", cfg.Radio)
	}
	if cfg.Radio.CenterHz != Default().Radio.CenterHz {
		t.Fatalf("center frequency default lost: %v", cfg.Radio.CenterHz)
	}
	if cfg.Transmit.Duration != 90*time.Second || cfg.Sweep.Dwell != 500*time.Millisecond {
		t.Fatalf("durations %v %v", cfg.Transmit.Duration, cfg.Sweep.Dwell)
	}
	if cfg.Transmit.OFDM.FFTSize != 4096 {
		t.Fatalf("ofdm fft size default lost: %d", cfg.Transmit.OFDM.FFTSize)
	}
	spec, err := cfg.Waveform()
	if err != nil {
		t.Fatalf("waveform: %v", err)
	}
	ofdm, ok := spec.(waveform.OFDM)
	if !ok || ofdm.Modulation != waveform.BPSK {
		t.Fatalf("spec %#v", spec)
	}
	plan := cfg.SweepPlan()
	if len(plan.Dwells) != 2 || plan.Dwells[1].CenterHz != 2.437e9 || plan.Dwells[0].Dwell != 500*time.Millisecond {
		t.Fatalf("plan %+v", plan)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Radio.Backend != "mock" {
		t.Fatalf("expected defaults, got %+v", cfg.Radio)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("radio: [unclosed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Transmit.Waveform = "tone"
	cfg.Sweep.Total = 2 * time.Minute
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Transmit.Waveform != "tone" || got.Sweep.Total != 2*time.Minute {
		t.Fatalf("round trip lost values: %+v %+v", got.Transmit, got.Sweep)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SDRWAVE_BACKEND":           "tcp",
		"SDRWAVE_ADDRESS":           "10.0.0.5:1234",
		"SDRWAVE_SAMPLE_RATE":       "4e6",
		"SDRWAVE_CHUNK_SIZE":        "not-a-number",
		"SDRWAVE_DURATION":          "5s",
		"SDRWAVE_SWEEP_FREQUENCIES": "915e6, 920e6",
		"SDRWAVE_DISCOVER":          "true",
		"SDRWAVE_LOG_LEVEL":         "debug",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg := Default()
	cfg.ApplyEnv(lookup)
	if cfg.Radio.Backend != "tcp" || cfg.Radio.Address != "10.0.0.5:1234" || cfg.Radio.SampleRate != 4e6 {
		t.Fatalf("radio %+v", cfg.Radio)
	}
	if cfg.Transmit.ChunkSize != 16384 {
		t.Fatalf("bad int override applied: %d", cfg.Transmit.ChunkSize)
	}
	if cfg.Transmit.Duration != 5*time.Second || !cfg.Radio.Discover || cfg.Log.Level != "debug" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.Sweep.Frequencies) != 2 || cfg.Sweep.Frequencies[1] != 920e6 {
		t.Fatalf("frequencies %v", cfg.Sweep.Frequencies)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Radio.Backend = "hackrf"
	cfg.Radio.SampleRate = 0
	cfg.Log.Level = "loud"
	err := cfg.Validate()
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}

	cfg = Default()
	cfg.Radio.Backend = "tcp"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("tcp without address or discovery accepted")
	}
}

func TestWaveformKinds(t *testing.T) {
	cfg := Default()
	for _, kind := range []string{"tone", "OFDM", "noise"} {
		cfg.Transmit.Waveform = kind
		spec, err := cfg.Waveform()
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if err := spec.Validate(); err != nil {
			t.Fatalf("%s default invalid: %v", kind, err)
		}
	}
	cfg.Transmit.Waveform = "chirp"
	if _, err := cfg.Waveform(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestBackOffAndWindow(t *testing.T) {
	cfg := Default()
	if _, err := cfg.BackOff(); err != nil {
		t.Fatalf("backoff: %v", err)
	}
	cfg.Transmit.Backoff.Policy = "random"
	if _, err := cfg.BackOff(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	w, err := cfg.CaptureWindow()
	if err != nil || w.Size != 4096 {
		t.Fatalf("window %v %v", w.Size, err)
	}
	delay, retries := cfg.RetryBudget()
	if delay != time.Millisecond || retries != 64 {
		t.Fatalf("retry budget %v %d", delay, retries)
	}
}

func TestRetryBudgetIsAlwaysBounded(t *testing.T) {
	for _, n := range []int{0, -3} {
		cfg := Default()
		cfg.Scan.MaxRetries = n
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Fatalf("max_retries %d accepted: %v", n, err)
		}
		if _, retries := cfg.RetryBudget(); retries != 64 {
			t.Fatalf("max_retries %d mapped to %d retries, want 64", n, retries)
		}
	}
}
