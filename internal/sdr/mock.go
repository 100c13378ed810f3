package sdr

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
)

// ErrStreamInactive is returned by Mock when the stream for a direction has
// not been activated.
var ErrStreamInactive = errors.New("stream not active")

// MockConfig shapes the synthetic radio.
type MockConfig struct {
	SampleRate float64
	// ToneOffset places a tone this far from the tuned frequency on RX.
	ToneOffset float64
	// ToneAmplitude is the tone magnitude; zero disables the tone.
	ToneAmplitude float64
	// NoiseLevel is the standard deviation of the complex Gaussian floor.
	NoiseLevel float64
	Seed       int64

	// RejectEvery makes every Nth write report backpressure (0 disables).
	RejectEvery int
	// ShortEvery makes every Nth read return half the requested samples.
	ShortEvery int
	// Unreadable makes every read return no samples.
	Unreadable bool
	// CaptureWrites keeps a copy of each written chunk.
	CaptureWrites bool
	// RequireActive rejects I/O on inactive streams with ErrStreamInactive.
	RequireActive bool
	// OnWrite is invoked after every write attempt.
	OnWrite func(chunk []complex64, accepted bool)
	// OnRead is invoked after every read.
	OnRead func(count int, got int)
}

// Mock is an in-process Device that synthesizes RX samples and records TX
// traffic and tuning calls.
type Mock struct {
	mu  sync.RWMutex
	cfg MockConfig
	rng *rand.Rand

	frequency  float64
	sampleRate float64
	bandwidth  float64
	gains      map[string]float64
	amplifier  bool
	tunes      []float64
	failTune   map[float64]bool

	active   map[Direction]bool
	closed   bool
	writes   int
	rejected int
	reads    int
	phase    float64
	chunks   [][]complex64
}

// NewMock builds a mock device.
func NewMock(cfg MockConfig) *Mock {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 2e6
	}
	return &Mock{
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		sampleRate: cfg.SampleRate,
		gains:      make(map[string]float64),
		failTune:   make(map[float64]bool),
		active:     make(map[Direction]bool),
	}
}

// FailTuneAt makes SetFrequency(hz) report failure.
func (m *Mock) FailTuneAt(hz float64) {
	m.mu.Lock()
	m.failTune[hz] = true
	m.mu.Unlock()
}

func (m *Mock) SetFrequency(hz float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tunes = append(m.tunes, hz)
	if m.failTune[hz] {
		return false
	}
	m.frequency = hz
	return true
}

func (m *Mock) SetSampleRate(hz float64) bool {
	if hz <= 0 {
		return false
	}
	m.mu.Lock()
	m.sampleRate = hz
	m.mu.Unlock()
	return true
}

func (m *Mock) SetBandwidth(hz float64) bool {
	m.mu.Lock()
	m.bandwidth = hz
	m.mu.Unlock()
	return true
}

func (m *Mock) SetGain(stage string, db float64) bool {
	m.mu.Lock()
	m.gains[stage] = db
	m.mu.Unlock()
	return true
}

func (m *Mock) SetAmplifier(enabled bool) bool {
	m.mu.Lock()
	m.amplifier = enabled
	m.mu.Unlock()
	return true
}

func (m *Mock) Activate(dir Direction) error {
	m.mu.Lock()
	m.active[dir] = true
	m.mu.Unlock()
	return nil
}

func (m *Mock) Deactivate(dir Direction) error {
	m.mu.Lock()
	m.active[dir] = false
	m.mu.Unlock()
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Mock) Write(_ context.Context, chunk []complex64) (bool, error) {
	m.mu.Lock()
	if m.cfg.RequireActive && !m.active[TX] {
		m.mu.Unlock()
		return false, ErrStreamInactive
	}
	m.writes++
	accepted := m.cfg.RejectEvery <= 0 || m.writes%m.cfg.RejectEvery != 0
	if !accepted {
		m.rejected++
	}
	if m.cfg.CaptureWrites {
		cp := make([]complex64, len(chunk))
		copy(cp, chunk)
		m.chunks = append(m.chunks, cp)
	}
	hook := m.cfg.OnWrite
	m.mu.Unlock()

	if hook != nil {
		hook(chunk, accepted)
	}
	return accepted, nil
}

func (m *Mock) Read(_ context.Context, count int) ([]complex64, error) {
	m.mu.Lock()
	if m.cfg.RequireActive && !m.active[RX] {
		m.mu.Unlock()
		return nil, ErrStreamInactive
	}
	m.reads++
	n := count
	switch {
	case m.cfg.Unreadable:
		n = 0
	case m.cfg.ShortEvery > 0 && m.reads%m.cfg.ShortEvery == 0:
		n = count / 2
	}
	out := make([]complex64, n)
	step := 2 * math.Pi * m.cfg.ToneOffset / m.sampleRate
	for i := range out {
		sin, cos := math.Sincos(m.phase)
		v := complex(m.cfg.ToneAmplitude*cos, m.cfg.ToneAmplitude*sin)
		if m.cfg.NoiseLevel > 0 {
			v += complex(m.rng.NormFloat64()*m.cfg.NoiseLevel, m.rng.NormFloat64()*m.cfg.NoiseLevel)
		}
		out[i] = complex64(v)
		m.phase = math.Mod(m.phase+step, 2*math.Pi)
	}
	hook := m.cfg.OnRead
	m.mu.Unlock()

	if hook != nil {
		hook(count, n)
	}
	return out, nil
}

// Frequency returns the last successfully tuned frequency.
func (m *Mock) Frequency() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frequency
}

// Tunes returns every SetFrequency request in call order.
func (m *Mock) Tunes() []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]float64(nil), m.tunes...)
}

// Chunks returns captured writes when CaptureWrites is enabled.
func (m *Mock) Chunks() [][]complex64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([][]complex64(nil), m.chunks...)
}

// Counters returns write, rejected and read call counts.
func (m *Mock) Counters() (writes, rejected, reads int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes, m.rejected, m.reads
}

// Active reports whether the stream for dir is active.
func (m *Mock) Active(dir Direction) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[dir]
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Gain returns the configured gain for stage.
func (m *Mock) Gain(stage string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	db, ok := m.gains[stage]
	return db, ok
}
