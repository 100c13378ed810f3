package spectrum

import (
	"context"
	"fmt"
	"sort"

	"github.com/rjboer/sdrwave/internal/dsp"
	"github.com/rjboer/sdrwave/internal/logging"
	"github.com/rjboer/sdrwave/internal/sdr"
)

// WiFiChannelWidth is the occupied width of a 2.4 GHz WiFi channel.
const WiFiChannelWidth = 20e6

// ChannelMap maps channel numbers to center frequencies in Hz.
type ChannelMap map[int]float64

// WiFi24 returns 2.4 GHz WiFi channels 1 through 13.
func WiFi24() ChannelMap {
	m := make(ChannelMap, 13)
	for ch := 1; ch <= 13; ch++ {
		m[ch] = 2_400_000_000 + 5_000_000*float64(ch-1) + 12_000_000
	}
	return m
}

// Channels returns the channel numbers in ascending order.
func (m ChannelMap) Channels() []int {
	out := make([]int, 0, len(m))
	for ch := range m {
		out = append(out, ch)
	}
	sort.Ints(out)
	return out
}

// ChannelPower sums the linear power of every bin of frame inside
// [centerHz-widthHz/2, centerHz+widthHz/2] and returns it in dB. A band with
// no bins yields the floor 10*log10(Epsilon).
func ChannelPower(frame *Frame, centerHz, widthHz float64) float64 {
	lo, hi := centerHz-widthHz/2, centerHz+widthHz/2
	sum := 0.0
	for i, f := range frame.Frequencies {
		if f >= lo && f <= hi {
			sum += dsp.DBToLinear(frame.PowerDB[i])
		}
	}
	return dsp.PowerDB(sum, Epsilon)
}

// ChannelResult is one row of a scan.
type ChannelResult struct {
	Channel  int
	CenterHz float64
	PowerDB  float64
}

// Results pairs scan powers with their center frequencies, sorted by channel.
// Channels missing from powers are skipped.
func Results(cmap ChannelMap, powers map[int]float64) []ChannelResult {
	out := make([]ChannelResult, 0, len(powers))
	for _, ch := range cmap.Channels() {
		p, ok := powers[ch]
		if !ok {
			continue
		}
		out = append(out, ChannelResult{Channel: ch, CenterHz: cmap[ch], PowerDB: p})
	}
	return out
}

// Scanner measures power per channel by retuning a receive endpoint.
type Scanner struct {
	est        *Estimator
	window     CaptureWindow
	sampleRate float64
	avgFrames  int
	warmup     bool
	logger     logging.Logger
	onChannel  func(ChannelResult, *Frame)
}

type ScanOption func(*Scanner)

// WithWindow sets the capture window. Defaults to Hann with 4096 points.
func WithWindow(w CaptureWindow) ScanOption {
	return func(s *Scanner) { s.window = w }
}

// WithSampleRate sets the rate the endpoint was configured with. Defaults to 20 MS/s.
func WithSampleRate(hz float64) ScanOption {
	return func(s *Scanner) { s.sampleRate = hz }
}

// WithAverage sets frames averaged per channel. Defaults to 16.
func WithAverage(n int) ScanOption {
	return func(s *Scanner) { s.avgFrames = n }
}

// WithWarmup toggles the discarded capture after each retune. On by default.
func WithWarmup(on bool) ScanOption {
	return func(s *Scanner) { s.warmup = on }
}

func WithScanLogger(l logging.Logger) ScanOption {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithChannelHook is called after each channel with its result and frame.
// The frame must not be retained.
func WithChannelHook(fn func(ChannelResult, *Frame)) ScanOption {
	return func(s *Scanner) { s.onChannel = fn }
}

// NewScanner creates a Scanner using est, or a default Estimator when nil.
func NewScanner(est *Estimator, opts ...ScanOption) *Scanner {
	if est == nil {
		est = NewEstimator()
	}
	s := &Scanner{
		est:        est,
		sampleRate: 20e6,
		avgFrames:  16,
		warmup:     true,
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.window.Size == 0 {
		// 4096 points always yield a valid Hann window.
		s.window, _ = NewCaptureWindow(4096, Hann)
	}
	return s
}

// Scan visits the channels of cmap in ascending order, retunes ep to each
// center (best effort), discards one warm-up capture, estimates the spectrum
// and integrates widthHz around the center. It returns power in dB keyed by
// channel. A channel whose estimate fails ends the scan with that error.
func (s *Scanner) Scan(ctx context.Context, ep sdr.Endpoint, cmap ChannelMap, widthHz float64) (map[int]float64, error) {
	if widthHz <= 0 {
		return nil, fmt.Errorf("%w: channel width %g", ErrInvalidRequest, widthHz)
	}
	out := make(map[int]float64, len(cmap))
	for _, ch := range cmap.Channels() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		center := cmap[ch]
		if !ep.SetFrequency(center) {
			s.logger.Warn("retune failed",
				logging.Field{Key: "subsystem", Value: "spectrum"},
				logging.Field{Key: "channel", Value: ch},
				logging.Field{Key: "center_hz", Value: center})
		}
		if s.warmup {
			// Drains samples captured before the retune settled.
			_, _ = ep.Read(ctx, s.window.Size)
		}

		frame, err := s.est.Estimate(ctx, ep, s.window, center, s.sampleRate, s.avgFrames)
		if err != nil {
			return out, fmt.Errorf("channel %d: %w", ch, err)
		}
		out[ch] = ChannelPower(frame, center, widthHz)
		if s.onChannel != nil {
			s.onChannel(ChannelResult{Channel: ch, CenterHz: center, PowerDB: out[ch]}, frame)
		}
	}
	return out, nil
}
