package telemetry

import "time"

// Kind classifies telemetry events.
type Kind string

const (
	KindSession Kind = "session"
	KindStream  Kind = "stream"
	KindLeg     Kind = "leg"
	KindPSD     Kind = "psd"
	KindChannel Kind = "channel"
)

// Event is one telemetry record. Only the fields relevant to Kind are set.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Session   string    `json:"session,omitempty"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message,omitempty"`
	CenterHz  float64   `json:"centerHz,omitempty"`

	// stream and leg progress
	Leg      int   `json:"leg,omitempty"`
	Chunks   int   `json:"chunks,omitempty"`
	Rejected int   `json:"rejected,omitempty"`
	Samples  int64 `json:"samples,omitempty"`
	Tuned    *bool `json:"tuned,omitempty"`

	// spectrum results
	Channel      int     `json:"channel,omitempty"`
	PowerDB      float64 `json:"powerDb,omitempty"`
	PeakHz       float64 `json:"peakHz,omitempty"`
	PeakDB       float64 `json:"peakDb,omitempty"`
	NoiseFloorDB float64 `json:"noiseFloorDb,omitempty"`
	Frames       int     `json:"frames,omitempty"`
}

// Reporter captures telemetry events.
type Reporter interface {
	Report(ev Event)
}

// MultiReporter fans out telemetry to multiple destinations.
type MultiReporter []Reporter

// Report forwards ev to each configured reporter.
func (m MultiReporter) Report(ev Event) {
	for _, r := range m {
		if r != nil {
			r.Report(ev)
		}
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Report(Event) {}
