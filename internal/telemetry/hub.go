package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/rjboer/sdrwave/internal/logging"
)

// Config represents the runtime configuration exposed by the telemetry hub.
type Config struct {
	HistoryLimit int `json:"historyLimit"`
}

const (
	minHistoryLimit = 1
	maxHistoryLimit = 10_000
)

func defaultConfig() Config {
	return Config{HistoryLimit: 500}
}

func validateConfig(cfg Config, base Config) (Config, error) {
	if base.HistoryLimit == 0 {
		base = defaultConfig()
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = base.HistoryLimit
	}
	if cfg.HistoryLimit < minHistoryLimit || cfg.HistoryLimit > maxHistoryLimit {
		return Config{}, fmt.Errorf("history limit must be between %d and %d", minHistoryLimit, maxHistoryLimit)
	}
	return cfg, nil
}

// SpectrumSnapshot is the most recent PSD published to the hub.
type SpectrumSnapshot struct {
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
	CenterHz    float64   `json:"centerHz"`
	Frequencies []float64 `json:"frequencies"`
	PowerDB     []float64 `json:"powerDb"`
}

// ProcessStats describes the running process.
type ProcessStats struct {
	Uptime       time.Duration `json:"uptime"`
	NumGoroutine int           `json:"numGoroutine"`
	HeapAlloc    uint64        `json:"heapAlloc"`
}

// HealthStatus reports whether the hub has seen any events yet.
type HealthStatus struct {
	Status     string       `json:"status"`
	Events     int          `json:"events"`
	LastEvent  time.Time    `json:"lastEvent,omitempty"`
	HasPSD     bool         `json:"hasPsd"`
	Subscribed int          `json:"subscribed"`
	Process    ProcessStats `json:"process"`
}

// Hub collects history and fans out telemetry events to subscribers.
type Hub struct {
	mu           sync.RWMutex
	history      []Event
	historyLimit int
	total        int
	subscribers  map[chan Event]struct{}
	config       Config
	spectrum     *SpectrumSnapshot
	started      time.Time
	logger       logging.Logger
}

// NewHub builds a telemetry hub with the provided history limit.
func NewHub(historyLimit int, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	cfg := defaultConfig()
	if historyLimit > 0 {
		cfg.HistoryLimit = historyLimit
	}
	cfg, err := validateConfig(cfg, defaultConfig())
	if err != nil {
		logger.Warn("invalid telemetry history limit, using default",
			logging.Field{Key: "subsystem", Value: "telemetry"},
			logging.Field{Key: "history_limit", Value: historyLimit})
		cfg = defaultConfig()
	}
	return &Hub{
		historyLimit: cfg.HistoryLimit,
		subscribers:  make(map[chan Event]struct{}),
		config:       cfg,
		started:      time.Now(),
		logger:       logger,
	}
}

// Report implements Reporter and records a new event.
func (h *Hub) Report(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	h.mu.Lock()
	h.total++
	h.history = append(h.history, ev)
	if len(h.history) > h.historyLimit {
		h.history = h.history[len(h.history)-h.historyLimit:]
	}
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()
}

// UpdateSpectrum stores a copy of the latest PSD for the spectrum endpoint.
func (h *Hub) UpdateSpectrum(source string, centerHz float64, freqs, powerDB []float64) {
	snap := &SpectrumSnapshot{
		Timestamp:   time.Now(),
		Source:      source,
		CenterHz:    centerHz,
		Frequencies: append([]float64(nil), freqs...),
		PowerDB:     append([]float64(nil), powerDB...),
	}
	h.mu.Lock()
	h.spectrum = snap
	h.mu.Unlock()
}

// History returns a copy of stored events.
func (h *Hub) History() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Event, len(h.history))
	copy(out, h.history)
	return out
}

// ConfigSnapshot returns the latest validated configuration.
func (h *Hub) ConfigSnapshot() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Subscribe registers a listener for live updates. Slow listeners miss
// events rather than blocking Report.
func (h *Hub) Subscribe() (chan Event, func()) {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

func (h *Hub) applyConfig(cfg Config) {
	h.config = cfg
	h.historyLimit = cfg.HistoryLimit
	if len(h.history) > h.historyLimit {
		h.history = h.history[len(h.history)-h.historyLimit:]
	}
}

func (h *Hub) health() HealthStatus {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	h.mu.RLock()
	defer h.mu.RUnlock()
	st := HealthStatus{
		Status:     "idle",
		Events:     h.total,
		HasPSD:     h.spectrum != nil,
		Subscribed: len(h.subscribers),
		Process: ProcessStats{
			Uptime:       time.Since(h.started),
			NumGoroutine: runtime.NumGoroutine(),
			HeapAlloc:    mem.HeapAlloc,
		},
	}
	if n := len(h.history); n > 0 {
		st.Status = "ok"
		st.LastEvent = h.history[n-1].Timestamp
	}
	return st
}

func (h *Hub) handleHistory(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.History())
}

func (h *Hub) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.ConfigSnapshot())
}

func (h *Hub) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var incoming Config
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		http.Error(w, fmt.Sprintf("invalid config payload: %v", err), http.StatusBadRequest)
		return
	}

	h.mu.RLock()
	current := h.config
	h.mu.RUnlock()

	cfg, err := validateConfig(incoming, current)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	h.applyConfig(cfg)
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cfg)
}

func (h *Hub) handleSpectrum(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.mu.RLock()
	snap := h.spectrum
	h.mu.RUnlock()
	if snap == nil {
		http.Error(w, "no spectrum captured yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.health())
}

func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Subscribe()
	defer cancel()

	// send existing history for immediate display
	for _, ev := range h.History() {
		writeEvent(w, ev)
	}
	flusher.Flush()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, ev)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, ev Event) {
	payload, _ := json.Marshal(ev)
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
}
