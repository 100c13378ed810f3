package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rjboer/sdrwave/internal/logging"
)

func newTestHub() *Hub {
	return NewHub(10, logging.New(logging.Debug, logging.Text, io.Discard))
}

func TestHubHistoryLimit(t *testing.T) {
	hub := NewHub(3, nil)
	for i := 0; i < 5; i++ {
		hub.Report(Event{Kind: KindStream, Chunks: i})
	}
	hist := hub.History()
	if len(hist) != 3 || hist[0].Chunks != 2 || hist[2].Chunks != 4 {
		t.Fatalf("history %+v", hist)
	}
	if hist[0].Timestamp.IsZero() {
		t.Fatalf("timestamp not filled in")
	}
}

func TestHandleHistory(t *testing.T) {
	hub := newTestHub()
	hub.Report(Event{Kind: KindChannel, Channel: 6, PowerDB: -42.5, Session: "abc"})

	rr := httptest.NewRecorder()
	hub.handleHistory(rr, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var events []Event
	if err := json.NewDecoder(rr.Body).Decode(&events); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(events) != 1 || events[0].Channel != 6 || events[0].PowerDB != -42.5 || events[0].Session != "abc" {
		t.Fatalf("events %+v", events)
	}
}

func TestHandleSpectrum(t *testing.T) {
	hub := newTestHub()

	rr := httptest.NewRecorder()
	hub.handleSpectrum(rr, httptest.NewRequest(http.MethodGet, "/api/spectrum", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any capture, got %d", rr.Code)
	}

	freqs := []float64{1, 2, 3}
	hub.UpdateSpectrum("psd", 2e9, freqs, []float64{-1, -2, -3})
	freqs[0] = 99

	rr = httptest.NewRecorder()
	hub.handleSpectrum(rr, httptest.NewRequest(http.MethodGet, "/api/spectrum", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var snap SpectrumSnapshot
	if err := json.NewDecoder(rr.Body).Decode(&snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(snap.PowerDB) != 3 || snap.Frequencies[0] != 1 || snap.Source != "psd" || snap.CenterHz != 2e9 {
		t.Fatalf("snapshot %+v", snap)
	}

	rr = httptest.NewRecorder()
	hub.handleSpectrum(rr, httptest.NewRequest(http.MethodPost, "/api/spectrum", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	hub := newTestHub()

	rr := httptest.NewRecorder()
	hub.handleHealth(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	var idle HealthStatus
	if err := json.NewDecoder(rr.Body).Decode(&idle); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if idle.Status != "idle" || idle.Process.NumGoroutine == 0 {
		t.Fatalf("idle health %+v", idle)
	}

	hub.Report(Event{Kind: KindSession, Message: "started"})
	rr = httptest.NewRecorder()
	hub.handleHealth(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	var live HealthStatus
	if err := json.NewDecoder(rr.Body).Decode(&live); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if live.Status != "ok" || live.Events != 1 {
		t.Fatalf("live health %+v", live)
	}

	rr = httptest.NewRecorder()
	hub.handleHealth(rr, httptest.NewRequest(http.MethodPost, "/api/health", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestHandleSetConfig(t *testing.T) {
	hub := newTestHub()
	for i := 0; i < 8; i++ {
		hub.Report(Event{Kind: KindStream})
	}

	body := bytes.NewBufferString(`{"historyLimit": 4}`)
	rr := httptest.NewRecorder()
	hub.handleSetConfig(rr, httptest.NewRequest(http.MethodPost, "/api/config/update", body))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if hub.ConfigSnapshot().HistoryLimit != 4 || len(hub.History()) != 4 {
		t.Fatalf("config not applied")
	}

	rr = httptest.NewRecorder()
	hub.handleSetConfig(rr, httptest.NewRequest(http.MethodPost, "/api/config/update", bytes.NewBufferString(`{"historyLimit": 100000}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	hub.handleSetConfig(rr, httptest.NewRequest(http.MethodGet, "/api/config/update", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	hub := newTestHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Report(Event{Kind: KindLeg, Leg: 2})
	select {
	case ev := <-ch:
		if ev.Leg != 2 {
			t.Fatalf("event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event delivered")
	}
	cancel()
	cancel()
}

func TestWebServerServesLiveEvents(t *testing.T) {
	hub := newTestHub()
	hub.Report(Event{Kind: KindPSD, PeakHz: 2.4e9})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewWebServer("", hub, nil).Serve(ctx, ln) }()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()
	req, _ := http.NewRequestWithContext(reqCtx, http.MethodGet, "http://"+ln.Addr().String()+"/api/live", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get live: %v", err)
	}
	buf := make([]byte, 512)
	n, _ := resp.Body.Read(buf)
	resp.Body.Close()
	if !strings.HasPrefix(string(buf[:n]), "data: ") || !strings.Contains(string(buf[:n]), `"kind":"psd"`) {
		t.Fatalf("unexpected live payload %q", buf[:n])
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not shut down")
	}
}

type recorder struct{ events []Event }

func (r *recorder) Report(ev Event) { r.events = append(r.events, ev) }

func TestMultiReporterAndStdout(t *testing.T) {
	var out bytes.Buffer
	rec := &recorder{}
	m := MultiReporter{rec, nil, NewStdoutReporter(logging.New(logging.Info, logging.Text, &out)), Discard{}}
	tuned := true
	m.Report(Event{Kind: KindLeg, CenterHz: 2.412e9, Chunks: 1200, Samples: 19660800, Tuned: &tuned})
	if len(rec.events) != 1 {
		t.Fatalf("recorder got %d events", len(rec.events))
	}
	line := out.String()
	for _, want := range []string{"telemetry leg", "2.412 GHz", "19,660,800"} {
		if !strings.Contains(line, want) {
			t.Fatalf("stdout line %q missing %q", line, want)
		}
	}
}
