package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestTextLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Warn, Text, &buf)
	l.Info("dropped")
	l.Warn("kept", Field{Key: "chunk", Value: 3})
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info record should be filtered: %q", out)
	}
	if !strings.Contains(out, "[WARN] kept chunk=3") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestTextLoggerSkipsEmptyKeys(t *testing.T) {
	var buf bytes.Buffer
	New(Debug, Text, &buf).Info("msg", Field{}, Field{Key: "a", Value: 1})
	if !strings.Contains(buf.String(), "msg a=1") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestJSONLoggerIncludesInheritedFields(t *testing.T) {
	var buf bytes.Buffer
	l := Subsystem(New(Debug, JSON, &buf), "stream")
	l.Error("write failed", Field{Key: "rejected", Value: 2})

	line := buf.String()
	idx := strings.Index(line, "{")
	if idx < 0 {
		t.Fatalf("no JSON payload in %q", line)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(line[idx:]), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["subsystem"] != "stream" || payload["level"] != "ERROR" || payload["msg"] != "write failed" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestConfigure(t *testing.T) {
	if _, err := Configure("verbose", "text", &bytes.Buffer{}); err == nil {
		t.Fatalf("expected unsupported level error")
	}
	if _, err := Configure("info", "xml", &bytes.Buffer{}); err == nil {
		t.Fatalf("expected unsupported format error")
	}
	if _, err := Configure("warning", "json", &bytes.Buffer{}); err != nil {
		t.Fatalf("configure: %v", err)
	}
}

func TestNopAndDefault(t *testing.T) {
	Nop().Error("nothing")
	if Default() == nil {
		t.Fatalf("default logger must never be nil")
	}
	var buf bytes.Buffer
	SetDefault(New(Info, Text, &buf))
	Default().Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("default logger not replaced")
	}
	SetDefault(Nop())
}
