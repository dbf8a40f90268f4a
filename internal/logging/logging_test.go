package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json", Output: &buf})

	log.Info(context.Background(), "dropped")
	log.Warn(context.Background(), "kept", Int("n", 3), Err(errors.New("boom")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if rec["msg"] != "kept" || rec["n"] != float64(3) || rec["error"] != "boom" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestWithStationAddsField(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: "debug", Format: "json", Output: &buf})

	WithStation(base, "00:00:00:00:00:01").Debug(context.Background(), "decision")

	if !strings.Contains(buf.String(), `"station":"00:00:00:00:00:01"`) {
		t.Fatalf("station field missing from %q", buf.String())
	}
}

func TestWithStationEmptyAddressAndNil(t *testing.T) {
	if WithStation(nil, "") == nil {
		t.Fatalf("WithStation(nil) returned nil logger")
	}
	base := Noop()
	if got := WithStation(base, ""); got != base {
		t.Fatalf("empty address should return the base logger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"WARNING": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"bogus":   "INFO",
	}
	for in, want := range tests {
		if got := parseLevel(in).Level().String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
