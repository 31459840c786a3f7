package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

// captureLogOutput reinitializes the logger to write to a buffer at debug
// level and restores the default afterwards.
func captureLogOutput(format Format, f func()) string {
	var buf bytes.Buffer
	InitLoggerTo(&buf, LevelDebug, format)
	f()
	InitLogger(LevelInfo, FormatJSON)
	return buf.String()
}

func decodeLine(t *testing.T, out string) map[string]any {
	t.Helper()
	var entry map[string]any
	line := strings.TrimSpace(strings.Split(strings.TrimSpace(out), "\n")[0])
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, out)
	}
	return entry
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(text) = %v, %v", f, err)
	}
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) error = nil")
	}
}

func TestInitLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerTo(&buf, LevelWarn, FormatJSON)
	Info("hidden")
	Warn("shown")
	InitLogger(LevelInfo, FormatJSON)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message logged at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn message missing")
	}
}

func TestTimestampFormat(t *testing.T) {
	out := captureLogOutput(FormatJSON, func() { Info("tick") })
	entry := decodeLine(t, out)
	ts, ok := entry["time"].(string)
	if !ok {
		t.Fatalf("time missing: %v", entry)
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("time %q is not RFC3339: %v", ts, err)
	}
}

func TestTextFormat(t *testing.T) {
	out := captureLogOutput(FormatText, func() { Error("boom", "code", 7) })
	if !strings.Contains(out, "msg=boom") || !strings.Contains(out, "code=7") {
		t.Errorf("text output = %q", out)
	}
}

func TestRunIDContext(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	if got := GetRunID(ctx); got != "run-1" {
		t.Errorf("GetRunID() = %q, want run-1", got)
	}
	if got := GetRunID(context.Background()); got != "" {
		t.Errorf("GetRunID(empty) = %q", got)
	}

	out := captureLogOutput(FormatJSON, func() { InfoContext(ctx, "hello") })
	if entry := decodeLine(t, out); entry["run_id"] != "run-1" {
		t.Errorf("run_id = %v, want run-1", entry["run_id"])
	}
}

func TestDomainHelpers(t *testing.T) {
	ctx := WithRunID(context.Background(), "r")
	tests := []struct {
		name    string
		log     func()
		wantMsg string
		wantKey string
		wantVal any
	}{
		{"roundtrip step", func() { RoundtripStep(ctx, "EXACT", true, "diff_lines", 0) }, "roundtrip_step", "strategy", "EXACT"},
		{"sync event", func() { SyncEvent(ctx, "download", "sha", "abc") }, "sync_event", "stage", "download"},
		{"file event", func() { FileEvent("copy", "/tmp/a.obo") }, "file_event", "path", "/tmp/a.obo"},
		{"store event", func() { StoreEvent("commit", "20240101_000000") }, "store_event", "version", "20240101_000000"},
		{"http fetch", func() { HTTPFetch(ctx, "GET", "https://x", 200, time.Second) }, "http_fetch", "status_code", float64(200)},
		{"warn context", func() { WarnContext(ctx, "w", "error", errors.New("e").Error()) }, "w", "error", "e"},
		{"error context", func() { ErrorContext(ctx, "e") }, "e", "run_id", "r"},
		{"debug", func() { Debug("d", "k", "v") }, "d", "k", "v"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := decodeLine(t, captureLogOutput(FormatJSON, tt.log))
			if entry["msg"] != tt.wantMsg {
				t.Errorf("msg = %v, want %v", entry["msg"], tt.wantMsg)
			}
			if entry[tt.wantKey] != tt.wantVal {
				t.Errorf("%s = %v, want %v", tt.wantKey, entry[tt.wantKey], tt.wantVal)
			}
		})
	}
}

func TestGetLogger(t *testing.T) {
	if GetLogger() == nil {
		t.Error("GetLogger() = nil")
	}
}
