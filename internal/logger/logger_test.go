package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/quicfetch/internal/config"
)

func TestNewLogger_NilConfig(t *testing.T) {
	_, err := NewLogger(nil)
	if err == nil {
		t.Fatal("expected error for nil logging configuration")
	}
}

func TestNewLogger_FileTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	lg, err := NewLogger(&config.LoggingConfig{LogLevel: config.LogLevelInfo, Target: path})
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	lg.Info("stream opened", LogFields{"stream_id": 5})
	if err := lg.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "stream opened") {
		t.Errorf("log file missing message, got: %s", data)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "client.log")
	lg, err := NewLogger(&config.LoggingConfig{LogLevel: config.LogLevelError, Target: path})
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	lg.Debug("below threshold", nil)
	lg.Info("below threshold", nil)
	lg.Error("kept", nil)
	lg.Close()

	data, _ := os.ReadFile(path)
	buf.Write(data)
	if strings.Contains(buf.String(), "below threshold") {
		t.Error("messages below the configured level must be dropped")
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Error("error-level message must be emitted")
	}
}

func TestLogger_FieldsAreStructured(t *testing.T) {
	var buf bytes.Buffer
	lg := NewTestLogger(&buf)
	lg.Info("rendezvous", LogFields{"url": "https://example.org/", "stream_id": uint32(7)})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (output: %s)", err, buf.String())
	}
	if entry["url"] != "https://example.org/" {
		t.Errorf("url field = %v, want https://example.org/", entry["url"])
	}
	if entry["message"] != "rendezvous" {
		t.Errorf("message = %v, want rendezvous", entry["message"])
	}
}

func TestLogger_WithAttachesFields(t *testing.T) {
	var buf bytes.Buffer
	lg := NewTestLogger(&buf).With(LogFields{"exchange_id": "abc"})
	lg.Info("state", LogFields{"state": "OPEN"})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["exchange_id"] != "abc" {
		t.Errorf("exchange_id = %v, want abc", entry["exchange_id"])
	}
	if entry["state"] != "OPEN" {
		t.Errorf("state = %v, want OPEN", entry["state"])
	}
}

func TestDiscardLogger(t *testing.T) {
	lg := NewDiscardLogger()
	// Must not panic.
	lg.Debug("dropped", nil)
	lg.Error("dropped", LogFields{"k": "v"})
	if err := lg.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}
