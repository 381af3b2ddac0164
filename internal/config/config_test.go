package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTempFile creates a temporary file with the given content and extension.
func writeTempFile(t *testing.T, content string, ext string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-config"+ext)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

// checkErrorContains checks if the error is not nil and its message contains the expected substring.
func checkErrorContains(t *testing.T, err error, expectedSubstring string) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected an error containing %q, but got nil", expectedSubstring)
	}
	if !strings.Contains(err.Error(), expectedSubstring) {
		t.Fatalf("Expected error message to contain %q, but got: %v", expectedSubstring, err)
	}
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	_, err := LoadConfig("")
	checkErrorContains(t, err, "configuration file path cannot be empty")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	checkErrorContains(t, err, "failed to read configuration file")
}

func TestLoadConfig_TOML(t *testing.T) {
	content := `
[client]
max_packet_size = 1200
body_buffer_packets = 4
default_priority = 3
enable_push = false

[logging]
log_level = "DEBUG"
target = "stdout"
`
	path := writeTempFile(t, content, ".toml")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if got := *cfg.Client.MaxPacketSize; got != 1200 {
		t.Errorf("MaxPacketSize = %d, want 1200", got)
	}
	if got := *cfg.Client.BodyBufferPackets; got != 4 {
		t.Errorf("BodyBufferPackets = %d, want 4", got)
	}
	if got := *cfg.Client.DefaultPriority; got != 3 {
		t.Errorf("DefaultPriority = %d, want 3", got)
	}
	if *cfg.Client.EnablePush {
		t.Error("EnablePush = true, want false")
	}
	if cfg.Logging.LogLevel != LogLevelDebug {
		t.Errorf("LogLevel = %q, want DEBUG", cfg.Logging.LogLevel)
	}
}

func TestLoadConfig_JSON(t *testing.T) {
	content := `{"client": {"max_packet_size": 1452}, "logging": {"log_level": "ERROR"}}`
	path := writeTempFile(t, content, ".json")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if got := *cfg.Client.MaxPacketSize; got != 1452 {
		t.Errorf("MaxPacketSize = %d, want 1452", got)
	}
	if cfg.Logging.LogLevel != LogLevelError {
		t.Errorf("LogLevel = %q, want ERROR", cfg.Logging.LogLevel)
	}
	// Defaults still applied for absent fields.
	if got := *cfg.Client.BodyBufferPackets; got != DefaultBodyBufferPackets {
		t.Errorf("BodyBufferPackets = %d, want default %d", got, DefaultBodyBufferPackets)
	}
}

func TestLoadConfig_MalformedTOML(t *testing.T) {
	path := writeTempFile(t, "[client\nmax_packet_size = ", ".toml")
	_, err := LoadConfig(path)
	checkErrorContains(t, err, "failed to parse TOML configuration")
}

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if *cfg.Client.MaxPacketSize != DefaultMaxPacketSize {
		t.Errorf("MaxPacketSize default = %d, want %d", *cfg.Client.MaxPacketSize, DefaultMaxPacketSize)
	}
	if *cfg.Client.BodyBufferPackets != DefaultBodyBufferPackets {
		t.Errorf("BodyBufferPackets default = %d, want %d", *cfg.Client.BodyBufferPackets, DefaultBodyBufferPackets)
	}
	if !*cfg.Client.EnablePush {
		t.Error("EnablePush default = false, want true")
	}
	if cfg.Logging.LogLevel != LogLevelInfo {
		t.Errorf("LogLevel default = %q, want INFO", cfg.Logging.LogLevel)
	}
	if cfg.Logging.Target != "stderr" {
		t.Errorf("Target default = %q, want stderr", cfg.Logging.Target)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "zero packet size",
			mutate:  func(c *Config) { c.Client.MaxPacketSize = intPtr(0) },
			wantErr: "max_packet_size must be positive",
		},
		{
			name:    "negative buffer packets",
			mutate:  func(c *Config) { c.Client.BodyBufferPackets = intPtr(-1) },
			wantErr: "body_buffer_packets must be positive",
		},
		{
			name:    "priority out of range",
			mutate:  func(c *Config) { c.Client.DefaultPriority = intPtr(9) },
			wantErr: "default_priority must be in [0,4]",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.LogLevel = "LOUD" },
			wantErr: "is not one of DEBUG, INFO, WARNING, ERROR",
		},
		{
			name:    "relative log file path",
			mutate:  func(c *Config) { c.Logging.Target = "logs/client.log" },
			wantErr: "must be absolute",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate returned unexpected error: %v", err)
				}
				return
			}
			checkErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestIsFilePath(t *testing.T) {
	if IsFilePath("stdout") || IsFilePath("stderr") || IsFilePath("") {
		t.Error("standard streams must not be treated as file paths")
	}
	if !IsFilePath("/var/log/quicfetch.log") {
		t.Error("absolute path must be treated as a file path")
	}
}
