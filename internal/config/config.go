package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// LogLevel defines the minimum severity for log output.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// Default values applied by ApplyDefaults when the corresponding field is absent.
const (
	// DefaultMaxPacketSize is the default QUIC maximum packet size in bytes.
	DefaultMaxPacketSize = 1350

	// DefaultBodyBufferPackets is how many maximum-size packets the request
	// body staging buffer holds. A larger buffer reduces partial-packet
	// writes at the cost of memory.
	DefaultBodyBufferPackets = 10

	// DefaultRequestPriority is the priority assigned to requests that do
	// not specify one. Matches PriorityMedium in internal/quic.
	DefaultRequestPriority = 2
)

// Config is the top-level configuration structure for the client.
type Config struct {
	Client  *ClientConfig  `json:"client,omitempty" toml:"client,omitempty"`
	Logging *LoggingConfig `json:"logging,omitempty" toml:"logging,omitempty"`
}

// ClientConfig holds the tunables for the QUIC HTTP stream adapter.
type ClientConfig struct {
	// MaxPacketSize is the transport's maximum packet size in bytes.
	MaxPacketSize *int `json:"max_packet_size,omitempty" toml:"max_packet_size,omitempty"`

	// BodyBufferPackets sizes the request body staging buffer as a multiple
	// of MaxPacketSize.
	BodyBufferPackets *int `json:"body_buffer_packets,omitempty" toml:"body_buffer_packets,omitempty"`

	// DefaultPriority is the request priority used when the caller does not
	// set one (0 = lowest, 4 = highest).
	DefaultPriority *int `json:"default_priority,omitempty" toml:"default_priority,omitempty"`

	// EnablePush controls whether the adapter attempts to rendezvous with
	// server push offers at all.
	EnablePush *bool `json:"enable_push,omitempty" toml:"enable_push,omitempty"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	LogLevel LogLevel `json:"log_level,omitempty" toml:"log_level,omitempty"`
	// Target is "stdout", "stderr", or an absolute file path.
	Target string `json:"target,omitempty" toml:"target,omitempty"`
}

// IsFilePath reports whether a log target refers to a file rather than a
// standard stream.
func IsFilePath(target string) bool {
	return target != "stdout" && target != "stderr" && target != ""
}

// LoadConfig reads, parses, defaults and validates a configuration file.
// The format is selected by file extension: ".toml" is parsed as TOML,
// anything else as JSON.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("configuration file path cannot be empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}

	cfg := &Config{}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".toml" {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML configuration %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON configuration %s: %w", path, err)
		}
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills in any absent optional fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Client == nil {
		cfg.Client = &ClientConfig{}
	}
	if cfg.Client.MaxPacketSize == nil {
		cfg.Client.MaxPacketSize = intPtr(DefaultMaxPacketSize)
	}
	if cfg.Client.BodyBufferPackets == nil {
		cfg.Client.BodyBufferPackets = intPtr(DefaultBodyBufferPackets)
	}
	if cfg.Client.DefaultPriority == nil {
		cfg.Client.DefaultPriority = intPtr(DefaultRequestPriority)
	}
	if cfg.Client.EnablePush == nil {
		cfg.Client.EnablePush = boolPtr(true)
	}
	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.LogLevel == "" {
		cfg.Logging.LogLevel = LogLevelInfo
	}
	if cfg.Logging.Target == "" {
		cfg.Logging.Target = "stderr"
	}
}

// Validate checks a defaulted configuration for values that cannot be used.
func Validate(cfg *Config) error {
	c := cfg.Client
	if *c.MaxPacketSize <= 0 {
		return fmt.Errorf("client.max_packet_size must be positive, got %d", *c.MaxPacketSize)
	}
	if *c.BodyBufferPackets <= 0 {
		return fmt.Errorf("client.body_buffer_packets must be positive, got %d", *c.BodyBufferPackets)
	}
	if *c.DefaultPriority < 0 || *c.DefaultPriority > 4 {
		return fmt.Errorf("client.default_priority must be in [0,4], got %d", *c.DefaultPriority)
	}
	switch cfg.Logging.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return fmt.Errorf("logging.log_level %q is not one of DEBUG, INFO, WARNING, ERROR", cfg.Logging.LogLevel)
	}
	if IsFilePath(cfg.Logging.Target) && !filepath.IsAbs(cfg.Logging.Target) {
		return fmt.Errorf("logging.target file path %q must be absolute", cfg.Logging.Target)
	}
	return nil
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }
