// Package config handles configuration loading, validation, and management for focusd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Monitor configuration for the sampling and debounce loop.
	Monitor MonitorConfig `toml:"monitor" json:"monitor" yaml:"monitor"`

	// Classifier configuration for the vision model client.
	Classifier ClassifierConfig `toml:"classifier" json:"classifier" yaml:"classifier"`

	// Audio configuration for background sound and ducking.
	Audio AudioConfig `toml:"audio" json:"audio" yaml:"audio"`

	// Storage configuration for session persistence.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Server configuration for the HTTP and websocket listener.
	Server ServerConfig `toml:"server" json:"server" yaml:"server"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Notify configuration for desktop notifications.
	Notify NotifyConfig `toml:"notify" json:"notify" yaml:"notify"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// MonitorConfig holds the monitoring loop configuration.
type MonitorConfig struct {
	// Sensitivity is the number of consecutive adverse classifications
	// required before the stable status flips (1-5).
	Sensitivity int `toml:"sensitivity" json:"sensitivity" yaml:"sensitivity"`

	// SampleIntervalMs is the capture cadence in milliseconds.
	SampleIntervalMs int `toml:"sample_interval_ms" json:"sample_interval_ms" yaml:"sample_interval_ms"`

	// WarmupMs is the delay before the first capture after a session starts.
	WarmupMs int `toml:"warmup_ms" json:"warmup_ms" yaml:"warmup_ms"`
}

// ClassifierConfig holds the vision model client configuration.
type ClassifierConfig struct {
	// Model is the vision model identifier.
	Model string `toml:"model" json:"model" yaml:"model"`

	// BaseURL overrides the API endpoint. Empty uses the provider default.
	BaseURL string `toml:"base_url" json:"base_url" yaml:"base_url"`

	// APIKey is the API key. Prefer the OPENAI_API_KEY environment
	// variable over putting the key in the config file.
	APIKey string `toml:"api_key" json:"-" yaml:"api_key"`

	// MaxOutputTokens caps the model reply length.
	MaxOutputTokens int `toml:"max_output_tokens" json:"max_output_tokens" yaml:"max_output_tokens"`

	// MaxAttempts is the total number of API calls per frame, including
	// retries after an overloaded response.
	MaxAttempts int `toml:"max_attempts" json:"max_attempts" yaml:"max_attempts"`

	// RetryBackoffMs is the base retry delay; it doubles per attempt.
	RetryBackoffMs int `toml:"retry_backoff_ms" json:"retry_backoff_ms" yaml:"retry_backoff_ms"`
}

// AudioConfig holds background audio configuration.
type AudioConfig struct {
	// BaseVolume is the user-chosen playback volume (0.0-1.0).
	BaseVolume float64 `toml:"base_volume" json:"base_volume" yaml:"base_volume"`

	// RampMs is the volume ramp duration for backends that support it.
	RampMs int `toml:"ramp_ms" json:"ramp_ms" yaml:"ramp_ms"`
}

// StorageConfig holds session persistence configuration.
type StorageConfig struct {
	// Type is the storage backend type: "memory" or "sqlite".
	Type string `toml:"type" json:"type" yaml:"type"`

	// Path is the path to the database file (for sqlite).
	Path string `toml:"path" json:"path" yaml:"path"`

	// HistoryLimit caps how many sessions list queries return by default.
	HistoryLimit int `toml:"history_limit" json:"history_limit" yaml:"history_limit"`
}

// ServerConfig holds the HTTP and websocket listener configuration.
type ServerConfig struct {
	// ListenAddr is the address the server binds, e.g. "127.0.0.1:8750".
	ListenAddr string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`

	// AllowedOrigins restricts websocket upgrades. Empty allows any origin.
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`

	// ReadTimeoutSec is the HTTP read timeout.
	ReadTimeoutSec int `toml:"read_timeout_sec" json:"read_timeout_sec" yaml:"read_timeout_sec"`

	// WriteTimeoutSec is the HTTP write timeout.
	WriteTimeoutSec int `toml:"write_timeout_sec" json:"write_timeout_sec" yaml:"write_timeout_sec"`

	// ShutdownTimeoutSec bounds graceful shutdown.
	ShutdownTimeoutSec int `toml:"shutdown_timeout_sec" json:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", or "file".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
}

// NotifyConfig holds desktop notification configuration.
type NotifyConfig struct {
	// Enabled turns desktop notifications on.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// OnDistraction sends a notification when the stable status turns adverse.
	OnDistraction bool `toml:"on_distraction" json:"on_distraction" yaml:"on_distraction"`

	// OnSessionEnd sends a summary notification when a session finalizes.
	OnSessionEnd bool `toml:"on_session_end" json:"on_session_end" yaml:"on_session_end"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := FocusdDir()

	return &Config{
		Version: Version,
		Monitor: MonitorConfig{
			Sensitivity:      2,
			SampleIntervalMs: 4000,
			WarmupMs:         1000,
		},
		Classifier: ClassifierConfig{
			Model:           "gpt-5-mini",
			MaxOutputTokens: 300,
			MaxAttempts:     3,
			RetryBackoffMs:  1000,
		},
		Audio: AudioConfig{
			BaseVolume: 0.5,
			RampMs:     500,
		},
		Storage: StorageConfig{
			Type:         "sqlite",
			Path:         filepath.Join(dir, "sessions.db"),
			HistoryLimit: 50,
		},
		Server: ServerConfig{
			ListenAddr:         "127.0.0.1:8750",
			AllowedOrigins:     []string{},
			ReadTimeoutSec:     30,
			WriteTimeoutSec:    30,
			ShutdownTimeoutSec: 10,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(dir, "focusd.log"),
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		Notify: NotifyConfig{
			Enabled:       false,
			OnDistraction: true,
			OnSessionEnd:  true,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(FocusdDir(), "config.toml")
}

// FocusdDir returns the base focusd data directory.
// Uses platform-specific paths or the FOCUSD_DATA_DIR environment override.
func FocusdDir() string {
	if envDir := os.Getenv("FOCUSD_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// LoadDotEnv loads a .env file from the working directory if present.
// Missing files are not an error.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads configuration from the specified path. If the file doesn't
// exist, returns the default configuration. Environment overrides are
// applied afterwards.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates all necessary directories for the daemon.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.Path),
		filepath.Dir(c.Logging.FilePath),
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// ApplyEnvOverrides applies environment variable overrides.
// Variables are prefixed with FOCUSD_; the API key additionally honors
// the conventional OPENAI_API_KEY.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("FOCUSD_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("FOCUSD_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("FOCUSD_STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("FOCUSD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FOCUSD_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("FOCUSD_MODEL"); v != "" {
		c.Classifier.Model = v
	}
	if v := os.Getenv("FOCUSD_SENSITIVITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Monitor.Sensitivity = n
		}
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Classifier.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.Classifier.BaseURL = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := Config{
		Version:    c.Version,
		Monitor:    c.Monitor,
		Classifier: c.Classifier,
		Audio:      c.Audio,
		Storage:    c.Storage,
		Server:     c.Server,
		Logging:    c.Logging,
		Notify:     c.Notify,
	}
	clone.Server.AllowedOrigins = append([]string{}, c.Server.AllowedOrigins...)
	return &clone
}

// SaveConfig writes the configuration to the given path in TOML format.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
