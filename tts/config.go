package tts

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config contains all readaloud configuration options. Values come
// from the config file via viper and from the environment via
// caarlos0/env tags; the environment wins.
type Config struct {
	// Engine selection
	Engine string `yaml:"engine" env:"READALOUD_ENGINE"`

	// Server settings
	ListenAddr     string        `yaml:"listen_addr" env:"READALOUD_LISTEN_ADDR"`
	MaxTextLength  int           `yaml:"max_text_length" env:"READALOUD_MAX_TEXT_LENGTH"`
	RequestsPerSec float64       `yaml:"requests_per_sec" env:"READALOUD_REQUESTS_PER_SEC"`
	RequestBurst   int           `yaml:"request_burst" env:"READALOUD_REQUEST_BURST"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"READALOUD_WRITE_TIMEOUT"`

	// Scheduler settings
	Workers    int           `yaml:"workers" env:"READALOUD_WORKERS"`
	JobTimeout time.Duration `yaml:"job_timeout" env:"READALOUD_JOB_TIMEOUT"`

	// Cache settings
	CacheDir      string `yaml:"cache_dir" env:"READALOUD_CACHE_DIR"`
	CacheMaxUnits int    `yaml:"cache_max_units" env:"READALOUD_CACHE_MAX_UNITS"`
	CacheMaxBytes int64  `yaml:"cache_max_bytes" env:"READALOUD_CACHE_MAX_BYTES"`

	// Playback settings
	Volume     float64 `yaml:"volume" env:"READALOUD_VOLUME"`
	SampleRate int     `yaml:"sample_rate" env:"READALOUD_SAMPLE_RATE"`

	// Engine-specific configurations
	Command CommandConfig `yaml:"command"`
	Mock    MockConfig    `yaml:"mock"`
}

// CommandConfig configures the subprocess synthesis engine.
type CommandConfig struct {
	Binary  string        `yaml:"binary" env:"READALOUD_COMMAND_BINARY"`
	Args    []string      `yaml:"args" env:"READALOUD_COMMAND_ARGS" envSeparator:" "`
	Timeout time.Duration `yaml:"timeout" env:"READALOUD_COMMAND_TIMEOUT"`
}

// MockConfig configures the mock engine used in tests and demos.
type MockConfig struct {
	GenerationDelay time.Duration `yaml:"generation_delay" env:"READALOUD_MOCK_DELAY"`
	WordsPerMinute  int           `yaml:"words_per_minute" env:"READALOUD_MOCK_WPM"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Engine:         "mock",
		ListenAddr:     "localhost:8560",
		MaxTextLength:  100000,
		RequestsPerSec: 4,
		RequestBurst:   8,
		WriteTimeout:   10 * time.Minute,
		Workers:        1,
		JobTimeout:     60 * time.Second,
		CacheMaxUnits:  2048,
		CacheMaxBytes:  1 << 30,
		Volume:         1.0,
		SampleRate:     24000,
		Command: CommandConfig{
			Binary:  "tortoise-cli",
			Timeout: 60 * time.Second,
		},
		Mock: MockConfig{
			WordsPerMinute: 150,
		},
	}
}

// Validate checks configuration values.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("job_timeout must be positive, got %v", c.JobTimeout)
	}
	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("volume must be between 0 and 1, got %.2f", c.Volume)
	}
	if c.CacheMaxUnits < 1 {
		return fmt.Errorf("cache_max_units must be at least 1, got %d", c.CacheMaxUnits)
	}
	if c.CacheMaxBytes < 1 {
		return fmt.Errorf("cache_max_bytes must be positive, got %d", c.CacheMaxBytes)
	}
	if c.MaxTextLength < 1 {
		return fmt.Errorf("max_text_length must be positive, got %d", c.MaxTextLength)
	}
	return nil
}

// ResolveCacheDir returns the configured cache directory, falling back
// to the user cache dir.
func (c *Config) ResolveCacheDir() string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		return filepath.Join(os.TempDir(), "readaloud-cache")
	}
	return filepath.Join(dir, "readaloud")
}
