package tts

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// LoadConfig builds the effective configuration: defaults, then the
// viper-backed config file, then the environment.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	applyViper(&cfg)

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyViper overlays config file values. Only keys actually present
// in the file override the defaults.
func applyViper(cfg *Config) {
	if viper.IsSet("engine") {
		cfg.Engine = viper.GetString("engine")
	}

	if viper.IsSet("listen_addr") {
		cfg.ListenAddr = viper.GetString("listen_addr")
	}
	if viper.IsSet("max_text_length") {
		cfg.MaxTextLength = viper.GetInt("max_text_length")
	}
	if viper.IsSet("requests_per_sec") {
		cfg.RequestsPerSec = viper.GetFloat64("requests_per_sec")
	}
	if viper.IsSet("request_burst") {
		cfg.RequestBurst = viper.GetInt("request_burst")
	}
	if viper.IsSet("write_timeout") {
		cfg.WriteTimeout = viper.GetDuration("write_timeout")
	}

	if viper.IsSet("workers") {
		cfg.Workers = viper.GetInt("workers")
	}
	if viper.IsSet("job_timeout") {
		cfg.JobTimeout = viper.GetDuration("job_timeout")
	}

	if viper.IsSet("cache_dir") {
		cfg.CacheDir = viper.GetString("cache_dir")
	}
	if viper.IsSet("cache_max_units") {
		cfg.CacheMaxUnits = viper.GetInt("cache_max_units")
	}
	if viper.IsSet("cache_max_bytes") {
		cfg.CacheMaxBytes = viper.GetInt64("cache_max_bytes")
	}

	if viper.IsSet("volume") {
		cfg.Volume = viper.GetFloat64("volume")
	}
	if viper.IsSet("sample_rate") {
		cfg.SampleRate = viper.GetInt("sample_rate")
	}

	if viper.IsSet("command.binary") {
		cfg.Command.Binary = viper.GetString("command.binary")
	}
	if viper.IsSet("command.args") {
		cfg.Command.Args = viper.GetStringSlice("command.args")
	}
	if viper.IsSet("command.timeout") {
		cfg.Command.Timeout = viper.GetDuration("command.timeout")
	}

	if viper.IsSet("mock.generation_delay") {
		cfg.Mock.GenerationDelay = viper.GetDuration("mock.generation_delay")
	}
	if viper.IsSet("mock.words_per_minute") {
		cfg.Mock.WordsPerMinute = viper.GetInt("mock.words_per_minute")
	}
}
