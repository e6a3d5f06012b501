// Package config loads chappy configuration from layered YAML files.
//
// Configuration resolves in three passes: compiled defaults, base.yaml,
// then an environment-specific overlay (e.g. pc.dev.yaml). Environment
// variables prefixed CHAPPY_ win over everything. Credentials are never
// read from YAML; they come from the process environment only.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type AudioConfig struct {
	SampleRate   int    `yaml:"sample_rate"`
	Channels     int    `yaml:"channels"`
	InputDevice  string `yaml:"input_device"`
	OutputDevice string `yaml:"output_device"`
}

type TimeoutConfig struct {
	UtteranceTimeoutSec int `yaml:"utterance_timeout_sec"`
	SessionTimeoutSec   int `yaml:"session_timeout_sec"`
}

type RealtimeConfig struct {
	Model                   string `yaml:"model"`
	Endpoint                string `yaml:"endpoint"`
	Voice                   string `yaml:"voice"`
	SampleRate              int    `yaml:"sample_rate"`
	MaxSessionMinutes       int    `yaml:"max_session_minutes"`
	ServerVADIdleTimeoutSec int    `yaml:"server_vad_idle_timeout_sec"`
}

type CalendarConfig struct {
	ReminderMinutesDefault int    `yaml:"reminder_minutes_default"`
	DefaultDurationMinutes int    `yaml:"default_duration_minutes"`
	LookaheadMinutes       int    `yaml:"lookahead_minutes"`
	StorePath              string `yaml:"store_path"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	Mode     string         `yaml:"mode"`
	Audio    AudioConfig    `yaml:"audio"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Calendar CalendarConfig `yaml:"calendar"`
	Web      WebConfig      `yaml:"web"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Mode: "dev",
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
		},
		Timeouts: TimeoutConfig{
			UtteranceTimeoutSec: 2,
			SessionTimeoutSec:   10,
		},
		Realtime: RealtimeConfig{
			Model:                   "gpt-4o-realtime-preview",
			Endpoint:                "wss://api.openai.com/v1/realtime",
			Voice:                   "shimmer",
			SampleRate:              24000,
			MaxSessionMinutes:       60,
			ServerVADIdleTimeoutSec: 10,
		},
		Calendar: CalendarConfig{
			ReminderMinutesDefault: 10,
			DefaultDurationMinutes: 30,
			LookaheadMinutes:       15,
		},
		Web: WebConfig{
			Enabled: false,
			Bind:    "127.0.0.1",
			Port:    8090,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads base.yaml plus the named environment overlay from dir.
// A missing overlay is fine; a missing base.yaml is not, unless dir is empty
// (defaults-only mode for tests and dry runs).
func Load(dir, env string) (Config, error) {
	cfg := Default()

	if dir != "" {
		if err := mergeFile(&cfg, filepath.Join(dir, "base.yaml"), true); err != nil {
			return cfg, err
		}
		if env != "" {
			if err := mergeFile(&cfg, filepath.Join(dir, env+".yaml"), false); err != nil {
				return cfg, err
			}
			cfg.Mode = env
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// mergeFile decodes path into cfg. Fields absent from the document keep
// their current values, which is what gives the base+overlay layering.
func mergeFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Mode, "CHAPPY_MODE")
	overrideInt(&cfg.Audio.SampleRate, "CHAPPY_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "CHAPPY_AUDIO_CHANNELS")
	overrideString(&cfg.Audio.InputDevice, "CHAPPY_AUDIO_INPUT_DEVICE")
	overrideString(&cfg.Audio.OutputDevice, "CHAPPY_AUDIO_OUTPUT_DEVICE")
	overrideInt(&cfg.Timeouts.UtteranceTimeoutSec, "CHAPPY_UTTERANCE_TIMEOUT_SEC")
	overrideInt(&cfg.Timeouts.SessionTimeoutSec, "CHAPPY_SESSION_TIMEOUT_SEC")
	overrideString(&cfg.Realtime.Model, "CHAPPY_REALTIME_MODEL")
	overrideString(&cfg.Realtime.Endpoint, "CHAPPY_REALTIME_ENDPOINT")
	overrideString(&cfg.Realtime.Voice, "CHAPPY_REALTIME_VOICE")
	overrideInt(&cfg.Realtime.SampleRate, "CHAPPY_REALTIME_SAMPLE_RATE")
	overrideInt(&cfg.Realtime.ServerVADIdleTimeoutSec, "CHAPPY_REALTIME_IDLE_TIMEOUT_SEC")
	overrideInt(&cfg.Calendar.ReminderMinutesDefault, "CHAPPY_CALENDAR_REMINDER_MINUTES")
	overrideString(&cfg.Calendar.StorePath, "CHAPPY_CALENDAR_STORE_PATH")
	overrideBool(&cfg.Web.Enabled, "CHAPPY_WEB_ENABLED")
	overrideString(&cfg.Web.Bind, "CHAPPY_WEB_BIND")
	overrideInt(&cfg.Web.Port, "CHAPPY_WEB_PORT")
	overrideString(&cfg.Logging.Level, "CHAPPY_LOG_LEVEL")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

// Validate checks invariants the rest of the system assumes.
func (c Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if c.Audio.Channels != 1 {
		return errors.New("audio.channels must be 1 (mono PCM16)")
	}
	if c.Timeouts.UtteranceTimeoutSec < 1 {
		return errors.New("timeouts.utterance_timeout_sec must be >= 1")
	}
	if c.Timeouts.SessionTimeoutSec < 1 {
		return errors.New("timeouts.session_timeout_sec must be >= 1")
	}
	if c.Realtime.Endpoint == "" {
		return errors.New("realtime.endpoint must not be empty")
	}
	if c.Realtime.SampleRate <= 0 {
		return errors.New("realtime.sample_rate must be positive")
	}
	if c.Realtime.ServerVADIdleTimeoutSec <= 0 {
		return errors.New("realtime.server_vad_idle_timeout_sec must be positive")
	}
	if c.Calendar.ReminderMinutesDefault < 0 {
		return errors.New("calendar.reminder_minutes_default must be >= 0")
	}
	if c.Calendar.DefaultDurationMinutes <= 0 {
		return errors.New("calendar.default_duration_minutes must be positive")
	}
	if c.Web.Enabled && (c.Web.Port <= 0 || c.Web.Port > 65535) {
		return errors.New("web.port must be between 1 and 65535")
	}
	return nil
}
