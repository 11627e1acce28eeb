package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, substitutes ${ENV_VAR}
// references, applies defaults, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, substitutes ${ENV_VAR}
// references from the process environment, applies defaults, and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	raw = expandEnv(raw)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references with values from the environment.
// Unset variables expand to the empty string. Bare $VAR is left untouched
// so YAML content containing dollar signs survives.
func expandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(m []byte) []byte {
		key := string(m[2 : len(m)-1])
		return []byte(os.Getenv(key))
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if !cfg.Channel.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("channel.kind %q is invalid; valid values: inline, managed-media, managed-room", cfg.Channel.Kind))
	}
	switch cfg.Channel.Kind {
	case ChannelManagedMedia:
		if cfg.Channel.MediaServer.WsURI == "" {
			errs = append(errs, errors.New("channel.media_server.ws_uri is required for the managed-media channel"))
		}
	case ChannelManagedRoom:
		if cfg.Channel.Room.URL == "" {
			errs = append(errs, errors.New("channel.room.url is required for the managed-room channel"))
		}
		if cfg.Channel.Room.APIKey == "" || cfg.Channel.Room.APISecret == "" {
			errs = append(errs, errors.New("channel.room.api_key and channel.room.api_secret are required for the managed-room channel"))
		}
	}

	if !cfg.VAD.Scorer.IsValid() {
		errs = append(errs, fmt.Errorf("vad.scorer %q is invalid; valid values: silero, energy", cfg.VAD.Scorer))
	}
	if cfg.VAD.Scorer == ScorerSilero && cfg.VAD.SileroWsURL == "" {
		errs = append(errs, errors.New("vad.silero_ws_url is required when vad.scorer is silero"))
	}
	if cfg.VAD.Threshold < 0 || cfg.VAD.Threshold > 1 {
		errs = append(errs, fmt.Errorf("vad.threshold %.2f is out of range [0, 1]", cfg.VAD.Threshold))
	}
	if cfg.VAD.MinSilenceDurationMs < 0 {
		errs = append(errs, fmt.Errorf("vad.min_silence_duration_ms must not be negative, got %d", cfg.VAD.MinSilenceDurationMs))
	}
	if cfg.VAD.FrameDurationMs <= 0 {
		errs = append(errs, fmt.Errorf("vad.frame_duration_ms must be positive, got %d", cfg.VAD.FrameDurationMs))
	}
	if cfg.VAD.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("vad.sample_rate must be positive, got %d", cfg.VAD.SampleRate))
	}

	if cfg.Pipeline.MaxHistoryTurns < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_history_turns must not be negative, got %d", cfg.Pipeline.MaxHistoryTurns))
	}

	return errors.Join(errs...)
}
