package config

import (
	"strings"
	"testing"
)

const fullConfig = `
server:
  listen_addr: ":9090"
  log_level: "debug"
channel:
  kind: "managed-media"
  media_server:
    ws_uri: "ws://media.local:8888/media"
    probe_interval_seconds: 10
    initial_backoff_ms: 500
    max_backoff_ms: 30000
vad:
  scorer: "silero"
  silero_ws_url: "ws://silero.local:9000"
  threshold: 0.6
  min_silence_duration_ms: 400
  frame_duration_ms: 20
  sample_rate: 8000
pipeline:
  system_prompt: "You are a concise assistant."
  max_history_turns: 10
providers:
  stt:
    api_key: "sk-test"
    model: "whisper-large"
  llm:
    provider: "openai"
    model: "gpt-4o-mini"
    api_key: "sk-test"
  tts:
    base_url: "http://localhost:5002"
`

func TestLoadFromReaderFull(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(fullConfig))
	if err != nil {
		t.Fatalf("LoadFromReader returned error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Channel.Kind != ChannelManagedMedia {
		t.Errorf("Channel.Kind = %q, want managed-media", cfg.Channel.Kind)
	}
	if cfg.Channel.MediaServer.ProbeIntervalSeconds != 10 {
		t.Errorf("ProbeIntervalSeconds = %d, want 10", cfg.Channel.MediaServer.ProbeIntervalSeconds)
	}
	if cfg.VAD.Scorer != ScorerSilero {
		t.Errorf("VAD.Scorer = %q, want silero", cfg.VAD.Scorer)
	}
	if cfg.VAD.Threshold != 0.6 {
		t.Errorf("VAD.Threshold = %v, want 0.6", cfg.VAD.Threshold)
	}
	if cfg.Pipeline.MaxHistoryTurns != 10 {
		t.Errorf("MaxHistoryTurns = %d, want 10", cfg.Pipeline.MaxHistoryTurns)
	}
}

func TestLoadFromReaderDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("server:\n  listen_addr: \":8081\"\n"))
	if err != nil {
		t.Fatalf("LoadFromReader returned error: %v", err)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("default LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Channel.Kind != ChannelInline {
		t.Errorf("default Channel.Kind = %q, want inline", cfg.Channel.Kind)
	}
	if cfg.VAD.Scorer != ScorerEnergy {
		t.Errorf("default VAD.Scorer = %q, want energy", cfg.VAD.Scorer)
	}
	if cfg.VAD.Threshold != 0.5 {
		t.Errorf("default VAD.Threshold = %v, want 0.5", cfg.VAD.Threshold)
	}
	if cfg.VAD.MinSilenceDurationMs != 500 {
		t.Errorf("default MinSilenceDurationMs = %d, want 500", cfg.VAD.MinSilenceDurationMs)
	}
	if cfg.VAD.FrameDurationMs != 50 {
		t.Errorf("default FrameDurationMs = %d, want 50", cfg.VAD.FrameDurationMs)
	}
	if cfg.VAD.SampleRate != 16000 {
		t.Errorf("default SampleRate = %d, want 16000", cfg.VAD.SampleRate)
	}
	if cfg.Channel.MediaServer.ProbeIntervalSeconds != 30 {
		t.Errorf("default ProbeIntervalSeconds = %d, want 30", cfg.Channel.MediaServer.ProbeIntervalSeconds)
	}
	if cfg.Channel.MediaServer.InitialBackoffMs != 1000 {
		t.Errorf("default InitialBackoffMs = %d, want 1000", cfg.Channel.MediaServer.InitialBackoffMs)
	}
	if cfg.Channel.MediaServer.MaxBackoffMs != 60000 {
		t.Errorf("default MaxBackoffMs = %d, want 60000", cfg.Channel.MediaServer.MaxBackoffMs)
	}
	if cfg.Pipeline.MaxHistoryTurns != 20 {
		t.Errorf("default MaxHistoryTurns = %d, want 20", cfg.Pipeline.MaxHistoryTurns)
	}
	if cfg.Providers.STT.Model != "whisper-1" {
		t.Errorf("default STT.Model = %q, want whisper-1", cfg.Providers.STT.Model)
	}
}

func TestLoadFromReaderEnvSubstitution(t *testing.T) {
	t.Setenv("OVERTONE_TEST_KEY", "sk-from-env")
	cfg, err := LoadFromReader(strings.NewReader("providers:\n  stt:\n    api_key: \"${OVERTONE_TEST_KEY}\"\n"))
	if err != nil {
		t.Fatalf("LoadFromReader returned error: %v", err)
	}
	if cfg.Providers.STT.APIKey != "sk-from-env" {
		t.Errorf("STT.APIKey = %q, want sk-from-env", cfg.Providers.STT.APIKey)
	}
}

func TestLoadFromReaderBareDollarUntouched(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("pipeline:\n  system_prompt: \"price is $5\"\n"))
	if err != nil {
		t.Fatalf("LoadFromReader returned error: %v", err)
	}
	if cfg.Pipeline.SystemPrompt != "price is $5" {
		t.Errorf("SystemPrompt = %q, want untouched dollar sign", cfg.Pipeline.SystemPrompt)
	}
}

func TestLoadFromReaderUnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  bogus_field: true\n"))
	if err == nil {
		t.Fatal("LoadFromReader accepted an unknown field")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantSub: "server.log_level",
		},
		{
			name:    "invalid channel kind",
			mutate:  func(c *Config) { c.Channel.Kind = "pubsub" },
			wantSub: "channel.kind",
		},
		{
			name:    "managed-media without ws uri",
			mutate:  func(c *Config) { c.Channel.Kind = ChannelManagedMedia },
			wantSub: "channel.media_server.ws_uri",
		},
		{
			name:    "managed-room without url",
			mutate:  func(c *Config) { c.Channel.Kind = ChannelManagedRoom },
			wantSub: "channel.room.url",
		},
		{
			name: "managed-room without credentials",
			mutate: func(c *Config) {
				c.Channel.Kind = ChannelManagedRoom
				c.Channel.Room.URL = "wss://rooms.example.com"
			},
			wantSub: "channel.room.api_key",
		},
		{
			name:    "silero without url",
			mutate:  func(c *Config) { c.VAD.Scorer = ScorerSilero },
			wantSub: "vad.silero_ws_url",
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *Config) { c.VAD.Threshold = 1.5 },
			wantSub: "vad.threshold",
		},
		{
			name:    "negative silence duration",
			mutate:  func(c *Config) { c.VAD.MinSilenceDurationMs = -1 },
			wantSub: "vad.min_silence_duration_ms",
		},
		{
			name:    "negative history",
			mutate:  func(c *Config) { c.Pipeline.MaxHistoryTurns = -5 },
			wantSub: "pipeline.max_history_turns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.ApplyDefaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate accepted an invalid config")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Validate error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.Server.LogLevel = "verbose"
	cfg.VAD.Threshold = -2
	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	msg := err.Error()
	for _, want := range []string{"server.log_level", "vad.threshold"} {
		if !strings.Contains(msg, want) {
			t.Errorf("joined error %q missing %q", msg, want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/overtone.yaml")
	if err == nil {
		t.Fatal("Load accepted a missing file")
	}
	if !strings.Contains(err.Error(), "config: open") {
		t.Errorf("error %q missing open context", err)
	}
}

func TestLoadFromReaderMalformedYAML(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server: [unbalanced"))
	if err == nil {
		t.Fatal("LoadFromReader accepted malformed YAML")
	}
}
