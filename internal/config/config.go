// Package config provides the configuration schema and loader for the
// Overtone voice-interaction server.
package config

// LogLevel controls log verbosity for the Overtone server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// ChannelKind selects the transport strategy that owns session lifecycles.
type ChannelKind string

const (
	// ChannelInline carries signaling and binary audio over one WebSocket
	// connection handled in-process.
	ChannelInline ChannelKind = "inline"

	// ChannelManagedMedia delegates negotiation and audio transport to an
	// external media server.
	ChannelManagedMedia ChannelKind = "managed-media"

	// ChannelManagedRoom delegates to an external room service; clients
	// connect to it directly with an issued access token.
	ChannelManagedRoom ChannelKind = "managed-room"
)

// IsValid reports whether k is a recognised channel kind.
func (k ChannelKind) IsValid() bool {
	switch k {
	case ChannelInline, ChannelManagedMedia, ChannelManagedRoom:
		return true
	}
	return false
}

// ScorerKind selects the speech-probability backend for the segmenter.
type ScorerKind string

const (
	// ScorerSilero uses a remote Silero VAD inference service.
	ScorerSilero ScorerKind = "silero"

	// ScorerEnergy uses the built-in average-magnitude heuristic.
	ScorerEnergy ScorerKind = "energy"
)

// IsValid reports whether s is a recognised scorer kind.
func (s ScorerKind) IsValid() bool {
	return s == ScorerSilero || s == ScorerEnergy
}

// Config is the root configuration structure for Overtone.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Channel   ChannelConfig   `yaml:"channel"`
	VAD       VADConfig       `yaml:"vad"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds network and logging settings for the Overtone server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// SignalingAddress is the externally reachable WebSocket URL advertised to
	// clients starting an inline session (e.g., "ws://host:8080/ws"). When
	// empty it is derived from ListenAddr.
	SignalingAddress string `yaml:"signaling_address"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ChannelConfig selects and configures the active channel strategy.
type ChannelConfig struct {
	// Kind is the strategy selected at startup. Default: inline.
	Kind ChannelKind `yaml:"kind"`

	MediaServer MediaServerConfig `yaml:"media_server"`
	Room        RoomConfig        `yaml:"room"`
}

// MediaServerConfig configures the managed-media strategy and its supervisor.
type MediaServerConfig struct {
	// WsURI is the control WebSocket of the external media server
	// (e.g., "ws://localhost:8888/media").
	WsURI string `yaml:"ws_uri"`

	// ProbeIntervalSeconds is the health-probe period. Default: 30.
	ProbeIntervalSeconds int `yaml:"probe_interval_seconds"`

	// InitialBackoffMs is the first reconnect delay after a failure.
	// Doubles per failure up to MaxBackoffMs. Default: 1000.
	InitialBackoffMs int `yaml:"initial_backoff_ms"`

	// MaxBackoffMs caps the reconnect delay. Default: 60000.
	MaxBackoffMs int `yaml:"max_backoff_ms"`
}

// RoomConfig configures the managed-room strategy.
type RoomConfig struct {
	// URL is the room service endpoint clients connect to directly
	// (e.g., "wss://rooms.example.com").
	URL string `yaml:"url"`

	// APIKey and APISecret authenticate this server to the room service and
	// sign issued access tokens.
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`

	// TokenTTLMinutes bounds the validity of issued access tokens. Default: 60.
	TokenTTLMinutes int `yaml:"token_ttl_minutes"`
}

// VADConfig tunes the voice-activity segmenter.
type VADConfig struct {
	// Scorer selects the probability backend. Default: energy. When silero is
	// selected but unreachable at startup, the segmenter degrades to energy
	// scoring with a warning.
	Scorer ScorerKind `yaml:"scorer"`

	// SileroWsURL is the Silero inference service endpoint, required when
	// Scorer is "silero".
	SileroWsURL string `yaml:"silero_ws_url"`

	// Threshold is the speech probability above which a frame counts as
	// speech. Default: 0.5.
	Threshold float64 `yaml:"threshold"`

	// MinSilenceDurationMs is how much trailing silence ends an utterance.
	// Default: 500.
	MinSilenceDurationMs int `yaml:"min_silence_duration_ms"`

	// FrameDurationMs is the duration of one audio frame. Default: 50.
	FrameDurationMs int `yaml:"frame_duration_ms"`

	// SampleRate is the PCM sample rate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`
}

// PipelineConfig tunes the orchestration pipeline.
type PipelineConfig struct {
	// SystemPrompt is the instruction applied to every generation request.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxHistoryTurns bounds the per-session conversation history fed to the
	// generator. Default: 20.
	MaxHistoryTurns int `yaml:"max_history_turns"`

	// EventBuffer is the per-session event channel depth. Default: 16.
	EventBuffer int `yaml:"event_buffer"`
}

// ProvidersConfig selects the recognizer, generator, and synthesizer backends.
type ProvidersConfig struct {
	STT STTConfig `yaml:"stt"`
	LLM LLMConfig `yaml:"llm"`
	TTS TTSConfig `yaml:"tts"`
}

// STTConfig configures the speech recognizer.
type STTConfig struct {
	// APIKey authenticates against the OpenAI-compatible transcription API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the API base URL (e.g., a local Whisper server).
	BaseURL string `yaml:"base_url"`

	// Model is the transcription model. Default: whisper-1.
	Model string `yaml:"model"`

	// Language is an optional ISO-639-1 recognition hint.
	Language string `yaml:"language"`
}

// LLMConfig configures the response generator.
type LLMConfig struct {
	// Provider is the any-llm-go backend name (openai, anthropic, gemini,
	// ollama, deepseek, mistral, groq).
	Provider string `yaml:"provider"`

	// Model is the specific model (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// APIKey authenticates against the backend. Empty falls back to the
	// backend's environment variable.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend base URL.
	BaseURL string `yaml:"base_url"`
}

// TTSConfig configures the speech synthesizer.
type TTSConfig struct {
	// BaseURL is the Coqui TTS server address (e.g., "http://localhost:5002").
	BaseURL string `yaml:"base_url"`

	// Language is the language_id for multilingual models.
	Language string `yaml:"language"`

	// Speaker is the speaker_id for multi-speaker models.
	Speaker string `yaml:"speaker"`
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Channel.Kind == "" {
		c.Channel.Kind = ChannelInline
	}
	if c.Channel.MediaServer.ProbeIntervalSeconds == 0 {
		c.Channel.MediaServer.ProbeIntervalSeconds = 30
	}
	if c.Channel.MediaServer.InitialBackoffMs == 0 {
		c.Channel.MediaServer.InitialBackoffMs = 1000
	}
	if c.Channel.MediaServer.MaxBackoffMs == 0 {
		c.Channel.MediaServer.MaxBackoffMs = 60000
	}
	if c.Channel.Room.TokenTTLMinutes == 0 {
		c.Channel.Room.TokenTTLMinutes = 60
	}
	if c.VAD.Scorer == "" {
		c.VAD.Scorer = ScorerEnergy
	}
	if c.VAD.Threshold == 0 {
		c.VAD.Threshold = 0.5
	}
	if c.VAD.MinSilenceDurationMs == 0 {
		c.VAD.MinSilenceDurationMs = 500
	}
	if c.VAD.FrameDurationMs == 0 {
		c.VAD.FrameDurationMs = 50
	}
	if c.VAD.SampleRate == 0 {
		c.VAD.SampleRate = 16000
	}
	if c.Pipeline.MaxHistoryTurns == 0 {
		c.Pipeline.MaxHistoryTurns = 20
	}
	if c.Pipeline.EventBuffer == 0 {
		c.Pipeline.EventBuffer = 16
	}
	if c.Providers.STT.Model == "" {
		c.Providers.STT.Model = "whisper-1"
	}
}
