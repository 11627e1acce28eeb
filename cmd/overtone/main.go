// Command overtone is the main entry point for the Overtone voice
// orchestration server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/overtone-ai/overtone/internal/channel"
	"github.com/overtone-ai/overtone/internal/channel/inline"
	"github.com/overtone-ai/overtone/internal/channel/mediaserver"
	"github.com/overtone-ai/overtone/internal/channel/room"
	"github.com/overtone-ai/overtone/internal/config"
	"github.com/overtone-ai/overtone/internal/observe"
	"github.com/overtone-ai/overtone/internal/pipeline"
	"github.com/overtone-ai/overtone/internal/server"
	"github.com/overtone-ai/overtone/internal/vad"
	"github.com/overtone-ai/overtone/pkg/provider/llm/anyllm"
	"github.com/overtone-ai/overtone/pkg/provider/score"
	"github.com/overtone-ai/overtone/pkg/provider/score/energy"
	"github.com/overtone-ai/overtone/pkg/provider/score/silero"
	"github.com/overtone-ai/overtone/pkg/provider/stt/openai"
	"github.com/overtone-ai/overtone/pkg/provider/tts/coqui"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "overtone: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "overtone: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("overtone starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"channel", cfg.Channel.Kind,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetryShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Voice activity segmenter ──────────────────────────────────────────────
	seg := vad.New(buildScorer(ctx, cfg),
		vad.WithThreshold(cfg.VAD.Threshold),
		vad.WithSilenceWindow(cfg.VAD.MinSilenceDurationMs, cfg.VAD.FrameDurationMs),
		vad.WithLogger(logger),
	)

	// ── Pipeline providers ────────────────────────────────────────────────────
	recognizer, err := openai.New(cfg.Providers.STT.APIKey,
		openai.WithBaseURL(cfg.Providers.STT.BaseURL),
		openai.WithModel(cfg.Providers.STT.Model),
		openai.WithLanguage(cfg.Providers.STT.Language),
		openai.WithSampleRate(cfg.VAD.SampleRate),
	)
	if err != nil {
		slog.Error("failed to build recognizer", "err", err)
		return 1
	}

	var backendOpts []anyllmlib.Option
	if cfg.Providers.LLM.APIKey != "" {
		backendOpts = append(backendOpts, anyllmlib.WithAPIKey(cfg.Providers.LLM.APIKey))
	}
	if cfg.Providers.LLM.BaseURL != "" {
		backendOpts = append(backendOpts, anyllmlib.WithBaseURL(cfg.Providers.LLM.BaseURL))
	}
	generator, err := anyllm.New(cfg.Providers.LLM.Provider, cfg.Providers.LLM.Model,
		[]anyllm.Option{anyllm.WithSystemPrompt(cfg.Pipeline.SystemPrompt)},
		backendOpts...,
	)
	if err != nil {
		slog.Error("failed to build generator", "err", err)
		return 1
	}

	synthesizer := coqui.New(cfg.Providers.TTS.BaseURL,
		coqui.WithLanguage(cfg.Providers.TTS.Language),
		coqui.WithSpeaker(cfg.Providers.TTS.Speaker),
	)

	pipe := pipeline.New(recognizer, generator, synthesizer,
		pipeline.WithMaxHistoryTurns(cfg.Pipeline.MaxHistoryTurns),
		pipeline.WithEventBuffer(cfg.Pipeline.EventBuffer),
		pipeline.WithMetrics(metrics),
		pipeline.WithLogger(logger),
	)

	// ── Channel strategy ──────────────────────────────────────────────────────
	strategy, supervisor := buildChannel(cfg, logger, metrics)

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := server.New(cfg.Server.ListenAddr, strategy, seg, pipe,
		server.WithSignalingAddress(signalingAddress(cfg)),
		server.WithMetrics(metrics),
		server.WithLogger(logger),
	)

	slog.Info("server ready, press Ctrl+C to shut down")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	if supervisor != nil {
		g.Go(func() error {
			supervisor.Run(ctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildScorer selects the segmenter's probability backend. An unreachable
// Silero service degrades to energy scoring with a warning instead of
// failing startup.
func buildScorer(ctx context.Context, cfg *config.Config) score.Scorer {
	if cfg.VAD.Scorer != config.ScorerSilero {
		return energy.New()
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	scorer, err := silero.New(dialCtx, cfg.VAD.SileroWsURL)
	if err != nil {
		slog.Warn("silero scorer unreachable, degrading to energy scoring",
			"ws_url", cfg.VAD.SileroWsURL, "err", err)
		return energy.New()
	}
	return scorer
}

// buildChannel constructs the configured strategy. For managed-media it also
// returns the connection supervisor, which the caller must run.
func buildChannel(cfg *config.Config, logger *slog.Logger, metrics *observe.Metrics) (channel.Strategy, *mediaserver.Supervisor) {
	switch cfg.Channel.Kind {
	case config.ChannelManagedMedia:
		ms := cfg.Channel.MediaServer
		supervisor := mediaserver.NewSupervisor(
			func(ctx context.Context) (mediaserver.Backend, error) {
				return mediaserver.Dial(ctx, ms.WsURI)
			},
			mediaserver.WithProbeInterval(time.Duration(ms.ProbeIntervalSeconds)*time.Second),
			mediaserver.WithBackoff(
				time.Duration(ms.InitialBackoffMs)*time.Millisecond,
				time.Duration(ms.MaxBackoffMs)*time.Millisecond,
			),
			mediaserver.WithSupervisorLogger(logger),
			mediaserver.WithSupervisorMetrics(metrics),
		)
		return mediaserver.New(supervisor, logger), supervisor
	case config.ChannelManagedRoom:
		r := cfg.Channel.Room
		client := room.NewClient(r.URL, r.APIKey, r.APISecret,
			room.WithTokenTTL(time.Duration(r.TokenTTLMinutes)*time.Minute))
		return room.New(client, logger), nil
	default:
		return inline.New(logger), nil
	}
}

// signalingAddress derives the advertised signaling URL when none is
// configured.
func signalingAddress(cfg *config.Config) string {
	if cfg.Server.SignalingAddress != "" {
		return cfg.Server.SignalingAddress
	}
	addr := cfg.Server.ListenAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "ws://" + addr + "/ws"
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
