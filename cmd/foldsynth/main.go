// foldsynth renders one utterance from the command line: it samples codec
// tokens from the completion server, fetches their embeddings and writes the
// synthesized waveform as a WAV file.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/foldaudio/foldsynth/internal/config"
	"github.com/foldaudio/foldsynth/internal/player"
	"github.com/foldaudio/foldsynth/internal/synth"
)

func main() {
	var (
		configPath string
		text       string
		outPath    string
		voicePath  string
		llmHost    string
		decHost    string
		play       bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file (optional)")
	flag.StringVar(&text, "text", "", "Text to synthesize")
	flag.StringVar(&outPath, "out", "output.wav", "Output WAV path")
	flag.StringVar(&voicePath, "voice", "", "Voice token file (JSON)")
	flag.StringVar(&llmHost, "llm", "", "Completion server endpoint override")
	flag.StringVar(&decHost, "dec", "", "Embedding server endpoint override")
	flag.BoolVar(&play, "play", false, "Play the rendered file with the configured player")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if text == "" {
		logger.Error("no text given, use -text")
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if llmHost != "" {
		cfg.Codec.CompletionEndpoint = llmHost
	}
	if decHost != "" {
		cfg.Codec.EmbeddingEndpoint = decHost
	}
	if voicePath != "" {
		cfg.Codec.VoicePath = voicePath
	}

	renderer, err := synth.NewRenderer(cfg.Codec, cfg.Vocoder, logger)
	if err != nil {
		logger.Error("failed to create renderer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()
	res, err := renderer.Render(ctx, text, outPath)
	if err != nil {
		logger.Error("render failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("wrote audio",
		slog.String("path", res.Path),
		slog.Int("samples", res.Samples),
		slog.Int("sample_rate", res.SampleRate))

	if play {
		pl, err := player.New(cfg.Player.Command, logger)
		if err != nil {
			logger.Error("failed to create player", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := pl.Play(ctx, res.Path); err != nil {
			logger.Error("playback failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
}
