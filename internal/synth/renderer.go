// Package synth drives a full text-to-WAV render: codec token sampling,
// embedding fetch, vocoder synthesis and file output.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/foldaudio/foldsynth/internal/codec"
	"github.com/foldaudio/foldsynth/internal/config"
	"github.com/foldaudio/foldsynth/internal/vocoder"
	"github.com/foldaudio/foldsynth/internal/wavio"
)

// Renderer owns the collaborator clients and the vocoder for one codec
// configuration. It is shared by the bus service and the one-shot CLI.
type Renderer struct {
	completion *codec.CompletionClient
	embedding  *codec.EmbeddingClient
	voice      *codec.Voice
	voc        *vocoder.Vocoder
	leadInMute time.Duration
	log        *slog.Logger
}

// Result describes a finished render.
type Result struct {
	Path       string
	Frames     int
	Samples    int
	SampleRate int
	Latency    time.Duration
}

func NewRenderer(cfg config.CodecConfig, vocCfg config.VocoderConfig, log *slog.Logger) (*Renderer, error) {
	params := vocoder.Params{
		NFFT:       vocCfg.NFFT,
		NHop:       vocCfg.NHop,
		NWin:       vocCfg.NWin,
		SampleRate: vocCfg.SampleRate,
		Workers:    vocCfg.Workers,
	}
	voc, err := vocoder.New(params, log)
	if err != nil {
		return nil, fmt.Errorf("create vocoder: %w", err)
	}

	var voice *codec.Voice
	if cfg.VoicePath != "" {
		voice, err = codec.LoadVoice(cfg.VoicePath)
		if err != nil {
			return nil, err
		}
	}

	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	completion := codec.NewCompletionClient(cfg.CompletionEndpoint,
		codec.WithNPredict(cfg.NPredict),
		codec.WithTopK(cfg.TopK),
		codec.WithSeed(cfg.Seed),
		codec.WithTimeout(timeout),
	)

	return &Renderer{
		completion: completion,
		embedding:  codec.NewEmbeddingClient(cfg.EmbeddingEndpoint),
		voice:      voice,
		voc:        voc,
		leadInMute: time.Duration(vocCfg.LeadInMuteMS) * time.Millisecond,
		log:        log.With(slog.String("component", "renderer")),
	}, nil
}

// Render synthesizes text into a WAV file at path.
func (r *Renderer) Render(ctx context.Context, text, path string) (Result, error) {
	start := time.Now()

	tokens, err := r.completion.Complete(ctx, text, r.voice)
	if err != nil {
		return Result{}, fmt.Errorf("sample codec tokens: %w", err)
	}
	codes := codec.ExtractCodes(tokens)
	if len(codes) == 0 {
		return Result{}, fmt.Errorf("completion produced no codec tokens")
	}

	embd, nCodes, nEmbd, err := r.embedding.Embed(ctx, codes)
	if err != nil {
		return Result{}, fmt.Errorf("fetch embeddings: %w", err)
	}

	audio, err := r.voc.Synthesize(ctx, embd, nCodes, nEmbd)
	if err != nil {
		return Result{}, fmt.Errorf("synthesize: %w", err)
	}

	sampleRate := r.voc.Params().SampleRate
	if r.leadInMute > 0 {
		vocoder.MuteLeadIn(audio, sampleRate, r.leadInMute)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := wavio.WriteFile(path, audio, sampleRate); err != nil {
		return Result{}, err
	}

	res := Result{
		Path:       path,
		Frames:     nCodes,
		Samples:    len(audio),
		SampleRate: sampleRate,
		Latency:    time.Since(start),
	}
	r.log.Info("render complete",
		slog.String("path", path),
		slog.Int("frames", res.Frames),
		slog.Int("samples", res.Samples),
		slog.Duration("latency", res.Latency))
	return res, nil
}
