package synth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/foldaudio/foldsynth/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// smallGeometry keeps the inverse transform tiny so the full pipeline runs in
// microseconds: 8-point frames with a hop of 2.
func smallGeometry() config.VocoderConfig {
	return config.VocoderConfig{
		NFFT:       8,
		NHop:       2,
		NWin:       8,
		SampleRate: 8000,
		Workers:    1,
	}
}

func newCodecServers(t *testing.T, tokens []int, embedding [][]float32) (completion, embeddings *httptest.Server) {
	t.Helper()
	completion = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"tokens": tokens})
	}))
	t.Cleanup(completion.Close)
	embeddings = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{{"embedding": embedding}})
	}))
	t.Cleanup(embeddings.Close)
	return completion, embeddings
}

func TestRenderEndToEnd(t *testing.T) {
	// Two codec tokens survive extraction; the embedding server maps them to
	// two frames of 8 spectral values each.
	tokens := []int{42, 151672 + 5, 151672 + 9, 200000}
	embedding := [][]float32{
		{0, 0.1, -0.1, 0, 0.2, 0, 0, 0},
		{0.1, 0, 0, -0.2, 0, 0.1, 0, 0},
	}
	completion, embeddings := newCodecServers(t, tokens, embedding)

	cfg := config.CodecConfig{
		CompletionEndpoint: completion.URL,
		EmbeddingEndpoint:  embeddings.URL,
		NPredict:           64,
		TopK:               16,
		Seed:               1003,
		TimeoutMS:          5000,
	}
	r, err := NewRenderer(cfg, smallGeometry(), newLogger())
	if err != nil {
		t.Fatalf("create renderer: %v", err)
	}

	path := filepath.Join(t.TempDir(), "render", "out.wav")
	res, err := r.Render(context.Background(), "hello world", path)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if res.Frames != 2 {
		t.Fatalf("expected 2 frames, got %d", res.Frames)
	}
	// (frames-1)*hop + win - 2*pad with pad = (win-hop)/2 = 3.
	if res.Samples != 4 {
		t.Fatalf("expected 4 samples, got %d", res.Samples)
	}
	if res.SampleRate != 8000 {
		t.Fatalf("expected sample rate 8000, got %d", res.SampleRate)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(data) != 44+2*res.Samples {
		t.Fatalf("expected %d bytes on disk, got %d", 44+2*res.Samples, len(data))
	}
}

func TestRenderFailsWithoutCodecTokens(t *testing.T) {
	// The completion returns only text tokens, so extraction yields nothing.
	completion, embeddings := newCodecServers(t, []int{1, 2, 3}, nil)

	cfg := config.CodecConfig{
		CompletionEndpoint: completion.URL,
		EmbeddingEndpoint:  embeddings.URL,
		NPredict:           64,
		TopK:               16,
		TimeoutMS:          5000,
	}
	r, err := NewRenderer(cfg, smallGeometry(), newLogger())
	if err != nil {
		t.Fatalf("create renderer: %v", err)
	}

	if _, err := r.Render(context.Background(), "hi", filepath.Join(t.TempDir(), "out.wav")); err == nil {
		t.Fatal("expected error when no codec tokens are produced")
	}
}

func TestNewRendererLoadsVoice(t *testing.T) {
	voicePath := filepath.Join(t.TempDir(), "voice.json")
	if err := os.WriteFile(voicePath, []byte("[151672]"), 0o644); err != nil {
		t.Fatalf("write voice file: %v", err)
	}

	cfg := config.CodecConfig{
		CompletionEndpoint: "http://localhost:8020",
		EmbeddingEndpoint:  "http://localhost:8021",
		VoicePath:          voicePath,
		NPredict:           64,
		TopK:               16,
	}
	r, err := NewRenderer(cfg, smallGeometry(), newLogger())
	if err != nil {
		t.Fatalf("create renderer: %v", err)
	}
	if r.voice == nil || len(r.voice.Tokens) != 1 {
		t.Fatal("voice not loaded")
	}

	cfg.VoicePath = filepath.Join(t.TempDir(), "missing.json")
	if _, err := NewRenderer(cfg, smallGeometry(), newLogger()); err == nil {
		t.Fatal("expected error for missing voice file")
	}
}
