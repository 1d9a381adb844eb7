package vocoder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newVocoder(t *testing.T, params Params) *Vocoder {
	t.Helper()
	v, err := New(params, newLogger())
	if err != nil {
		t.Fatalf("create vocoder: %v", err)
	}
	return v
}

func TestParamsValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero fft", func(p *Params) { p.NFFT = 0 }},
		{"zero hop", func(p *Params) { p.NHop = 0 }},
		{"win exceeds fft", func(p *Params) { p.NWin = p.NFFT + 1 }},
		{"hop exceeds win", func(p *Params) { p.NHop = p.NWin + 1 }},
		{"zero sample rate", func(p *Params) { p.SampleRate = 0 }},
		{"negative workers", func(p *Params) { p.Workers = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultParams()
			tc.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params should validate: %v", err)
	}
}

func TestSynthesizeSingleFlatFrame(t *testing.T) {
	// One frame of zeros: magnitude 1, phase 0 on both populated bins.
	// The result is fully determined by the inverse transform of that
	// flat spectrum, and its length is n_win - 2*n_pad.
	v := newVocoder(t, DefaultParams())
	audio, err := v.Synthesize(context.Background(), make([]float32, 4), 1, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := v.Params().OutputLen(1); len(audio) != want {
		t.Fatalf("expected %d samples, got %d", want, len(audio))
	}
	for i, s := range audio {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			t.Fatalf("sample %d is not finite: %g", i, s)
		}
	}
}

func TestSynthesizeOutputLength(t *testing.T) {
	p := DefaultParams()
	v := newVocoder(t, p)
	nEmbd := 8
	for _, nCodes := range []int{1, 2, 5, 17} {
		audio, err := v.Synthesize(context.Background(), make([]float32, nCodes*nEmbd), nCodes, nEmbd)
		if err != nil {
			t.Fatalf("nCodes=%d: unexpected error: %v", nCodes, err)
		}
		want := (nCodes-1)*p.NHop + p.NWin - 2*p.Pad()
		if len(audio) != want {
			t.Fatalf("nCodes=%d: expected %d samples, got %d", nCodes, want, len(audio))
		}
	}
}

func TestSynthesizeIsDeterministic(t *testing.T) {
	v := newVocoder(t, DefaultParams())
	embd := make([]float32, 6*256)
	for i := range embd {
		embd[i] = float32(i%17)*0.05 - 0.4
	}

	first, err := v.Synthesize(context.Background(), embd, 6, 256)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := v.Synthesize(context.Background(), embd, 6, 256)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("run lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("sample %d differs between runs: %g vs %g", i, first[i], second[i])
		}
	}
}

func TestSynthesizeWorkerCountsAgree(t *testing.T) {
	embd := make([]float32, 5*64)
	for i := range embd {
		embd[i] = float32((i*31)%11) * 0.1
	}

	p1 := DefaultParams()
	p1.Workers = 1
	serial, err := newVocoder(t, p1).Synthesize(context.Background(), embd, 5, 64)
	if err != nil {
		t.Fatalf("serial run: %v", err)
	}

	p8 := DefaultParams()
	p8.Workers = 8
	parallel, err := newVocoder(t, p8).Synthesize(context.Background(), embd, 5, 64)
	if err != nil {
		t.Fatalf("parallel run: %v", err)
	}

	for i := range serial {
		if serial[i] != parallel[i] {
			t.Fatalf("sample %d differs across worker counts: %g vs %g", i, serial[i], parallel[i])
		}
	}
}

func TestSynthesizeShapeError(t *testing.T) {
	v := newVocoder(t, DefaultParams())
	_, err := v.Synthesize(context.Background(), make([]float32, 5), 1, 5)
	var shapeErr *ShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("expected ShapeError, got %v", err)
	}
}

func TestSynthesizeCancelledContext(t *testing.T) {
	v := newVocoder(t, DefaultParams())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := v.Synthesize(ctx, make([]float32, 64*4), 64, 4)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMuteLeadIn(t *testing.T) {
	samples := []float64{1, 1, 1, 1, 1, 1, 1, 1}
	MuteLeadIn(samples, 8, 500*time.Millisecond) // 0.5 s at 8 Hz mutes 4 samples
	for i := 0; i < 4; i++ {
		if samples[i] != 0 {
			t.Fatalf("sample %d should be muted", i)
		}
	}
	for i := 4; i < 8; i++ {
		if samples[i] != 1 {
			t.Fatalf("sample %d should be untouched", i)
		}
	}
}
