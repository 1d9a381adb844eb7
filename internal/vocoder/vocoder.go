// Package vocoder reconstructs a time-domain waveform from neural codec
// embeddings. Each embedding row is interpreted as log-magnitude and phase of
// one spectral frame; frames are inverse-transformed, windowed and combined
// by weighted overlap-add.
package vocoder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Params holds the synthesis geometry. The defaults match the 24 kHz codec
// the embedding service ships with.
type Params struct {
	NFFT       int
	NHop       int
	NWin       int
	SampleRate int
	Workers    int
}

func DefaultParams() Params {
	return Params{
		NFFT:       1280,
		NHop:       320,
		NWin:       1280,
		SampleRate: 24000,
		Workers:    4,
	}
}

func (p Params) Validate() error {
	if p.NFFT <= 0 {
		return errors.New("n_fft must be positive")
	}
	if p.NHop <= 0 {
		return errors.New("n_hop must be positive")
	}
	if p.NWin <= 0 || p.NWin > p.NFFT {
		return errors.New("n_win must be positive and no larger than n_fft")
	}
	if p.NHop > p.NWin {
		return errors.New("n_hop must not exceed n_win")
	}
	if p.SampleRate <= 0 {
		return errors.New("sample_rate must be positive")
	}
	if p.Workers < 0 {
		return errors.New("workers must not be negative")
	}
	return nil
}

// Pad is the number of samples trimmed from each end of the folded buffers.
func (p Params) Pad() int {
	return (p.NWin - p.NHop) / 2
}

// OutputLen is the sample count produced for nCodes frames, after trimming.
func (p Params) OutputLen(nCodes int) int {
	return (nCodes-1)*p.NHop + p.NWin - 2*p.Pad()
}

// Vocoder runs the synthesis pipeline. It is safe for concurrent use: the
// window buffers are read-only after construction and every call works on its
// own frame state.
type Vocoder struct {
	params  Params
	window  []float64
	window2 []float64
	log     *slog.Logger

	tracer      trace.Tracer
	framesTotal metric.Int64Counter
	renderTime  metric.Float64Histogram
}

func New(params Params, log *slog.Logger) (*Vocoder, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.Workers == 0 {
		params.Workers = DefaultParams().Workers
	}

	window := HannWindow(params.NFFT, true)
	window2 := make([]float64, len(window))
	for i, w := range window {
		window2[i] = w * w
	}

	meter := otel.Meter("foldsynth/vocoder")
	framesTotal, err := meter.Int64Counter("vocoder.frames.synthesized",
		metric.WithDescription("Codec frames converted to audio"))
	if err != nil {
		return nil, err
	}
	renderTime, err := meter.Float64Histogram("vocoder.render.seconds",
		metric.WithDescription("Wall time per synthesis run"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Vocoder{
		params:      params,
		window:      window,
		window2:     window2,
		log:         log.With(slog.String("component", "vocoder")),
		tracer:      otel.Tracer("foldsynth/vocoder"),
		framesTotal: framesTotal,
		renderTime:  renderTime,
	}, nil
}

func (v *Vocoder) Params() Params { return v.params }

// Synthesize converts a flat nCodes x nEmbd embedding matrix into a float
// waveform in nominal [-1, 1]. The per-frame inverse transforms run on a
// bounded worker pool; everything else is a sequential reduction so the
// output is deterministic for a given input.
func (v *Vocoder) Synthesize(ctx context.Context, embd []float32, nCodes, nEmbd int) ([]float64, error) {
	ctx, span := v.tracer.Start(ctx, "vocoder.synthesize", trace.WithAttributes(
		attribute.Int("codec.frames", nCodes),
		attribute.Int("codec.embedding_width", nEmbd),
	))
	defer span.End()
	start := time.Now()

	spectra, err := buildSpectra(embd, nCodes, nEmbd)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	frames, err := v.synthesizeFrames(ctx, spectra)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	p := v.params
	nPad := p.Pad()
	nOut := (nCodes-1)*p.NHop + p.NWin

	energyFrames := make([][]float64, nCodes)
	for i := range energyFrames {
		energyFrames[i] = v.window2
	}

	audio := fold(frames, nOut, p.NWin, p.NHop, nPad)
	energy := fold(energyFrames, nOut, p.NWin, p.NHop, nPad)
	normalize(audio, energy)

	elapsed := time.Since(start)
	v.framesTotal.Add(ctx, int64(nCodes))
	v.renderTime.Record(ctx, elapsed.Seconds())
	v.log.Debug("synthesis complete",
		slog.Int("frames", nCodes),
		slog.Int("samples", len(audio)),
		slog.Duration("elapsed", elapsed))

	return audio, nil
}

// synthesizeFrames is the fork-join region: frames are independent, so a
// bounded pool inverse-transforms them concurrently and results land in a
// per-index slot. Collection is by frame index, which keeps the later fold
// deterministic.
func (v *Vocoder) synthesizeFrames(ctx context.Context, spectra [][]complex128) ([][]float64, error) {
	workers := v.params.Workers
	if workers > len(spectra) {
		workers = len(spectra)
	}

	frames := make([][]float64, len(spectra))
	jobs := make(chan int)

	var wg sync.WaitGroup
	var once sync.Once
	var runErr error
	abort := func(err error) {
		once.Do(func() { runErr = err })
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				select {
				case <-ctx.Done():
					abort(ctx.Err())
					return
				default:
				}
				frames[idx] = synthesizeFrame(spectra[idx], v.window, v.params.NFFT)
			}
		}()
	}

feed:
	for i := range spectra {
		select {
		case jobs <- i:
		case <-ctx.Done():
			abort(ctx.Err())
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if runErr != nil {
		return nil, runErr
	}
	return frames, nil
}

// MuteLeadIn zeroes the first d of the waveform. The codec emits a warm-up
// transient at the start of a generation; the reference decoder silences the
// first quarter second before writing.
func MuteLeadIn(samples []float64, sampleRate int, d time.Duration) {
	n := int(d.Seconds() * float64(sampleRate))
	if n > len(samples) {
		n = len(samples)
	}
	for i := 0; i < n; i++ {
		samples[i] = 0
	}
}
