package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/foldaudio/foldsynth/internal/bus"
	"github.com/foldaudio/foldsynth/internal/jobstore"
	"github.com/foldaudio/foldsynth/internal/player"
	"github.com/foldaudio/foldsynth/internal/protocol"
)

// Service renders synthesis requests arriving on the bus and publishes
// results when the WAV is on disk.
type Service struct {
	renderer  *Renderer
	bus       *bus.Client
	store     *jobstore.Store
	player    *player.Player
	outputDir string
	sub       *nats.Subscription
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
}

func NewService(parent context.Context, renderer *Renderer, busClient *bus.Client, store *jobstore.Store, pl *player.Player, outputDir string, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		renderer:  renderer,
		bus:       busClient,
		store:     store,
		player:    pl,
		outputDir: outputDir,
		ctx:       ctx,
		cancel:    cancel,
		logger:    log.With(slog.String("component", "synth-service")),
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectSynthRequest, s.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribe synth requests: %w", err)
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.SynthRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode synth request", slogError(err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.logger.Warn("ignoring synth request with empty text", slog.String("session_id", req.SessionID))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, 180*time.Second)
		defer cancel()

		jobID := uuid.NewString()
		name := req.OutputName
		if name == "" {
			name = jobID + ".wav"
		}
		path := filepath.Join(s.outputDir, name)

		res, err := s.renderer.Render(ctx, req.Text, path)
		if err != nil {
			s.logger.Warn("render failed", slogError(err), slog.String("session_id", req.SessionID))
			s.publishResult(protocol.SynthResult{
				SessionID: req.SessionID,
				JobID:     jobID,
				Error:     err.Error(),
				Timestamp: time.Now().UTC(),
			})
			return
		}

		if err := s.store.Record(ctx, jobstore.Job{
			ID:         jobID,
			SessionID:  req.SessionID,
			Text:       req.Text,
			Frames:     res.Frames,
			Samples:    res.Samples,
			SampleRate: res.SampleRate,
			OutputPath: res.Path,
			LatencyMS:  res.Latency.Milliseconds(),
		}); err != nil {
			s.logger.Warn("failed to record job", slogError(err))
		}

		s.publishResult(protocol.SynthResult{
			SessionID:  req.SessionID,
			JobID:      jobID,
			Path:       res.Path,
			Frames:     res.Frames,
			Samples:    res.Samples,
			SampleRate: res.SampleRate,
			LatencyMS:  res.Latency.Milliseconds(),
			Timestamp:  time.Now().UTC(),
		})

		if s.player != nil {
			if err := s.player.Play(ctx, res.Path); err != nil {
				s.logger.Warn("playback failed", slogError(err))
			}
		}
	}()
}

func (s *Service) publishResult(res protocol.SynthResult) {
	data, err := json.Marshal(res)
	if err != nil {
		s.logger.Warn("failed to marshal synth result", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectSynthResult, data); err != nil {
		s.logger.Warn("failed to publish synth result", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
