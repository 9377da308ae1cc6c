package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"tarot-backend/repository"
	"tarot-backend/storage"

	"github.com/google/uuid"
)

// AudioService narrates readings, one narration at a time per installation
type AudioService struct {
	history     repository.HistoryStore
	synthesizer Synthesizer
	storage     storage.Storage
	logger      *slog.Logger

	gate *inflight
}

// AudioServiceOption is a functional option for AudioService
type AudioServiceOption func(*AudioService)

// AudioWithHistoryStore sets the history store
func AudioWithHistoryStore(store repository.HistoryStore) AudioServiceOption {
	return func(s *AudioService) {
		s.history = store
	}
}

// AudioWithSynthesizer sets the speech provider
func AudioWithSynthesizer(synth Synthesizer) AudioServiceOption {
	return func(s *AudioService) {
		s.synthesizer = synth
	}
}

// AudioWithStorage sets where narration clips are cached; nil disables caching
func AudioWithStorage(store storage.Storage) AudioServiceOption {
	return func(s *AudioService) {
		s.storage = store
	}
}

// AudioWithLogger sets the logger
func AudioWithLogger(logger *slog.Logger) AudioServiceOption {
	return func(s *AudioService) {
		s.logger = logger
	}
}

// NewAudioService creates a new audio service
func NewAudioService(opts ...AudioServiceOption) *AudioService {
	s := &AudioService{
		logger: slog.Default(),
		gate:   newInflight(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NarrateResult is a WAV clip of a reading's interpretation
type NarrateResult struct {
	WAV    []byte
	Cached bool
}

// Narrate returns the narration of a stored reading. A second call while one
// is running for the same installation fails with ErrPlaybackActive; the
// guard is released on success and failure alike.
func (s *AudioService) Narrate(ctx context.Context, installationID uuid.UUID, readingID string) (*NarrateResult, error) {
	if s.history == nil {
		return nil, errors.New("history store not set")
	}
	if s.synthesizer == nil {
		return nil, errors.New("synthesizer not set")
	}

	if !s.gate.acquire(installationID) {
		return nil, ErrPlaybackActive
	}
	defer s.gate.release(installationID)

	reading, err := s.history.Get(ctx, installationID, readingID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrReadingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reading: %w", err)
	}

	key := storage.NarrationKey(installationID, reading.ID)
	if clip := s.cached(ctx, key); clip != nil {
		return &NarrateResult{WAV: clip, Cached: true}, nil
	}

	buf, err := s.synthesizer.Synthesize(ctx, reading.Interpretation)
	if err != nil {
		s.logger.Error("Narration failed",
			slog.String("installation_id", installationID.String()),
			slog.String("reading_id", reading.ID),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", ErrNarrationFailed, err)
	}
	if buf == nil || len(buf.Samples) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNarrationFailed, ErrEmptyResponse)
	}

	clip := buf.WAV()
	if s.storage != nil {
		if _, err := s.storage.Upload(ctx, key, "audio/wav", bytes.NewReader(clip)); err != nil {
			s.logger.Warn("Failed to cache narration", slog.String("key", key), slog.Any("error", err))
		}
	}

	s.logger.Info("Narration synthesized",
		slog.String("reading_id", reading.ID),
		slog.Float64("seconds", buf.Duration()))
	return &NarrateResult{WAV: clip}, nil
}

func (s *AudioService) cached(ctx context.Context, key string) []byte {
	if s.storage == nil {
		return nil
	}

	rc, err := s.storage.Download(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Warn("Narration cache lookup failed", slog.String("key", key), slog.Any("error", err))
		}
		return nil
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil || len(data) == 0 {
		return nil
	}
	return data
}
