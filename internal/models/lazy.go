package models

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"genforge-gateway/internal/audio"
)

type State int

const (
	StateUnloaded State = iota
	StateLoaded
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Loader builds a model. It runs at most once per successful load.
type Loader[T any] func(ctx context.Context) (T, error)

// Lazy holds one model and moves it Unloaded -> Loaded -> Released.
// A failed load leaves it Unloaded so the next caller tries again.
// Released is terminal.
type Lazy[T any] struct {
	name   string
	load   Loader[T]
	unload func(T) error
	logger *zap.Logger

	mu    sync.Mutex
	state State
	value T
}

// NewLazy wraps load. unload may be nil.
func NewLazy[T any](name string, load Loader[T], unload func(T) error, logger *zap.Logger) *Lazy[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lazy[T]{
		name:   name,
		load:   load,
		unload: unload,
		logger: logger.Named("model").With(zap.String("model", name)),
	}
}

// Get returns the loaded model, loading it on first use. Concurrent
// callers wait for the single in-flight load.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var zero T
	switch l.state {
	case StateLoaded:
		return l.value, nil
	case StateReleased:
		return zero, fmt.Errorf("%w: %s", ErrReleased, l.name)
	}

	start := time.Now()
	v, err := l.load(ctx)
	if err != nil {
		l.logger.Warn("model load failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return zero, fmt.Errorf("models: load %s: %w", l.name, err)
	}

	l.value = v
	l.state = StateLoaded
	l.logger.Info("model loaded", zap.Duration("duration", time.Since(start)))
	return v, nil
}

func (l *Lazy[T]) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Release tears the model down. Releasing an unloaded model only marks it
// released; releasing twice is a no-op.
func (l *Lazy[T]) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.state
	l.state = StateReleased
	if prev != StateLoaded {
		return nil
	}

	var zero T
	v := l.value
	l.value = zero
	l.logger.Info("model released")
	if l.unload != nil {
		return l.unload(v)
	}
	return nil
}

// LazyText adapts a lazily loaded TextGenerator.
type LazyText struct{ *Lazy[TextGenerator] }

func (l LazyText) GenerateText(ctx context.Context, prompt string, seed int64, temperature float32) (string, error) {
	m, err := l.Get(ctx)
	if err != nil {
		return "", err
	}
	return m.GenerateText(ctx, prompt, seed, temperature)
}

// LazyVision adapts a lazily loaded ImageAnalyzer.
type LazyVision struct{ *Lazy[ImageAnalyzer] }

func (l LazyVision) AnalyzeImage(ctx context.Context, image []byte, prompt string) (string, error) {
	m, err := l.Get(ctx)
	if err != nil {
		return "", err
	}
	return m.AnalyzeImage(ctx, image, prompt)
}

// LazyAudio adapts a lazily loaded AudioGenerator.
type LazyAudio struct{ *Lazy[AudioGenerator] }

func (l LazyAudio) GenerateAudio(ctx context.Context, prompt string, seed int64, durationSeconds float64) (audio.Waveform, error) {
	m, err := l.Get(ctx)
	if err != nil {
		return audio.Waveform{}, err
	}
	return m.GenerateAudio(ctx, prompt, seed, durationSeconds)
}

// LazySpeech adapts a lazily loaded SpeechSynthesizer.
type LazySpeech struct{ *Lazy[SpeechSynthesizer] }

func (l LazySpeech) Synthesize(ctx context.Context, text, speakerRef string, seed int64) (audio.Waveform, error) {
	m, err := l.Get(ctx)
	if err != nil {
		return audio.Waveform{}, err
	}
	return m.Synthesize(ctx, text, speakerRef, seed)
}
