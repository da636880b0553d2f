// Package models holds the opaque model collaborators used by the content
// generators and the lifecycle wrapper that loads them on first use.
package models

import (
	"context"
	"errors"

	"genforge-gateway/internal/audio"
)

var (
	// ErrReleased is returned by a Lazy model used after Release.
	ErrReleased = errors.New("models: model released")
	// ErrUnavailable means a sidecar is down or its circuit is open.
	ErrUnavailable = errors.New("models: backend unavailable")
	// ErrRejected means a sidecar refused the request itself (4xx).
	ErrRejected = errors.New("models: request rejected")
)

// TextGenerator produces free text for a prompt. The same seed and
// temperature should reproduce the same text on deterministic backends.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, seed int64, temperature float32) (string, error)
}

// ImageAnalyzer answers a prompt about an image.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, image []byte, prompt string) (string, error)
}

// AudioGenerator renders roughly durationSeconds of audio for a prompt.
type AudioGenerator interface {
	GenerateAudio(ctx context.Context, prompt string, seed int64, durationSeconds float64) (audio.Waveform, error)
}

// SpeechSynthesizer speaks text in the voice of speakerRef.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, speakerRef string, seed int64) (audio.Waveform, error)
}
