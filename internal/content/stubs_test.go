package content

import (
	"context"
	"errors"
	"math"
	"sync"

	"genforge-gateway/internal/audio"
)

// scriptedText answers with replies in order and repeats the last one.
type scriptedText struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	seeds   []int64
	prompts []string
}

func (s *scriptedText) GenerateText(_ context.Context, prompt string, seed int64, _ float32) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.seeds)
	s.seeds = append(s.seeds, seed)
	s.prompts = append(s.prompts, prompt)

	if n < len(s.errs) && s.errs[n] != nil {
		return "", s.errs[n]
	}
	if len(s.replies) == 0 {
		return "", errors.New("no reply scripted")
	}
	return s.replies[min(n, len(s.replies)-1)], nil
}

func (s *scriptedText) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seeds)
}

type scriptedVision struct {
	replies []string
	calls   int
}

func (s *scriptedVision) AnalyzeImage(_ context.Context, _ []byte, _ string) (string, error) {
	r := s.replies[min(s.calls, len(s.replies)-1)]
	s.calls++
	return r, nil
}

// tone is a sine clip with the given peak.
func tone(n, sampleRate int, peak float64) audio.Waveform {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = peak * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
	}
	return audio.Waveform{Samples: samples, SampleRate: sampleRate}
}

type fakeSpeech struct {
	mu     sync.Mutex
	texts  []string
	seeds  []int64
	active int
	peak   int
	fail   error
}

func (f *fakeSpeech) Synthesize(_ context.Context, text, _ string, seed int64) (audio.Waveform, error) {
	f.mu.Lock()
	f.active++
	f.peak = max(f.peak, f.active)
	f.texts = append(f.texts, text)
	f.seeds = append(f.seeds, seed)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.fail != nil {
		return audio.Waveform{}, f.fail
	}
	return tone(4410, audio.VoiceSampleRate, 0.3), nil
}

type fakeMusic struct {
	mu      sync.Mutex
	prompts []string
	seeds   []int64
}

func (f *fakeMusic) GenerateAudio(_ context.Context, prompt string, seed int64, durationSeconds float64) (audio.Waveform, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.seeds = append(f.seeds, seed)
	f.mu.Unlock()

	// a few milliseconds per requested second keeps tests fast
	return tone(int(durationSeconds*float64(audio.MusicSampleRate)/100), audio.MusicSampleRate, 0.5), nil
}

func (f *fakeMusic) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}
