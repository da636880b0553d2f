// Package audio finishes raw generated waveforms into game-ready clips:
// peak normalization followed by a crossfade that makes the clip loop
// without an audible seam.
package audio

import "math"

const (
	// TargetPeak is the absolute peak amplitude after normalization.
	TargetPeak = 0.8
	// Epsilon keeps normalization of silent input finite.
	Epsilon = 1e-6

	MusicSampleRate = 32000
	VoiceSampleRate = 44100
)

// Waveform is mono samples in [-1, 1] at SampleRate Hz.
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the clip length in seconds.
func (w Waveform) Duration() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Normalize scales samples so the absolute peak equals TargetPeak.
// All-zero input stays all-zero. The input slice is not modified.
func Normalize(samples []float64) []float64 {
	peak := 0.0
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	peak += Epsilon

	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s / peak * TargetPeak
	}
	return out
}

// CrossfadeLength returns the number of samples blended by CrossfadeLoop:
// min(n/4, crossfadeSeconds*sampleRate), truncated.
func CrossfadeLength(n, sampleRate int, crossfadeSeconds float64) int {
	k := math.Min(float64(n/4), crossfadeSeconds*float64(sampleRate))
	if k <= 0 {
		return 0
	}
	return int(k)
}

// CrossfadeLoop blends the last k samples into the first k with a linear
// fade and drops the tail, so playback can wrap from the end of the result
// straight back to its start. The result has n-k samples; k <= 0 returns the
// input unchanged.
func CrossfadeLoop(samples []float64, sampleRate int, crossfadeSeconds float64) []float64 {
	n := len(samples)
	k := CrossfadeLength(n, sampleRate, crossfadeSeconds)
	if k <= 0 {
		return samples
	}

	head := samples[:k]
	tail := samples[n-k:]

	var middle []float64
	if n > 2*k {
		middle = samples[k : n-k]
	}

	out := make([]float64, 0, k+len(middle))
	for i := 0; i < k; i++ {
		fadeOut := linearFadeOut(i, k)
		out = append(out, head[i]*(1-fadeOut)+tail[i]*fadeOut)
	}
	return append(out, middle...)
}

// linearFadeOut is sample i of a ramp from 1.0 to 0.0 over k samples,
// both endpoints included.
func linearFadeOut(i, k int) float64 {
	if k == 1 {
		return 1
	}
	return 1 - float64(i)/float64(k-1)
}

// Finish normalizes w and, for a positive crossfade, loops it.
func Finish(w Waveform, crossfadeSeconds float64) Waveform {
	normalized := Normalize(w.Samples)
	return Waveform{
		Samples:    CrossfadeLoop(normalized, w.SampleRate, crossfadeSeconds),
		SampleRate: w.SampleRate,
	}
}
