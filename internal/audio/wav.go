package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

const (
	pcmFormat   = 1
	pcmBitDepth = 16
)

// ErrInvalidWAV is returned for data that is not a readable PCM WAV stream.
var ErrInvalidWAV = errors.New("audio: invalid wav data")

// EncodeWAV writes w as mono 16-bit PCM. Samples outside [-1, 1] are clipped.
func EncodeWAV(out io.WriteSeeker, w Waveform) error {
	if w.SampleRate <= 0 {
		return fmt.Errorf("audio: invalid sample rate %d", w.SampleRate)
	}

	data := make([]int, len(w.Samples))
	for i, s := range w.Samples {
		s = math.Max(-1, math.Min(1, s))
		data[i] = int(math.Round(s * math.MaxInt16))
	}

	enc := wav.NewEncoder(out, w.SampleRate, pcmBitDepth, 1, pcmFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: w.SampleRate},
		Data:           data,
		SourceBitDepth: pcmBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalize wav: %w", err)
	}
	return nil
}

// DecodeWAV reads a PCM WAV stream, downmixing multi-channel audio to mono
// by averaging channels.
func DecodeWAV(r io.ReadSeeker) (Waveform, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Waveform{}, ErrInvalidWAV
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Waveform{}, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
	}
	if buf == nil || buf.Format == nil || buf.Format.SampleRate <= 0 {
		return Waveform{}, ErrInvalidWAV
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 {
		bitDepth = pcmBitDepth
	}
	scale := math.Pow(2, float64(bitDepth-1))

	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for f := 0; f < frames; f++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[f*channels+c]) / scale
		}
		samples[f] = sum / float64(channels)
	}

	return Waveform{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

// DecodeWAVBytes is DecodeWAV over an in-memory payload.
func DecodeWAVBytes(data []byte) (Waveform, error) {
	return DecodeWAV(bytes.NewReader(data))
}

// WriteFile encodes w to path. The file appears atomically: it is written
// under a temporary name in the same directory and renamed into place.
func WriteFile(path string, w Waveform) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("audio: create dir: %w", err)
	}

	tmpPath := filepath.Join(dir, ".tmp-"+uuid.NewString()+".wav")
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("audio: create temp file: %w", err)
	}

	if err := EncodeWAV(f, w); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("audio: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("audio: rename into place: %w", err)
	}
	return nil
}

// ReadFile decodes the WAV file at path.
func ReadFile(path string) (Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return Waveform{}, fmt.Errorf("audio: open: %w", err)
	}
	defer f.Close()

	return DecodeWAV(f)
}
