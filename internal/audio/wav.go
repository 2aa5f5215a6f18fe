package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-accent/internal/accent"
)

const wavFormatPCM = 1

// ErrUnsupported is returned for well-formed files the decoder cannot handle,
// such as IEEE float WAV.
var ErrUnsupported = errors.New("unsupported audio format")

// DecodeFile reads a PCM WAV file into a mono signal.
func DecodeFile(path string) (accent.Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return accent.Signal{}, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads PCM WAV data, down-mixes all channels and scales samples to
// [-1, 1]. A file without sample data yields an empty signal.
func Decode(r io.ReadSeeker) (accent.Signal, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return accent.Signal{}, errors.New("decode wav: not a valid wav file")
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return accent.Signal{}, fmt.Errorf("decode wav: format %d: %w", dec.WavAudioFormat, ErrUnsupported)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return accent.Signal{}, fmt.Errorf("decode wav: %w", err)
	}
	channels := int(dec.NumChans)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	if channels <= 0 {
		return accent.Signal{}, errors.New("decode wav: missing channel count")
	}
	sig := accent.Signal{SampleRate: int(dec.SampleRate)}
	if sig.SampleRate <= 0 {
		return accent.Signal{}, fmt.Errorf("decode wav: invalid sample rate %d", dec.SampleRate)
	}
	sig.Samples = downmix(buf.Data, channels, int(dec.BitDepth))
	return sig, nil
}

func downmix(data []int, channels, bitDepth int) []float64 {
	frames := len(data) / channels
	out := make([]float64, frames)
	scale := math.Exp2(float64(bitDepth - 1))
	offset := 0.0
	if bitDepth == 8 {
		// 8-bit WAV is unsigned.
		offset = 128
	}
	for i := 0; i < frames; i++ {
		sum := 0.0
		for ch := 0; ch < channels; ch++ {
			sum += float64(data[i*channels+ch]) - offset
		}
		out[i] = sum / float64(channels) / scale
	}
	return out
}

// FromPCM16 converts little-endian signed 16-bit PCM into a mono signal.
func FromPCM16(pcm []byte, sampleRate, channels int) (accent.Signal, error) {
	if len(pcm)%2 != 0 {
		return accent.Signal{}, fmt.Errorf("pcm payload not aligned")
	}
	if sampleRate <= 0 {
		return accent.Signal{}, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if channels <= 0 {
		return accent.Signal{}, fmt.Errorf("invalid channel count %d", channels)
	}
	if (len(pcm)/2)%channels != 0 {
		return accent.Signal{}, fmt.Errorf("pcm payload not aligned to %d channels", channels)
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return accent.Signal{Samples: downmix(samples, channels, 16), SampleRate: sampleRate}, nil
}

// WriteWAV encodes a signal as mono 16-bit PCM. Samples outside [-1, 1] are
// clipped.
func WriteWAV(w io.WriteSeeker, sig accent.Signal) error {
	if sig.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sig.SampleRate)
	}
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sig.SampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(sig.Samples)),
	}
	for i, v := range sig.Samples {
		v = math.Max(-1, math.Min(1, v))
		buffer.Data[i] = int(math.Round(v * math.MaxInt16))
	}

	enc := wav.NewEncoder(w, sig.SampleRate, 16, 1, wavFormatPCM)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// WriteTempWAV writes sig to a new file in dir and returns its path.
func WriteTempWAV(dir string, sig accent.Signal) (string, error) {
	file, err := os.CreateTemp(dir, "loqa_accent_*.wav")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	if err := WriteWAV(file, sig); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("close temp wav: %w", err)
	}
	return file.Name(), nil
}
