package audio

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-accent/internal/accent"
)

func TestWriteAndDecodeRoundTrip(t *testing.T) {
	sig := accent.Signal{SampleRate: 16000, Samples: make([]float64, 1600)}
	for i := range sig.Samples {
		sig.Samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/16000)
	}
	path, err := WriteTempWAV(t.TempDir(), sig)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SampleRate != 16000 || len(got.Samples) != len(sig.Samples) {
		t.Fatalf("unexpected signal: rate=%d len=%d", got.SampleRate, len(got.Samples))
	}
	for i := range got.Samples {
		if math.Abs(got.Samples[i]-sig.Samples[i]) > 1e-3 {
			t.Fatalf("sample %d: expected %f, got %f", i, sig.Samples[i], got.Samples[i])
		}
	}
}

func TestWriteClipsOutOfRangeSamples(t *testing.T) {
	path, err := WriteTempWAV(t.TempDir(), accent.Signal{SampleRate: 8000, Samples: []float64{2, -3, 0}})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Samples[0] < 0.99 || got.Samples[1] > -0.99 {
		t.Fatalf("expected clipped samples, got %v", got.Samples)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	if err := os.WriteFile(path, []byte("definitely not riff data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeFile(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDecodeMissingFile(t *testing.T) {
	if _, err := DecodeFile(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFromPCM16Downmix(t *testing.T) {
	pcm := make([]byte, 8)
	frames := []int16{16384, -16384, 32767, 32767}
	for i, v := range frames {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	sig, err := FromPCM16(pcm, 8000, 2)
	if err != nil {
		t.Fatalf("from pcm: %v", err)
	}
	if len(sig.Samples) != 2 {
		t.Fatalf("expected 2 mono frames, got %d", len(sig.Samples))
	}
	if sig.Samples[0] != 0 {
		t.Fatalf("expected opposite channels to cancel, got %f", sig.Samples[0])
	}
	if sig.Samples[1] < 0.99 {
		t.Fatalf("expected near full scale, got %f", sig.Samples[1])
	}
}

func TestFromPCM16Validation(t *testing.T) {
	cases := map[string]struct {
		pcm      []byte
		rate, ch int
		wantErr  string
	}{
		"odd bytes":  {pcm: []byte{1, 2, 3}, rate: 8000, ch: 1, wantErr: "aligned"},
		"zero rate":  {pcm: []byte{1, 2}, rate: 0, ch: 1, wantErr: "sample rate"},
		"zero chans": {pcm: []byte{1, 2}, rate: 8000, ch: 0, wantErr: "channel"},
		"ragged":     {pcm: []byte{1, 2, 3, 4, 5, 6}, rate: 8000, ch: 2, wantErr: "channels"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromPCM16(tc.pcm, tc.rate, tc.ch)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestFromPCM16Empty(t *testing.T) {
	sig, err := FromPCM16(nil, 16000, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sig.Empty() {
		t.Fatalf("expected empty signal")
	}
}
