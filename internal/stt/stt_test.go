package stt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/loqalabs/loqa-accent/internal/config"
)

func TestMockRecognizer(t *testing.T) {
	r, err := New(config.STTConfig{Mode: "mock", MockTranscript: "  cheers mate  "})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := r.Transcribe(context.Background(), "ignored.wav")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Text != "cheers mate" {
		t.Fatalf("unexpected text %q", res.Text)
	}
}

func TestMockRecognizerEmptyTranscript(t *testing.T) {
	r := NewMockRecognizer("")
	if _, err := r.Transcribe(context.Background(), "x.wav"); !errors.Is(err, ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}
}

func TestNewRejectsUnknownMode(t *testing.T) {
	if _, err := New(config.STTConfig{Mode: "cloud"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stt.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExecRecognizerPassesFlags(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
printf '{"text":"%s","confidence":0.8,"language":"en"}' "$*"
`)
	r, err := NewExecRecognizer(config.STTConfig{Command: "sh " + script, ModelPath: "base.bin", Language: "en"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := r.Transcribe(context.Background(), "/tmp/clip.wav")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	want := "--audio /tmp/clip.wav --model base.bin --language en"
	if res.Text != want {
		t.Fatalf("expected args %q, got %q", want, res.Text)
	}
	if res.Confidence != 0.8 || res.Language != "en" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestExecRecognizerFailures(t *testing.T) {
	cases := map[string]string{
		"non-zero exit": "#!/bin/sh\necho 'model not found' >&2\nexit 3\n",
		"invalid json":  "#!/bin/sh\necho 'not json'\n",
		"empty text":    "#!/bin/sh\necho '{\"text\":\"   \"}'\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			r, err := NewExecRecognizer(config.STTConfig{Command: "sh " + writeScript(t, body)})
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			if _, err := r.Transcribe(context.Background(), "clip.wav"); !errors.Is(err, ErrTranscription) {
				t.Fatalf("expected ErrTranscription, got %v", err)
			}
		})
	}
}
