package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-accent/internal/config"
)

// ErrTranscription marks audio that could not be converted to text.
var ErrTranscription = errors.New("transcription failed")

// TranscriptResult captures recognizer output.
type TranscriptResult struct {
	Text       string
	Confidence float64
	Language   string
}

// Recognizer abstracts STT backends. Implementations are constructed once per
// process and shared across requests.
type Recognizer interface {
	Transcribe(ctx context.Context, wavPath string) (TranscriptResult, error)
}

// New builds the recognizer selected by cfg.Mode.
func New(cfg config.STTConfig) (Recognizer, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockRecognizer(cfg.MockTranscript), nil
	case "exec":
		return NewExecRecognizer(cfg)
	default:
		return nil, fmt.Errorf("unsupported stt mode %q", cfg.Mode)
	}
}

func checkTranscript(res TranscriptResult) (TranscriptResult, error) {
	res.Text = strings.TrimSpace(res.Text)
	if res.Text == "" {
		return TranscriptResult{}, fmt.Errorf("%w: empty transcript", ErrTranscription)
	}
	return res, nil
}
