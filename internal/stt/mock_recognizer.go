package stt

import (
	"context"
)

type mockRecognizer struct {
	text string
}

// NewMockRecognizer returns a recognizer that always yields text. An empty
// text makes every call fail like unintelligible audio would.
func NewMockRecognizer(text string) Recognizer {
	return &mockRecognizer{text: text}
}

func (m *mockRecognizer) Transcribe(ctx context.Context, _ string) (TranscriptResult, error) {
	if err := ctx.Err(); err != nil {
		return TranscriptResult{}, err
	}
	return checkTranscript(TranscriptResult{Text: m.text, Confidence: 1})
}
