package protocol

import "time"

const (
	SubjectAnalyzeRequest = "accent.analyze.request"
	SubjectAnalyzeResult  = "accent.analyze.result"
	QueueAnalyzers        = "accent-analyzers"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// AnalyzeRequest asks for one accent analysis. Either Source or PCM must be
// set; PCM is little-endian signed 16-bit audio.
type AnalyzeRequest struct {
	RequestID  string    `json:"request_id,omitempty"`
	Source     string    `json:"source,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	PCM        []byte    `json:"pcm,omitempty"`
	SampleRate int       `json:"sample_rate,omitempty"`
	Channels   int       `json:"channels,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// ResultError describes a failed analysis.
type ResultError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// AnalyzeResult is the outcome broadcast for every request.
type AnalyzeResult struct {
	RequestID   string         `json:"request_id"`
	Status      string         `json:"status"`
	Label       string         `json:"label,omitempty"`
	Confidence  float64        `json:"confidence,omitempty"`
	Tier        string         `json:"tier,omitempty"`
	Explanation string         `json:"explanation,omitempty"`
	Ambiguous   bool           `json:"ambiguous,omitempty"`
	Scores      map[string]int `json:"scores,omitempty"`
	Transcript  string         `json:"transcript,omitempty"`
	Error       *ResultError   `json:"error,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
