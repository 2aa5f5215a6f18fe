package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-accent/internal/accent"
	"github.com/loqalabs/loqa-accent/internal/acquire"
	"github.com/loqalabs/loqa-accent/internal/audio"
	"github.com/loqalabs/loqa-accent/internal/eventstore"
	"github.com/loqalabs/loqa-accent/internal/stt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/loqa-accent/pipeline"

// Stage names a step of the analysis pipeline.
type Stage string

const (
	StageAcquire    Stage = "acquire"
	StageDecode     Stage = "decode"
	StageTranscribe Stage = "transcribe"
	StageAnalyze    Stage = "analyze"
)

// StageError reports which stage of a run failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the stage recorded in err, or "" when err carries none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// InlineAudio is raw little-endian 16-bit PCM supplied with a request.
type InlineAudio struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Request is one analysis job. Either Source or Audio must be set. A
// non-empty Transcript skips the transcription stage.
type Request struct {
	ID         string
	Source     string
	Transcript string
	Audio      *InlineAudio
}

// Report is the outcome of a successful run.
type Report struct {
	RequestID    string            `json:"request_id"`
	Source       string            `json:"source,omitempty"`
	Transcript   string            `json:"transcript"`
	Assessment   accent.Assessment `json:"assessment"`
	AudioSeconds float64           `json:"audio_seconds"`
	StartedAt    time.Time         `json:"started_at"`
	ElapsedMS    int64             `json:"elapsed_ms"`
}

// Analyzer classifies a transcript and waveform.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string, sig accent.Signal) (accent.Assessment, error)
}

// Recorder persists analysis outcomes.
type Recorder interface {
	Append(ctx context.Context, rec eventstore.Record) error
}

// Deps wires the pipeline stages. Store may be nil.
type Deps struct {
	Acquirer   acquire.Acquirer
	Recognizer stt.Recognizer
	Analyzer   Analyzer
	Store      Recorder
	Logger     *slog.Logger
	Timeout    time.Duration
	WorkDir    string
}

type Pipeline struct {
	deps     Deps
	logger   *slog.Logger
	tracer   trace.Tracer
	failures metric.Int64Counter
	now      func() time.Time
}

func New(deps Deps) (*Pipeline, error) {
	if deps.Acquirer == nil || deps.Recognizer == nil || deps.Analyzer == nil {
		return nil, errors.New("pipeline requires acquirer, recognizer and analyzer")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		deps:   deps,
		logger: logger.With(slog.String("component", "pipeline")),
		tracer: otel.Tracer(instrumentationName),
		now:    time.Now,
	}
	if counter, err := otel.Meter(instrumentationName).Int64Counter("accent.failures",
		metric.WithDescription("Failed analyses by pipeline stage")); err == nil {
		p.failures = counter
	}
	return p, nil
}

// Run executes acquire, decode, transcribe and analyze for one request and
// records the outcome.
func (p *Pipeline) Run(ctx context.Context, req Request) (Report, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if p.deps.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.deps.Timeout)
		defer cancel()
	}
	ctx, span := p.tracer.Start(ctx, "accent.pipeline",
		trace.WithAttributes(attribute.String("accent.request_id", req.ID)))
	defer span.End()

	started := p.now()
	log := p.logger.With(slog.String("request_id", req.ID))

	report, err := p.run(ctx, req)
	report.RequestID = req.ID
	report.Source = req.Source
	report.StartedAt = started.UTC()
	report.ElapsedMS = p.now().Sub(started).Milliseconds()

	if err != nil {
		stage := StageOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(stage))
		if p.failures != nil {
			p.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(stage))))
		}
		log.Warn("analysis failed", slog.String("stage", string(stage)), slogError(err))
		p.record(ctx, log, eventstore.Record{
			RequestID:   req.ID,
			Source:      req.Source,
			Status:      eventstore.StatusFailed,
			FailedStage: string(stage),
			Error:       err.Error(),
		})
		return report, err
	}

	a := report.Assessment
	log.Info("analysis completed",
		slog.String("label", a.Label),
		slog.Float64("confidence", a.Confidence),
		slog.String("tier", a.Tier),
		slog.Int64("elapsed_ms", report.ElapsedMS),
	)
	scores, _ := json.Marshal(a.Scores)
	features, _ := json.Marshal(a.Features)
	p.record(ctx, log, eventstore.Record{
		RequestID:   req.ID,
		Source:      req.Source,
		Status:      eventstore.StatusCompleted,
		Label:       a.Label,
		Confidence:  a.Confidence,
		Tier:        a.Tier,
		Explanation: a.Explanation,
		Scores:      scores,
		Features:    features,
	})
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, req Request) (Report, error) {
	var report Report

	sig, wavPath, cleanup, err := p.load(ctx, req)
	defer cleanup()
	if err != nil {
		return report, err
	}
	report.AudioSeconds = sig.Duration().Seconds()

	transcript := strings.TrimSpace(req.Transcript)
	if transcript == "" {
		transcript, err = p.transcribe(ctx, wavPath, sig)
		if err != nil {
			return report, err
		}
	}
	report.Transcript = transcript

	actx, span := p.tracer.Start(ctx, "accent.stage.analyze")
	assessment, err := p.deps.Analyzer.Analyze(actx, transcript, sig)
	span.End()
	if err != nil {
		return report, &StageError{Stage: StageAnalyze, Err: err}
	}
	report.Assessment = assessment
	return report, nil
}

// load produces the waveform plus a WAV path the recognizer can read. The
// returned cleanup is always safe to call.
func (p *Pipeline) load(ctx context.Context, req Request) (accent.Signal, string, func(), error) {
	noop := func() {}

	if req.Audio != nil {
		sig, err := audio.FromPCM16(req.Audio.PCM, req.Audio.SampleRate, req.Audio.Channels)
		if err != nil {
			return accent.Signal{}, "", noop, &StageError{Stage: StageDecode, Err: fmt.Errorf("%w: decode audio: %w", acquire.ErrAcquisition, err)}
		}
		return sig, "", noop, nil
	}

	actx, span := p.tracer.Start(ctx, "accent.stage.acquire")
	media, err := p.deps.Acquirer.Acquire(actx, req.Source)
	span.End()
	if err != nil {
		return accent.Signal{}, "", noop, &StageError{Stage: StageAcquire, Err: err}
	}
	cleanup := func() {
		if err := media.Close(); err != nil {
			p.logger.Warn("failed to remove acquired media", slog.String("path", media.Path), slogError(err))
		}
	}

	_, span = p.tracer.Start(ctx, "accent.stage.decode")
	sig, err := audio.DecodeFile(media.Path)
	span.End()
	if err != nil {
		return accent.Signal{}, "", cleanup, &StageError{Stage: StageDecode, Err: fmt.Errorf("%w: decode audio: %w", acquire.ErrAcquisition, err)}
	}
	return sig, media.Path, cleanup, nil
}

func (p *Pipeline) transcribe(ctx context.Context, wavPath string, sig accent.Signal) (string, error) {
	ctx, span := p.tracer.Start(ctx, "accent.stage.transcribe")
	defer span.End()

	if wavPath == "" {
		if sig.Empty() {
			return "", &StageError{Stage: StageTranscribe, Err: fmt.Errorf("%w: no audio to transcribe", stt.ErrTranscription)}
		}
		path, err := audio.WriteTempWAV(p.deps.WorkDir, sig)
		if err != nil {
			return "", &StageError{Stage: StageTranscribe, Err: fmt.Errorf("%w: %w", stt.ErrTranscription, err)}
		}
		defer os.Remove(path)
		wavPath = path
	}

	res, err := p.deps.Recognizer.Transcribe(ctx, wavPath)
	if err != nil {
		return "", &StageError{Stage: StageTranscribe, Err: err}
	}
	span.SetAttributes(attribute.Int("accent.transcript_runes", len([]rune(res.Text))))
	return res.Text, nil
}

func (p *Pipeline) record(ctx context.Context, log *slog.Logger, rec eventstore.Record) {
	if p.deps.Store == nil {
		return
	}
	// The outcome must be stored even when the run's deadline has passed.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.deps.Store.Append(ctx, rec); err != nil {
		log.Warn("failed to record analysis", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
