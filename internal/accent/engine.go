package accent

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/loqa-accent/accent"

// Assessment is the assembled output of one analysis, ready for presentation.
type Assessment struct {
	Result
	Tier     string         `json:"tier"`
	Scores   map[string]int `json:"scores"`
	Lexical  map[string]int `json:"lexical"`
	Acoustic map[string]int `json:"acoustic"`
	Features Features       `json:"features"`
	HasAudio bool           `json:"has_audio"`
}

// Evidence is what both extractors produced for one request.
type Evidence struct {
	Lexical  Counts
	Acoustic Counts
	Features Features
	HasAudio bool
}

// Assemble packages a result with its tier and the evidence behind it.
func Assemble(res Result, scores Scores, ev Evidence) Assessment {
	return Assessment{
		Result:   res,
		Tier:     ProficiencyTier(res.Confidence),
		Scores:   scores.Map(),
		Lexical:  ev.Lexical.Map(),
		Acoustic: ev.Acoustic.Map(),
		Features: ev.Features,
		HasAudio: ev.HasAudio,
	}
}

// Options configure an Engine. Zero fields fall back to the defaults.
type Options struct {
	Lexicon      *Lexicon
	Extractor    FeatureExtractor
	Thresholds   *Thresholds
	Weights      *Weights
	Explanations map[Category]string
}

// Engine runs both extractors and fuses their evidence. It holds no mutable
// state and may be shared across goroutines.
type Engine struct {
	lexicon    *Lexicon
	extractor  FeatureExtractor
	thresholds Thresholds
	classifier *Classifier

	tracer     trace.Tracer
	analyses   metric.Int64Counter
	confidence metric.Float64Histogram
}

func NewEngine(opts Options) (*Engine, error) {
	e := &Engine{
		lexicon:    opts.Lexicon,
		extractor:  opts.Extractor,
		thresholds: DefaultThresholds(),
		tracer:     otel.Tracer(instrumentationName),
	}
	if e.lexicon == nil {
		e.lexicon = DefaultLexicon()
	}
	if e.extractor == nil {
		x, err := NewAcousticExtractor(DefaultAcousticOptions())
		if err != nil {
			return nil, err
		}
		e.extractor = x
	}
	if opts.Thresholds != nil {
		e.thresholds = *opts.Thresholds
	}
	weights := DefaultWeights()
	if opts.Weights != nil {
		weights = *opts.Weights
	}
	e.classifier = NewClassifier(weights)
	for cat, text := range opts.Explanations {
		e.classifier.WithExplanation(cat, text)
	}

	meter := otel.Meter(instrumentationName)
	if counter, err := meter.Int64Counter("accent.analyses", metric.WithDescription("Completed accent classifications")); err == nil {
		e.analyses = counter
	}
	if hist, err := meter.Float64Histogram("accent.confidence", metric.WithDescription("Classification confidence"), metric.WithUnit("%")); err == nil {
		e.confidence = hist
	}
	return e, nil
}

// Evaluate runs the lexical and acoustic extractors concurrently and joins
// them. An empty signal contributes no acoustic evidence.
func (e *Engine) Evaluate(transcript string, sig Signal) (Evidence, error) {
	var (
		ev       Evidence
		features Features
		err      error
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		ev.Lexical = e.lexicon.Count(transcript)
	}()
	go func() {
		defer wg.Done()
		features, err = e.extractor.Extract(sig)
	}()
	wg.Wait()

	if err != nil {
		return Evidence{}, err
	}
	if !sig.Empty() {
		ev.HasAudio = true
		ev.Features = features
		ev.Acoustic = e.thresholds.Score(features)
	}
	return ev, nil
}

// Analyze classifies a transcript and its waveform. The only failure is an
// acoustic analysis error on a malformed signal.
func (e *Engine) Analyze(ctx context.Context, transcript string, sig Signal) (Assessment, error) {
	_, span := e.tracer.Start(ctx, "accent.analyze",
		trace.WithAttributes(
			attribute.Int("accent.transcript_runes", len([]rune(transcript))),
			attribute.Int("accent.samples", len(sig.Samples)),
		))
	defer span.End()

	ev, err := e.Evaluate(transcript, sig)
	if err != nil {
		span.RecordError(err)
		return Assessment{}, err
	}
	res, scores := e.classifier.Classify(transcript, ev.Lexical, ev.Acoustic)
	out := Assemble(res, scores, ev)

	span.SetAttributes(
		attribute.String("accent.label", out.Label),
		attribute.Float64("accent.confidence", out.Confidence),
		attribute.Bool("accent.ambiguous", out.Ambiguous),
	)
	labelAttr := metric.WithAttributes(attribute.String("label", out.Label))
	if e.analyses != nil {
		e.analyses.Add(ctx, 1, labelAttr)
	}
	if e.confidence != nil {
		e.confidence.Record(ctx, out.Confidence, labelAttr)
	}
	return out, nil
}
