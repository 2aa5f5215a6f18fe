package runtime

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-accent/internal/accent"
	"github.com/loqalabs/loqa-accent/internal/acquire"
	"github.com/loqalabs/loqa-accent/internal/config"
	"github.com/loqalabs/loqa-accent/internal/lexicon"
	"github.com/loqalabs/loqa-accent/internal/pipeline"
	"github.com/loqalabs/loqa-accent/internal/stt"
)

// BuildEngine assembles the classification engine from the accent section of
// cfg. A configured lexicon file replaces the built-in vocabulary.
func BuildEngine(cfg config.AccentConfig) (*accent.Engine, error) {
	opts := accent.Options{
		Thresholds: &accent.Thresholds{
			TempoFast:     cfg.TempoFast,
			TempoModerate: cfg.TempoModerate,
			PitchHigh:     cfg.PitchHigh,
			PitchModerate: cfg.PitchModerate,
		},
		Weights: &accent.Weights{
			Lexical:                cfg.LexicalWeight,
			BaseConfidence:         cfg.BaseConfidence,
			ConfidencePerPoint:     cfg.ConfidencePerPoint,
			MaxConfidence:          cfg.MaxConfidence,
			NeutralConfidence:      cfg.NeutralConfidence,
			ShortNeutralConfidence: cfg.ShortNeutralConfidence,
			MinTranscriptRunes:     cfg.MinTranscriptRunes,
		},
	}

	acoustic := accent.DefaultAcousticOptions()
	if cfg.FrameLength > 0 {
		acoustic.FrameLength = cfg.FrameLength
	}
	if cfg.HopLength > 0 {
		acoustic.HopLength = cfg.HopLength
	}
	extractor, err := accent.NewAcousticExtractor(acoustic)
	if err != nil {
		return nil, fmt.Errorf("acoustic extractor: %w", err)
	}
	opts.Extractor = extractor

	if cfg.LexiconPath != "" {
		file, err := lexicon.Load(cfg.LexiconPath)
		if err != nil {
			return nil, err
		}
		lex, explanations, err := lexicon.Compile(file)
		if err != nil {
			return nil, fmt.Errorf("lexicon %s: %w", cfg.LexiconPath, err)
		}
		opts.Lexicon = lex
		opts.Explanations = explanations
	}
	return accent.NewEngine(opts)
}

// BuildPipeline wires acquisition, transcription and the engine. store may be
// nil when outcomes should not be recorded.
func BuildPipeline(cfg config.Config, store pipeline.Recorder, logger *slog.Logger) (*pipeline.Pipeline, error) {
	engine, err := BuildEngine(cfg.Accent)
	if err != nil {
		return nil, err
	}
	acquirer, err := acquire.New(cfg.Acquisition, logger)
	if err != nil {
		return nil, fmt.Errorf("acquirer: %w", err)
	}
	recognizer, err := stt.New(cfg.STT)
	if err != nil {
		return nil, fmt.Errorf("recognizer: %w", err)
	}
	return pipeline.New(pipeline.Deps{
		Acquirer:   acquirer,
		Recognizer: recognizer,
		Analyzer:   engine,
		Store:      store,
		Logger:     logger,
		Timeout:    time.Duration(cfg.Analyzer.TimeoutMS) * time.Millisecond,
		WorkDir:    cfg.Acquisition.WorkDir,
	})
}
