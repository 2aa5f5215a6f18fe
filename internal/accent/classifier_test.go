package accent

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubExtractor struct {
	features Features
	err      error
}

func (s stubExtractor) Extract(sig Signal) (Features, error) {
	if sig.Empty() {
		return Features{}, nil
	}
	return s.features, s.err
}

func newEngine(t *testing.T, x FeatureExtractor) *Engine {
	t.Helper()
	e, err := NewEngine(Options{Extractor: x})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestNeutralConfidenceDependsOnLength(t *testing.T) {
	c := NewClassifier(DefaultWeights())

	short, _ := c.Classify("hello there", Counts{}, Counts{})
	if short.Label != NeutralLabel || short.Confidence != 40 || !short.Neutral {
		t.Fatalf("unexpected short neutral result: %+v", short)
	}

	long := strings.Repeat("the weather today is nice ", 3)
	res, _ := c.Classify(long, Counts{}, Counts{})
	if res.Label != NeutralLabel || res.Confidence != 60 {
		t.Fatalf("unexpected long neutral result: %+v", res)
	}
	if res.Explanation == "" {
		t.Fatal("neutral explanation must not be empty")
	}

	// 49 multi-byte runes is still short.
	res, _ = c.Classify(strings.Repeat("é", 49), Counts{}, Counts{})
	if res.Confidence != 40 {
		t.Fatalf("expected rune-based length check, got %+v", res)
	}
}

func TestAmericanVocabularyWithoutAudio(t *testing.T) {
	e := newEngine(t, nil)
	got, err := e.Analyze(context.Background(), "gonna grab my apartment keys, heading to the subway", Signal{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got.Label != "American" {
		t.Fatalf("expected American, got %s", got.Label)
	}
	if got.Scores["American"] != 6 || got.Scores["British"] != 0 {
		t.Fatalf("unexpected scores: %v", got.Scores)
	}
	if got.Differential != 6 || got.Confidence != 95 {
		t.Fatalf("expected differential 6 and confidence 95, got %d / %f", got.Differential, got.Confidence)
	}
	if got.Tier != "High" || got.HasAudio {
		t.Fatalf("unexpected tier/audio: %s %v", got.Tier, got.HasAudio)
	}
}

func TestEmptyTranscriptAndAudio(t *testing.T) {
	got, err := newEngine(t, nil).Analyze(context.Background(), "", Signal{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got.Label != NeutralLabel || got.Confidence != 40 || got.Tier != "Low" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestAcousticTieResolvesToFirstCategory(t *testing.T) {
	e := newEngine(t, stubExtractor{features: Features{Tempo: 130, PitchProxy: 0.08}})
	sig := Signal{Samples: []float64{0.1, -0.1}, SampleRate: 16000}

	first, err := e.Analyze(context.Background(), "nothing regional here", sig)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if first.Label != "American" || first.Confidence != 50 || first.Differential != 0 {
		t.Fatalf("unexpected result: %+v", first.Result)
	}
	if first.Scores["American"] != 2 || first.Scores["British"] != 2 {
		t.Fatalf("unexpected scores: %v", first.Scores)
	}
	if !first.Ambiguous || len(first.TiedWith) != 1 || first.TiedWith[0] != "British" {
		t.Fatalf("expected tie with British to be reported, got %+v", first.Result)
	}
	if first.Tier != "Low" {
		t.Fatalf("expected Low tier, got %s", first.Tier)
	}

	for i := 0; i < 50; i++ {
		again, err := e.Analyze(context.Background(), "nothing regional here", sig)
		if err != nil {
			t.Fatalf("analyze: %v", err)
		}
		if again.Label != first.Label || again.Confidence != first.Confidence {
			t.Fatalf("run %d: non-deterministic result %+v", i, again.Result)
		}
	}
}

func TestAnalysisErrorIsNotNeutral(t *testing.T) {
	e := newEngine(t, stubExtractor{err: &AnalysisError{Reason: "corrupt frame"}})
	_, err := e.Analyze(context.Background(), "", Signal{Samples: []float64{1}, SampleRate: 8000})
	if !errors.Is(err, ErrAudioAnalysis) {
		t.Fatalf("expected ErrAudioAnalysis, got %v", err)
	}

	_, err = newEngine(t, nil).Analyze(context.Background(), "cheers mate", Signal{Samples: []float64{0, 1, 2}, SampleRate: -1})
	if !errors.Is(err, ErrAudioAnalysis) {
		t.Fatalf("expected ErrAudioAnalysis from built-in extractor, got %v", err)
	}
}

func TestFuseIsMonotonicInLexicalMatches(t *testing.T) {
	c := NewClassifier(DefaultWeights())
	acoustic := Counts{American: 1, British: 2, Australian: 0, Indian: 1}
	for _, cat := range Categories {
		var lexical Counts
		prev := c.Fuse(lexical, acoustic)[cat]
		for i := 0; i < 10; i++ {
			lexical[cat]++
			next := c.Fuse(lexical, acoustic)[cat]
			if next-prev != 2 {
				t.Fatalf("%s: expected +2 per match, got %d -> %d", cat, prev, next)
			}
			prev = next
		}
	}
}

func TestConfidenceBounds(t *testing.T) {
	c := NewClassifier(DefaultWeights())
	transcript := strings.Repeat("x", 60)
	for a := 0; a <= 12; a += 3 {
		for b := 0; b <= 12; b += 4 {
			for au := 0; au <= 4; au += 2 {
				for in := 0; in <= 6; in += 3 {
					lexical := Counts{American: a, British: b, Australian: au, Indian: in}
					res, scores := c.Classify(transcript, lexical, Counts{})
					if res.Confidence < 0 {
						t.Fatalf("negative confidence for %v", lexical)
					}
					if res.Neutral {
						if scores.Total() != 0 || res.Confidence > 60 {
							t.Fatalf("bad neutral result %+v for %v", res, lexical)
						}
						continue
					}
					if res.Confidence > 95 || res.Confidence < 50 {
						t.Fatalf("decisive confidence out of range: %+v", res)
					}
					if res.Explanation == "" {
						t.Fatalf("empty explanation for %+v", res)
					}
				}
			}
		}
	}
}

func TestDifferentialUsesRunnerUp(t *testing.T) {
	c := NewClassifier(DefaultWeights())
	res, scores := c.Classify("", Counts{British: 2, Indian: 1}, Counts{Indian: 1})
	if scores[British] != 4 || scores[Indian] != 3 {
		t.Fatalf("unexpected scores %v", scores)
	}
	if res.Label != "British" || res.Differential != 1 || res.Confidence != 60 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Ambiguous {
		t.Fatal("clear winner must not be ambiguous")
	}
}

func TestCustomExplanation(t *testing.T) {
	e, err := NewEngine(Options{Explanations: map[Category]string{Indian: "custom"}})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	got, err := e.Analyze(context.Background(), "kindly do the needful yaar", Signal{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got.Label != "Indian" || got.Explanation != "custom" {
		t.Fatalf("unexpected result %+v", got.Result)
	}
}

func TestProficiencyTier(t *testing.T) {
	cases := map[float64]string{
		95:   "High",
		75.5: "High",
		75:   "Medium",
		60:   "Medium",
		50.1: "Medium",
		50:   "Low",
		40:   "Low",
		0:    "Low",
	}
	for confidence, want := range cases {
		if got := ProficiencyTier(confidence); got != want {
			t.Fatalf("confidence %f: expected %s, got %s", confidence, want, got)
		}
	}
}

func TestParseCategory(t *testing.T) {
	for _, c := range Categories {
		got, err := ParseCategory(c.String())
		if err != nil || got != c {
			t.Fatalf("round trip failed for %s: %v", c, err)
		}
	}
	if _, err := ParseCategory("Canadian"); err == nil {
		t.Fatal("expected error for unknown category")
	}
}
