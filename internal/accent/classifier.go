package accent

import (
	"sort"
	"unicode/utf8"
)

const neutralExplanation = "The speech sample doesn't contain strong regional patterns. " +
	"This could indicate a neutral English accent or insufficient speech data."

var defaultExplanations = [...]string{
	American:   "The speaker uses vocabulary, intonation patterns, and rhythmic features typical of American English.",
	British:    "The speaker demonstrates features common in British English, including vocabulary choices and prosodic patterns.",
	Australian: "The speaker shows characteristics of Australian English in vocabulary and speech rhythm.",
	Indian:     "The speaker exhibits patterns typical of Indian English in terms of vocabulary and speech cadence.",
}

// Scores is the fused evidence per category.
type Scores = Counts

// Result is a single classification decision.
type Result struct {
	Label        string  `json:"label"`
	Confidence   float64 `json:"confidence"`
	Explanation  string  `json:"explanation"`
	Neutral      bool    `json:"neutral"`
	Differential int     `json:"differential"`
	// Ambiguous is set when another category shares the winning score; the
	// label is then the earliest category in enumeration order.
	Ambiguous bool     `json:"ambiguous,omitempty"`
	TiedWith  []string `json:"tied_with,omitempty"`
}

// Weights are the constants of score fusion and confidence scaling.
type Weights struct {
	Lexical                int
	BaseConfidence         float64
	ConfidencePerPoint     float64
	MaxConfidence          float64
	NeutralConfidence      float64
	ShortNeutralConfidence float64
	MinTranscriptRunes     int
}

func DefaultWeights() Weights {
	return Weights{
		Lexical:                2,
		BaseConfidence:         50,
		ConfidencePerPoint:     10,
		MaxConfidence:          95,
		NeutralConfidence:      60,
		ShortNeutralConfidence: 40,
		MinTranscriptRunes:     50,
	}
}

// Classifier fuses lexical and acoustic evidence into a Result.
type Classifier struct {
	weights      Weights
	explanations [len(Categories)]string
}

func NewClassifier(w Weights) *Classifier {
	return &Classifier{weights: w, explanations: defaultExplanations}
}

// WithExplanation overrides the explanation template of one category. An
// empty text keeps the built-in template.
func (c *Classifier) WithExplanation(cat Category, text string) *Classifier {
	if text != "" {
		c.explanations[cat] = text
	}
	return c
}

// Fuse combines the weighted lexical counts with the acoustic bonuses.
func (c *Classifier) Fuse(lexical, acoustic Counts) Scores {
	var s Scores
	for _, cat := range Categories {
		s[cat] = c.weights.Lexical*lexical[cat] + acoustic[cat]
	}
	return s
}

// Classify scores the evidence and picks a label. It is total: every input
// yields a result with a non-empty explanation.
func (c *Classifier) Classify(transcript string, lexical, acoustic Counts) (Result, Scores) {
	scores := c.Fuse(lexical, acoustic)
	if scores.Total() == 0 {
		confidence := c.weights.NeutralConfidence
		if utf8.RuneCountInString(transcript) < c.weights.MinTranscriptRunes {
			confidence = c.weights.ShortNeutralConfidence
		}
		return Result{
			Label:       NeutralLabel,
			Confidence:  confidence,
			Explanation: neutralExplanation,
			Neutral:     true,
		}, scores
	}

	winner := Categories[0]
	for _, cat := range Categories[1:] {
		if scores[cat] > scores[winner] {
			winner = cat
		}
	}

	sorted := append([]int(nil), scores[:]...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	differential := sorted[0] - sorted[1]

	var tied []string
	for _, cat := range Categories {
		if cat != winner && scores[cat] == scores[winner] {
			tied = append(tied, cat.String())
		}
	}

	confidence := c.weights.BaseConfidence + c.weights.ConfidencePerPoint*float64(differential)
	if confidence > c.weights.MaxConfidence {
		confidence = c.weights.MaxConfidence
	}
	if confidence < 0 {
		confidence = 0
	}

	return Result{
		Label:        winner.String(),
		Confidence:   confidence,
		Explanation:  c.explanations[winner],
		Differential: differential,
		Ambiguous:    len(tied) > 0,
		TiedWith:     tied,
	}, scores
}

// ProficiencyTier buckets a confidence value for hiring-facing display.
func ProficiencyTier(confidence float64) string {
	switch {
	case confidence > 75:
		return "High"
	case confidence > 50:
		return "Medium"
	default:
		return "Low"
	}
}
