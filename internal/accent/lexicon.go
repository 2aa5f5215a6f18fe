package accent

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// PatternSet is the vocabulary associated with one category. Groups are kept
// separate only for readability of configuration files; matching treats the
// union of all groups.
type PatternSet struct {
	Category Category
	Groups   [][]string
}

// Lexicon counts whole-word vocabulary matches per category. It is immutable
// once built and safe for concurrent use.
type Lexicon struct {
	matchers [len(Categories)]*regexp.Regexp
	terms    [len(Categories)][]string
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'")

// DefaultPatternSets returns the built-in vocabulary.
func DefaultPatternSets() []PatternSet {
	return []PatternSet{
		{Category: American, Groups: [][]string{
			{"gonna", "wanna", "y'all", "awesome", "bucks", "cool", "folks"},
			{"apartment", "elevator", "subway", "vacation", "garbage", "sidewalk"},
		}},
		{Category: British, Groups: [][]string{
			{"bloody", "brilliant", "cheers", "mate", "quite", "rather", "proper", "fancy"},
			{"flat", "lift", "underground", "holiday", "rubbish", "pavement"},
		}},
		{Category: Australian, Groups: [][]string{
			{"g'day", "mate", "crikey", "fair dinkum", "arvo", "barbie", "footy"},
			{"thongs", "ute", "servo", "brekkie", "heaps", "reckon"},
		}},
		{Category: Indian, Groups: [][]string{
			{"actually", "basically", "only", "itself", "kindly", "itself", "prepone"},
			{"doing the needful", "good name", "passed out", "itself", "yaar"},
		}},
	}
}

// DefaultLexicon compiles DefaultPatternSets. It panics only if the built-in
// vocabulary is broken.
func DefaultLexicon() *Lexicon {
	lex, err := NewLexicon(DefaultPatternSets())
	if err != nil {
		panic(err)
	}
	return lex
}

// NewLexicon compiles pattern sets into whole-word matchers. Categories with
// no set, or with no terms, never match.
func NewLexicon(sets []PatternSet) (*Lexicon, error) {
	lex := &Lexicon{}
	seen := make(map[Category]bool, len(sets))
	for _, set := range sets {
		if set.Category < 0 || int(set.Category) >= len(Categories) {
			return nil, fmt.Errorf("pattern set for unknown category %d", int(set.Category))
		}
		if seen[set.Category] {
			return nil, fmt.Errorf("duplicate pattern set for %s", set.Category)
		}
		seen[set.Category] = true

		terms := normalizeTerms(set.Groups)
		if len(terms) == 0 {
			continue
		}
		quoted := make([]string, len(terms))
		for i, term := range terms {
			quoted[i] = regexp.QuoteMeta(term)
		}
		re, err := regexp.Compile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
		if err != nil {
			return nil, fmt.Errorf("compile %s patterns: %w", set.Category, err)
		}
		lex.matchers[set.Category] = re
		lex.terms[set.Category] = terms
	}
	return lex, nil
}

// normalizeTerms lower-cases, trims and de-duplicates terms. Longer terms come
// first so a phrase wins over a word it starts with.
func normalizeTerms(groups [][]string) []string {
	set := make(map[string]struct{})
	var terms []string
	for _, group := range groups {
		for _, raw := range group {
			term := strings.Join(strings.Fields(apostrophes.Replace(strings.ToLower(raw))), " ")
			if term == "" {
				continue
			}
			if _, ok := set[term]; ok {
				continue
			}
			set[term] = struct{}{}
			terms = append(terms, term)
		}
	}
	sort.SliceStable(terms, func(i, j int) bool {
		if len(terms[i]) != len(terms[j]) {
			return len(terms[i]) > len(terms[j])
		}
		return terms[i] < terms[j]
	})
	return terms
}

// Terms returns the normalised vocabulary of a category.
func (l *Lexicon) Terms(c Category) []string {
	return append([]string(nil), l.terms[c]...)
}

// Count returns the number of non-overlapping vocabulary matches per category.
func (l *Lexicon) Count(transcript string) Counts {
	var counts Counts
	if transcript == "" {
		return counts
	}
	text := apostrophes.Replace(strings.ToLower(transcript))
	for _, c := range Categories {
		if re := l.matchers[c]; re != nil {
			counts[c] = len(re.FindAllStringIndex(text, -1))
		}
	}
	return counts
}
