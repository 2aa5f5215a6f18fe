package accent

import "testing"

func TestCountAmericanVocabulary(t *testing.T) {
	lex := DefaultLexicon()
	got := lex.Count("gonna grab my apartment keys, heading to the subway")
	want := Counts{American: 3}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCountWholeWordsOnly(t *testing.T) {
	lex := DefaultLexicon()
	got := lex.Count("the coolant leaked onto the subwaystation floor; flatten it")
	if got.Total() != 0 {
		t.Fatalf("expected no matches for partial words, got %v", got)
	}
}

func TestCountRepeatedOccurrences(t *testing.T) {
	lex := DefaultLexicon()
	got := lex.Count("Mate, mate, MATE!")
	if got[British] != 3 || got[Australian] != 3 {
		t.Fatalf("expected 3 matches for british and australian, got %v", got)
	}
	if got[American] != 0 || got[Indian] != 0 {
		t.Fatalf("unexpected matches: %v", got)
	}
}

func TestCountPhrasesAndApostrophes(t *testing.T) {
	lex := DefaultLexicon()

	got := lex.Count("G’day! Fair dinkum, see you this arvo")
	if got[Australian] != 3 {
		t.Fatalf("expected 3 australian matches, got %v", got)
	}

	got = lex.Count("Please be doing the needful by the report itself")
	if got[Indian] != 2 {
		t.Fatalf("expected phrase and word to count once each, got %v", got)
	}

	got = lex.Count("y'all wanna come")
	if got[American] != 2 {
		t.Fatalf("expected 2 american matches, got %v", got)
	}
}

func TestCountEmptyTranscript(t *testing.T) {
	if got := DefaultLexicon().Count(""); got.Total() != 0 {
		t.Fatalf("expected zero counts, got %v", got)
	}
}

func TestNewLexiconCustomTerms(t *testing.T) {
	lex, err := NewLexicon([]PatternSet{
		{Category: Indian, Groups: [][]string{{"  Kindly   Revert ", "kindly revert"}}},
	})
	if err != nil {
		t.Fatalf("new lexicon: %v", err)
	}
	if terms := lex.Terms(Indian); len(terms) != 1 || terms[0] != "kindly revert" {
		t.Fatalf("expected normalised single term, got %v", terms)
	}
	got := lex.Count("Kindly revert at the earliest")
	if got[Indian] != 1 || got.Total() != 1 {
		t.Fatalf("expected one indian match, got %v", got)
	}
}

func TestNewLexiconRejectsDuplicateCategory(t *testing.T) {
	_, err := NewLexicon([]PatternSet{
		{Category: British, Groups: [][]string{{"lorry"}}},
		{Category: British, Groups: [][]string{{"queue"}}},
	})
	if err == nil {
		t.Fatal("expected duplicate category error")
	}
}

func TestNewLexiconRejectsUnknownCategory(t *testing.T) {
	if _, err := NewLexicon([]PatternSet{{Category: Category(9)}}); err == nil {
		t.Fatal("expected unknown category error")
	}
}
