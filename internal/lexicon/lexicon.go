package lexicon

import (
	"fmt"
	"os"
	"strings"

	"github.com/loqalabs/loqa-accent/internal/accent"
	"gopkg.in/yaml.v3"
)

// File describes an accent vocabulary document.
type File struct {
	Version    string     `yaml:"version"`
	Categories []Category `yaml:"categories"`
}

// Category lists the vocabulary of one accent. Slang holds function words and
// colloquialisms, Nouns regional nouns.
type Category struct {
	Name        string   `yaml:"name"`
	Explanation string   `yaml:"explanation,omitempty"`
	Slang       []string `yaml:"slang,omitempty"`
	Nouns       []string `yaml:"nouns,omitempty"`
}

// Load reads a lexicon document from disk.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse lexicon %s: %w", path, err)
	}
	return f, nil
}

// Validate ensures every entry names a known category once and carries terms.
func Validate(f File) error {
	if len(f.Categories) == 0 {
		return fmt.Errorf("categories must include at least one entry")
	}
	seen := make(map[string]bool, len(f.Categories))
	for i, c := range f.Categories {
		if c.Name == "" {
			return fmt.Errorf("categories[%d].name is required", i)
		}
		if _, err := accent.ParseCategory(c.Name); err != nil {
			return fmt.Errorf("categories[%d]: %w", i, err)
		}
		if seen[c.Name] {
			return fmt.Errorf("category %q declared twice", c.Name)
		}
		seen[c.Name] = true
		if countTerms(c.Slang)+countTerms(c.Nouns) == 0 {
			return fmt.Errorf("category %q must declare slang or nouns", c.Name)
		}
	}
	return nil
}

func countTerms(terms []string) int {
	n := 0
	for _, t := range terms {
		if strings.TrimSpace(t) != "" {
			n++
		}
	}
	return n
}

// Compile validates the document and builds the engine vocabulary together
// with any explanation overrides.
func Compile(f File) (*accent.Lexicon, map[accent.Category]string, error) {
	if err := Validate(f); err != nil {
		return nil, nil, err
	}
	sets := make([]accent.PatternSet, 0, len(f.Categories))
	explanations := make(map[accent.Category]string)
	for _, c := range f.Categories {
		cat, _ := accent.ParseCategory(c.Name)
		sets = append(sets, accent.PatternSet{Category: cat, Groups: [][]string{c.Slang, c.Nouns}})
		if c.Explanation != "" {
			explanations[cat] = c.Explanation
		}
	}
	lex, err := accent.NewLexicon(sets)
	if err != nil {
		return nil, nil, err
	}
	return lex, explanations, nil
}

// Default renders the built-in vocabulary as a document.
func Default() File {
	f := File{Version: "1"}
	for _, set := range accent.DefaultPatternSets() {
		c := Category{Name: set.Category.String()}
		if len(set.Groups) > 0 {
			c.Slang = append(c.Slang, set.Groups[0]...)
		}
		for _, g := range set.Groups[min(1, len(set.Groups)):] {
			c.Nouns = append(c.Nouns, g...)
		}
		f.Categories = append(f.Categories, c)
	}
	return f
}
