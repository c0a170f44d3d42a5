package keyword

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

// TermSource supplies the indexed vocabulary. BleveIndex implements it.
type TermSource interface {
	Terms() (map[string]int, error)
	DocCount() (uint64, error)
}

// Suggestion is a replacement for one query term.
type Suggestion struct {
	Term      string `json:"term"`
	Original  string `json:"original"`
	Distance  int    `json:"distance"`
	Frequency int    `json:"frequency"`
}

// Correction is the result of checking a query against the index vocabulary.
type Correction struct {
	Query       string       `json:"query"`
	Corrected   string       `json:"corrected"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// Changed reports whether any term was replaced.
func (c *Correction) Changed() bool {
	return len(c.Suggestions) > 0
}

// SpellChecker suggests corrections for query terms missing from the index, picking the
// closest indexed term and preferring frequent ones on ties. The vocabulary is reloaded
// whenever the index document count changes.
type SpellChecker struct {
	source      TermSource
	maxDistance int
	minFreq     int
	minLength   int

	mu       sync.RWMutex
	terms    map[string]int
	docCount uint64
	loaded   bool
}

// SpellCheckerOption configures a SpellChecker.
type SpellCheckerOption func(*SpellChecker)

// WithMaxDistance sets the largest edit distance a suggestion may have.
func WithMaxDistance(d int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// WithMinFrequency ignores indexed terms found in fewer documents.
func WithMinFrequency(f int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if f > 0 {
			s.minFreq = f
		}
	}
}

// WithMinTermLength leaves shorter query terms untouched. Short Vietnamese syllables are
// often one edit away from unrelated words.
func WithMinTermLength(n int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if n > 0 {
			s.minLength = n
		}
	}
}

// NewSpellChecker creates a spell checker over source.
func NewSpellChecker(source TermSource, opts ...SpellCheckerOption) *SpellChecker {
	s := &SpellChecker{
		source:      source,
		maxDistance: 2,
		minFreq:     1,
		minLength:   4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check returns the corrected query. Terms already indexed, terms shorter than the minimum
// length and terms with no candidate within the distance are kept as typed.
func (s *SpellChecker) Check(query string) (*Correction, error) {
	terms, err := s.vocabulary()
	if err != nil {
		return nil, err
	}
	words := tokenizeQuery(query)
	out := &Correction{Query: query}
	corrected := make([]string, len(words))
	for i, w := range words {
		corrected[i] = w
		if _, ok := terms[w]; ok || utf8.RuneCountInString(w) < s.minLength {
			continue
		}
		if sug, ok := s.best(terms, w); ok {
			corrected[i] = sug.Term
			out.Suggestions = append(out.Suggestions, sug)
		}
	}
	if out.Changed() {
		out.Corrected = strings.Join(corrected, " ")
	} else {
		out.Corrected = query
	}
	return out, nil
}

func (s *SpellChecker) best(terms map[string]int, word string) (Suggestion, bool) {
	n := utf8.RuneCountInString(word)
	var best Suggestion
	found := false
	for term, freq := range terms {
		if freq < s.minFreq {
			continue
		}
		diff := utf8.RuneCountInString(term) - n
		if diff > s.maxDistance || -diff > s.maxDistance {
			continue
		}
		d := EditDistance(word, term)
		if d > s.maxDistance {
			continue
		}
		cand := Suggestion{Term: term, Original: word, Distance: d, Frequency: freq}
		if !found || better(cand, best) {
			best, found = cand, true
		}
	}
	return best, found
}

// better orders candidates by distance, then frequency, then term for determinism.
func better(a, b Suggestion) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	if a.Frequency != b.Frequency {
		return a.Frequency > b.Frequency
	}
	return a.Term < b.Term
}

func (s *SpellChecker) vocabulary() (map[string]int, error) {
	count, err := s.source.DocCount()
	if err != nil {
		return nil, fmt.Errorf("spell check doc count: %w", err)
	}
	s.mu.RLock()
	if s.loaded && s.docCount == count {
		terms := s.terms
		s.mu.RUnlock()
		return terms, nil
	}
	s.mu.RUnlock()

	terms, err := s.source.Terms()
	if err != nil {
		return nil, fmt.Errorf("spell check vocabulary: %w", err)
	}
	s.mu.Lock()
	s.terms, s.docCount, s.loaded = terms, count, true
	s.mu.Unlock()
	return terms, nil
}
