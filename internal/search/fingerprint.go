package search

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const minTokenLength = 3

// Fingerprint is a term-frequency vector.
type Fingerprint struct {
	tokens map[string]float64
	norm   float64
}

// NewFingerprint returns nil when text has no usable tokens.
func NewFingerprint(text string) *Fingerprint {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}
	return newFingerprint(counts)
}

func newFingerprint(weights map[string]float64) *Fingerprint {
	var norm float64
	for _, w := range weights {
		norm += w * w
	}
	if norm == 0 {
		return nil
	}
	return &Fingerprint{tokens: weights, norm: math.Sqrt(norm)}
}

// Tokenize folds accents, lower-cases, and splits text on anything that is
// not a letter or digit. Tokens shorter than three characters are dropped.
func Tokenize(text string) []string {
	folded := fold(text)
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := fields[:0]
	for _, token := range fields {
		if len(token) < minTokenLength {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

func fold(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		out = text
	}
	return strings.ToLower(out)
}

// TokenCount returns the number of distinct tokens.
func (f *Fingerprint) TokenCount() int {
	if f == nil {
		return 0
	}
	return len(f.tokens)
}

// WithIDF returns a copy weighted by idf. Terms missing from idf keep their
// raw count.
func (f *Fingerprint) WithIDF(idf map[string]float64) *Fingerprint {
	if f == nil || len(idf) == 0 {
		return f
	}
	weighted := make(map[string]float64, len(f.tokens))
	for token, count := range f.tokens {
		w := count
		if v, ok := idf[token]; ok {
			w *= v
		}
		if w != 0 {
			weighted[token] = w
		}
	}
	return newFingerprint(weighted)
}

// Corpus collects document frequencies.
type Corpus struct {
	docCount int
	docFreq  map[string]int
}

func NewCorpus() *Corpus {
	return &Corpus{docFreq: make(map[string]int)}
}

// Add registers the distinct terms of fp.
func (c *Corpus) Add(fp *Fingerprint) {
	if c == nil || fp == nil {
		return
	}
	c.docCount++
	for token := range fp.tokens {
		c.docFreq[token]++
	}
}

// IDF returns smoothed weights log((N+1)/(1+df)) + 1. The +1 keeps terms
// present in every document from vanishing.
func (c *Corpus) IDF() map[string]float64 {
	if c == nil || c.docCount == 0 {
		return nil
	}
	idf := make(map[string]float64, len(c.docFreq))
	n := float64(c.docCount)
	for term, df := range c.docFreq {
		idf[term] = math.Log((n+1)/(1+float64(df))) + 1
	}
	return idf
}

// CosineSimilarity returns 0 when either side is nil.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	if len(b.tokens) < len(a.tokens) {
		a, b = b, a
	}
	var dot float64
	for token, weight := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += weight * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}
