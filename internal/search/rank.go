package search

import (
	"sort"
	"strings"

	"winecellar/internal/notes"
)

// Match is a note scored against a query.
type Match struct {
	Note  *notes.Note
	Score float64
}

// Rank scores candidates against query and returns matches with a positive
// score, best first. Ties keep the most recently updated note first. A
// limit of zero returns every match.
func Rank(query string, candidates []*notes.Note, limit int) []Match {
	q := NewFingerprint(query)
	if q == nil || len(candidates) == 0 {
		return nil
	}

	docs := make([]*Fingerprint, len(candidates))
	corpus := NewCorpus()
	for i, n := range candidates {
		docs[i] = NewFingerprint(document(n))
		corpus.Add(docs[i])
	}
	idf := corpus.IDF()
	q = q.WithIDF(idf)

	matches := make([]Match, 0, len(candidates))
	for i, n := range candidates {
		score := CosineSimilarity(q, docs[i].WithIDF(idf))
		if score <= 0 {
			continue
		}
		matches = append(matches, Match{Note: n, Score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Note.UpdatedAt.After(matches[j].Note.UpdatedAt)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// document is the text a note is indexed by. The wine name is repeated so
// it outweighs incidental label text.
func document(n *notes.Note) string {
	return strings.Join([]string{n.Wine, n.Wine, n.TextExtract, n.Notes}, " ")
}
