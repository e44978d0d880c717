package search

import (
	"math"
	"reflect"
	"testing"
	"time"

	"winecellar/internal/notes"
)

func TestTokenizeFoldsAccentsAndDropsShortTokens(t *testing.T) {
	got := Tokenize("Château Côte-Rôtie, 2019 AC de")
	want := []string{"chateau", "cote", "rotie", "2019"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize = %v, want %v", got, want)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b *Fingerprint
		want func(float64) bool
	}{
		{"nil", nil, NewFingerprint("merlot"), func(v float64) bool { return v == 0 }},
		{"identical", NewFingerprint("pinot noir"), NewFingerprint("Pinot Noir"), func(v float64) bool { return math.Abs(v-1) < 1e-9 }},
		{"disjoint", NewFingerprint("merlot"), NewFingerprint("riesling"), func(v float64) bool { return v == 0 }},
		{"partial", NewFingerprint("pinot noir"), NewFingerprint("pinot gris"), func(v float64) bool { return v > 0 && v < 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); !tt.want(got) {
				t.Errorf("CosineSimilarity() = %v", got)
			}
		})
	}
}

func TestIDFDownweightsCommonTerms(t *testing.T) {
	corpus := NewCorpus()
	corpus.Add(NewFingerprint("red wine merlot"))
	corpus.Add(NewFingerprint("red wine syrah"))
	corpus.Add(NewFingerprint("red wine malbec"))
	idf := corpus.IDF()
	if idf["red"] >= idf["merlot"] {
		t.Fatalf("expected common term to weigh less: red=%v merlot=%v", idf["red"], idf["merlot"])
	}
	if idf["red"] <= 0 {
		t.Fatalf("expected common term to keep a positive weight, got %v", idf["red"])
	}
}

func TestRankOrdersByRelevance(t *testing.T) {
	now := time.Now()
	candidates := []*notes.Note{
		{ID: 1, Wine: "Red Table Wine", TextExtract: "PRODUCT OF FRANCE", UpdatedAt: now},
		{ID: 2, Wine: "Château Margaux", TextExtract: "GRAND VIN 2015 MARGAUX", UpdatedAt: now.Add(-time.Hour)},
		{ID: 3, Wine: "Barolo", Notes: "tar and roses", UpdatedAt: now},
	}

	matches := Rank("margaux", candidates, 0)
	if len(matches) != 1 || matches[0].Note.ID != 2 {
		t.Fatalf("expected only note 2 to match, got %+v", matches)
	}

	matches = Rank("chateau wine", candidates, 1)
	if len(matches) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(matches))
	}

	if got := Rank("  ", candidates, 0); got != nil {
		t.Fatalf("expected nil for empty query, got %+v", got)
	}
}
