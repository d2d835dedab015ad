// Package alg implements the relevance math behind related-document ranking:
// term-frequency maps over tokenized text and cosine similarity between them.
package alg

import (
	"cmp"
	"math"
	"slices"

	"github.com/jdkato/prose/v2"
)

// TermFrequencies tokenizes text and returns its normalized term-frequency
// map. Tokenization failures yield an empty map.
func TermFrequencies(text string) map[string]float64 {
	doc, err := prose.NewDocument(text, prose.WithExtraction(false), prose.WithSegmentation(false))
	if err != nil {
		return map[string]float64{}
	}

	tokens := doc.Tokens()
	tf := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		tf[token.Text]++
	}
	for term := range tf {
		tf[term] /= float64(len(tokens))
	}
	return tf
}

// CosineSimilarity computes the cosine similarity between two term-frequency
// maps. Returns a value in [0, 1], where 1 means identical term distribution.
func CosineSimilarity(tf1, tf2 map[string]float64) float64 {
	dot := 0.0
	mag1 := 0.0
	mag2 := 0.0

	for term, score1 := range tf1 {
		if score2, ok := tf2[term]; ok {
			dot += score1 * score2
		}
		mag1 += score1 * score1
	}
	for _, score2 := range tf2 {
		mag2 += score2 * score2
	}

	mag1 = math.Sqrt(mag1)
	mag2 = math.Sqrt(mag2)

	if mag1 == 0 || mag2 == 0 {
		return 0
	}
	return dot / (mag1 * mag2)
}

// Similarity ranks one document against another by term distribution.
type Similarity struct {
	ID    string
	Score float64
}

// RankSimilar scores every document in others against base and returns them
// ordered by descending similarity. Documents scoring zero are dropped.
func RankSimilar(base string, others map[string]string) []Similarity {
	baseTF := TermFrequencies(base)

	ranked := make([]Similarity, 0, len(others))
	for id, text := range others {
		score := CosineSimilarity(baseTF, TermFrequencies(text))
		if score > 0 {
			ranked = append(ranked, Similarity{ID: id, Score: score})
		}
	}

	slices.SortStableFunc(ranked, func(a, b Similarity) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return ranked
}
