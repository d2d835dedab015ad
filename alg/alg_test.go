package alg

import (
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	type args struct {
		text1 string
		text2 string
	}
	tests := []struct {
		name      string
		args      args
		wantHigh  bool
		threshold float64
	}{
		{
			name:      "identical text",
			args:      args{"goroutines and channels in go", "goroutines and channels in go"},
			wantHigh:  true,
			threshold: 0.99,
		},
		{
			name:      "unrelated text",
			args:      args{"goroutines and channels", "recipes for sourdough bread"},
			wantHigh:  false,
			threshold: 0.1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(TermFrequencies(tt.args.text1), TermFrequencies(tt.args.text2))
			if tt.wantHigh && got < tt.threshold {
				t.Errorf("CosineSimilarity() = %v, want >= %v", got, tt.threshold)
			}
			if !tt.wantHigh && got > tt.threshold {
				t.Errorf("CosineSimilarity() = %v, want <= %v", got, tt.threshold)
			}
		})
	}
}

func TestCosineSimilarityEmpty(t *testing.T) {
	if got := CosineSimilarity(map[string]float64{}, map[string]float64{"a": 1}); got != 0 {
		t.Errorf("CosineSimilarity() with empty map = %v, want 0", got)
	}
}

func TestRankSimilar(t *testing.T) {
	base := "structured concurrency with goroutines and channels"
	others := map[string]string{
		"close":     "concurrency patterns using goroutines and channels",
		"far":       "baking bread with wild yeast starters",
		"unrelated": "quarterly financial projections spreadsheet",
	}

	ranked := RankSimilar(base, others)
	if len(ranked) == 0 {
		t.Fatal("RankSimilar() returned nothing")
	}
	if ranked[0].ID != "close" {
		t.Errorf("top result = %s, want the related document", ranked[0].ID)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Errorf("results not sorted by descending score at %d", i)
		}
	}
}

func BenchmarkTermFrequencies(b *testing.B) {
	text := "goroutines and channels make concurrent programming tractable"
	for i := 0; i < b.N; i++ {
		TermFrequencies(text)
	}
}

func BenchmarkCosineSimilarity(b *testing.B) {
	tf1 := TermFrequencies("goroutines and channels in go")
	tf2 := TermFrequencies("channels and goroutines in go")
	for i := 0; i < b.N; i++ {
		CosineSimilarity(tf1, tf2)
	}
}
