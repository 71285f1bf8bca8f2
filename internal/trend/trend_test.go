package trend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"market-digest-bot/internal/history"
)

func TestClassify(t *testing.T) {
	ctx := context.Background()
	d := NewDetector(history.Open(ctx, nil))

	assert.Equal(t, Unknown, d.Classify(ctx, "dollar", 58000))
	assert.Equal(t, Up, d.Classify(ctx, "dollar", 58500))
	assert.Equal(t, Down, d.Classify(ctx, "dollar", 58000))
	assert.Equal(t, Unchanged, d.Classify(ctx, "dollar", 58000))
	assert.Equal(t, Unknown, d.Classify(ctx, "euro", 1))
}

func TestClassifyAlwaysAdvancesHistory(t *testing.T) {
	ctx := context.Background()
	h := history.Open(ctx, nil)
	d := NewDetector(h)

	d.Classify(ctx, "k", 10)
	d.Classify(ctx, "k", 1e9)
	v, ok := h.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 1e9, v)
}

func TestTallyOverall(t *testing.T) {
	tests := []struct {
		name  string
		dirs  []Direction
		mixed bool
		want  Overall
	}{
		{"empty", nil, false, OverallStable},
		{"unknown only", []Direction{Unknown, Unknown}, false, OverallStable},
		{"unchanged", []Direction{Unchanged}, false, OverallStable},
		{"down", []Direction{Down, Unchanged}, false, OverallDown},
		{"up wins over down", []Direction{Down, Up}, false, OverallUp},
		{"mixed label", []Direction{Down, Up}, true, OverallMixed},
		{"mixed flag with only up", []Direction{Up, Unchanged}, true, OverallUp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tally Tally
			for _, d := range tt.dirs {
				tally.Add(d)
			}
			assert.Equal(t, tt.want, tally.Overall(tt.mixed))
			assert.Equal(t, len(tt.dirs), tally.Total())
		})
	}
}
