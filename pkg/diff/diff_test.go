package diff

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-listing-watch/pkg/types"
)

func ptr(v float64) *float64 { return &v }

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		previous *float64
		class    types.Classification
		delta    float64
	}{
		{"price up", 120, ptr(100), types.ClassUp, 20},
		{"same price", 100, ptr(100), types.ClassUnchanged, 0},
		{"price down", 90, ptr(100), types.ClassDown, -10},
		{"below epsilon", 100 + Epsilon/2, ptr(100), types.ClassUnchanged, Epsilon / 2},
		{"absent", 100, nil, types.ClassNew, 0},
		{"unknown now", math.NaN(), ptr(100), types.ClassUnchanged, 0},
		{"unknown before", 100, ptr(math.NaN()), types.ClassUnchanged, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Classify(tt.price, tt.previous)
			assert.Equal(t, tt.class, rec.Classification)
			assert.InDelta(t, tt.delta, rec.Delta, 1e-9)
			if tt.previous == nil {
				assert.Nil(t, rec.PreviousPrice)
			} else {
				require.NotNil(t, rec.PreviousPrice)
			}
		})
	}
}

func TestApply(t *testing.T) {
	listings := []types.Listing{
		{URL: "https://x/1", Price: 120},
		{URL: "https://x/2", Price: 100},
		{URL: "https://x/3", Price: 50},
		{URL: "https://x/4", Price: 70},
	}

	t.Run("with snapshot", func(t *testing.T) {
		snap := map[string]float64{"https://x/1": 100, "https://x/2": 100, "https://x/3": 60, "https://gone": 1}
		out, sum := Apply(listings, snap)
		require.Len(t, out, 4)
		assert.Equal(t, types.Summary{Total: 4, Ups: 1, Downs: 1, News: 1}, sum)
		assert.Equal(t, types.ClassUp, out[0].Change.Classification)
		assert.Equal(t, 20.0, out[0].Change.Delta)
		assert.Equal(t, 100.0, *out[0].Change.PreviousPrice)
		assert.Equal(t, types.ClassUnchanged, out[1].Change.Classification)
		assert.Equal(t, types.ClassDown, out[2].Change.Classification)
		assert.Equal(t, types.ClassNew, out[3].Change.Classification)
	})

	t.Run("first run", func(t *testing.T) {
		out, sum := Apply(listings, nil)
		assert.Equal(t, types.Summary{Total: 4, News: 4}, sum)
		for _, a := range out {
			assert.Equal(t, types.ClassNew, a.Change.Classification)
			assert.Nil(t, a.Change.PreviousPrice)
		}
	})

	t.Run("empty snapshot is not first run", func(t *testing.T) {
		_, sum := Apply(listings[:1], map[string]float64{})
		assert.Equal(t, types.Summary{Total: 1, News: 1}, sum)
	})
}
