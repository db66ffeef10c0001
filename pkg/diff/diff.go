// Package diff は、前回スナップショットとの比較でリスティングを分類します。
package diff

import (
	"math"
	"strings"

	"github.com/shouni/go-listing-watch/pkg/types"
)

// Epsilon 未満の価格差は変化なしとして扱います。
const Epsilon = 1e-6

// Apply は listings を snapshot (url → 価格) と突き合わせて分類します。
// snapshot が nil の場合は初回実行として全件を new とし、価格差は付与しません。
func Apply(listings []types.Listing, snapshot map[string]float64) ([]types.Annotated, types.Summary) {
	out := make([]types.Annotated, 0, len(listings))
	sum := types.Summary{Total: len(listings)}

	for _, l := range listings {
		rec := Classify(l.Price, lookup(snapshot, l.URL))
		switch rec.Classification {
		case types.ClassNew:
			sum.News++
		case types.ClassUp:
			sum.Ups++
		case types.ClassDown:
			sum.Downs++
		}
		out = append(out, types.Annotated{Listing: l, Change: rec})
	}
	return out, sum
}

func lookup(snapshot map[string]float64, url string) *float64 {
	if snapshot == nil {
		return nil
	}
	p, ok := snapshot[strings.TrimSpace(url)]
	if !ok {
		return nil
	}
	return &p
}

// Classify は現在価格と前回価格から変化を分類します。
// 前回価格が nil なら new、差が NaN (どちらかの価格が不明) なら unchanged です。
func Classify(price float64, previous *float64) types.ChangeRecord {
	if previous == nil {
		return types.ChangeRecord{Classification: types.ClassNew}
	}
	prev := *previous
	delta := price - prev
	rec := types.ChangeRecord{PreviousPrice: &prev, Delta: delta, Classification: types.ClassUnchanged}
	switch {
	case math.IsNaN(delta):
		rec.Delta = 0
	case delta > Epsilon:
		rec.Classification = types.ClassUp
	case delta < -Epsilon:
		rec.Classification = types.ClassDown
	}
	return rec
}
