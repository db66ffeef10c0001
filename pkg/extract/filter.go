package extract

import (
	"math"
	"strconv"
	"strings"

	"github.com/shouni/go-listing-watch/pkg/types"
)

// ParsePrice は価格表記から数字のみを取り出して数値化します。数字がなければ NaN を返します。
func ParsePrice(text string) float64 {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Accept はリスティングが検索条件を満たすかを判定します。
// 価格の上下限は価格が判明していて、かつ上下限が 0 でない場合にのみ適用します。
func Accept(l types.Listing, f types.Filters) bool {
	if l.HasPrice() {
		if f.MinPrice != 0 && l.Price < float64(f.MinPrice) {
			return false
		}
		if f.MaxPrice != 0 && l.Price > float64(f.MaxPrice) {
			return false
		}
	}
	if !containsAny(l.Title+" "+l.Location, f.Localities) {
		return false
	}
	return containsAny(l.Title+" "+l.Details, f.Keywords)
}

// containsAny は大文字小文字を区別せずに部分一致を調べます。候補が空なら常に true です。
func containsAny(text string, needles []string) bool {
	if len(needles) == 0 {
		return true
	}
	t := strings.ToLower(text)
	for _, n := range needles {
		if strings.Contains(t, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
