// Package dedup は、URLを同一性キーとしてリスティングの重複を取り除きます。
package dedup

import (
	"strings"

	"github.com/shouni/go-listing-watch/pkg/types"
)

// Key はリスティングの同一性キーです。前後の空白を取り除いたURLを使います。
func Key(l types.Listing) string {
	return strings.TrimSpace(l.URL)
}

// Unique はキーが空のものを除き、キーごとに最初の1件だけを出現順に残します。
// 入力は変更しません。
func Unique(in []types.Listing) []types.Listing {
	seen := make(map[string]struct{}, len(in))
	out := make([]types.Listing, 0, len(in))
	for _, l := range in {
		key := Key(l)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	return out
}
