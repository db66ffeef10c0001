package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shouni/go-listing-watch/pkg/source"
	"github.com/shouni/go-listing-watch/pkg/types"
)

// mockLocalities はモックが生成する所在地の候補です。
var mockLocalities = []string{"Covilhã", "Manteigas", "Seia", "Gouveia"}

// MockExtractor はネットワークを使わずに決定的なリスティングを生成します。
// 呼び出しごとに続きの番号を払い出すため、同じ実行内でURLは重複しません。
type MockExtractor struct {
	def  source.Definition
	mu   sync.Mutex
	next int
}

// NewMockExtractor は新しい MockExtractor を生成します。
func NewMockExtractor(def source.Definition) *MockExtractor {
	return &MockExtractor{def: def}
}

// Extract は条件に合うモックリスティングを最大 req.Ask 件返します。
func (m *MockExtractor) Extract(ctx context.Context, req Request) ([]types.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := m.def.MaxPages * m.def.PageSize
	var items []types.Listing
	for len(items) < req.Ask && m.next < limit {
		n := m.next
		m.next++

		l := types.Listing{
			Source:   m.def.ID,
			Title:    fmt.Sprintf("Moradia em pedra T%d", 2+n%3),
			Price:    float64(30000 + (n%10)*2500),
			URL:      fmt.Sprintf("%s/imovel/%d", strings.TrimRight(m.def.BaseURL, "/"), n+1),
			Location: mockLocalities[n%len(mockLocalities)],
			Typology: fmt.Sprintf("T%d", 2+n%3),
			Details:  "Casa de granito para recuperar",
		}
		if Accept(l, req.Filters) {
			items = append(items, l)
		}
	}
	return items, nil
}
