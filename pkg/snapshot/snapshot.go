// Package snapshot は、前回実行のリスティング集合 (url → 価格) の読み書きを提供します。
package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/shouni/go-listing-watch/pkg/types"
)

// Snapshot は前回実行の読み取り専用の価格表です。価格不明は NaN です。
type Snapshot struct {
	RunID  string
	Prices map[string]float64
}

// Store はスナップショットの永続化先です。
type Store interface {
	// Load は最新のスナップショットを返します。存在しない場合は nil, nil を返します。
	Load(ctx context.Context) (*Snapshot, error)
	// Save は今回の実行結果を次回の比較基準として保存します。
	Save(ctx context.Context, runID string, items []types.Annotated) error
}

// PricesOf は nil 安全に価格表を返します。初回実行では nil です。
func PricesOf(s *Snapshot) map[string]float64 {
	if s == nil {
		return nil
	}
	return s.Prices
}

// Multi は先頭のストアから読み込み、すべてのストアへ保存します。
type Multi []Store

// Load は先頭のストアから読み込みます。
func (m Multi) Load(ctx context.Context) (*Snapshot, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return m[0].Load(ctx)
}

// Save はすべてのストアへ保存し、失敗をまとめて返します。
func (m Multi) Save(ctx context.Context, runID string, items []types.Annotated) error {
	var errs []error
	for i, s := range m {
		if err := s.Save(ctx, runID, items); err != nil {
			errs = append(errs, fmt.Errorf("ストア[%d]への保存に失敗しました: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
