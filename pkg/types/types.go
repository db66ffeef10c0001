package types

import (
	"math"
)

// Listing は、ひとつのソースから得られた物件候補です。
// 抽出器が生成した後は読み取り専用として扱います。
type Listing struct {
	Source   string  // 取得元ソースID
	Title    string  // 物件タイトル
	Price    float64 // 価格 (不明な場合は NaN)
	URL      string  // 同一性キーとなる正規URL
	Location string  // 所在地
	Typology string  // 間取り・種別
	Details  string  // 補足説明
	ImageURL string  // 画像URL (任意)
}

// HasPrice は価格が判明しているかを返します。
func (l Listing) HasPrice() bool {
	return !math.IsNaN(l.Price)
}

// Filters は、抽出器へ渡す検索条件です。ゼロ値の項目は「条件なし」を意味します。
type Filters struct {
	MinPrice    int
	MaxPrice    int
	MinBedrooms int
	Localities  []string
	Keywords    []string
}

// Classification は前回スナップショットとの比較結果の分類です。
type Classification string

const (
	ClassNew       Classification = "new"
	ClassUp        Classification = "up"
	ClassDown      Classification = "down"
	ClassUnchanged Classification = "unchanged"
)

// ChangeRecord は、リスティングごとの価格変動情報です。
type ChangeRecord struct {
	PreviousPrice  *float64
	Delta          float64
	Classification Classification
}

// Annotated は、差分情報を付与したリスティングです。
type Annotated struct {
	Listing
	Change ChangeRecord
}

// Summary は、レポート出力に必要な最小限の集計値です。
type Summary struct {
	Total int `json:"total"`
	Ups   int `json:"ups"`
	Downs int `json:"downs"`
	News  int `json:"news"`
}
