// Package source は、外部リスティングソースの定義と不変のレジストリを提供します。
package source

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSource は、レジストリに存在しないソースIDが指定された場合のエラーです。
var ErrUnknownSource = errors.New("未知のソースIDです")

// Registry は、起動時に一度だけ構築される読み取り専用のソース表です。
type Registry struct {
	order []string
	defs  map[string]Definition
}

// NewRegistry は base に overrides を適用してレジストリを構築します。
// 既存IDへの上書きは設定された項目のみを置き換え、新しいIDは末尾に追加します。
func NewRegistry(base []Definition, overrides ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(base)+len(overrides))}

	// 1. 基本定義を登録
	for _, d := range base {
		id := strings.ToLower(strings.TrimSpace(d.ID))
		if _, dup := r.defs[id]; dup {
			return nil, fmt.Errorf("ソースID %q が重複しています", id)
		}
		d.ID = id
		r.defs[id] = d
		r.order = append(r.order, id)
	}

	// 2. 上書き定義をマージ
	for _, o := range overrides {
		id := strings.ToLower(strings.TrimSpace(o.ID))
		o.ID = id
		if cur, ok := r.defs[id]; ok {
			r.defs[id] = merge(cur, o)
			continue
		}
		r.defs[id] = o
		r.order = append(r.order, id)
	}

	// 3. 既定値の補完とテンプレートの検証
	for _, id := range r.order {
		d := r.defs[id]
		if err := d.compile(); err != nil {
			return nil, fmt.Errorf("ソース定義の検証に失敗しました: %w", err)
		}
		r.defs[id] = d
	}
	return r, nil
}

// Default は組み込みソースのみのレジストリを返します。
func Default() *Registry {
	r, err := NewRegistry(Builtin())
	if err != nil {
		panic(fmt.Sprintf("組み込みソース定義が不正です: %v", err))
	}
	return r
}

// Get はIDに対応する定義を返します。
func (r *Registry) Get(id string) (Definition, error) {
	d, ok := r.defs[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	return d, nil
}

// IDs は登録順のソースIDを返します。
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Definitions は登録順の定義のコピーを返します。
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.defs[id])
	}
	return out
}

func merge(cur, o Definition) Definition {
	if o.Kind != "" {
		cur.Kind = o.Kind
	}
	if o.Render != "" {
		cur.Render = o.Render
	}
	if o.BaseURL != "" {
		cur.BaseURL = o.BaseURL
	}
	if o.SearchURL != "" {
		cur.SearchURL = o.SearchURL
	}
	if o.MaxPages > 0 {
		cur.MaxPages = o.MaxPages
	}
	if o.PageSize > 0 {
		cur.PageSize = o.PageSize
	}
	if o.DefaultTitle != "" {
		cur.DefaultTitle = o.DefaultTitle
	}
	mergeList(&cur.Selectors.Card, o.Selectors.Card)
	mergeList(&cur.Selectors.Link, o.Selectors.Link)
	mergeList(&cur.Selectors.Title, o.Selectors.Title)
	mergeList(&cur.Selectors.Price, o.Selectors.Price)
	mergeList(&cur.Selectors.Location, o.Selectors.Location)
	mergeList(&cur.Selectors.Details, o.Selectors.Details)
	return cur
}

func mergeList(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = append([]string(nil), src...)
	}
}
