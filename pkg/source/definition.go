package source

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"text/template"
)

// Kind は抽出器の種類です。
type Kind string

const (
	KindHTML Kind = "html" // 検索結果ページのカードを解析します
	KindFeed Kind = "feed" // RSS/Atom フィードを解析します
	KindMock Kind = "mock" // ネットワークを使わず決定的なリスティングを生成します
)

// Render はページの取得手段です。
type Render string

const (
	RenderHTTP    Render = "http"
	RenderBrowser Render = "browser"
)

const (
	DefaultMaxPages = 5
	DefaultPageSize = 25
)

// Selectors は、カードとフィールドごとのCSSセレクターの候補です。
// 各項目は先頭から順に試し、最初に一致したものを採用します。
type Selectors struct {
	Card     []string `yaml:"card"`
	Link     []string `yaml:"link"`
	Title    []string `yaml:"title"`
	Price    []string `yaml:"price"`
	Location []string `yaml:"location"`
	Details  []string `yaml:"details"`
}

// Definition は、ひとつの外部ソースの取得方法を記述します。
type Definition struct {
	ID           string    `yaml:"id"`
	Kind         Kind      `yaml:"kind"`
	Render       Render    `yaml:"render"`
	BaseURL      string    `yaml:"base_url"`
	SearchURL    string    `yaml:"search_url"` // text/template 形式
	MaxPages     int       `yaml:"max_pages"`
	PageSize     int       `yaml:"page_size"`
	DefaultTitle string    `yaml:"default_title"`
	Selectors    Selectors `yaml:"selectors"`

	tmpl *template.Template
}

// Query は検索URLテンプレートへ渡す値です。
type Query struct {
	MinPrice    int
	MaxPrice    int
	MinBedrooms int
	Page        int // 1 始まり
	Offset      int // (Page-1) × PageSize
}

var templateFuncs = template.FuncMap{
	// opt はゼロ値を空文字として出力します。
	"opt": func(v int) string {
		if v == 0 {
			return ""
		}
		return strconv.Itoa(v)
	},
	// dflt はゼロ値を既定値で置き換えます。
	"dflt": func(v, d int) int {
		if v == 0 {
			return d
		}
		return v
	},
}

// compile は既定値を補完し、URLテンプレートを解析します。
func (d *Definition) compile() error {
	d.ID = strings.ToLower(strings.TrimSpace(d.ID))
	if d.ID == "" {
		return fmt.Errorf("ソースIDが空です")
	}
	if d.Kind == "" {
		d.Kind = KindHTML
	}
	if d.Render == "" {
		d.Render = RenderHTTP
	}
	if d.MaxPages <= 0 {
		d.MaxPages = DefaultMaxPages
	}
	if d.PageSize <= 0 {
		d.PageSize = DefaultPageSize
	}
	if len(d.Selectors.Link) == 0 {
		d.Selectors.Link = []string{"a"}
	}

	switch d.Kind {
	case KindHTML, KindFeed:
		if strings.TrimSpace(d.SearchURL) == "" {
			return fmt.Errorf("ソース %s の search_url が空です", d.ID)
		}
		if d.Kind == KindHTML && len(d.Selectors.Card) == 0 {
			return fmt.Errorf("ソース %s のカードセレクターが空です", d.ID)
		}
	case KindMock:
		if d.BaseURL == "" {
			d.BaseURL = "https://" + d.ID + ".example.invalid"
		}
		return nil
	default:
		return fmt.Errorf("ソース %s の種類 %q は不明です", d.ID, d.Kind)
	}
	if d.Render != RenderHTTP && d.Render != RenderBrowser {
		return fmt.Errorf("ソース %s の render %q は不明です", d.ID, d.Render)
	}

	tmpl, err := template.New(d.ID).Funcs(templateFuncs).Option("missingkey=error").Parse(d.SearchURL)
	if err != nil {
		return fmt.Errorf("ソース %s の search_url の解析に失敗しました: %w", d.ID, err)
	}
	d.tmpl = tmpl
	return nil
}

// PageURL は指定ページの検索URLを生成します。
func (d Definition) PageURL(q Query) (string, error) {
	if d.tmpl == nil {
		return "", fmt.Errorf("ソース %s のURLテンプレートが未初期化です", d.ID)
	}
	if q.Page < 1 {
		q.Page = 1
	}
	q.Offset = (q.Page - 1) * d.PageSize

	var buf bytes.Buffer
	if err := d.tmpl.Execute(&buf, q); err != nil {
		return "", fmt.Errorf("ソース %s の検索URL生成に失敗しました: %w", d.ID, err)
	}
	return buf.String(), nil
}

// Resolve は相対リンクを BaseURL 基準の絶対URLに変換します。
func (d Definition) Resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	base, err := url.Parse(d.BaseURL)
	if err != nil || d.BaseURL == "" {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
