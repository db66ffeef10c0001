package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	textUtils "github.com/shouni/go-utils/text"

	"github.com/shouni/go-listing-watch/pkg/httpclient"
	"github.com/shouni/go-listing-watch/pkg/source"
	"github.com/shouni/go-listing-watch/pkg/types"
)

// PageExtractor は、ソース定義に従って検索結果ページのカードを解析する汎用の抽出器です。
type PageExtractor struct {
	def     source.Definition
	fetcher Fetcher
	images  *ImageProber
	logger  *slog.Logger
}

// Option は PageExtractor の設定を行うための関数型です。
type Option func(*PageExtractor)

// WithImageProber は、採用したリスティングごとの画像取得を有効にします。
func WithImageProber(p *ImageProber) Option {
	return func(e *PageExtractor) {
		e.images = p
	}
}

// WithLogger はロガーを設定します。
func WithLogger(l *slog.Logger) Option {
	return func(e *PageExtractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewPageExtractor は、新しい PageExtractor のインスタンスを生成します。
func NewPageExtractor(def source.Definition, fetcher Fetcher, opts ...Option) (*PageExtractor, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("extract.NewPageExtractor: Fetcher cannot be nil")
	}
	if def.Kind != source.KindHTML {
		return nil, fmt.Errorf("extract.NewPageExtractor: ソース %s は HTML 種別ではありません (%s)", def.ID, def.Kind)
	}
	e := &PageExtractor{
		def:     def,
		fetcher: fetcher,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Extract は検索結果ページを順に取得し、条件に合うリスティングを最大 req.Ask 件返します。
func (e *PageExtractor) Extract(ctx context.Context, req Request) ([]types.Listing, error) {
	if req.Ask <= 0 {
		return nil, nil
	}

	var items []types.Listing
	query := source.Query{
		MinPrice:    req.Filters.MinPrice,
		MaxPrice:    req.Filters.MaxPrice,
		MinBedrooms: req.Filters.MinBedrooms,
	}

	for page := 1; len(items) < req.Ask && page <= e.def.MaxPages; page++ {
		// 1. ページURLを生成して取得
		query.Page = page
		pageURL, err := e.def.PageURL(query)
		if err != nil {
			return items, err
		}

		resp, err := e.fetcher.Fetch(ctx, pageURL, req.fetchOptions())
		if err != nil {
			if httpclient.IsBlocked(err) {
				if len(items) == 0 {
					return nil, fmt.Errorf("%w: %w", ErrBlocked, err)
				}
				e.logger.Warn("ブロックシグナルのためページ送りを中断します", "source", e.def.ID, "page", page, "collected", len(items))
				return items, nil
			}
			if len(items) == 0 {
				return nil, fmt.Errorf("ソース %s のページ取得に失敗しました: %w", e.def.ID, err)
			}
			e.logger.Warn("後続ページの取得に失敗したため取得済みの結果を返します", "source", e.def.ID, "page", page, "error", err)
			return items, nil
		}

		// 2. goquery.Document に変換してカードを列挙
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			return items, fmt.Errorf("HTML解析に失敗しました: %w", err)
		}
		cards := selectFirst(doc.Selection, e.def.Selectors.Card)
		if cards.Length() == 0 {
			e.logger.Debug("カードが見つかりません", "source", e.def.ID, "page", page)
			break
		}

		// 3. カードごとにフィールドを抽出し、条件に合うものだけを採用
		var blocked error
		cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
			l := e.parseCard(card)
			if !Accept(l, req.Filters) {
				return true
			}
			if e.images != nil {
				l.ImageURL, blocked = e.images.Probe(ctx, l.URL, req.fetchOptions())
			}
			// 画像ページでブロックされた場合も検索結果から得た値は採用する
			items = append(items, l)
			return blocked == nil && len(items) < req.Ask
		})
		if blocked != nil {
			e.logger.Warn("画像ページでブロックシグナルを検出したためページ送りを中断します", "source", e.def.ID, "page", page, "collected", len(items))
			return items, nil
		}
	}
	return items, nil
}

// parseCard はひとつのカード要素からリスティングを組み立てます。
func (e *PageExtractor) parseCard(card *goquery.Selection) types.Listing {
	sel := e.def.Selectors

	link := selectFirst(card, sel.Link).First()
	href, _ := link.Attr("href")

	title := ""
	if len(sel.Title) > 0 {
		if t := selectFirst(card, sel.Title); t.Length() > 0 {
			title = cleanText(t.First())
		}
	}
	if title == "" && link.Length() > 0 {
		title = cleanText(link)
	}
	if title == "" {
		title = e.def.DefaultTitle
	}

	return types.Listing{
		Source:   e.def.ID,
		Title:    title,
		Price:    ParsePrice(fieldText(card, sel.Price)),
		URL:      e.def.Resolve(href),
		Location: fieldText(card, sel.Location),
		Details:  fieldText(card, sel.Details),
	}
}

// selectFirst は候補セレクターを順に試し、最初に要素が見つかった結果を返します。
func selectFirst(s *goquery.Selection, selectors []string) *goquery.Selection {
	for _, q := range selectors {
		if found := s.Find(q); found.Length() > 0 {
			return found
		}
	}
	return s.Slice(0, 0)
}

func fieldText(card *goquery.Selection, selectors []string) string {
	if len(selectors) == 0 {
		return ""
	}
	found := selectFirst(card, selectors)
	if found.Length() == 0 {
		return ""
	}
	return cleanText(found.First())
}

func cleanText(s *goquery.Selection) string {
	return strings.TrimSpace(textUtils.NormalizeText(s.Text()))
}
