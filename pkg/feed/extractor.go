package feed

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	textUtils "github.com/shouni/go-utils/text"

	"github.com/shouni/go-listing-watch/pkg/extract"
	"github.com/shouni/go-listing-watch/pkg/httpclient"
	"github.com/shouni/go-listing-watch/pkg/source"
	"github.com/shouni/go-listing-watch/pkg/types"
)

// pricePattern はユーロ表記の価格を探します (例: "45.000 €", "€ 45 000")。
var pricePattern = regexp.MustCompile(`(?:€\s*(\d{1,3}(?:[.\s]\d{3})+|\d+))|(?:(\d{1,3}(?:[.\s]\d{3})+|\d+)\s*(?:€|EUR))`)

// Extractor はフィードの各アイテムをリスティングとして返す extract.Extractor の実装です。
type Extractor struct {
	def    source.Definition
	parser *Parser
}

// NewExtractor は新しい Extractor を生成します。
func NewExtractor(def source.Definition, fetcher extract.Fetcher) (*Extractor, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("feed.NewExtractor: Fetcher cannot be nil")
	}
	if def.Kind != source.KindFeed {
		return nil, fmt.Errorf("feed.NewExtractor: ソース %s はフィード種別ではありません (%s)", def.ID, def.Kind)
	}
	return &Extractor{def: def, parser: NewParser(fetcher)}, nil
}

// Extract はフィードを1回取得し、条件に合うアイテムを最大 req.Ask 件返します。
func (e *Extractor) Extract(ctx context.Context, req extract.Request) ([]types.Listing, error) {
	if req.Ask <= 0 {
		return nil, nil
	}

	feedURL, err := e.def.PageURL(source.Query{
		MinPrice:    req.Filters.MinPrice,
		MaxPrice:    req.Filters.MaxPrice,
		MinBedrooms: req.Filters.MinBedrooms,
		Page:        1,
	})
	if err != nil {
		return nil, err
	}

	f, err := e.parser.FetchAndParse(ctx, feedURL, httpclient.FetchOptions{Timeout: req.Timeout, MaxAttempts: req.Attempts})
	if err != nil {
		if httpclient.IsBlocked(err) {
			return nil, fmt.Errorf("%w: %w", extract.ErrBlocked, err)
		}
		return nil, err
	}

	var items []types.Listing
	for _, item := range f.Items {
		if item == nil {
			continue
		}
		l := e.toListing(item)
		if !extract.Accept(l, req.Filters) {
			continue
		}
		items = append(items, l)
		if len(items) >= req.Ask {
			break
		}
	}
	return items, nil
}

func (e *Extractor) toListing(item *gofeed.Item) types.Listing {
	title := clean(item.Title)
	if title == "" {
		title = e.def.DefaultTitle
	}
	details := stripHTML(item.Description)
	return types.Listing{
		Source:   e.def.ID,
		Title:    title,
		Price:    findPrice(title + " " + details),
		URL:      e.def.Resolve(item.Link),
		Location: strings.Join(item.Categories, ", "),
		Details:  details,
		ImageURL: imageOf(item),
	}
}

// findPrice は本文中の最初のユーロ価格を数値化します。見つからなければ NaN です。
func findPrice(text string) float64 {
	m := pricePattern.FindStringSubmatch(text)
	if m == nil {
		return math.NaN()
	}
	for _, g := range m[1:] {
		if g != "" {
			return extract.ParsePrice(g)
		}
	}
	return math.NaN()
}

func imageOf(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

func stripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return clean(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return clean(s)
	}
	return clean(doc.Text())
}

func clean(s string) string {
	return strings.TrimSpace(textUtils.NormalizeText(s))
}
