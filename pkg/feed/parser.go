// Package feed は、RSS/Atom フィードを公開しているソース向けの抽出器を提供します。
package feed

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mmcdole/gofeed"

	"github.com/shouni/go-listing-watch/pkg/extract"
	"github.com/shouni/go-listing-watch/pkg/httpclient"
)

// Parser はフィードの取得とパースを行います。
type Parser struct {
	client extract.Fetcher // インターフェースに依存
}

// NewParser は新しい Parser インスタンスを初期化し、依存関係を注入します。
func NewParser(client extract.Fetcher) *Parser {
	return &Parser{client: client}
}

// FetchAndParse は指定されたURLからフィードを取得し、パースします。
func (p *Parser) FetchAndParse(ctx context.Context, feedURL string, opts httpclient.FetchOptions) (*gofeed.Feed, error) {
	resp, err := p.client.Fetch(ctx, feedURL, opts)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得失敗 (URL: %s): %w", feedURL, err)
	}

	fp := gofeed.NewParser()
	feed, parseErr := fp.Parse(bytes.NewReader(resp.Body))
	if parseErr != nil {
		return nil, fmt.Errorf("RSSフィードのパース失敗 (URL: %s): %w", feedURL, parseErr)
	}
	return feed, nil
}
