package extract

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shouni/go-listing-watch/pkg/httpclient"
)

// ImageProber は詳細ページから代表画像のURLを探します。
type ImageProber struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewImageProber は新しい ImageProber を生成します。
func NewImageProber(fetcher Fetcher, logger *slog.Logger) *ImageProber {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageProber{fetcher: fetcher, logger: logger}
}

// Probe は og:image、なければ最初の絶対URLの img src を返します。
// ブロックシグナルはエラーとして返し、それ以外の取得や解析の失敗は空文字とします。
func (p *ImageProber) Probe(ctx context.Context, pageURL string, opts httpclient.FetchOptions) (string, error) {
	if p == nil || p.fetcher == nil || pageURL == "" {
		return "", nil
	}
	resp, err := p.fetcher.Fetch(ctx, pageURL, opts)
	if err != nil && httpclient.IsBlocked(err) {
		return "", err
	}
	if err != nil || resp.StatusCode != http.StatusOK {
		p.logger.Debug("画像ページの取得に失敗しました", "url", pageURL, "error", err)
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return "", nil
	}
	return findImage(doc), nil
}

func findImage(doc *goquery.Document) string {
	og := doc.Find("meta[property='og:image']").First()
	if og.Length() == 0 {
		og = doc.Find("meta[name='og:image']").First()
	}
	if content, ok := og.Attr("content"); ok && content != "" {
		return content
	}

	src, ok := doc.Find("img").First().Attr("src")
	if !ok {
		return ""
	}
	if strings.HasPrefix(src, "//") {
		src = "https:" + src
	}
	if strings.HasPrefix(src, "http") {
		return src
	}
	return ""
}
