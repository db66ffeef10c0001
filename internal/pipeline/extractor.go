package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/shouni/go-listing-watch/pkg/browser"
	"github.com/shouni/go-listing-watch/pkg/config"
	"github.com/shouni/go-listing-watch/pkg/extract"
	"github.com/shouni/go-listing-watch/pkg/feed"
	"github.com/shouni/go-listing-watch/pkg/httpclient"
	"github.com/shouni/go-listing-watch/pkg/source"
)

// fetchers は描画方式ごとの取得手段です。ブラウザは必要な場合のみ起動します。
type fetchers struct {
	cfg      *config.Config
	logger   *slog.Logger
	override extract.Fetcher

	http    extract.Fetcher
	browser extract.Fetcher
	loader  *browser.Loader
}

func (f *fetchers) clientOptions() []httpclient.Option {
	rps := f.cfg.RequestsPerSecond
	if f.cfg.Parallel && rps <= 0 {
		rps = DefaultParallelRPS
	}
	return []httpclient.Option{
		httpclient.WithMaxAttempts(uint64(f.cfg.Retries)),
		httpclient.WithUserAgent(f.cfg.UserAgent),
		httpclient.WithRateLimit(rps, 1),
		httpclient.WithLogger(f.logger),
	}
}

func (f *fetchers) forRender(r source.Render) extract.Fetcher {
	if f.override != nil {
		return f.override
	}
	if r == source.RenderBrowser {
		if f.browser == nil {
			f.loader = browser.New(browser.Options{Headless: f.cfg.Headless, UserAgent: f.cfg.UserAgent})
			opts := append(f.clientOptions(), httpclient.WithLoader(f.loader))
			f.browser = httpclient.New(f.cfg.Timeout, opts...)
		}
		return f.browser
	}
	if f.http == nil {
		f.http = httpclient.New(f.cfg.Timeout, f.clientOptions()...)
	}
	return f.http
}

func (f *fetchers) close() {
	if f.loader != nil {
		f.loader.Close()
	}
}

// newExtractors は選択されたソースの定義から抽出器を生成します。
func newExtractors(cfg *config.Config, reg *source.Registry, override extract.Fetcher, logger *slog.Logger) (map[string]extract.Extractor, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	// 1. 取得手段の準備 (遅延生成)
	f := &fetchers{cfg: cfg, logger: logger, override: override}

	// 2. 画像取得は通常のHTTPで行う
	var prober *extract.ImageProber
	if cfg.FetchImages {
		prober = extract.NewImageProber(f.forRender(source.RenderHTTP), logger)
	}

	// 3. ソースの種類ごとに抽出器を生成
	out := make(map[string]extract.Extractor, len(cfg.Sources))
	for _, id := range cfg.Sources {
		def, err := reg.Get(id)
		if err != nil {
			f.close()
			return nil, nil, err
		}

		var ext extract.Extractor
		switch def.Kind {
		case source.KindMock:
			ext = extract.NewMockExtractor(def)
		case source.KindFeed:
			ext, err = feed.NewExtractor(def, f.forRender(def.Render))
		default:
			opts := []extract.Option{extract.WithLogger(logger.With(slog.String("source", id)))}
			if prober != nil {
				opts = append(opts, extract.WithImageProber(prober))
			}
			ext, err = extract.NewPageExtractor(def, f.forRender(def.Render), opts...)
		}
		if err != nil {
			f.close()
			return nil, nil, fmt.Errorf("ソース %s の抽出器の初期化に失敗しました: %w", id, err)
		}
		out[id] = ext
	}
	return out, f.close, nil
}
