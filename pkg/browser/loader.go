// Package browser は、JavaScript で描画されるページをヘッドレスChromeで取得する Loader を提供します。
// 応答の分類とリトライは httpclient.Client が担うため、ここでは1回分の描画だけを行います。
package browser

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	// DefaultSettle は、ナビゲーション完了後に描画を待つ時間です。
	DefaultSettle = 2 * time.Second
)

// Options は Loader の起動設定です。
type Options struct {
	Headless  bool
	UserAgent string
	Settle    time.Duration
}

// Loader は chromedp のブラウザプロセスを共有し、ページごとにタブを開きます。
type Loader struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	settle      time.Duration
}

// New はブラウザのアロケータを準備します。プロセスは最初の Load で起動します。
func New(opts Options) *Loader {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1366, 900),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	settle := opts.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	return &Loader{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		settle:      settle,
	}
}

// Load は新しいタブでURLを開き、描画後のHTMLとドキュメントのステータスコードを返します。
func (l *Loader) Load(ctx context.Context, url string) (int, []byte, error) {
	tabCtx, tabCancel := chromedp.NewContext(l.allocCtx)
	defer tabCancel()

	// 呼び出し側の期限とキャンセルをタブへ伝播させる
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		tabCtx, cancel = context.WithDeadline(tabCtx, deadline)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	var status atomic.Int64
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Type == network.ResourceTypeDocument {
			status.CompareAndSwap(0, e.Response.Status)
		}
	})

	var html string
	err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.Navigate(url),
		chromedp.Sleep(l.settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("ブラウザでのページ取得に失敗しました (URL: %s): %w", url, err)
	}

	code := int(status.Load())
	if code == 0 {
		code = 200
	}
	return code, []byte(html), nil
}

// Close はブラウザプロセスを終了します。
func (l *Loader) Close() {
	l.allocCancel()
}
