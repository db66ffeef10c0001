package extract

import (
	"context"
	"errors"
	"time"

	"github.com/shouni/go-listing-watch/pkg/httpclient"
	"github.com/shouni/go-listing-watch/pkg/types"
)

// ----------------------------------------------------------------------
// 依存性の定義 (DIP)
// ----------------------------------------------------------------------

// Fetcher は、リトライと応答分類を済ませたページ本文を取得する機能のインターフェースを定義します。
// *httpclient.Client がこれを満たします。
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts httpclient.FetchOptions) (*httpclient.Response, error)
}

// ErrBlocked は、1件も得られないうちにブロックシグナルを検知した場合のエラーです。
var ErrBlocked = errors.New("ブロックシグナルにより取得を中断しました")

// Request は、スケジューラから抽出器への1回分の依頼です。
type Request struct {
	Filters  types.Filters
	Ask      int           // 返却する最大件数
	Timeout  time.Duration // 1試行あたりのタイムアウト
	Attempts int           // 1リクエストあたりの最大試行回数
}

func (r Request) fetchOptions() httpclient.FetchOptions {
	return httpclient.FetchOptions{Timeout: r.Timeout, MaxAttempts: r.Attempts}
}

// Extractor は、ひとつのソースから条件に合うリスティングを最大 Ask 件まで返します。
// ブロックシグナルを検知した時点でページ送りを止め、それまでの結果を返します。
type Extractor interface {
	Extract(ctx context.Context, req Request) ([]types.Listing, error)
}
