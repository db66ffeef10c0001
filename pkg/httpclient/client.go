package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/shouni/go-listing-watch/pkg/retry"
)

const (
	// HTTPクライアント関連の定数
	DefaultHTTPTimeout = 35 * time.Second
	MaxBodySize        = int64(10 * 1024 * 1024) // 10MB: レスポンスボディの最大読み込みサイズ

	// サイトからのブロックを避けるためのUser-Agent
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Doer は、標準の *http.Client.Do()と互換性のあるHTTPクライアントのインターフェースを定義します。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Loader は、1回分のページ取得を行う下位のトランスポートです。
// リトライ、レート制限、応答分類は Client 側が担います。
type Loader interface {
	Load(ctx context.Context, url string) (status int, body []byte, err error)
}

// Response は、成功と分類されたレスポンスです。
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
}

// FetchOptions は、1回の論理リクエストごとの取得パラメータです。
type FetchOptions struct {
	Timeout     time.Duration // 1試行あたりのタイムアウト (0 はクライアント既定値)
	MaxAttempts int           // 最大試行回数 (0 はクライアント既定値)
}

// Client はHTTPリクエストと指数バックオフを用いたリトライロジックを管理します。
type Client struct {
	httpClient  Doer
	loader      Loader
	retryConfig retry.Config
	timeout     time.Duration
	userAgent   string
	limiters    *hostLimiters
	logger      *slog.Logger
}

// Option はClientの設定を行うための関数型です。
type Option func(*Client)

// WithHTTPClient はカスタムのDoerを設定します。
func WithHTTPClient(doer Doer) Option {
	return func(c *Client) {
		c.httpClient = doer
	}
}

// WithLoader は、HTTP以外の取得手段 (ヘッドレスブラウザ等) を設定します。
func WithLoader(l Loader) Option {
	return func(c *Client) {
		c.loader = l
	}
}

// WithMaxAttempts は最大試行回数を設定します。
func WithMaxAttempts(n uint64) Option {
	return func(c *Client) {
		c.retryConfig.MaxAttempts = n
	}
}

// WithRetryConfig はバックオフ設定全体を差し替えます。
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) {
		c.retryConfig = cfg
	}
}

// WithUserAgent は User-Agent ヘッダーを設定します。
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRateLimit はホストごとのトークンバケットを設定します。rps が 0 以下の場合は無制限です。
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiters = newHostLimiters(rps, burst)
	}
}

// WithLogger はロガーを設定します。
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New は、新しいClientを生成します。
// 既定のトランスポートはセッション相当のクッキージャーを持ちます。
func New(timeout time.Duration, options ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	// publicsuffix.List は常に有効なため、エラーは発生しません
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		retryConfig: retry.DefaultConfig(),
		timeout:     timeout,
		userAgent:   UserAgent,
		logger:      slog.Default(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Fetch は、リトライ・バックオフ・ブロック検知を伴ってURLを取得します。
// ブロックシグナルは *BlockedError としてリトライせずに返します。
func (c *Client) Fetch(ctx context.Context, url string, opts FetchOptions) (*Response, error) {
	cfg := c.retryConfig
	if opts.MaxAttempts > 0 {
		cfg.MaxAttempts = uint64(opts.MaxAttempts)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	var resp *Response
	attempt := 0
	op := func() error {
		attempt++
		var fetchErr error
		resp, fetchErr = c.doFetch(ctx, url, timeout)
		if fetchErr != nil {
			c.logger.Debug("取得に失敗しました", "url", url, "attempt", attempt, "error", fetchErr)
		}
		return fetchErr
	}

	err := retry.Do(
		ctx,
		cfg,
		fmt.Sprintf("URL(%s)のフェッチ", url),
		op,
		isRetryableError,
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// doFetch は実際の一度の取得と応答分類を実行します。
func (c *Client) doFetch(ctx context.Context, url string, timeout time.Duration) (*Response, error) {
	if err := c.limiters.wait(ctx, url); err != nil {
		return nil, fmt.Errorf("レート制限の待機に失敗しました: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		status int
		body   []byte
		err    error
	)
	if c.loader != nil {
		status, body, err = c.loader.Load(attemptCtx, url)
	} else {
		status, body, err = c.loadHTTP(attemptCtx, url)
	}
	if err != nil {
		return nil, err
	}

	switch outcome, marker := Classify(status, body); outcome {
	case OutcomeBlocked:
		return nil, &BlockedError{URL: url, StatusCode: status, Marker: marker}
	case OutcomeSoftFailure:
		if len(body) == 0 && status >= 200 && status < 400 {
			return nil, fmt.Errorf("%w (URL: %s, ステータスコード %d)", ErrEmptyBody, url, status)
		}
		return nil, &StatusError{URL: url, StatusCode: status, Body: body}
	}
	return &Response{URL: url, StatusCode: status, Body: body}, nil
}

// loadHTTP は Doer を使った1回のGETリクエストです。
func (c *Client) loadHTTP(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", errInvalidRequest, err)
	}
	c.addCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTPリクエストに失敗しました (ネットワーク/接続エラー): %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("レスポンスボディの読み込みに失敗しました: %w", err)
	}
	return resp.StatusCode, body, nil
}

// addCommonHeaders は共通のHTTPヘッダーを設定します。
func (c *Client) addCommonHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pt-PT,pt;q=0.9,en;q=0.8")
}

// isRetryableError はエラーがリトライ対象かどうかを判定します。
// この関数は retry.ShouldRetryFunc 型のシグネチャを満たします。
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// ブロックシグナルは継続すると状況が悪化するためリトライしない
	if IsBlocked(err) {
		return false
	}
	if errors.Is(err, errInvalidRequest) {
		return false
	}
	// ネットワークエラー、タイムアウト、エラーステータス、空ボディはすべてリトライ対象
	return true
}
