package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// リトライ関連の定数
	DefaultMaxAttempts = 5 // 最大試行回数 (初回を含む)

	// バックオフのカスタム設定
	DefaultBaseInterval = 800 * time.Millisecond
	DefaultMaxJitter    = 300 * time.Millisecond
	MaxBackoffInterval  = 30 * time.Second
)

// Operation はリトライ可能な処理を表す関数です。成功時は nil を返します。
type Operation func() error

// ShouldRetryFunc はエラーを受け取り、そのエラーがリトライ可能かどうかを判定する関数です。
type ShouldRetryFunc func(error) bool

// Config はリトライ動作を設定するための構造体です。
// 待機時間は BaseInterval × 2^(n−1) に [0, MaxJitter) の一様乱数を加えた値です。
type Config struct {
	MaxAttempts  uint64
	BaseInterval time.Duration
	MaxJitter    time.Duration
	MaxInterval  time.Duration
}

// DefaultConfig は推奨されるデフォルト設定を返します。
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  DefaultMaxAttempts,
		BaseInterval: DefaultBaseInterval,
		MaxJitter:    DefaultMaxJitter,
		MaxInterval:  MaxBackoffInterval,
	}
}

// jitteredExponential は backoff.BackOff を満たす、加算ジッター付きの指数バックオフです。
type jitteredExponential struct {
	base    time.Duration
	jitter  time.Duration
	max     time.Duration
	attempt int
	randFn  func() float64
}

func newJitteredExponential(cfg Config) *jitteredExponential {
	return &jitteredExponential{
		base:   cfg.BaseInterval,
		jitter: cfg.MaxJitter,
		max:    cfg.MaxInterval,
		randFn: rand.Float64,
	}
}

// NextBackOff は次の待機時間を返します。
func (b *jitteredExponential) NextBackOff() time.Duration {
	b.attempt++
	d := b.base
	for i := 1; i < b.attempt; i++ {
		d *= 2
		if b.max > 0 && d >= b.max {
			d = b.max
			break
		}
	}
	if b.jitter > 0 {
		d += time.Duration(b.randFn() * float64(b.jitter))
	}
	return d
}

// Reset は試行回数をリセットします。
func (b *jitteredExponential) Reset() {
	b.attempt = 0
}

// newBackOffPolicy は試行回数とコンテキストを適用したバックオフポリシーを生成します。
func newBackOffPolicy(ctx context.Context, cfg Config) backoff.BackOff {
	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	bo := backoff.WithMaxRetries(newJitteredExponential(cfg), attempts-1)
	return backoff.WithContext(bo, ctx)
}

// Do は指数バックオフとカスタムエラー判定を使用して操作をリトライします。
// リトライ対象外のエラーは元のエラーをそのまま返すため、呼び出し側は errors.As で型を判定できます。
func Do(ctx context.Context, cfg Config, operationName string, op Operation, shouldRetryFn ShouldRetryFunc) error {
	bo := newBackOffPolicy(ctx, cfg)

	var (
		lastErr   error
		permanent bool
	)

	// リトライ処理内で実行される実際の操作
	retryableOp := func() error {
		err := op()
		if err == nil {
			return nil // 成功
		}
		lastErr = err

		// 外部から渡された判定関数を使用
		if shouldRetryFn(err) {
			return err // リトライ対象
		}
		permanent = true
		return backoff.Permanent(err) // 永続エラーとしてラップし、即時終了
	}

	err := backoff.Retry(retryableOp, bo)
	if err == nil {
		return nil
	}

	// コンテキストキャンセル/タイムアウトのエラー処理 (個々のリクエストのタイムアウトとは区別する)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%sに失敗しました: コンテキストタイムアウト/キャンセル: %w", operationName, ctxErr)
	}

	// 永続エラーは backoff.Retry がラップを外して返す
	if permanent {
		return lastErr
	}

	// その他の試行上限到達エラー
	return fmt.Errorf("%sに失敗しました: 最大試行回数 (%d回) に到達。最終エラー: %w", operationName, max(cfg.MaxAttempts, 1), lastErr)
}
