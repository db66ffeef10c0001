package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, uint64(DefaultMaxAttempts), cfg.MaxAttempts)
	require.Equal(t, DefaultBaseInterval, cfg.BaseInterval)
	require.Equal(t, DefaultMaxJitter, cfg.MaxJitter)
	require.Equal(t, MaxBackoffInterval, cfg.MaxInterval)
}

func TestNewBackOffPolicy(t *testing.T) {
	bo := newBackOffPolicy(context.Background(), Config{MaxAttempts: 3, BaseInterval: time.Millisecond})
	require.NotNil(t, bo)
}

func TestJitteredExponential_NextBackOff(t *testing.T) {
	t.Run("doubles without jitter", func(t *testing.T) {
		b := newJitteredExponential(Config{BaseInterval: 800 * time.Millisecond})
		assert.Equal(t, 800*time.Millisecond, b.NextBackOff())
		assert.Equal(t, 1600*time.Millisecond, b.NextBackOff())
		assert.Equal(t, 3200*time.Millisecond, b.NextBackOff())

		b.Reset()
		assert.Equal(t, 800*time.Millisecond, b.NextBackOff())
	})

	t.Run("adds bounded jitter", func(t *testing.T) {
		b := newJitteredExponential(Config{BaseInterval: 100 * time.Millisecond, MaxJitter: 300 * time.Millisecond})
		b.randFn = func() float64 { return 0.5 }
		assert.Equal(t, 250*time.Millisecond, b.NextBackOff())
		assert.Equal(t, 350*time.Millisecond, b.NextBackOff())
	})

	t.Run("caps at max interval", func(t *testing.T) {
		b := newJitteredExponential(Config{BaseInterval: time.Second, MaxInterval: 3 * time.Second})
		b.NextBackOff()
		b.NextBackOff()
		assert.Equal(t, 3*time.Second, b.NextBackOff())
		assert.Equal(t, 3*time.Second, b.NextBackOff())
	})
}

func TestDo(t *testing.T) {
	// テスト用の高速な設定
	testCfg := Config{MaxAttempts: 3, BaseInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
	opName := "test_operation"
	errRetryable := errors.New("retryable error")
	errFatal := errors.New("fatal error")

	tests := []struct {
		name          string
		ctx           func() context.Context
		operation     func(calls *int) Operation
		shouldRetry   ShouldRetryFunc
		expectedCalls int
		expectedIs    error
		expectedText  string
	}{
		{
			name: "successful operation",
			ctx:  context.Background,
			operation: func(calls *int) Operation {
				return func() error { *calls++; return nil }
			},
			shouldRetry:   func(error) bool { return false },
			expectedCalls: 1,
		},
		{
			name: "retryable error and success within max attempts",
			ctx:  context.Background,
			operation: func(calls *int) Operation {
				return func() error {
					*calls++
					if *calls < 3 {
						return errRetryable
					}
					return nil
				}
			},
			shouldRetry:   func(err error) bool { return errors.Is(err, errRetryable) },
			expectedCalls: 3,
		},
		{
			name: "non retryable error stops immediately",
			ctx:  context.Background,
			operation: func(calls *int) Operation {
				return func() error { *calls++; return errFatal }
			},
			shouldRetry:   func(err error) bool { return false },
			expectedCalls: 1,
			expectedIs:    errFatal,
			expectedText:  "fatal error",
		},
		{
			name: "max attempts exceeded",
			ctx:  context.Background,
			operation: func(calls *int) Operation {
				return func() error { *calls++; return errRetryable }
			},
			shouldRetry:   func(error) bool { return true },
			expectedCalls: 3,
			expectedIs:    errRetryable,
			expectedText:  "test_operationに失敗しました: 最大試行回数 (3回) に到達。最終エラー: retryable error",
		},
		{
			name: "context canceled",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			operation: func(calls *int) Operation {
				return func() error { *calls++; return errRetryable }
			},
			shouldRetry:   func(error) bool { return true },
			expectedCalls: 1,
			expectedIs:    context.Canceled,
			expectedText:  "test_operationに失敗しました: コンテキストタイムアウト/キャンセル: context canceled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(tt.ctx(), testCfg, opName, tt.operation(&calls), tt.shouldRetry)

			assert.Equal(t, tt.expectedCalls, calls)
			if tt.expectedText == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.expectedIs)
			assert.Equal(t, tt.expectedText, err.Error())
		})
	}
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{BaseInterval: time.Millisecond}, "op", func() error {
		calls++
		return errors.New("boom")
	}, func(error) bool { return true })

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
