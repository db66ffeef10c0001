package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-listing-watch/pkg/retry"
)

type MockHTTPClient struct {
	mock.Mock
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	err := args.Error(1)
	if args.Get(0) != nil {
		return args.Get(0).(*http.Response), err
	}
	return nil, err
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

// fastRetry はテスト用の待機時間の短い設定です。
var fastRetry = retry.Config{MaxAttempts: 3, BaseInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

type fakeLoader struct {
	status int
	body   string
	err    error
	calls  int
}

func (f *fakeLoader) Load(ctx context.Context, url string) (int, []byte, error) {
	f.calls++
	return f.status, []byte(f.body), f.err
}

func TestNew(t *testing.T) {
	t.Run("default timeout", func(t *testing.T) {
		client := New(0)
		hc := client.httpClient.(*http.Client)
		assert.Equal(t, DefaultHTTPTimeout, hc.Timeout)
		assert.NotNil(t, hc.Jar)
		assert.Equal(t, UserAgent, client.userAgent)
	})
	t.Run("custom options", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		client := New(10*time.Second, WithHTTPClient(mockClient), WithMaxAttempts(7), WithUserAgent("ua/1.0"))
		assert.Equal(t, mockClient, client.httpClient)
		assert.Equal(t, uint64(7), client.retryConfig.MaxAttempts)
		assert.Equal(t, "ua/1.0", client.userAgent)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected Outcome
		marker   string
	}{
		{"ok with body", 200, "<html>ok</html>", OutcomeSuccess, ""},
		{"redirect range with body", 302, "moved", OutcomeSuccess, ""},
		{"ok but empty", 200, "", OutcomeSoftFailure, ""},
		{"server error", 503, "unavailable", OutcomeSoftFailure, ""},
		{"not found", 404, "missing", OutcomeSoftFailure, ""},
		{"forbidden", 403, "", OutcomeBlocked, ""},
		{"too many requests", 429, "slow down", OutcomeBlocked, ""},
		{"captcha page", 200, "<div>Please solve the CAPTCHA</div>", OutcomeBlocked, "captcha"},
		{"robot check", 200, "Are you a robot?", OutcomeBlocked, "are you a robot"},
		{"security check", 200, "Complete the security check to continue", OutcomeBlocked, "complete the security check"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, marker := Classify(tt.status, []byte(tt.body))
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.marker, marker)
		})
	}
}

func TestFetch(t *testing.T) {
	url := "https://example.com/list"
	ctx := context.Background()

	t.Run("successful fetch sets headers", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		mockClient.On("Do", mock.MatchedBy(func(req *http.Request) bool {
			return req.Header.Get("User-Agent") == UserAgent && req.URL.String() == url
		})).Return(response(http.StatusOK, "<html></html>"), nil).Once()

		client := New(0, WithHTTPClient(mockClient), WithRetryConfig(fastRetry))
		resp, err := client.Fetch(ctx, url, FetchOptions{})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []byte("<html></html>"), resp.Body)
		mockClient.AssertExpectations(t)
	})

	t.Run("soft failure then success", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		mockClient.On("Do", mock.Anything).Return(response(http.StatusBadGateway, "bad gateway"), nil).Once()
		var nilResp *http.Response
		mockClient.On("Do", mock.Anything).Return(nilResp, errors.New("connection reset")).Once()
		mockClient.On("Do", mock.Anything).Return(response(http.StatusOK, "fine"), nil).Once()

		client := New(0, WithHTTPClient(mockClient), WithRetryConfig(fastRetry))
		resp, err := client.Fetch(ctx, url, FetchOptions{})
		require.NoError(t, err)
		assert.Equal(t, []byte("fine"), resp.Body)
		mockClient.AssertNumberOfCalls(t, "Do", 3)
	})

	t.Run("block status is not retried", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		mockClient.On("Do", mock.Anything).Return(response(http.StatusTooManyRequests, ""), nil).Once()

		client := New(0, WithHTTPClient(mockClient), WithRetryConfig(fastRetry))
		resp, err := client.Fetch(ctx, url, FetchOptions{})
		require.Error(t, err)
		assert.Nil(t, resp)
		assert.True(t, IsBlocked(err))

		var blocked *BlockedError
		require.True(t, errors.As(err, &blocked))
		assert.Equal(t, http.StatusTooManyRequests, blocked.StatusCode)
		mockClient.AssertNumberOfCalls(t, "Do", 1)
	})

	t.Run("captcha body is a block signal", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		mockClient.On("Do", mock.Anything).Return(response(http.StatusOK, "<p>captcha required</p>"), nil).Once()

		client := New(0, WithHTTPClient(mockClient), WithRetryConfig(fastRetry))
		_, err := client.Fetch(ctx, url, FetchOptions{})
		require.Error(t, err)
		assert.True(t, IsBlocked(err))
		assert.Contains(t, err.Error(), "captcha")
	})

	t.Run("exhaustion surfaces the last failure", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		for i := 0; i < 2; i++ {
			mockClient.On("Do", mock.Anything).Return(response(http.StatusInternalServerError, "oops"), nil).Once()
		}

		client := New(0, WithHTTPClient(mockClient), WithRetryConfig(fastRetry))
		_, err := client.Fetch(ctx, url, FetchOptions{MaxAttempts: 2})
		require.Error(t, err)
		assert.False(t, IsBlocked(err))

		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
		assert.Contains(t, err.Error(), "最大試行回数 (2回)")
		mockClient.AssertNumberOfCalls(t, "Do", 2)
	})

	t.Run("empty body is retried", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		mockClient.On("Do", mock.Anything).Return(response(http.StatusOK, ""), nil).Once()

		client := New(0, WithHTTPClient(mockClient), WithRetryConfig(fastRetry))
		_, err := client.Fetch(ctx, url, FetchOptions{MaxAttempts: 1})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmptyBody)
	})

	t.Run("invalid url is not retried", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		client := New(0, WithHTTPClient(mockClient), WithRetryConfig(fastRetry))
		_, err := client.Fetch(ctx, "://bad", FetchOptions{})
		require.Error(t, err)
		mockClient.AssertNotCalled(t, "Do", mock.Anything)
	})
}

func TestFetch_WithLoader(t *testing.T) {
	loader := &fakeLoader{status: http.StatusOK, body: "<html>rendered</html>"}
	client := New(0, WithLoader(loader), WithRetryConfig(fastRetry))

	resp, err := client.Fetch(context.Background(), "https://example.com", FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "<html>rendered</html>", string(resp.Body))
	assert.Equal(t, 1, loader.calls)
}

func TestStatusError_Error(t *testing.T) {
	long := strings.Repeat("a", maxErrorBodyLen+10)
	err := &StatusError{URL: "u", StatusCode: 500, Body: []byte(long)}
	assert.Equal(t, "HTTPステータスコードエラー: 500 (URL: u), ボディ: "+strings.Repeat("a", maxErrorBodyLen)+"...", err.Error())

	empty := &StatusError{URL: "u", StatusCode: 502}
	assert.Equal(t, "HTTPステータスコードエラー: 502 (URL: u), ボディなし", empty.Error())
}

func TestHostLimiters(t *testing.T) {
	assert.Nil(t, newHostLimiters(0, 1))

	var none *hostLimiters
	assert.NoError(t, none.wait(context.Background(), "https://a.example"))

	h := newHostLimiters(100, 0)
	require.NotNil(t, h)
	assert.Equal(t, 1, h.burst)
	assert.Same(t, h.get("a.example"), h.get("a.example"))
	assert.NotSame(t, h.get("a.example"), h.get("b.example"))
	assert.Equal(t, "www.example.com", hostOf("https://WWW.Example.com/path?q=1"))
	assert.NoError(t, h.wait(context.Background(), "https://a.example/x"))
}
