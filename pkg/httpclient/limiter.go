package httpclient

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiters はホストごとのトークンバケットを保持します。
// nil の場合は無制限として振る舞います。
type hostLimiters struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	m     map[string]*rate.Limiter
}

func newHostLimiters(rps float64, burst int) *hostLimiters {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &hostLimiters{
		limit: rate.Limit(rps),
		burst: burst,
		m:     make(map[string]*rate.Limiter),
	}
}

func (h *hostLimiters) get(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.m[host]
	if !ok {
		l = rate.NewLimiter(h.limit, h.burst)
		h.m[host] = l
	}
	return l
}

// wait は対象ホストのトークンが得られるまで待機します。
func (h *hostLimiters) wait(ctx context.Context, rawURL string) error {
	if h == nil {
		return nil
	}
	return h.get(hostOf(rawURL)).Wait(ctx)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.ToLower(u.Hostname())
}
