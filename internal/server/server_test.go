package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-listing-watch/pkg/report"
)

func TestNewRouter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, report.HTMLFile), []byte("<h1>ok</h1>"), 0o644))

	srv := httptest.NewServer(NewRouter(dir, nil))
	defer srv.Close()

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{name: "index", method: http.MethodGet, path: "/", status: http.StatusOK},
		{name: "healthz", method: http.MethodGet, path: "/healthz", status: http.StatusOK},
		{name: "summary missing", method: http.MethodGet, path: "/api/summary", status: http.StatusNotFound},
		{name: "post not allowed", method: http.MethodPost, path: "/api/summary", status: http.StatusMethodNotAllowed},
		{name: "missing file", method: http.MethodGet, path: "/nope.csv", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	t.Run("summary", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, report.SummaryFile), []byte(`{"summary":{"total":3}}`), 0o644))
		rec := httptest.NewRecorder()
		NewRouter(dir, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"summary":{"total":3}}`, rec.Body.String())
	})
}

func TestServe_Shutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", t.TempDir(), nil) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve が停止しませんでした")
	}
}
