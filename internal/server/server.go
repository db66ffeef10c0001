// Package server は、出力ディレクトリの閲覧用HTTPサーバーを提供します。
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"

	"github.com/shouni/go-listing-watch/pkg/report"
)

// DefaultShutdownTimeout はシャットダウン時に処理中のリクエストを待つ時間です。
const DefaultShutdownTimeout = 10 * time.Second

// NewRouter は dir を配信するルーターを生成します。
// /api/summary は最新の summary.json を返し、/healthz は疎通確認用です。
func NewRouter(dir string, logger *slog.Logger) *mux.Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/summary", summaryHandler(dir, logger)).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(dir))).Methods(http.MethodGet, http.MethodHead)
	return r
}

func summaryHandler(dir string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		raw, err := os.ReadFile(filepath.Join(dir, report.SummaryFile))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				http.Error(w, "summary not found", http.StatusNotFound)
				return
			}
			logger.Error("サマリーの読み込みに失敗しました", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write(raw)
	}
}

// Serve は ctx が終了するまで addr で待ち受け、その後グレースフルに停止します。
func Serve(ctx context.Context, addr, dir string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(dir, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTPサーバーを起動します", "addr", addr, "dir", dir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTPサーバーの起動に失敗しました: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗しました: %w", err)
	}
	logger.Info("HTTPサーバーを停止しました")
	return nil
}
