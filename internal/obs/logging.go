// Package obs は構造化ログの初期化を提供します。
package obs

import (
	"io"
	"log/slog"
	"os"
)

// Logger はアプリケーション全体で利用する構造化ロガーです。
var Logger = slog.Default()

// InitLogger は Logger を初期化し、slog のデフォルトにも設定します。
// verbose でデバッグレベル、jsonFormat で JSON ハンドラを使用します。
func InitLogger(verbose, jsonFormat bool) *slog.Logger {
	Logger = NewLogger(os.Stderr, verbose, jsonFormat)
	slog.SetDefault(Logger)
	return Logger
}

// NewLogger は w に出力するロガーを生成します。
func NewLogger(w io.Writer, verbose, jsonFormat bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if jsonFormat {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
