// Package report は、実行結果を閲覧用・通知用のファイルとして書き出します。
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/shouni/go-listing-watch/pkg/types"
)

const (
	HTMLFile    = "index.html"
	EmailFile   = "email_summary.txt"
	SummaryFile = "summary.json"

	// DefaultPrefix は Document.Prefix が空の場合の XLSX ファイル名の接頭辞です。
	DefaultPrefix = "data"
	DefaultTitle = "Imóveis ≤ 60k — Covilhã & Serra da Estrela"
)

// SourceStat はソースごとの実行結果の集計です。
type SourceStat struct {
	Collected int  `json:"collected"`
	Quota     int  `json:"quota"`
	Visits    int  `json:"visits"`
	Failures  int  `json:"failures"`
	Cooling   bool `json:"cooling"`
}

// Document は書き出しの入力です。Items は SortByPrice 済みであることを想定します。
type Document struct {
	RunID       string
	GeneratedAt time.Time
	Title       string
	SiteURL     string
	Items       []types.Annotated
	Summary     types.Summary
	Sources     map[string]SourceStat
	// Prefix は {Prefix}.xlsx のファイル名に使います。
	Prefix string
	Logger *slog.Logger
}

// SortByPrice は価格の昇順に安定ソートします。価格不明は末尾です。
func SortByPrice(items []types.Annotated) {
	slices.SortStableFunc(items, func(a, b types.Annotated) int {
		an, bn := math.IsNaN(a.Price), math.IsNaN(b.Price)
		switch {
		case an && bn:
			return 0
		case an:
			return 1
		case bn:
			return -1
		case a.Price < b.Price:
			return -1
		case a.Price > b.Price:
			return 1
		}
		return 0
	})
}

// WriteAll は XLSX、HTML、通知テキスト、JSON サマリーを dir に書き出します。
// XLSX の失敗は警告にとどめ、残りの出力を続けます。
func WriteAll(dir string, doc Document) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}
	logger := doc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefix := doc.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	// 1. 表計算用XLSX
	xlsxPath := filepath.Join(dir, prefix+".xlsx")
	if err := writeFile(xlsxPath, func(w io.Writer) error { return WriteXLSX(w, doc.Items) }); err != nil {
		logger.Warn("XLSXの書き出しをスキップします", slog.String("path", xlsxPath), slog.Any("error", err))
		os.Remove(xlsxPath)
	}
	// 2. 閲覧用HTML
	if err := writeFile(filepath.Join(dir, HTMLFile), func(w io.Writer) error { return WriteHTML(w, doc) }); err != nil {
		return err
	}
	// 3. 通知用テキスト
	if err := writeFile(filepath.Join(dir, EmailFile), func(w io.Writer) error { return WriteEmail(w, doc) }); err != nil {
		return err
	}
	// 4. 機械可読サマリー
	return writeFile(filepath.Join(dir, SummaryFile), func(w io.Writer) error { return WriteSummaryJSON(w, doc) })
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%s の作成に失敗しました: %w", filepath.Base(path), err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("%s の書き込みに失敗しました: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%s のクローズに失敗しました: %w", filepath.Base(path), err)
	}
	return nil
}

type summaryJSON struct {
	RunID       string                `json:"run_id"`
	GeneratedAt time.Time             `json:"generated_at"`
	SiteURL     string                `json:"site_url,omitempty"`
	Summary     types.Summary         `json:"summary"`
	Sources     map[string]SourceStat `json:"sources,omitempty"`
}

// WriteSummaryJSON は集計値を JSON で書き出します。
func WriteSummaryJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaryJSON{
		RunID:       doc.RunID,
		GeneratedAt: doc.GeneratedAt,
		SiteURL:     doc.SiteURL,
		Summary:     doc.Summary,
		Sources:     doc.Sources,
	})
}

// StatusLine は実行終了時に表示する1行の要約です。
func StatusLine(s types.Summary) string {
	return fmt.Sprintf("OK — %d listings. Ups:%d Downs:%d New:%d", s.Total, s.Ups, s.Downs, s.News)
}

// CleanOutputs は dir 内の古い HTML/CSV/XLSX を削除します。dir がなければ作成します。
func CleanOutputs(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}
	for _, pattern := range []string{"*.html", "*.csv", "*.xlsx"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return fmt.Errorf("出力ファイルの列挙に失敗しました: %w", err)
		}
		for _, m := range matches {
			if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("%s の削除に失敗しました: %w", filepath.Base(m), err)
			}
		}
	}
	return nil
}
