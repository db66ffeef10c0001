package snapshot

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shouni/go-listing-watch/pkg/types"
)

// CSVHeader はエクスポートするCSVの列順です。
var CSVHeader = []string{
	"source", "title", "price_eur", "prev_price", "price_delta", "change",
	"location", "typology", "details", "url", "image_url",
}

// CSVStore は出力ディレクトリの {prefix}.csv をスナップショットとして扱います。
// 保存したファイルはそのまま閲覧用のCSVエクスポートを兼ねます。
type CSVStore struct {
	path string
}

// NewCSVStore は dir/prefix.csv を対象とするストアを生成します。
func NewCSVStore(dir, prefix string) *CSVStore {
	return &CSVStore{path: filepath.Join(dir, prefix+".csv")}
}

// Path は対象ファイルのパスを返します。
func (s *CSVStore) Path() string {
	return s.path
}

// Load は前回のCSVを読み込みます。ファイルや url 列がない場合は nil, nil を返します。
func (s *CSVStore) Load(ctx context.Context) (*Snapshot, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("スナップショットのオープンに失敗しました: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV は url 列と price_eur 列から価格表を組み立てます。
func ReadCSV(r io.Reader) (*Snapshot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("スナップショットのヘッダー読み込みに失敗しました: %w", err)
	}
	urlCol, priceCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) {
		case "url":
			urlCol = i
		case "price_eur":
			priceCol = i
		}
	}
	if urlCol < 0 {
		return nil, nil
	}

	snap := &Snapshot{Prices: make(map[string]float64)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("スナップショットの読み込みに失敗しました: %w", err)
		}
		if urlCol >= len(rec) {
			continue
		}
		url := strings.TrimSpace(rec[urlCol])
		if url == "" {
			continue
		}
		price := math.NaN()
		if priceCol >= 0 && priceCol < len(rec) {
			price = parseFloat(rec[priceCol])
		}
		snap.Prices[url] = price
	}
	return snap, nil
}

// Save はCSVを一時ファイルに書き出してから置き換えます。
func (s *CSVStore) Save(ctx context.Context, runID string, items []types.Annotated) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".snapshot-*.csv")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, items); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("一時ファイルのクローズに失敗しました: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("スナップショットの置き換えに失敗しました: %w", err)
	}
	return nil
}

// WriteCSV は注釈付きリスティングを CSVHeader の列順で書き出します。
func WriteCSV(w io.Writer, items []types.Annotated) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("CSVヘッダーの書き込みに失敗しました: %w", err)
	}
	for _, a := range items {
		prev, delta := "", ""
		if a.Change.PreviousPrice != nil {
			prev = formatFloat(*a.Change.PreviousPrice)
			delta = formatFloat(a.Change.Delta)
		}
		rec := []string{
			a.Source, a.Title, formatFloat(a.Price), prev, delta, string(a.Change.Classification),
			a.Location, a.Typology, a.Details, a.URL, a.ImageURL,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("CSV行の書き込みに失敗しました: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("CSVの書き込みに失敗しました: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
