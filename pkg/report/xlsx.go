package report

import (
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/shouni/go-listing-watch/pkg/snapshot"
	"github.com/shouni/go-listing-watch/pkg/types"
)

// WriteXLSX は CSV エクスポートと同じ列順で Excel ブックを書き出します。
// 価格は数値セルとし、不明な値は空セルにします。
func WriteXLSX(w io.Writer, items []types.Annotated) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	// 1. ヘッダー行
	header := make([]any, len(snapshot.CSVHeader))
	for i, h := range snapshot.CSVHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("XLSXヘッダーの書き込みに失敗しました: %w", err)
	}

	// 2. リスティングごとに1行
	for i, a := range items {
		var prev, delta any
		if a.Change.PreviousPrice != nil {
			prev = cellNumber(*a.Change.PreviousPrice)
			delta = cellNumber(a.Change.Delta)
		}
		row := []any{
			a.Source, a.Title, cellNumber(a.Price), prev, delta, string(a.Change.Classification),
			a.Location, a.Typology, a.Details, a.URL, a.ImageURL,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("XLSX行の書き込みに失敗しました: %w", err)
		}
	}

	// 3. 書き出し
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("XLSXの書き込みに失敗しました: %w", err)
	}
	return nil
}

func cellNumber(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}
