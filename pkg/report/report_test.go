package report

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/shouni/go-listing-watch/pkg/snapshot"
	"github.com/shouni/go-listing-watch/pkg/types"
)

func sampleDoc() Document {
	prev := 100.0
	prevDown := 80.0
	return Document{
		RunID:       "6f0c7c55-4c53-4b4e-9a55-1f0b0c1d2e3f",
		GeneratedAt: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		SiteURL:     "https://example.github.io/serra/",
		Items: []types.Annotated{
			{Listing: types.Listing{Source: "olx", Title: "Casa <pedra>", Price: 120, URL: "https://x/1", ImageURL: "https://img/1.jpg"},
				Change: types.ChangeRecord{PreviousPrice: &prev, Delta: 20, Classification: types.ClassUp}},
			{Listing: types.Listing{Source: "era", Title: "Ruína", Price: 70, URL: "https://x/2", ImageURL: "/rel.jpg"},
				Change: types.ChangeRecord{PreviousPrice: &prevDown, Delta: -10, Classification: types.ClassDown}},
		},
		Summary: types.Summary{Total: 2, Ups: 1, Downs: 1},
		Sources: map[string]SourceStat{"olx": {Collected: 1, Quota: 8, Visits: 1}},
	}
}

func TestSortByPrice(t *testing.T) {
	items := []types.Annotated{
		{Listing: types.Listing{URL: "nan1", Price: math.NaN()}},
		{Listing: types.Listing{URL: "300", Price: 300}},
		{Listing: types.Listing{URL: "100a", Price: 100}},
		{Listing: types.Listing{URL: "nan2", Price: math.NaN()}},
		{Listing: types.Listing{URL: "100b", Price: 100}},
	}
	SortByPrice(items)

	var order []string
	for _, a := range items {
		order = append(order, a.URL)
	}
	assert.Equal(t, []string{"100a", "100b", "300", "nan1", "nan2"}, order)
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, sampleDoc()))
	html := buf.String()

	assert.Contains(t, html, "Covilhã &amp; Serra da Estrela</title>")
	assert.Contains(t, html, `<span class="badge up">↑ +20€</span>`)
	assert.Contains(t, html, `<span class="badge down">↓ -10€</span>`)
	assert.Contains(t, html, `<img src="https://img/1.jpg" alt="foto">`)
	assert.NotContains(t, html, `/rel.jpg" alt`)
	assert.Contains(t, html, "Casa &lt;pedra&gt;")
	assert.Contains(t, html, `data-ts="2025-06-01T09:30:00Z"`)
}

func TestWriteEmail(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEmail(&buf, sampleDoc()))
	assert.Equal(t, `Resumo diário — Serra da Estrela

Imóveis encontrados: 2
Subidas de preço: 1
Descidas de preço: 1
Novos imóveis: 0

Lista completa (com imagens e detalhes):
https://example.github.io/serra/
`, buf.String())
}

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "docs")
	require.NoError(t, WriteAll(dir, sampleDoc()))

	for _, name := range []string{HTMLFile, EmailFile, SummaryFile, DefaultPrefix + ".xlsx"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	raw, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)
	var got summaryJSON
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, types.Summary{Total: 2, Ups: 1, Downs: 1}, got.Summary)
	assert.Equal(t, 8, got.Sources["olx"].Quota)
}

func TestWriteXLSX(t *testing.T) {
	doc := sampleDoc()
	doc.Items = append(doc.Items, types.Annotated{
		Listing: types.Listing{Source: "remax", Title: "Sem preço", Price: math.NaN(), URL: "https://x/3"},
		Change:  types.ChangeRecord{Classification: types.ClassNew},
	})
	doc.Prefix = "serra"
	dir := t.TempDir()
	require.NoError(t, WriteAll(dir, doc))

	f, err := excelize.OpenFile(filepath.Join(dir, "serra.xlsx"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, snapshot.CSVHeader, rows[0])
	assert.Equal(t, []string{"olx", "Casa <pedra>", "120", "100", "20", "up", "", "", "", "https://x/1", "https://img/1.jpg"}, rows[1])
	assert.Equal(t, "-10", rows[2][4])

	// 末尾の空セルは GetRows で切り詰められることがある
	require.GreaterOrEqual(t, len(rows[3]), 10)
	assert.Equal(t, []string{"remax", "Sem preço", "", "", "", "new", "", "", "", "https://x/3"}, rows[3][:10])

	t.Run("書き込み先のエラー", func(t *testing.T) {
		assert.Error(t, WriteXLSX(failingWriter{}, doc.Items))
	})
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, os.ErrClosed }

func TestStatusLine(t *testing.T) {
	assert.Equal(t, "OK — 5 listings. Ups:1 Downs:2 New:3", StatusLine(types.Summary{Total: 5, Ups: 1, Downs: 2, News: 3}))
}

func TestCleanOutputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"index.html", "data.csv", "data.xlsx", "summary.json", "keep.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, CleanOutputs(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var left []string
	for _, e := range entries {
		left = append(left, e.Name())
	}
	assert.ElementsMatch(t, []string{"summary.json", "keep.txt"}, left)

	assert.NoError(t, CleanOutputs(filepath.Join(dir, "new")))
}
