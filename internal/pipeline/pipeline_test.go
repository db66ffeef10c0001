package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-listing-watch/pkg/config"
	"github.com/shouni/go-listing-watch/pkg/httpclient"
	"github.com/shouni/go-listing-watch/pkg/report"
	"github.com/shouni/go-listing-watch/pkg/snapshot"
	"github.com/shouni/go-listing-watch/pkg/source"
	"github.com/shouni/go-listing-watch/pkg/types"
)

type noSleep struct{}

func (noSleep) Sleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func mockRegistry(t *testing.T) *source.Registry {
	t.Helper()
	reg, err := source.NewRegistry(nil,
		source.Definition{ID: "alpha", Kind: source.KindMock},
		source.Definition{ID: "beta", Kind: source.KindMock},
	)
	require.NoError(t, err)
	return reg
}

func testConfig(t *testing.T, reg *source.Registry, dir string) *config.Config {
	t.Helper()
	cfg := config.Resolve(config.Layer{
		Limit:           10,
		CyclesPerSource: 2,
		OutDir:          dir,
		SiteURL:         "example.org/serra",
	})
	require.NoError(t, cfg.Finalize(reg))
	return cfg
}

func testOptions(reg *source.Registry) Options {
	return Options{
		Registry: reg,
		Clock:    fixedClock{t: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)},
		Sleeper:  noSleep{},
		Rand:     func() float64 { return 0 },
	}
}

func TestRun(t *testing.T) {
	reg := mockRegistry(t)
	dir := t.TempDir()
	cfg := testConfig(t, reg, dir)

	t.Run("初回は全件が新規", func(t *testing.T) {
		out, err := Run(context.Background(), cfg, testOptions(reg))
		require.NoError(t, err)

		assert.NotEmpty(t, out.RunID)
		assert.False(t, out.Partial)
		assert.Equal(t, types.Summary{Total: 10, News: 10}, out.Summary)
		assert.Equal(t, 5, out.Sources["alpha"].Collected)
		assert.Equal(t, 5, out.Sources["beta"].Quota)

		for _, name := range []string{report.HTMLFile, report.EmailFile, report.SummaryFile, "data.csv", "data.xlsx"} {
			_, err := os.Stat(filepath.Join(dir, name))
			assert.NoError(t, err, name)
		}
		for i := 1; i < len(out.Items); i++ {
			assert.LessOrEqual(t, out.Items[i-1].Price, out.Items[i].Price)
		}

		email, err := os.ReadFile(filepath.Join(dir, report.EmailFile))
		require.NoError(t, err)
		assert.Contains(t, string(email), "https://example.org/serra")
	})

	t.Run("2回目は変化なし", func(t *testing.T) {
		out, err := Run(context.Background(), cfg, testOptions(reg))
		require.NoError(t, err)
		assert.Equal(t, types.Summary{Total: 10}, out.Summary)
	})

	t.Run("前回価格との比較", func(t *testing.T) {
		prev := "url,price_eur\n" +
			"https://alpha.example.invalid/imovel/1,25000\n" +
			"https://alpha.example.invalid/imovel/2,40000\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "data.csv"), []byte(prev), 0o644))

		out, err := Run(context.Background(), cfg, testOptions(reg))
		require.NoError(t, err)
		assert.Equal(t, 1, out.Summary.Ups)
		assert.Equal(t, 1, out.Summary.Downs)
		assert.Equal(t, 8, out.Summary.News)

		raw, err := os.ReadFile(filepath.Join(dir, report.SummaryFile))
		require.NoError(t, err)
		var got struct {
			RunID   string        `json:"run_id"`
			Summary types.Summary `json:"summary"`
		}
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, out.RunID, got.RunID)
		assert.Equal(t, out.Summary, got.Summary)
	})
}

type memoryStore struct {
	snap    *snapshot.Snapshot
	saved   []types.Annotated
	loadErr error
}

func (m *memoryStore) Load(ctx context.Context) (*snapshot.Snapshot, error) {
	return m.snap, m.loadErr
}

func (m *memoryStore) Save(ctx context.Context, runID string, items []types.Annotated) error {
	m.saved = items
	return nil
}

func TestRun_CustomStore(t *testing.T) {
	reg := mockRegistry(t)
	dir := t.TempDir()
	cfg := testConfig(t, reg, dir)
	cfg.Keywords = []string{"castelo"}

	store := &memoryStore{}
	opts := testOptions(reg)
	opts.Store = store

	out, err := Run(context.Background(), cfg, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Summary.Total, "条件に合う物件がなくてもエラーにはならない")
	assert.Empty(t, store.saved)
	assert.True(t, out.Sources["alpha"].Cooling)

	_, err = os.Stat(filepath.Join(dir, "data.csv"))
	assert.True(t, os.IsNotExist(err))
}

// countingFetcher は呼び出し回数だけを記録し、常に失敗します。
type countingFetcher struct{ calls int }

func (f *countingFetcher) Fetch(ctx context.Context, url string, opts httpclient.FetchOptions) (*httpclient.Response, error) {
	f.calls++
	return nil, errors.New("unreachable")
}

func TestRun_LoadFailsBeforeFetching(t *testing.T) {
	reg, err := source.NewRegistry(nil, source.Definition{
		ID:        "gamma",
		BaseURL:   "https://gamma.example.invalid",
		SearchURL: "https://gamma.example.invalid/busca?page={{.Page}}",
		Selectors: source.Selectors{Card: []string{"article"}},
	})
	require.NoError(t, err)
	dir := t.TempDir()
	cfg := testConfig(t, reg, dir)

	errDown := errors.New("database is down")
	fetcher := &countingFetcher{}
	opts := testOptions(reg)
	opts.Fetcher = fetcher
	opts.Store = &memoryStore{loadErr: errDown}

	out, err := Run(context.Background(), cfg, opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, errDown)
	assert.Nil(t, out)
	assert.Zero(t, fetcher.calls, "スナップショットを読めない場合は巡回しない")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_Canceled(t *testing.T) {
	reg := mockRegistry(t)
	cfg := testConfig(t, reg, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, cfg, testOptions(reg))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewExtractors(t *testing.T) {
	reg := source.Default()
	cfg := config.Resolve(config.Layer{Sources: []string{"olx", "idealista"}})
	require.NoError(t, cfg.Finalize(reg))

	exts, closeFn, err := newExtractors(cfg, reg, nil, nil)
	require.NoError(t, err)
	defer closeFn()
	assert.Len(t, exts, 2)

	cfg.Sources = []string{"nowhere"}
	_, _, err = newExtractors(cfg, reg, nil, nil)
	assert.ErrorIs(t, err, source.ErrUnknownSource)
}

func TestProbe(t *testing.T) {
	reg := mockRegistry(t)
	cfg := testConfig(t, reg, t.TempDir())

	items, err := Probe(context.Background(), cfg, "beta", 4, Options{Registry: reg})
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, "beta", items[0].Source)
	assert.Equal(t, "https://beta.example.invalid/imovel/1", items[0].URL)

	_, err = Probe(context.Background(), cfg, "gamma", 4, Options{Registry: reg})
	assert.ErrorIs(t, err, source.ErrUnknownSource)
}
