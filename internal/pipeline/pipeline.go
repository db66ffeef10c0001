// Package pipeline は、設定からソースの巡回・差分判定・出力までの1回の実行を組み立てます。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shouni/go-listing-watch/pkg/config"
	"github.com/shouni/go-listing-watch/pkg/dedup"
	"github.com/shouni/go-listing-watch/pkg/diff"
	"github.com/shouni/go-listing-watch/pkg/extract"
	"github.com/shouni/go-listing-watch/pkg/quota"
	"github.com/shouni/go-listing-watch/pkg/report"
	"github.com/shouni/go-listing-watch/pkg/rotate"
	"github.com/shouni/go-listing-watch/pkg/scheduler"
	"github.com/shouni/go-listing-watch/pkg/snapshot"
	"github.com/shouni/go-listing-watch/pkg/source"
	"github.com/shouni/go-listing-watch/pkg/types"
)

// DefaultParallelRPS は並列モードで requests_per_second が未指定の場合のホストごとの上限です。
const DefaultParallelRPS = 0.5

// Options は実行の依存関係です。nil のフィールドは設定から生成されます。
type Options struct {
	Registry *source.Registry
	// Fetcher を指定すると HTTP/ブラウザの取得手段の代わりに使用します。
	Fetcher extract.Fetcher
	Store   snapshot.Store
	Clock   scheduler.Clock
	Sleeper scheduler.Sleeper
	Rand    func() float64
	Logger  *slog.Logger
}

// Outcome は1回の実行の結果です。
type Outcome struct {
	RunID   string
	Items   []types.Annotated
	Summary types.Summary
	Sources map[string]report.SourceStat
	// Partial は run_deadline により巡回が打ち切られたことを示します。
	Partial bool
}

// Run は cfg に従って1回のポーリングを実行し、出力ファイルを書き出します。
// cfg は Finalize 済みであることを前提とします。
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Outcome, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := opts.Registry
	if reg == nil {
		reg = source.Default()
	}
	now := time.Now
	if opts.Clock != nil {
		now = opts.Clock.Now
	}
	runID := uuid.NewString()
	logger = logger.With(slog.String("run_id", runID))

	// 1. ソースごとの抽出器を初期化
	extractors, closeFetchers, err := newExtractors(cfg, reg, opts.Fetcher, logger)
	if err != nil {
		return nil, err
	}
	defer closeFetchers()

	// 2. 取得上限の配分と優先順位の決定
	plan, err := quota.New(cfg.Limit, cfg.Sources, cfg.PerSourceLimit, cfg.CyclesPerSource)
	if err != nil {
		return nil, fmt.Errorf("取得上限の配分に失敗しました: %w", err)
	}
	order := rotate.Order(cfg.Sources, cfg.RotatePriority, rotate.DayKey(now()))
	logger.Info("巡回を開始します", slog.Any("sources", order), slog.Int("limit", plan.Sum()))

	// 3. 前回スナップショットの読み込み (接続先の誤りは巡回前に検出する)
	store, closeStore, err := openStore(ctx, cfg, opts.Store)
	if err != nil {
		return nil, err
	}
	defer closeStore()
	prev, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("スナップショットの読み込みに失敗しました: %w", err)
	}
	if prev == nil {
		logger.Info("前回のスナップショットがないため、全件を新規として扱います")
	}

	// 4. スケジューラによる巡回
	sched, err := scheduler.New(scheduler.Config{
		Sources:             order,
		Plan:                plan,
		Cycles:              cfg.CyclesPerSource,
		Filters:             cfg.Filters(),
		Timeout:             cfg.Timeout,
		Attempts:            cfg.Retries,
		SleepBetween:        cfg.SleepBetween,
		SleepCycles:         cfg.SleepCycles,
		Cooldown:            cfg.Cooldown,
		KeepEligibleOnEmpty: !cfg.CooldownOnEmpty,
		Parallel:            cfg.Parallel,
		MaxParallel:         cfg.MaxParallel,
	}, extractors, schedulerOptions(opts, logger)...)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if cfg.RunDeadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.RunDeadline)
	}
	res, err := sched.Run(runCtx)
	cancel()
	partial := false
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, fmt.Errorf("巡回が中断されました: %w", err)
		}
		partial = true
		logger.Warn("実行の制限時間に達したため、取得済みの結果で続行します", slog.Duration("run_deadline", cfg.RunDeadline))
	}

	// 5. 重複排除
	listings := dedup.Unique(res.Listings)
	if len(listings) == 0 {
		logger.Warn("リスティングが1件も取得できませんでした")
	}

	// 6. 古い出力の削除
	if cfg.CleanOutputs {
		if err := report.CleanOutputs(cfg.OutDir); err != nil {
			return nil, err
		}
	}

	// 7. 差分判定と並べ替え
	items, summary := diff.Apply(listings, snapshot.PricesOf(prev))
	report.SortByPrice(items)

	// 8. スナップショット (CSVエクスポート) の保存
	if err := store.Save(ctx, runID, items); err != nil {
		return nil, fmt.Errorf("スナップショットの保存に失敗しました: %w", err)
	}

	// 9. 閲覧用・通知用ファイルの書き出し
	stats := sourceStats(res.States, now())
	doc := report.Document{
		RunID:       runID,
		GeneratedAt: now(),
		SiteURL:     cfg.SiteURL,
		Items:       items,
		Summary:     summary,
		Sources:     stats,
		Prefix:      cfg.OutPrefix,
		Logger:      logger,
	}
	if err := report.WriteAll(cfg.OutDir, doc); err != nil {
		return nil, err
	}

	logger.Info("実行が完了しました",
		slog.Int("total", summary.Total),
		slog.Int("ups", summary.Ups),
		slog.Int("downs", summary.Downs),
		slog.Int("new", summary.News),
	)
	return &Outcome{
		RunID:   runID,
		Items:   items,
		Summary: summary,
		Sources: stats,
		Partial: partial,
	}, nil
}

func schedulerOptions(opts Options, logger *slog.Logger) []scheduler.Option {
	out := []scheduler.Option{scheduler.WithLogger(logger)}
	if opts.Clock != nil {
		out = append(out, scheduler.WithClock(opts.Clock))
	}
	if opts.Sleeper != nil {
		out = append(out, scheduler.WithSleeper(opts.Sleeper))
	}
	if opts.Rand != nil {
		out = append(out, scheduler.WithRand(opts.Rand))
	}
	return out
}

func sourceStats(states map[string]scheduler.State, now time.Time) map[string]report.SourceStat {
	out := make(map[string]report.SourceStat, len(states))
	for id, st := range states {
		out[id] = report.SourceStat{
			Collected: st.Collected,
			Quota:     st.QuotaTotal,
			Visits:    st.Visits,
			Failures:  st.Failures,
			Cooling:   st.Cooling(now),
		}
	}
	return out
}

// openStore は CSV ストアを基本とし、DSN があれば PostgreSQL を読み込み元として前に置きます。
func openStore(ctx context.Context, cfg *config.Config, override snapshot.Store) (snapshot.Store, func(), error) {
	if override != nil {
		return override, func() {}, nil
	}
	csv := snapshot.NewCSVStore(cfg.OutDir, cfg.OutPrefix)
	if cfg.DatabaseURL == "" {
		return csv, func() {}, nil
	}
	pg, err := snapshot.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return snapshot.Multi{pg, csv}, pg.Close, nil
}

// Probe は1つのソースから1回だけ抽出します。スケジューラとスナップショットは使用しません。
func Probe(ctx context.Context, cfg *config.Config, id string, ask int, opts Options) ([]types.Listing, error) {
	reg := opts.Registry
	if reg == nil {
		reg = source.Default()
	}
	one := *cfg
	one.Sources = []string{id}

	extractors, closeFetchers, err := newExtractors(&one, reg, opts.Fetcher, opts.Logger)
	if err != nil {
		return nil, err
	}
	defer closeFetchers()

	return extractors[id].Extract(ctx, extract.Request{
		Filters:  cfg.Filters(),
		Ask:      ask,
		Timeout:  cfg.Timeout,
		Attempts: cfg.Retries,
	})
}
