// Package scheduler は、ソースごとの割り当てとクールダウンを守りながら
// 抽出器をラウンドロビンで呼び出します。
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shouni/go-listing-watch/pkg/extract"
	"github.com/shouni/go-listing-watch/pkg/quota"
	"github.com/shouni/go-listing-watch/pkg/types"
)

const (
	// ソース間・サイクル間の待機に加える乱数の上限
	BetweenJitter = 700 * time.Millisecond
	CycleJitter   = 1000 * time.Millisecond

	// DefaultMaxParallel は並列モードの既定の同時実行数です。
	DefaultMaxParallel = 4
)

var (
	ErrInvalidConfig = errors.New("スケジューラ設定が不正です")
)

// Config は1回の実行のスケジューリング設定です。
type Config struct {
	Sources  []string // 回転済みの優先順
	Plan     quota.Plan
	Cycles   int
	Filters  types.Filters
	Timeout  time.Duration
	Attempts int

	SleepBetween time.Duration
	SleepCycles  time.Duration
	Cooldown     time.Duration

	// KeepEligibleOnEmpty が true の場合、0件の応答ではクールダウンしません。
	KeepEligibleOnEmpty bool

	Parallel    bool
	MaxParallel int
}

// State は実行中のソースごとの状態です。スケジューラだけが更新します。
type State struct {
	QuotaTotal    int
	QuotaPerCycle int
	Collected     int
	BlockedUntil  time.Time // ゼロ値はブロックなし
	Visits        int
	Failures      int
}

// Cooling は now の時点でクールダウン中かを返します。
func (s State) Cooling(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// Result は実行結果です。Listings は重複排除前の取得順です。
type Result struct {
	Listings []types.Listing
	States   map[string]State
}

// Scheduler はソースの巡回を管理します。
type Scheduler struct {
	cfg        Config
	extractors map[string]extract.Extractor
	clock      Clock
	sleeper    Sleeper
	randFn     func() float64
	logger     *slog.Logger
}

// Option は Scheduler の設定を行うための関数型です。
type Option func(*Scheduler)

// WithClock は時刻の取得元を差し替えます。
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithSleeper は待機処理を差し替えます。
func WithSleeper(sl Sleeper) Option {
	return func(s *Scheduler) { s.sleeper = sl }
}

// WithRand はジッター用の乱数関数を差し替えます。
func WithRand(fn func() float64) Option {
	return func(s *Scheduler) { s.randFn = fn }
}

// WithLogger はロガーを設定します。
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New は設定を検証して Scheduler を生成します。
func New(cfg Config, extractors map[string]extract.Extractor, opts ...Option) (*Scheduler, error) {
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("%w: ソースが指定されていません", ErrInvalidConfig)
	}
	if cfg.Cycles < 1 {
		return nil, fmt.Errorf("%w: サイクル数は1以上である必要があります (%d)", ErrInvalidConfig, cfg.Cycles)
	}
	if cfg.Attempts < 1 {
		return nil, fmt.Errorf("%w: 試行回数は1以上である必要があります (%d)", ErrInvalidConfig, cfg.Attempts)
	}
	seen := make(map[string]struct{}, len(cfg.Sources))
	for _, id := range cfg.Sources {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: ソースID %q が重複しています", ErrInvalidConfig, id)
		}
		seen[id] = struct{}{}
		if _, ok := cfg.Plan[id]; !ok {
			return nil, fmt.Errorf("%w: ソース %s の割り当てがありません", ErrInvalidConfig, id)
		}
		if extractors[id] == nil {
			return nil, fmt.Errorf("%w: ソース %s の抽出器がありません", ErrInvalidConfig, id)
		}
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}

	s := &Scheduler{
		cfg:        cfg,
		extractors: extractors,
		clock:      systemClock{},
		sleeper:    timerSleeper{},
		randFn:     rand.Float64,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// visit は1回分の抽出依頼の結果です。
type visit struct {
	id    string
	now   time.Time
	ask   int
	items []types.Listing
	err   error
}

// Run は全サイクルを実行します。個々のソースの失敗では中断しません。
// ctx が終了した場合はその時点までの結果と ctx.Err() を返します。
func (s *Scheduler) Run(ctx context.Context) (*Result, error) {
	states := make(map[string]State, len(s.cfg.Sources))
	for _, id := range s.cfg.Sources {
		a := s.cfg.Plan[id]
		states[id] = State{QuotaTotal: a.Total, QuotaPerCycle: max(1, a.PerCycle)}
	}
	res := &Result{States: states}

	for cycle := 1; cycle <= s.cfg.Cycles; cycle++ {
		s.logger.Debug("サイクルを開始します", "cycle", cycle, "collected", len(res.Listings))

		var err error
		if s.cfg.Parallel {
			err = s.runCycleParallel(ctx, res)
		} else {
			err = s.runCycle(ctx, res)
		}
		if err != nil {
			return res, err
		}

		if err := s.pause(ctx, s.cfg.SleepCycles, CycleJitter); err != nil {
			return res, err
		}
	}
	return res, nil
}

// runCycle は優先順に1ソースずつ巡回します。
func (s *Scheduler) runCycle(ctx context.Context, res *Result) error {
	for _, id := range s.cfg.Sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, ok := s.prepare(id, res.States[id])
		if !ok {
			continue
		}
		v.items, v.err = s.extractors[id].Extract(ctx, s.request(v.ask))
		s.commit(res, v)

		if err := s.pause(ctx, s.cfg.SleepBetween, BetweenJitter); err != nil {
			return err
		}
	}
	return nil
}

// runCycleParallel は対象ソースを同時に呼び出し、結果は優先順に反映します。
// ソース間の待機は fetcher 側のホスト別レート制限に任せます。
func (s *Scheduler) runCycleParallel(ctx context.Context, res *Result) error {
	var visits []*visit
	for _, id := range s.cfg.Sources {
		if v, ok := s.prepare(id, res.States[id]); ok {
			visits = append(visits, &v)
		}
	}

	var wg sync.WaitGroup
	// バッファ付きチャネルをセマフォとして使用し、同時実行数を制限する
	semaphore := make(chan struct{}, s.cfg.MaxParallel)
	for _, v := range visits {
		wg.Add(1)
		go func(v *visit) {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				v.err = ctx.Err()
				return
			}
			defer func() { <-semaphore }()
			v.items, v.err = s.extractors[v.id].Extract(ctx, s.request(v.ask))
		}(v)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		// 中断時も取得済みの結果は反映する
		for _, v := range visits {
			if len(v.items) > 0 {
				s.commit(res, *v)
			}
		}
		return err
	}
	for _, v := range visits {
		s.commit(res, *v)
	}
	return nil
}

// prepare はソースが対象かを判定し、依頼件数を決めます。
func (s *Scheduler) prepare(id string, st State) (visit, bool) {
	now := s.clock.Now()
	if st.Cooling(now) {
		s.logger.Debug("クールダウン中のためスキップします", "source", id, "until", st.BlockedUntil)
		return visit{}, false
	}
	remaining := st.QuotaTotal - st.Collected
	if remaining <= 0 {
		return visit{}, false
	}
	return visit{id: id, now: now, ask: min(st.QuotaPerCycle, remaining)}, true
}

func (s *Scheduler) request(ask int) extract.Request {
	return extract.Request{
		Filters:  s.cfg.Filters,
		Ask:      ask,
		Timeout:  s.cfg.Timeout,
		Attempts: s.cfg.Attempts,
	}
}

// commit は1回分の結果を状態と蓄積結果に反映します。
func (s *Scheduler) commit(res *Result, v visit) {
	st := res.States[v.id]
	st.Visits++

	items := v.items
	if len(items) > v.ask {
		s.logger.Warn("抽出器が依頼件数を超えて返したため切り詰めます", "source", v.id, "ask", v.ask, "returned", len(items))
		items = items[:v.ask]
	}
	if len(items) > 0 {
		st.Collected += len(items)
		res.Listings = append(res.Listings, items...)
	}

	switch {
	case v.err != nil:
		st.Failures++
		st.BlockedUntil = v.now.Add(s.cfg.Cooldown)
		s.logger.Warn("ソースの取得に失敗したためクールダウンします",
			"source", v.id, "until", st.BlockedUntil, "blocked", errors.Is(v.err, extract.ErrBlocked), "error", v.err)
	case len(items) == 0 && !s.cfg.KeepEligibleOnEmpty:
		st.BlockedUntil = v.now.Add(s.cfg.Cooldown)
		s.logger.Info("結果が0件のためクールダウンします", "source", v.id, "until", st.BlockedUntil)
	default:
		s.logger.Info("リスティングを取得しました", "source", v.id, "count", len(items), "collected", st.Collected, "quota", st.QuotaTotal)
	}
	res.States[v.id] = st
}

// pause は base に [0, jitter) の乱数を加えた時間だけ待機します。
func (s *Scheduler) pause(ctx context.Context, base, jitter time.Duration) error {
	if base <= 0 && jitter <= 0 {
		return ctx.Err()
	}
	d := base + time.Duration(s.randFn()*float64(jitter))
	return s.sleeper.Sleep(ctx, d)
}
