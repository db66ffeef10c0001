package snapshot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shouni/go-listing-watch/pkg/types"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS watch_runs (
	id UUID PRIMARY KEY,
	finished_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	total INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS watch_listings (
	run_id UUID NOT NULL REFERENCES watch_runs(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	source TEXT NOT NULL,
	title TEXT NOT NULL,
	price DOUBLE PRECISION,
	previous_price DOUBLE PRECISION,
	classification TEXT NOT NULL,
	location TEXT,
	typology TEXT,
	details TEXT,
	image_url TEXT,
	PRIMARY KEY (run_id, url)
);

CREATE INDEX IF NOT EXISTS idx_watch_runs_finished_at ON watch_runs(finished_at DESC);
`

const (
	latestRunSQL = `SELECT id::text FROM watch_runs ORDER BY finished_at DESC LIMIT 1`
	pricesSQL    = `SELECT url, price FROM watch_listings WHERE run_id = $1::uuid`
	insertRunSQL = `INSERT INTO watch_runs (id, finished_at, total) VALUES ($1::uuid, $2, $3)`

	insertListingSQL = `
	INSERT INTO watch_listings (run_id, url, source, title, price, previous_price, classification, location, typology, details, image_url)
	VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (run_id, url) DO NOTHING`
)

// PostgresStore は実行ごとのリスティングを PostgreSQL に保存し、最新の実行をスナップショットとして返します。
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore は接続を確立し、スキーマを用意します。
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("PostgreSQLプールの作成に失敗しました: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQLへの接続に失敗しました: %w", err)
	}

	s := &PostgresStore{pool: pool, now: time.Now}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close は接続プールを閉じます。
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema は必要なテーブルを作成します。
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("スキーマの作成に失敗しました: %w", err)
	}
	return nil
}

// Load は最新の実行の価格表を返します。実行が1件もなければ nil, nil です。
func (s *PostgresStore) Load(ctx context.Context) (*Snapshot, error) {
	var runID string
	if err := s.pool.QueryRow(ctx, latestRunSQL).Scan(&runID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("最新の実行の取得に失敗しました: %w", err)
	}

	rows, err := s.pool.Query(ctx, pricesSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("スナップショットの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	snap := &Snapshot{RunID: runID, Prices: make(map[string]float64)}
	for rows.Next() {
		var (
			url   string
			price *float64
		)
		if err := rows.Scan(&url, &price); err != nil {
			return nil, fmt.Errorf("スナップショット行の読み込みに失敗しました: %w", err)
		}
		snap.Prices[url] = fromNullable(price)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("スナップショットの読み込みに失敗しました: %w", err)
	}
	return snap, nil
}

// Save は実行と、そのリスティングを1トランザクションで保存します。
func (s *PostgresStore) Save(ctx context.Context, runID string, items []types.Annotated) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("実行IDが不正です (%s): %w", runID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, insertRunSQL, id.String(), s.now(), len(items)); err != nil {
		return fmt.Errorf("実行の保存に失敗しました: %w", err)
	}

	batch := &pgx.Batch{}
	for _, a := range items {
		url := strings.TrimSpace(a.URL)
		if url == "" {
			continue
		}
		var prev *float64
		if a.Change.PreviousPrice != nil {
			prev = toNullable(*a.Change.PreviousPrice)
		}
		batch.Queue(insertListingSQL,
			id.String(), url, a.Source, a.Title, toNullable(a.Price), prev, string(a.Change.Classification),
			a.Location, a.Typology, a.Details, a.ImageURL,
		)
	}

	if batch.Len() > 0 {
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("リスティングの一括保存に失敗しました (行 %d): %w", i, err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("一括保存の終了処理に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// toNullable は NaN を NULL に変換します。
func toNullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func fromNullable(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
