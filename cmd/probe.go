package cmd

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shouni/go-listing-watch/internal/pipeline"
	"github.com/shouni/go-listing-watch/pkg/config"
)

var (
	probeSource string // --source 確認対象のソースID
	probeAsk    int    // --ask 取得件数
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "1つのソースを1回だけ取得し、リスティングを一覧表示します",
	Long:  `スケジューラやスナップショットを使わずに、指定したソースの抽出結果を確認します。セレクターの調整に利用します。`,
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// 1. 設定の解決 (対象ソースは --source のみ)
		cfg, reg, err := loadConfig(cmd, config.Layer{Sources: []string{probeSource}})
		if err != nil {
			return fmt.Errorf("設定の読み込みエラー: %w", err)
		}

		// 2. 全体処理のタイムアウト: ページと画像の取得回数 × 試行回数
		def, err := reg.Get(probeSource)
		if err != nil {
			return err
		}
		overall := cfg.Timeout * time.Duration(cfg.Retries*(def.MaxPages+probeAsk))
		ctx, cancel := context.WithTimeout(ctx, overall)
		defer cancel()

		// 3. 抽出の実行
		items, err := pipeline.Probe(ctx, cfg, probeSource, probeAsk, pipeline.Options{Registry: reg})
		if err != nil {
			return fmt.Errorf("ソース %s の取得エラー: %w", probeSource, err)
		}

		// 4. 結果の出力
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "--- %s の取得結果 ---\n", def.ID)
		fmt.Fprintf(w, "合計件数: %d\n", len(items))
		fmt.Fprintln(w, "-----------------------")
		for i, l := range items {
			fmt.Fprintf(w, "[%d] %s\n", i+1, l.Title)
			if !math.IsNaN(l.Price) {
				fmt.Fprintf(w, "    価格: %.0f€\n", l.Price)
			}
			if l.Location != "" {
				fmt.Fprintf(w, "    所在地: %s\n", l.Location)
			}
			fmt.Fprintf(w, "    URL: %s\n", l.URL)
		}
		fmt.Fprintln(w)
		return nil
	},
}

func init() {
	config.AddFlags(probeCmd)
	probeCmd.Flags().StringVar(&probeSource, "source", "", "確認対象のソースID")
	probeCmd.Flags().IntVar(&probeAsk, "ask", 10, "取得するリスティングの最大件数")

	// ソースIDを必須にする
	probeCmd.MarkFlagRequired("source")
}
