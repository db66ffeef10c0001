package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"

	"github.com/shouni/go-listing-watch/internal/obs"
	"github.com/shouni/go-listing-watch/internal/pipeline"
	"github.com/shouni/go-listing-watch/pkg/config"
	"github.com/shouni/go-listing-watch/pkg/report"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "全ソースを巡回し、価格変動を出力します",
	Long:  `設定されたソースを取得上限・サイクル・クールダウンに従って巡回し、前回のスナップショットと比較した結果を出力ディレクトリに書き出します。`,
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 中断シグナルを全体のコンテキストに反映
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// 2. 設定の解決
		cfg, reg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("設定の読み込みエラー: %w", err)
		}
		logger := obs.Logger
		if cfg.LogJSON && !Flags.LogJSON {
			logger = obs.InitLogger(clibase.Flags.Verbose, true)
		}

		// 3. パイプラインの実行
		out, err := pipeline.Run(ctx, cfg, pipeline.Options{Registry: reg, Logger: logger})
		if err != nil {
			return fmt.Errorf("実行エラー: %w", err)
		}

		// 4. 結果の出力
		fmt.Fprintln(cmd.OutOrStdout(), report.StatusLine(out.Summary))
		return nil
	},
}

func init() {
	config.AddFlags(runCmd)
}
