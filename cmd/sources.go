package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shouni/go-listing-watch/pkg/config"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "利用可能なソースの一覧を表示します",
	Long:  `組み込みのソース定義に設定ファイルの source_overrides を適用した結果を表示します。`,
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		_, reg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("設定の読み込みエラー: %w", err)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tKIND\tRENDER\tPAGES\tBASE URL")
		for _, d := range reg.Definitions() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", d.ID, d.Kind, d.Render, d.MaxPages, d.BaseURL)
		}
		return tw.Flush()
	},
}

func init() {
	sourcesCmd.Flags().String(config.FlagConfig, config.DefaultFile, "YAML設定ファイルのパス")
}
