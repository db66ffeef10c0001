package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shouni/go-listing-watch/internal/obs"
	"github.com/shouni/go-listing-watch/internal/server"
	"github.com/shouni/go-listing-watch/pkg/config"
)

var (
	serveAddr string // --addr 待ち受けアドレス
	serveDir  string // --dir 配信するディレクトリ
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "出力ディレクトリをHTTPで配信します",
	Long:  `run が書き出した一覧ページとCSVを配信し、/api/summary で最新の集計を返します。`,
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.Serve(ctx, serveAddr, serveDir, obs.Logger)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "待ち受けアドレス")
	serveCmd.Flags().StringVar(&serveDir, "dir", config.Defaults().OutDir, "配信するディレクトリ")
}
