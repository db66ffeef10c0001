package cmd

import (
	"log/slog"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"

	"github.com/shouni/go-listing-watch/internal/obs"
)

// --- グローバル定数 ---

const (
	appName = "listing-watch"
)

// --- グローバル変数とフラグ構造体 ---

// AppFlags はこのアプリケーション固有の永続フラグを保持
type AppFlags struct {
	LogJSON bool // --log-json JSON形式のログ出力
}

var Flags AppFlags // アプリケーション固有フラグにアクセスするためのグローバル変数

// --- 初期化とロジック (clibaseへのコールバックとして利用) ---

// addAppPersistentFlags は、アプリケーション固有の永続フラグをルートコマンドに追加します。
func addAppPersistentFlags(rootCmd *cobra.Command) {
	rootCmd.Short = "不動産ポータルの巡回・価格変動の検出ツール"
	rootCmd.Long = `複数の不動産ポータルを取得上限とクールダウンを守りながら巡回し（run）、前回との価格差を一覧ページと通知テキストに出力します。`
	rootCmd.PersistentFlags().BoolVar(
		&Flags.LogJSON,
		"log-json",
		false,
		"JSON形式でログを出力する",
	)
}

// initAppPreRunE は、clibase共通処理の後に実行される、アプリケーション固有のPersistentPreRunEです。
// NOTE: clibaseの PersistentPreRunE チェーンにより、clibase.Flags.Verbose はこの関数実行前に設定済み
func initAppPreRunE(cmd *cobra.Command, args []string) error {
	logger := obs.InitLogger(clibase.Flags.Verbose, Flags.LogJSON)
	logger.Debug("ロガーを初期化しました", slog.Bool("verbose", clibase.Flags.Verbose), slog.Bool("json", Flags.LogJSON))
	return nil
}

// --- エントリポイント ---

// Execute は、rootCmd を実行するメイン関数です。clibaseのExecuteを使用する。
func Execute() {
	clibase.Execute(
		appName,
		addAppPersistentFlags,
		initAppPreRunE,
		runCmd,
		probeCmd,
		sourcesCmd,
		serveCmd,
	)
	// clibase.Execute() の中で os.Exit(1) が処理されるため、ここでは不要
}
