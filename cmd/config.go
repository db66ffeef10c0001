package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shouni/go-listing-watch/pkg/config"
	"github.com/shouni/go-listing-watch/pkg/source"
)

const dotEnvFile = ".env"

// loadConfig は .env・設定ファイル・環境変数・フラグの順に設定を解決し、ソースレジストリを構築します。
// extra は最後に適用される上書きです。
func loadConfig(cmd *cobra.Command, extra ...config.Layer) (*config.Config, *source.Registry, error) {
	// 1. .env をプロセス環境へ読み込む
	if err := config.LoadDotEnv(dotEnvFile); err != nil {
		return nil, nil, err
	}

	// 2. 各設定ソースの読み込み
	fileLayer, err := config.LoadFile(config.ConfigPath(cmd))
	if err != nil {
		return nil, nil, err
	}
	envLayer, err := config.EnvLayer(os.LookupEnv)
	if err != nil {
		return nil, nil, err
	}
	flagLayer, err := config.FlagLayer(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("フラグの読み込みに失敗しました: %w", err)
	}
	cfg := config.Resolve(append([]config.Layer{fileLayer, envLayer, flagLayer}, extra...)...)

	// 3. 上書き定義を含むレジストリの構築と検証
	reg, err := source.NewRegistry(source.Builtin(), cfg.SourceOverrides...)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Finalize(reg); err != nil {
		return nil, nil, err
	}
	return cfg, reg, nil
}
