package config

import (
	"github.com/spf13/cobra"
)

// フラグ名
const (
	FlagConfig          = "config"
	FlagLimit           = "limit"
	FlagPerSourceLimit  = "per-source-limit"
	FlagSources         = "sources"
	FlagRotatePriority  = "rotate-priority"
	FlagCyclesPerSource = "cycles-per-source"
	FlagSleepBetween    = "sleep-between"
	FlagSleepCycles     = "sleep-cycles"
	FlagCooldownSecs    = "cooldown-secs"
	FlagTimeout         = "timeout"
	FlagRetries         = "retries"
	FlagMinPrice        = "min-price"
	FlagMaxPrice        = "max-price"
	FlagMinBedrooms     = "min-bedrooms"
	FlagKeywords        = "keywords"
	FlagLocalities      = "localities"
	FlagLocalitiesFile  = "localities-file"
	FlagOutDir          = "out-dir"
	FlagOutPrefix       = "out-prefix"
	FlagSiteURL         = "site-url"
	FlagParallel        = "parallel"
	FlagMaxParallel     = "max-parallel"
	FlagRPS             = "rps"
	FlagRunDeadline     = "run-deadline"
	FlagDatabaseURL     = "database-url"
	FlagFetchImages     = "fetch-images"
)

// AddFlags は run コマンドに設定上書き用のフラグを登録します。
// 既定値は表示用で、明示的に指定されたフラグだけが FlagLayer に反映されます。
func AddFlags(cmd *cobra.Command) {
	d := Defaults()
	f := cmd.Flags()
	f.String(FlagConfig, DefaultFile, "YAML設定ファイルのパス")
	f.Int(FlagLimit, d.Limit, "1回の実行で取得するリスティングの総数")
	f.String(FlagPerSourceLimit, "", "ソースごとの上限 (例: olx=12,idealista=8)")
	f.StringSlice(FlagSources, nil, "対象ソースID (既定: 全ソース)")
	f.Bool(FlagRotatePriority, false, "日付に応じてソースの優先順位を回転する")
	f.Int(FlagCyclesPerSource, d.CyclesPerSource, "ソースごとのサイクル数")
	f.Float64(FlagSleepBetween, d.SleepBetween.Seconds(), "ソース間の待機時間（秒）")
	f.Float64(FlagSleepCycles, d.SleepCycles.Seconds(), "サイクル間の待機時間（秒）")
	f.Float64(FlagCooldownSecs, d.Cooldown.Seconds(), "ブロック・失敗時のクールダウン（秒）")
	f.Float64(FlagTimeout, d.Timeout.Seconds(), "HTTPリクエストのタイムアウト時間（秒）")
	f.Int(FlagRetries, d.Retries, "HTTPリクエストのリトライ最大回数")
	f.Int(FlagMinPrice, 0, "最低価格 (0 は制限なし)")
	f.Int(FlagMaxPrice, 0, "最高価格 (0 は制限なし)")
	f.Int(FlagMinBedrooms, 0, "最低寝室数")
	f.StringSlice(FlagKeywords, nil, "キーワード (タイトルと詳細に対する部分一致)")
	f.StringSlice(FlagLocalities, nil, "地域 (タイトルと所在地に対する部分一致)")
	f.String(FlagLocalitiesFile, "", "1行1地域のファイル")
	f.String(FlagOutDir, d.OutDir, "出力ディレクトリ")
	f.String(FlagOutPrefix, d.OutPrefix, "CSV・XLSXファイル名の接頭辞")
	f.String(FlagSiteURL, "", "公開サイトのURL (通知テキストに記載)")
	f.Bool(FlagParallel, false, "ソースを並列に訪問する")
	f.Int(FlagMaxParallel, 0, "並列訪問の最大数")
	f.Float64(FlagRPS, 0, "ホストごとの毎秒リクエスト数の上限")
	f.Float64(FlagRunDeadline, 0, "実行全体の制限時間（秒, 0 は無制限）")
	f.String(FlagDatabaseURL, "", "PostgreSQLの接続文字列 (指定時はスナップショットをDBにも保存)")
	f.Bool(FlagFetchImages, d.FetchImages, "詳細ページから画像URLを取得する")
}

// FlagLayer は明示的に指定されたフラグだけを Layer にまとめます。
func FlagLayer(cmd *cobra.Command) (Layer, error) {
	var l Layer
	f := cmd.Flags()
	changed := f.Changed

	var err error
	getInt := func(name string, dst *int) {
		if err == nil && changed(name) {
			*dst, err = f.GetInt(name)
		}
	}
	getFloat := func(name string, dst *float64) {
		if err == nil && changed(name) {
			*dst, err = f.GetFloat64(name)
		}
	}
	getFloatPtr := func(name string, dst **float64) {
		if err == nil && changed(name) {
			var v float64
			v, err = f.GetFloat64(name)
			*dst = &v
		}
	}
	getString := func(name string, dst *string) {
		if err == nil && changed(name) {
			*dst, err = f.GetString(name)
		}
	}
	getSlice := func(name string, dst *[]string) {
		if err == nil && changed(name) {
			*dst, err = f.GetStringSlice(name)
		}
	}
	getBool := func(name string, dst **bool) {
		if err == nil && changed(name) {
			var v bool
			v, err = f.GetBool(name)
			*dst = &v
		}
	}

	getInt(FlagLimit, &l.Limit)
	getSlice(FlagSources, &l.Sources)
	getBool(FlagRotatePriority, &l.RotatePriority)
	getInt(FlagCyclesPerSource, &l.CyclesPerSource)
	getFloatPtr(FlagSleepBetween, &l.SleepBetween)
	getFloatPtr(FlagSleepCycles, &l.SleepCycles)
	getFloatPtr(FlagCooldownSecs, &l.CooldownSecs)
	getFloat(FlagTimeout, &l.Timeout)
	getInt(FlagRetries, &l.Retries)
	getInt(FlagMinPrice, &l.MinPrice)
	getInt(FlagMaxPrice, &l.MaxPrice)
	getInt(FlagMinBedrooms, &l.MinBedrooms)
	getSlice(FlagKeywords, &l.Keywords)
	getSlice(FlagLocalities, &l.Localities)
	getString(FlagLocalitiesFile, &l.LocalitiesFile)
	getString(FlagOutDir, &l.OutDir)
	getString(FlagOutPrefix, &l.OutPrefix)
	getString(FlagSiteURL, &l.SiteURL)
	getBool(FlagParallel, &l.Parallel)
	getInt(FlagMaxParallel, &l.MaxParallel)
	getFloat(FlagRPS, &l.RequestsPerSecond)
	getFloat(FlagRunDeadline, &l.RunDeadline)
	getString(FlagDatabaseURL, &l.DatabaseURL)
	getBool(FlagFetchImages, &l.FetchImages)

	var perSource string
	getString(FlagPerSourceLimit, &perSource)
	if perSource != "" {
		l.PerSourceLimit = ParsePerSourceLimit(perSource)
	}
	return l, err
}

// ConfigPath は --config の値を返します。
func ConfigPath(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString(FlagConfig)
	if err != nil || path == "" {
		return DefaultFile
	}
	return path
}
