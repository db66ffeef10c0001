package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix は環境変数による上書きの接頭辞です。
const EnvPrefix = "LW_"

// LookupFunc は os.LookupEnv と同じシグネチャの環境変数参照です。
type LookupFunc func(key string) (string, bool)

// LoadDotEnv は path の .env ファイルをプロセス環境に読み込みます。既存の変数は上書きしません。
// ファイルが存在しない場合は何もしません。
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf(".env の読み込みに失敗しました: %w", err)
	}
	return nil
}

type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (r *envReader) str(key string) string {
	v, ok := r.lookup(EnvPrefix + key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func (r *envReader) list(key string) []string {
	v := r.str(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (r *envReader) atoi(key string) int {
	v := r.str(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("環境変数 %s%s の値が不正です: %w", EnvPrefix, key, err))
		return 0
	}
	return n
}

func (r *envReader) float(key string) *float64 {
	v := r.str(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("環境変数 %s%s の値が不正です: %w", EnvPrefix, key, err))
		return nil
	}
	return &f
}

func (r *envReader) boolean(key string) *bool {
	v := r.str(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("環境変数 %s%s の値が不正です: %w", EnvPrefix, key, err))
		return nil
	}
	return &b
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// EnvLayer は LW_* 環境変数から Layer を組み立てます。不正な数値・真偽値はまとめてエラーになります。
func EnvLayer(lookup LookupFunc) (Layer, error) {
	r := &envReader{lookup: lookup}
	l := Layer{
		MinPrice:       r.atoi("MIN_PRICE"),
		MaxPrice:       r.atoi("MAX_PRICE"),
		MinBedrooms:    r.atoi("MIN_BEDROOMS"),
		Keywords:       r.list("KEYWORDS"),
		Localities:     r.list("LOCALITIES"),
		LocalitiesFile: r.str("LOCALITIES_FILE"),

		Sources:         r.list("SOURCES"),
		RotatePriority:  r.boolean("ROTATE_PRIORITY"),
		Limit:           r.atoi("LIMIT"),
		CyclesPerSource: r.atoi("CYCLES_PER_SOURCE"),
		SleepBetween:    r.float("SLEEP_BETWEEN"),
		SleepCycles:     r.float("SLEEP_CYCLES"),
		CooldownSecs:    r.float("COOLDOWN_SECS"),
		CooldownOnEmpty: r.boolean("COOLDOWN_ON_EMPTY"),
		Timeout:         deref(r.float("TIMEOUT")),
		Retries:         r.atoi("RETRIES"),

		Parallel:          r.boolean("PARALLEL"),
		MaxParallel:       r.atoi("MAX_PARALLEL"),
		RequestsPerSecond: deref(r.float("REQUESTS_PER_SECOND")),
		RunDeadline:       deref(r.float("RUN_DEADLINE")),

		OutDir:       r.str("OUT_DIR"),
		OutPrefix:    r.str("OUT_PREFIX"),
		SiteURL:      r.str("SITE_URL"),
		FetchImages:  r.boolean("FETCH_IMAGES"),
		CleanOutputs: r.boolean("CLEAN_OUTPUTS"),
		DatabaseURL:  r.str("DATABASE_URL"),
		UserAgent:    r.str("USER_AGENT"),
		Headless:     r.boolean("HEADLESS"),
		LogJSON:      r.boolean("LOG_JSON"),
	}
	if v := r.str("PER_SOURCE_LIMIT"); v != "" {
		l.PerSourceLimit = ParsePerSourceLimit(v)
	}
	return l, errors.Join(r.errs...)
}
