// Package config は、既定値・YAMLファイル・環境変数・コマンドラインフラグの順に
// 実行設定を解決します。
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shouni/go-listing-watch/pkg/source"
	"github.com/shouni/go-listing-watch/pkg/types"
)

// DefaultFile は --config 未指定時に読み込むファイルです。存在しなくても構いません。
const DefaultFile = "config.yml"

// ErrInvalid は設定値の検証エラーです。
var ErrInvalid = errors.New("設定が不正です")

// Config は解決済みの実行設定です。
type Config struct {
	MinPrice    int
	MaxPrice    int
	MinBedrooms int
	Keywords    []string
	Localities  []string
	// LocalitiesFile が指定されていれば、その内容が Localities より優先されます。
	LocalitiesFile string

	Sources         []string
	RotatePriority  bool
	Limit           int
	PerSourceLimit  map[string]int
	CyclesPerSource int
	SleepBetween    time.Duration
	SleepCycles     time.Duration
	Cooldown        time.Duration
	CooldownOnEmpty bool
	Timeout         time.Duration
	Retries         int

	Parallel          bool
	MaxParallel       int
	RequestsPerSecond float64
	RunDeadline       time.Duration

	OutDir       string
	OutPrefix    string
	SiteURL      string
	FetchImages  bool
	CleanOutputs bool
	DatabaseURL  string
	UserAgent    string
	Headless     bool
	LogJSON      bool

	SourceOverrides []source.Definition
}

// Defaults は組み込みの既定値を返します。Sources は Finalize でレジストリ順に補完されます。
func Defaults() Config {
	return Config{
		Keywords:        []string{"pedra", "granito", "xisto"},
		Limit:           60,
		PerSourceLimit:  map[string]int{},
		CyclesPerSource: 5,
		SleepBetween:    4 * time.Second,
		SleepCycles:     12 * time.Second,
		Cooldown:        900 * time.Second,
		CooldownOnEmpty: true,
		Timeout:         35 * time.Second,
		Retries:         5,
		OutDir:          "docs",
		OutPrefix:       "data",
		FetchImages:     true,
		CleanOutputs:    true,
		Headless:        true,
	}
}

// Layer は1つの設定ソース (ファイル・環境変数・フラグ) から得た値です。
// ゼロ値と nil は「指定なし」として扱われます。
type Layer struct {
	MinPrice       int      `yaml:"min_price"`
	MaxPrice       int      `yaml:"max_price"`
	MinBedrooms    int      `yaml:"min_bedrooms"`
	Keywords       []string `yaml:"keywords"`
	Localities     []string `yaml:"localities"`
	LocalitiesFile string   `yaml:"localities_file"`

	Sources         []string       `yaml:"sources"`
	RotatePriority  *bool          `yaml:"rotate_priority"`
	Limit           int            `yaml:"limit"`
	PerSourceLimit  PerSourceLimit `yaml:"per_source_limit"`
	CyclesPerSource int            `yaml:"cycles_per_source"`
	SleepBetween    *float64       `yaml:"sleep_between"`
	SleepCycles     *float64       `yaml:"sleep_cycles"`
	CooldownSecs    *float64       `yaml:"cooldown_secs"`
	CooldownOnEmpty *bool          `yaml:"cooldown_on_empty"`
	Timeout         float64        `yaml:"timeout"`
	Retries         int            `yaml:"retries"`

	Parallel          *bool   `yaml:"parallel"`
	MaxParallel       int     `yaml:"max_parallel"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	RunDeadline       float64 `yaml:"run_deadline"`

	OutDir       string `yaml:"out_dir"`
	OutPrefix    string `yaml:"out_prefix"`
	SiteURL      string `yaml:"site_url"`
	FetchImages  *bool  `yaml:"fetch_images"`
	CleanOutputs *bool  `yaml:"clean_outputs"`
	DatabaseURL  string `yaml:"database_url"`
	UserAgent    string `yaml:"user_agent"`
	Headless     *bool  `yaml:"headless"`
	LogJSON      *bool  `yaml:"log_json"`

	SourceOverrides []source.Definition `yaml:"source_overrides"`
}

// PerSourceLimit は per_source_limit の値です。YAMLではマッピングと "k=v,k=v" 文字列の両方を受け付けます。
type PerSourceLimit map[string]int

// UnmarshalYAML は yaml.Unmarshaler の実装です。
func (p *PerSourceLimit) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*p = ParsePerSourceLimit(node.Value)
		return nil
	case yaml.MappingNode:
		raw := map[string]string{}
		if err := node.Decode(&raw); err != nil {
			return fmt.Errorf("per_source_limit のデコードに失敗しました: %w", err)
		}
		out := PerSourceLimit{}
		for k, v := range raw {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				continue
			}
			out[strings.ToLower(strings.TrimSpace(k))] = n
		}
		*p = out
		return nil
	}
	return fmt.Errorf("per_source_limit はマッピングまたは文字列で指定してください (line %d)", node.Line)
}

// ParsePerSourceLimit は "olx=12,idealista=8" 形式を解析します。不正な項目は無視されます。
func ParsePerSourceLimit(s string) PerSourceLimit {
	out := PerSourceLimit{}
	for _, part := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if k == "" || err != nil {
			continue
		}
		out[k] = n
	}
	return out
}

// LoadFile はYAML設定ファイルを読み込みます。ファイルが存在しない場合は空の Layer を返します。
func LoadFile(path string) (Layer, error) {
	var l Layer
	if path == "" {
		return l, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return l, nil
		}
		return l, fmt.Errorf("設定ファイルのオープンに失敗しました: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&l); err != nil && !errors.Is(err, io.EOF) {
		return l, fmt.Errorf("設定ファイルのパースに失敗しました (%s): %w", path, err)
	}
	return l, nil
}

// Apply は l の指定済みの値で c を上書きします。
func (c *Config) Apply(l Layer) {
	setInt(&c.MinPrice, l.MinPrice)
	setInt(&c.MaxPrice, l.MaxPrice)
	setInt(&c.MinBedrooms, l.MinBedrooms)
	setList(&c.Keywords, l.Keywords)
	setList(&c.Localities, l.Localities)
	setString(&c.LocalitiesFile, l.LocalitiesFile)

	setList(&c.Sources, l.Sources)
	setBool(&c.RotatePriority, l.RotatePriority)
	setInt(&c.Limit, l.Limit)
	if len(l.PerSourceLimit) > 0 {
		c.PerSourceLimit = map[string]int(l.PerSourceLimit)
	}
	setInt(&c.CyclesPerSource, l.CyclesPerSource)
	setSeconds(&c.SleepBetween, l.SleepBetween)
	setSeconds(&c.SleepCycles, l.SleepCycles)
	setSeconds(&c.Cooldown, l.CooldownSecs)
	setBool(&c.CooldownOnEmpty, l.CooldownOnEmpty)
	if l.Timeout > 0 {
		c.Timeout = seconds(l.Timeout)
	}
	setInt(&c.Retries, l.Retries)

	setBool(&c.Parallel, l.Parallel)
	setInt(&c.MaxParallel, l.MaxParallel)
	if l.RequestsPerSecond > 0 {
		c.RequestsPerSecond = l.RequestsPerSecond
	}
	if l.RunDeadline > 0 {
		c.RunDeadline = seconds(l.RunDeadline)
	}

	setString(&c.OutDir, l.OutDir)
	setString(&c.OutPrefix, l.OutPrefix)
	setString(&c.SiteURL, l.SiteURL)
	setBool(&c.FetchImages, l.FetchImages)
	setBool(&c.CleanOutputs, l.CleanOutputs)
	setString(&c.DatabaseURL, l.DatabaseURL)
	setString(&c.UserAgent, l.UserAgent)
	setBool(&c.Headless, l.Headless)
	setBool(&c.LogJSON, l.LogJSON)

	if len(l.SourceOverrides) > 0 {
		c.SourceOverrides = l.SourceOverrides
	}
}

// Resolve は既定値に layers を順に重ねた設定を返します。
func Resolve(layers ...Layer) *Config {
	c := Defaults()
	for _, l := range layers {
		c.Apply(l)
	}
	return &c
}

// Finalize は sources の既定値を補完し、地域ファイルを読み込んでから Validate を実行します。
func (c *Config) Finalize(reg *source.Registry) error {
	// 1. ソースIDの正規化 (未指定はレジストリ全件)
	if len(c.Sources) == 0 {
		c.Sources = reg.IDs()
	}
	normalized := make([]string, 0, len(c.Sources))
	for _, id := range c.Sources {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" && !slices.Contains(normalized, id) {
			normalized = append(normalized, id)
		}
	}
	c.Sources = normalized

	// 2. 地域ファイルの読み込み
	if c.LocalitiesFile != "" {
		locs, err := ReadLocalities(c.LocalitiesFile)
		if err != nil {
			return err
		}
		if len(locs) > 0 {
			c.Localities = locs
		}
	}

	// 3. サイトURLのスキーム補完
	if c.SiteURL != "" {
		u, err := ensureScheme(c.SiteURL)
		if err != nil {
			return fmt.Errorf("%w: site_url: %w", ErrInvalid, err)
		}
		c.SiteURL = u
	}

	return c.Validate(reg)
}

// Validate はスケジューリング前に拒否すべき設定を検出します。
func (c *Config) Validate(reg *source.Registry) error {
	if c.CyclesPerSource < 1 {
		return fmt.Errorf("%w: cycles_per_source は1以上で指定してください: %d", ErrInvalid, c.CyclesPerSource)
	}
	if c.Retries < 1 {
		return fmt.Errorf("%w: retries は1以上で指定してください: %d", ErrInvalid, c.Retries)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("%w: sources が空です", ErrInvalid)
	}
	for _, id := range c.Sources {
		if _, err := reg.Get(id); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	if c.Limit <= 0 && len(c.PerSourceLimit) == 0 {
		return fmt.Errorf("%w: limit は正の値で指定してください: %d", ErrInvalid, c.Limit)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout は正の値で指定してください", ErrInvalid)
	}
	if c.MaxParallel < 0 || c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: max_parallel と requests_per_second は負にできません", ErrInvalid)
	}
	if c.OutPrefix == "" || strings.ContainsAny(c.OutPrefix, `/\`) {
		return fmt.Errorf("%w: out_prefix が不正です: %q", ErrInvalid, c.OutPrefix)
	}
	return nil
}

// Filters は抽出器に渡すフィルター条件を返します。
func (c *Config) Filters() types.Filters {
	return types.Filters{
		MinPrice:    c.MinPrice,
		MaxPrice:    c.MaxPrice,
		MinBedrooms: c.MinBedrooms,
		Localities:  slices.Clone(c.Localities),
		Keywords:    slices.Clone(c.Keywords),
	}
}

// ReadLocalities は1行1地域のファイルを読み込みます。空行と # で始まる行は無視されます。
func ReadLocalities(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("地域ファイルのオープンに失敗しました: %w", err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("地域ファイルの読み込みに失敗しました: %w", err)
	}
	return out, nil
}

// ensureScheme は、URLのスキームが存在しない場合に https:// を補完します。
func ensureScheme(rawURL string) (string, error) {
	// 1. まず現在のURLをパース
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("URLのパースエラー: %w", err)
	}

	// 2. スキームが既に存在する場合は http/https のみ許可
	if parsedURL.Scheme != "" {
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return "", fmt.Errorf("無効なURLスキームです。httpまたはhttpsを指定してください: %s", rawURL)
		}
		return rawURL, nil
	}

	// 3. スキームがない場合、HTTPSを付与
	return "https://" + rawURL, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func setSeconds(dst *time.Duration, v *float64) {
	if v != nil && *v >= 0 {
		*dst = seconds(*v)
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setList(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = slices.Clone(v)
	}
}
