// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/openrice-crawler/internal/crawler"
	"github.com/JakeFAU/openrice-crawler/internal/parser"
)

// EnvPrefix namespaces environment overrides (OPENRICE_CRAWLER_DELAY_SECONDS).
const EnvPrefix = "OPENRICE"

// Fetcher modes.
const (
	FetcherHeadless = "headless"
	FetcherStatic   = "static"
	FetcherAuto     = "auto"
)

// Storage backends for dataset mirroring.
const (
	StorageNone   = "none"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
	StorageMemory = "memory" // in-process copies for dry runs
)

// DefaultTargets are the Hong Kong district directories crawled when no
// targets are configured, sorted by OpenRice score.
var DefaultTargets = []string{
	districtURL("%E4%B8%AD%E7%92%B0"),          // 中環
	districtURL("%E4%B8%8A%E7%92%B0"),          // 上環
	districtURL("%E8%A5%BF%E7%87%9F%E7%9B%A4"), // 西營盤
	districtURL("%E7%9F%B3%E5%A1%98%E5%92%80"), // 石塘咀
	districtURL("%E7%81%A3%E4%BB%94"),          // 灣仔
	districtURL("%E9%8A%85%E9%91%BC%E7%81%A3"), // 銅鑼灣
	districtURL("%E5%8C%97%E8%A7%92"),          // 北角
	districtURL("%E5%B0%96%E6%B2%99%E5%92%80"), // 尖沙咀
	districtURL("%E6%97%BA%E8%A7%92"),          // 旺角
	districtURL("%E6%B2%B9%E9%BA%BB%E5%9C%B0"), // 油麻地
	districtURL("%E6%B7%B1%E6%B0%B4%E5%9F%97"), // 深水埗
	districtURL("%E8%A7%80%E5%A1%98"),          // 觀塘
}

func districtURL(encoded string) string {
	return "https://www.openrice.com/zh/hongkong/restaurants/district/" + encoded + "?sortBy=ORScoreDesc"
}

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Headless HeadlessConfig `mapstructure:"headless"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Output   OutputConfig   `mapstructure:"output"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
}

// CrawlerConfig governs the crawl run.
type CrawlerConfig struct {
	Targets      []string         `mapstructure:"targets"`
	DelaySeconds float64          `mapstructure:"delay_seconds"`
	Origin       string           `mapstructure:"origin"`
	UserAgent    string           `mapstructure:"user_agent"`
	Selectors    parser.Selectors `mapstructure:"selectors"`
}

// FetcherConfig picks how district pages are loaded.
type FetcherConfig struct {
	Mode          string `mapstructure:"mode"`
	MinContainers int    `mapstructure:"min_containers"`
}

// HeadlessConfig configures the browser session and scroll loop.
type HeadlessConfig struct {
	ExecPath      string `mapstructure:"exec_path"`
	NoSandbox     bool   `mapstructure:"no_sandbox"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	SettleMs      int    `mapstructure:"settle_ms"`
	ScrollCycles  int    `mapstructure:"scroll_cycles"`
	ScrollWaitMs  int    `mapstructure:"scroll_wait_ms"`
	StableRounds  int    `mapstructure:"stable_rounds"`
}

// HTTPConfig configures the static fetcher.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// OutputConfig names the dataset files.
type OutputConfig struct {
	JSONPath       string `mapstructure:"json_path"`
	CSVPath        string `mapstructure:"csv_path"`
	Columns        string `mapstructure:"columns"`
	SkipValidation bool   `mapstructure:"skip_validation"`
}

// StorageConfig sets where dataset copies are mirrored.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional Postgres listing store.
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	Table       string `mapstructure:"table"`
	CreateTable bool   `mapstructure:"create_table"`
	MaxConns    int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for dataset-ready notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
	// DryRun records notifications in memory instead of publishing them.
	DryRun    bool   `mapstructure:"dry_run"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// AnalysisConfig configures the downstream classify, cluster and summary steps.
type AnalysisConfig struct {
	Clusters      int    `mapstructure:"clusters"`
	Seed          uint64 `mapstructure:"seed"`
	ClassifiedCSV string `mapstructure:"classified_csv"`
	ClusteredCSV  string `mapstructure:"clustered_csv"`
	SummaryJSON   string `mapstructure:"summary_json"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal; viper only consults the environment for keys it knows about.
func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.targets", DefaultTargets)
	v.SetDefault("crawler.delay_seconds", 3)
	v.SetDefault("crawler.origin", parser.DefaultOrigin)
	v.SetDefault("crawler.user_agent", "")
	v.SetDefault("fetcher.mode", FetcherHeadless)
	v.SetDefault("fetcher.min_containers", 1)
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("headless.no_sandbox", true)
	v.SetDefault("headless.nav_timeout_seconds", 180)
	v.SetDefault("headless.settle_ms", 5000)
	v.SetDefault("headless.scroll_cycles", 20)
	v.SetDefault("headless.scroll_wait_ms", 2000)
	v.SetDefault("headless.stable_rounds", 2)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("output.json_path", "openrice_data.json")
	v.SetDefault("output.csv_path", "openrice_data.csv")
	v.SetDefault("output.columns", "first")
	v.SetDefault("output.skip_validation", false)
	v.SetDefault("storage.backend", StorageNone)
	v.SetDefault("storage.local_dir", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "datasets")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "openrice_listings")
	v.SetDefault("db.create_table", true)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("pubsub.dry_run", false)
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("analysis.clusters", 3)
	v.SetDefault("analysis.seed", 42)
	v.SetDefault("analysis.classified_csv", "classified_foodie_data.csv")
	v.SetDefault("analysis.clustered_csv", "clustered_foodie_data.csv")
	v.SetDefault("analysis.summary_json", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Crawler.Targets) == 0 {
		return fmt.Errorf("crawler.targets must list at least one district url")
	}
	if _, err := crawler.NewTargets(c.Crawler.Targets); err != nil {
		return fmt.Errorf("crawler.targets: %w", err)
	}
	if c.Crawler.DelaySeconds < 0 {
		return fmt.Errorf("crawler.delay_seconds must be >= 0")
	}
	switch c.Fetcher.Mode {
	case FetcherHeadless, FetcherStatic, FetcherAuto:
	default:
		return fmt.Errorf("fetcher.mode must be one of headless, static, auto")
	}
	if c.Headless.NavTimeoutSec <= 0 {
		return fmt.Errorf("headless.nav_timeout_seconds must be > 0")
	}
	if c.Headless.ScrollCycles <= 0 {
		return fmt.Errorf("headless.scroll_cycles must be > 0")
	}
	if c.Headless.SettleMs < 0 || c.Headless.ScrollWaitMs < 0 || c.Headless.StableRounds < 0 {
		return fmt.Errorf("headless settle, wait and stable rounds must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Output.JSONPath == "" && c.Output.CSVPath == "" {
		return fmt.Errorf("output.json_path or output.csv_path must be set")
	}
	switch c.Output.Columns {
	case "first", "union":
	default:
		return fmt.Errorf("output.columns must be first or union")
	}
	switch c.Storage.Backend {
	case "", StorageNone, StorageMemory:
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of none, local, gcs, memory")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" && !c.PubSub.DryRun {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is")
	}
	if c.DB.MaxConns < 0 {
		return fmt.Errorf("db.max_conns must be >= 0")
	}
	if c.Analysis.Clusters <= 0 {
		return fmt.Errorf("analysis.clusters must be > 0")
	}
	return nil
}

// Targets converts the configured URLs into crawl targets.
func (c Config) Targets() ([]crawler.CrawlTarget, error) {
	return crawler.NewTargets(c.Crawler.Targets)
}

// Delay returns the inter-target pause. Zero disables throttling.
func (c Config) Delay() time.Duration {
	d := time.Duration(c.Crawler.DelaySeconds * float64(time.Second))
	if d == 0 {
		return -1
	}
	return d
}

// NavTimeout is the per-fetch headless budget.
func (c HeadlessConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// Settle is the wait after the page body is ready.
func (c HeadlessConfig) Settle() time.Duration {
	return time.Duration(c.SettleMs) * time.Millisecond
}

// ScrollWait is the wait after each scroll-to-bottom.
func (c HeadlessConfig) ScrollWait() time.Duration {
	return time.Duration(c.ScrollWaitMs) * time.Millisecond
}

// Timeout is the static fetch timeout.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
