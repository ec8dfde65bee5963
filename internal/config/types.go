package config

import (
	"strings"
	"time"
)

// Config 是 listingshort 的主配置载体，加载后只读。
type Config struct {
	App      AppConfig      `yaml:"app"`
	Market   MarketConfig   `yaml:"market"`
	Universe UniverseConfig `yaml:"universe"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Backtest BacktestConfig `yaml:"backtest"`
	Store    StoreConfig    `yaml:"store"`
	HTTP     HTTPConfig     `yaml:"http"`
}

type AppConfig struct {
	Env           string `yaml:"env"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"` // text | json
	LogPath       string `yaml:"log_path"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
}

// MarketConfig 描述上游行情接口。
type MarketConfig struct {
	Client      string        `yaml:"client"` // sdk | rest
	RESTBaseURL string        `yaml:"rest_base_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	ProxyURL    string        `yaml:"proxy_url"`
}

// UniverseConfig 控制 Listing Catalog 的筛选。
type UniverseConfig struct {
	QuoteAsset   string    `yaml:"quote_asset"`
	ContractType string    `yaml:"contract_type"`
	StartDate    time.Time `yaml:"start_date"`
	EndDate      time.Time `yaml:"end_date"` // 零值表示不限制
	Symbols      []string  `yaml:"symbols"`
	Exclude      []string  `yaml:"exclude"`
	Limit        int       `yaml:"limit"` // 0 表示不限制
}

// FetchConfig 控制分页拉取与重试。
type FetchConfig struct {
	InterRequestDelay time.Duration `yaml:"inter_request_delay"`
	PageSize          int           `yaml:"page_size"`
	MaxPages          int           `yaml:"max_pages"`
	Retry             RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	Transient RetryClassConfig `yaml:"transient"`
	RateLimit RetryClassConfig `yaml:"rate_limit"`
	Upstream  RetryClassConfig `yaml:"upstream"`
}

// RetryClassConfig 对应一类错误的线性退避：attempt × unit，封顶 cap。
type RetryClassConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Unit        time.Duration `yaml:"unit"`
	Cap         time.Duration `yaml:"cap"`
}

// BacktestConfig 为做空策略参数。
type BacktestConfig struct {
	Interval            string  `yaml:"interval"`
	EntryDelayCandles   int     `yaml:"entry_delay_candles"`
	StopLossPct         float64 `yaml:"stop_loss_pct"`   // 0.10 = 10%
	TakeProfitPct       float64 `yaml:"take_profit_pct"` // 0.40 = 40%
	TimeoutCandles      int     `yaml:"timeout_candles"`
	MinLookaheadCandles int     `yaml:"min_lookahead_candles"`
	SafetyMarginCandles int     `yaml:"safety_margin_candles"`
	TieBreak            string  `yaml:"tie_break"` // stop_loss_first | take_profit_first
	Concurrency         int     `yaml:"concurrency"`
}

// StoreConfig 结果落库；Path 为空表示不落库。
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Enabled 表示是否启用结果存储。
func (s StoreConfig) Enabled() bool {
	return strings.TrimSpace(s.Path) != ""
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}
