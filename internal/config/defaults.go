package config

import (
	"strings"
	"time"
)

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppLogFormat      = "text"
	defaultAppLogMaxSizeMB   = 50
	defaultAppLogMaxBackups  = 5
	defaultMarketClient      = "sdk"
	defaultMarketREST        = "https://fapi.binance.com"
	defaultMarketHTTPTimeout = 15 * time.Second
	defaultQuoteAsset        = "USDT"
	defaultContractType      = "perpetual"
	defaultInterRequestDelay = time.Second
	defaultPageSize          = 1000
	defaultMaxPages          = 10
	defaultMaxAttempts       = 5
	defaultInterval          = "1h"
	defaultEntryDelay        = 6
	defaultStopLossPct       = 0.10
	defaultTakeProfitPct     = 0.40
	defaultTimeoutCandles    = 72
	defaultMinLookahead      = 10
	defaultSafetyMargin      = 10
	defaultTieBreak          = "stop_loss_first"
	defaultConcurrency       = 1
	defaultHTTPAddr          = ":9992"
)

var defaultStartDate = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// Default 返回一份完整的默认配置（无配置文件时使用）。
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(nil)
	return &cfg
}

// applyDefaults 为所有子配置应用默认值；显式写在配置文件里的键不会被覆盖。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Universe.applyDefaults(keys)
	c.Fetch.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.HTTP.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		intFieldDefault("app.log_max_size_mb", &a.LogMaxSizeMB, defaultAppLogMaxSizeMB),
		intFieldDefault("app.log_max_backups", &a.LogMaxBackups, defaultAppLogMaxBackups),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.client", &m.Client, defaultMarketClient),
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
		durationFieldDefault("market.http_timeout", &m.HTTPTimeout, defaultMarketHTTPTimeout),
	)
	m.Client = strings.ToLower(strings.TrimSpace(m.Client))
}

func (u *UniverseConfig) applyDefaults(keys keySet) {
	if u == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("universe.quote_asset", &u.QuoteAsset, defaultQuoteAsset),
		stringFieldDefault("universe.contract_type", &u.ContractType, defaultContractType),
		fieldDefault{
			key:   "universe.start_date",
			need:  func() bool { return u.StartDate.IsZero() },
			apply: func() { u.StartDate = defaultStartDate },
		},
	)
	u.QuoteAsset = strings.ToUpper(strings.TrimSpace(u.QuoteAsset))
	u.Symbols = normalizeSymbolList(u.Symbols)
	u.Exclude = normalizeSymbolList(u.Exclude)
}

func (f *FetchConfig) applyDefaults(keys keySet) {
	if f == nil {
		return
	}
	applyFieldDefaults(keys,
		durationFieldDefault("fetch.inter_request_delay", &f.InterRequestDelay, defaultInterRequestDelay),
		intFieldDefault("fetch.page_size", &f.PageSize, defaultPageSize),
		intFieldDefault("fetch.max_pages", &f.MaxPages, defaultMaxPages),
	)
	f.Retry.Transient.applyDefaults(keys, "fetch.retry.transient", 3*time.Second, 15*time.Second)
	f.Retry.RateLimit.applyDefaults(keys, "fetch.retry.rate_limit", 10*time.Second, 60*time.Second)
	f.Retry.Upstream.applyDefaults(keys, "fetch.retry.upstream", 2*time.Second, 10*time.Second)
}

func (r *RetryClassConfig) applyDefaults(keys keySet, prefix string, unit, cap time.Duration) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault(prefix+".max_attempts", &r.MaxAttempts, defaultMaxAttempts),
		durationFieldDefault(prefix+".unit", &r.Unit, unit),
		durationFieldDefault(prefix+".cap", &r.Cap, cap),
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("backtest.interval", &b.Interval, defaultInterval),
		// entry_delay_candles 允许显式写 0（首根 K 线收盘即入场）
		intFieldDefault("backtest.entry_delay_candles", &b.EntryDelayCandles, defaultEntryDelay),
		floatFieldDefault("backtest.stop_loss_pct", &b.StopLossPct, defaultStopLossPct),
		floatFieldDefault("backtest.take_profit_pct", &b.TakeProfitPct, defaultTakeProfitPct),
		intFieldDefault("backtest.timeout_candles", &b.TimeoutCandles, defaultTimeoutCandles),
		intFieldDefault("backtest.min_lookahead_candles", &b.MinLookaheadCandles, defaultMinLookahead),
		intFieldDefault("backtest.safety_margin_candles", &b.SafetyMarginCandles, defaultSafetyMargin),
		stringFieldDefault("backtest.tie_break", &b.TieBreak, defaultTieBreak),
		intFieldDefault("backtest.concurrency", &b.Concurrency, defaultConcurrency),
	)
	b.Interval = strings.ToLower(strings.TrimSpace(b.Interval))
	b.TieBreak = strings.ToLower(strings.TrimSpace(b.TieBreak))
}

func (h *HTTPConfig) applyDefaults(keys keySet) {
	if h == nil {
		return
	}
	applyFieldDefaults(keys, stringFieldDefault("http.addr", &h.Addr, defaultHTTPAddr))
}

// Helper functions

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target == 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target == 0 },
		apply: func() { *target = def },
	}
}

func durationFieldDefault(key string, target *time.Duration, def time.Duration) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target == 0 },
		apply: func() { *target = def },
	}
}

func normalizeSymbolList(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, sym := range list {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		sym = strings.ReplaceAll(sym, "/", "")
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
