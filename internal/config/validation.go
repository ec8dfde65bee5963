package config

import (
	"fmt"
	"net/url"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Universe.validate(); err != nil {
		return err
	}
	if err := c.Fetch.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	return nil
}

// Validate 对外暴露校验（HTTP 覆盖参数后复用）。
func (c *Config) Validate() error {
	return validate(c)
}

func (m *MarketConfig) validate() error {
	switch m.Client {
	case "sdk", "rest":
	default:
		return fmt.Errorf("market.client must be sdk or rest, got %q", m.Client)
	}
	if _, err := url.Parse(m.RESTBaseURL); err != nil {
		return fmt.Errorf("market.rest_base_url invalid: %w", err)
	}
	if strings.TrimSpace(m.ProxyURL) != "" {
		if _, err := url.Parse(m.ProxyURL); err != nil {
			return fmt.Errorf("market.proxy_url invalid: %w", err)
		}
	}
	if m.HTTPTimeout < 0 {
		return fmt.Errorf("market.http_timeout must be >= 0")
	}
	return nil
}

func (u *UniverseConfig) validate() error {
	if u.QuoteAsset == "" {
		return fmt.Errorf("universe.quote_asset cannot be empty")
	}
	if !u.EndDate.IsZero() && u.EndDate.Before(u.StartDate) {
		return fmt.Errorf("universe.end_date must not be before universe.start_date")
	}
	if u.Limit < 0 {
		return fmt.Errorf("universe.limit must be >= 0")
	}
	return nil
}

func (f *FetchConfig) validate() error {
	if f.InterRequestDelay < 0 {
		return fmt.Errorf("fetch.inter_request_delay must be >= 0")
	}
	if f.PageSize <= 0 || f.PageSize > 1500 {
		return fmt.Errorf("fetch.page_size must be within 1..1500")
	}
	if f.MaxPages <= 0 {
		return fmt.Errorf("fetch.max_pages must be > 0")
	}
	for name, rc := range map[string]RetryClassConfig{
		"transient":  f.Retry.Transient,
		"rate_limit": f.Retry.RateLimit,
		"upstream":   f.Retry.Upstream,
	} {
		if rc.MaxAttempts <= 0 {
			return fmt.Errorf("fetch.retry.%s.max_attempts must be > 0", name)
		}
		if rc.Unit < 0 || rc.Cap < 0 {
			return fmt.Errorf("fetch.retry.%s durations must be >= 0", name)
		}
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.Interval == "" {
		return fmt.Errorf("backtest.interval cannot be empty")
	}
	if b.EntryDelayCandles < 0 {
		return fmt.Errorf("backtest.entry_delay_candles must be >= 0")
	}
	if b.StopLossPct <= 0 {
		return fmt.Errorf("backtest.stop_loss_pct must be > 0")
	}
	if b.TakeProfitPct <= 0 || b.TakeProfitPct >= 1 {
		return fmt.Errorf("backtest.take_profit_pct must be within (0,1)")
	}
	if b.TimeoutCandles <= 0 {
		return fmt.Errorf("backtest.timeout_candles must be > 0")
	}
	if b.MinLookaheadCandles < 1 {
		return fmt.Errorf("backtest.min_lookahead_candles must be >= 1")
	}
	if b.SafetyMarginCandles < 0 {
		return fmt.Errorf("backtest.safety_margin_candles must be >= 0")
	}
	switch b.TieBreak {
	case "stop_loss_first", "take_profit_first":
	default:
		return fmt.Errorf("backtest.tie_break must be stop_loss_first or take_profit_first, got %q", b.TieBreak)
	}
	if b.Concurrency <= 0 {
		return fmt.Errorf("backtest.concurrency must be > 0")
	}
	return nil
}
