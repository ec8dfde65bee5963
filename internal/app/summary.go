package app

import (
	"fmt"
	"strings"
	"time"

	brcfg "listingshort/internal/config"
	"listingshort/internal/logger"

	"gopkg.in/yaml.v3"
)

type StartupSummary struct {
	Source   string
	Universe UniverseSummary
	Strategy StrategySummary
	Fetch    FetchSummary
	Store    string
	HTTPAddr string
	Config   string
}

type UniverseSummary struct {
	QuoteAsset   string
	ContractType string
	Start        string
	End          string
	Symbols      []string
	Exclude      []string
	Limit        int
}

type StrategySummary struct {
	Interval     string
	EntryDelay   int
	StopLoss     float64
	TakeProfit   float64
	Timeout      int
	MinLookahead int
	SafetyMargin int
	TieBreak     string
	Concurrency  int
}

type FetchSummary struct {
	Delay    time.Duration
	PageSize int
	MaxPages int
}

func newStartupSummary(cfg *brcfg.Config, source string) *StartupSummary {
	s := &StartupSummary{
		Source: source,
		Universe: UniverseSummary{
			QuoteAsset:   cfg.Universe.QuoteAsset,
			ContractType: cfg.Universe.ContractType,
			Start:        formatDate(cfg.Universe.StartDate),
			End:          formatDate(cfg.Universe.EndDate),
			Symbols:      cfg.Universe.Symbols,
			Exclude:      cfg.Universe.Exclude,
			Limit:        cfg.Universe.Limit,
		},
		Strategy: StrategySummary{
			Interval:     cfg.Backtest.Interval,
			EntryDelay:   cfg.Backtest.EntryDelayCandles,
			StopLoss:     cfg.Backtest.StopLossPct,
			TakeProfit:   cfg.Backtest.TakeProfitPct,
			Timeout:      cfg.Backtest.TimeoutCandles,
			MinLookahead: cfg.Backtest.MinLookaheadCandles,
			SafetyMargin: cfg.Backtest.SafetyMarginCandles,
			TieBreak:     cfg.Backtest.TieBreak,
			Concurrency:  cfg.Backtest.Concurrency,
		},
		Fetch: FetchSummary{
			Delay:    cfg.Fetch.InterRequestDelay,
			PageSize: cfg.Fetch.PageSize,
			MaxPages: cfg.Fetch.MaxPages,
		},
		Store:    cfg.Store.Path,
		HTTPAddr: cfg.HTTP.Addr,
	}
	if dump, err := configSnapshot(cfg); err == nil {
		s.Config = dump
	} else {
		logger.Warnf("配置快照序列化失败: %v", err)
	}
	return s
}

// configSnapshot 以 yaml 输出生效配置（默认值已填充）。
func configSnapshot(cfg *brcfg.Config) (string, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (s *StartupSummary) Lines() string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}
	line("%s", strings.Repeat("=", 60))
	line("启动配置摘要 (STARTUP SUMMARY)")
	line("%s", strings.Repeat("=", 60))
	line("[数据源]")
	line("  行情接口: %s", s.Source)
	line("  请求间隔: %s  单页: %d  最大页数: %d", s.Fetch.Delay, s.Fetch.PageSize, s.Fetch.MaxPages)
	line("[标的池 (UNIVERSE)]")
	line("  报价资产: %s  合约类型: %s", s.Universe.QuoteAsset, s.Universe.ContractType)
	line("  上线区间: %s ~ %s", s.Universe.Start, s.Universe.End)
	line("  白名单: %s", formatList(s.Universe.Symbols))
	line("  黑名单: %s", formatList(s.Universe.Exclude))
	if s.Universe.Limit > 0 {
		line("  数量上限: %d", s.Universe.Limit)
	}
	line("[策略参数 (STRATEGY)]")
	line("  周期: %s  入场延迟: %d 根  并发: %d", s.Strategy.Interval, s.Strategy.EntryDelay, s.Strategy.Concurrency)
	line("  止损: %.2f%%  止盈: %.2f%%  超时: %d 根", s.Strategy.StopLoss*100, s.Strategy.TakeProfit*100, s.Strategy.Timeout)
	line("  最少前瞻: %d 根  安全余量: %d 根  同根判定: %s", s.Strategy.MinLookahead, s.Strategy.SafetyMargin, s.Strategy.TieBreak)
	line("[输出]")
	line("  结果库: %s", orDash(s.Store))
	line("  HTTP: %s", orDash(s.HTTPAddr))
	line("%s", strings.Repeat("=", 60))
	return b.String()
}

// Print 把摘要写入日志；debug 级别额外输出完整配置。
func (s *StartupSummary) Print() {
	if s == nil {
		return
	}
	logger.InfoBlock(s.Lines())
	if s.Config != "" {
		logger.Debugf("生效配置:\n%s", s.Config)
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
