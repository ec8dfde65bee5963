package app

import (
	"context"
	"fmt"

	"listingshort/internal/backtest"
	brcfg "listingshort/internal/config"
	"listingshort/internal/gateway/binance"
	"listingshort/internal/logger"
	"listingshort/internal/market"
	"listingshort/internal/observability"
	"listingshort/internal/store"
	"listingshort/internal/store/gormstore"
	backtesthttp "listingshort/internal/transport/http/backtest"
)

const metricsNamespace = "listingshort"

type AppBuilder struct {
	cfg *brcfg.Config

	sourceFn func(brcfg.MarketConfig) (market.Source, error)
	storeFn  func(brcfg.StoreConfig) (store.ResultStore, error)
}

type AppBuilderOption func(*AppBuilder)

// WithSource 替换上游数据源（测试或离线回放）。
func WithSource(src market.Source) AppBuilderOption {
	return func(b *AppBuilder) {
		b.sourceFn = func(brcfg.MarketConfig) (market.Source, error) { return src, nil }
	}
}

// WithResultStore 替换结果存储。
func WithResultStore(rs store.ResultStore) AppBuilderOption {
	return func(b *AppBuilder) {
		b.storeFn = func(brcfg.StoreConfig) (store.ResultStore, error) { return rs, nil }
	}
}

func NewAppBuilder(cfg *brcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:      cfg,
		sourceFn: buildMarketSource,
		storeFn:  buildResultStore,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(_ context.Context) (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)
	logger.SetFormat(cfg.App.LogFormat)

	src, err := b.sourceFn(cfg.Market)
	if err != nil {
		return nil, fmt.Errorf("初始化行情源失败: %w", err)
	}
	logger.Infof("✓ 行情源: %s", src.Name())

	results, err := b.storeFn(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("初始化结果存储失败: %w", err)
	}
	if results != nil {
		logger.Infof("✓ 结果存储: %s", cfg.Store.Path)
	}

	metrics := observability.NewMetrics(metricsNamespace)
	factory := newDriverFactory(cfg, src, metrics)
	if _, err := factory(backtest.Overrides{}); err != nil {
		closeQuietly(results)
		return nil, fmt.Errorf("回测参数无效: %w", err)
	}

	var sink backtest.ReportSink
	var reader backtesthttp.ResultReader
	if results != nil {
		sink = results
		reader = results
	}
	runner := backtest.NewRunner(factory, sink)

	server, err := backtesthttp.NewServer(backtesthttp.Config{
		Addr:     cfg.HTTP.Addr,
		Launcher: runner,
		Results:  reader,
		Metrics:  metrics.Handler(),
	})
	if err != nil {
		closeQuietly(results)
		return nil, err
	}

	summary := newStartupSummary(cfg, src.Name())
	summary.HTTPAddr = server.Addr()

	return &App{
		cfg:     cfg,
		runner:  runner,
		server:  server,
		results: results,
		metrics: metrics,
		Summary: summary,
	}, nil
}

// newDriverFactory 每次回测新建 Catalog/Simulator/Driver，Gate 与 Fetcher 进程内共享。
func newDriverFactory(cfg *brcfg.Config, src market.Source, obs backtest.Observer) backtest.DriverFactory {
	gate := backtest.NewGate(cfg.Fetch.InterRequestDelay)
	fetcher := backtest.NewFetcher(src, gate, backtest.FetcherConfig{
		PageSize: cfg.Fetch.PageSize,
		MaxPages: cfg.Fetch.MaxPages,
		Retry:    retryPolicies(cfg.Fetch.Retry),
		Observer: obs,
	})
	baseSim := simulatorConfig(cfg.Backtest)
	baseUniverse := catalogConfig(cfg.Universe)

	return func(o backtest.Overrides) (*backtest.Driver, error) {
		simCfg, universe, err := o.Apply(baseSim, baseUniverse)
		if err != nil {
			return nil, err
		}
		sim, err := backtest.NewSimulator(simCfg)
		if err != nil {
			return nil, err
		}
		catalog := backtest.NewCatalog(src, gate, universe)
		return backtest.NewDriver(catalog, fetcher, sim, backtest.RunConfig{
			Source:       src.Name(),
			Interval:     cfg.Backtest.Interval,
			Universe:     universe,
			Simulator:    simCfg,
			SafetyMargin: cfg.Backtest.SafetyMarginCandles,
			Concurrency:  cfg.Backtest.Concurrency,
			PageSize:     cfg.Fetch.PageSize,
			MaxPages:     cfg.Fetch.MaxPages,
		}, obs)
	}
}

func simulatorConfig(c brcfg.BacktestConfig) backtest.SimulatorConfig {
	return backtest.SimulatorConfig{
		EntryOffset:        c.EntryDelayCandles,
		StopLossFraction:   c.StopLossPct,
		TakeProfitFraction: c.TakeProfitPct,
		TimeoutCandles:     c.TimeoutCandles,
		MinLookahead:       c.MinLookaheadCandles,
		TieBreak:           backtest.TieBreak(c.TieBreak),
	}
}

func catalogConfig(c brcfg.UniverseConfig) backtest.CatalogConfig {
	return backtest.CatalogConfig{
		QuoteAsset:   c.QuoteAsset,
		ContractType: c.ContractType,
		Start:        c.StartDate,
		End:          c.EndDate,
		Symbols:      c.Symbols,
		Exclude:      c.Exclude,
		Limit:        c.Limit,
	}
}

func retryPolicies(c brcfg.RetryConfig) backtest.RetryPolicies {
	toPolicy := func(rc brcfg.RetryClassConfig) backtest.RetryPolicy {
		return backtest.RetryPolicy{
			MaxAttempts: rc.MaxAttempts,
			Backoff:     backtest.LinearBackoff(rc.Unit),
			Cap:         rc.Cap,
		}
	}
	return backtest.RetryPolicies{
		market.ClassTransient: toPolicy(c.Transient),
		market.ClassRateLimit: toPolicy(c.RateLimit),
		market.ClassUpstream:  toPolicy(c.Upstream),
	}
}

func buildMarketSource(cfg brcfg.MarketConfig) (market.Source, error) {
	bcfg := binance.Config{
		RESTBaseURL: cfg.RESTBaseURL,
		HTTPTimeout: cfg.HTTPTimeout,
		ProxyURL:    cfg.ProxyURL,
	}
	if cfg.Client == "rest" {
		src, err := binance.NewREST(bcfg)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	src, err := binance.New(bcfg)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func buildResultStore(cfg brcfg.StoreConfig) (store.ResultStore, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	gs, err := gormstore.NewGormStore(cfg.Path)
	if err != nil {
		return nil, err
	}
	return gs, nil
}

func closeQuietly(rs store.ResultStore) {
	if rs == nil {
		return
	}
	if err := rs.Close(); err != nil {
		logger.Warnf("关闭结果存储失败: %v", err)
	}
}

type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

func provideAppFromBuilder(b appBuilderDeps, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}

func provideAppBuilder(cfg *brcfg.Config) *AppBuilder {
	return NewAppBuilder(cfg)
}
