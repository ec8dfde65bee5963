package backtest

import (
	"context"
	"fmt"
	"time"

	"listingshort/internal/logger"
	"listingshort/internal/market"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// 回测任务状态。
const (
	RunStatusRunning  = "running"
	RunStatusDone     = "done"
	RunStatusCanceled = "canceled"
	RunStatusFailed   = "failed"
)

// ListingProvider 提供按上线时间排序的 listing。
type ListingProvider interface {
	Listings(ctx context.Context) ([]market.Listing, error)
}

// CandleFetcher 拉取单个标的的 K 线，失败时返回部分数据而不是错误。
type CandleFetcher interface {
	Fetch(ctx context.Context, req FetchRequest) FetchResult
}

// RunConfig 是一次回测的参数快照，随报告一起保存。
type RunConfig struct {
	Source       string          `json:"source"`
	Interval     string          `json:"interval"`
	Universe     CatalogConfig   `json:"universe"`
	Simulator    SimulatorConfig `json:"simulator"`
	SafetyMargin int             `json:"safety_margin"`
	Concurrency  int             `json:"concurrency"`
	PageSize     int             `json:"page_size"`
	MaxPages     int             `json:"max_pages"`
}

// CandlesNeeded 每个标的需要拉取的 K 线数量。
func (c RunConfig) CandlesNeeded() int {
	return c.Simulator.EntryOffset + c.Simulator.TimeoutCandles + c.SafetyMargin
}

// Report 一次回测的完整结果，Trades 与 catalog 顺序一致。
type Report struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Config     RunConfig `json:"config"`
	Trades     []Trade   `json:"trades"`
	Summary    Summary   `json:"summary"`
	Error      string    `json:"error,omitempty"`
}

// Driver 串起 Catalog → Fetcher → Simulator，每个 listing 产出恰好一条 Trade。
type Driver struct {
	catalog ListingProvider
	fetcher CandleFetcher
	sim     *Simulator
	cfg     RunConfig
	tf      Timeframe
	obs     Observer

	now   func() time.Time
	newID func() string
}

func NewDriver(catalog ListingProvider, fetcher CandleFetcher, sim *Simulator, cfg RunConfig, obs Observer) (*Driver, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog 不能为空")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher 不能为空")
	}
	if sim == nil {
		return nil, fmt.Errorf("simulator 不能为空")
	}
	tf, err := ParseTimeframe(cfg.Interval)
	if err != nil {
		return nil, err
	}
	cfg.Interval = tf.Key
	cfg.Simulator = sim.Config()
	if cfg.SafetyMargin < 0 {
		cfg.SafetyMargin = 0
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Driver{
		catalog: catalog,
		fetcher: fetcher,
		sim:     sim,
		cfg:     cfg,
		tf:      tf,
		obs:     observerOrNop(obs),
		now:     time.Now,
		newID:   uuid.NewString,
	}, nil
}

// Config 返回参数快照。
func (d *Driver) Config() RunConfig {
	return d.cfg
}

// Run 执行一次完整回测。只有 catalog 失败会返回错误；单个标的的失败体现在 Trade 的状态与 Note 中。
func (d *Driver) Run(ctx context.Context) (Report, error) {
	return d.RunWithID(ctx, d.newID())
}

// RunWithID 与 Run 相同，但使用调用方分配的 run id。
func (d *Driver) RunWithID(ctx context.Context, runID string) (Report, error) {
	report := Report{
		RunID:     runID,
		Status:    RunStatusRunning,
		StartedAt: d.now().UTC(),
		Config:    d.cfg,
		Trades:    []Trade{},
	}
	logger.Infof("[backtest] 任务 %s 开始：interval=%s entry=%d sl=%.2f tp=%.2f timeout=%d",
		runID, d.cfg.Interval, d.cfg.Simulator.EntryOffset, d.cfg.Simulator.StopLossFraction,
		d.cfg.Simulator.TakeProfitFraction, d.cfg.Simulator.TimeoutCandles)

	listings, err := d.catalog.Listings(ctx)
	if err != nil {
		report.Status = RunStatusFailed
		report.Error = err.Error()
		report.FinishedAt = d.now().UTC()
		report.Summary = Summarize(nil)
		d.obs.RunDone(report.Status, report.FinishedAt.Sub(report.StartedAt))
		logger.Errorf("[backtest] 任务 %s 获取标的失败: %v", runID, err)
		return report, err
	}

	trades := make([]Trade, len(listings))
	if d.cfg.Concurrency <= 1 {
		for i, l := range listings {
			trades[i] = d.runOne(ctx, i, len(listings), l)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(d.cfg.Concurrency)
		for i, l := range listings {
			i, l := i, l
			g.Go(func() error {
				trades[i] = d.runOne(ctx, i, len(listings), l)
				return nil
			})
		}
		_ = g.Wait()
	}

	report.Trades = trades
	report.Summary = Summarize(trades)
	report.Status = RunStatusDone
	if ctx.Err() != nil {
		report.Status = RunStatusCanceled
		report.Error = ctx.Err().Error()
	}
	report.FinishedAt = d.now().UTC()
	d.obs.RunDone(report.Status, report.FinishedAt.Sub(report.StartedAt))
	logger.Infof("[backtest] 任务 %s 结束：状态=%s 标的=%d 完成=%d 耗时=%s",
		runID, report.Status, len(trades), report.Summary.Completed, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	return report, nil
}

func (d *Driver) runOne(ctx context.Context, idx, total int, l market.Listing) Trade {
	res := d.fetcher.Fetch(ctx, FetchRequest{
		Symbol:   l.Symbol,
		Interval: d.tf.Key,
		Start:    d.tf.AlignDown(l.ListingTimestamp),
		Limit:    d.cfg.CandlesNeeded(),
	})
	trade := d.sim.Simulate(l, res.Candles)
	if res.StopReason.Degraded() {
		note := fmt.Sprintf("拉取中断(%s): %v", res.StopReason, res.Err)
		if trade.Note != "" {
			note = trade.Note + "; " + note
		}
		trade.Note = note
	}
	d.obs.TradeDone(trade.Status, trade.ExitReason, trade.PnLPercent)
	logTrade(idx, total, trade)
	return trade
}

func logTrade(idx, total int, t Trade) {
	prefix := fmt.Sprintf("[backtest] [%d/%d] %s", idx+1, total, t.Symbol)
	switch t.Status {
	case StatusCompleted:
		logger.Infof("%s %s entry=%.6g exit=%.6g pnl=%+.2f%% 持仓=%.1fh MAE=%.2f%% MFE=%.2f%%",
			prefix, t.ExitReason, t.EntryPrice, t.ExitPrice, t.PnLPercent, t.HoldingHours,
			t.MaxAdverseExcursionPercent, t.MaxFavorableExcursionPercent)
	default:
		logger.Warnf("%s %s/%s candles=%d %s", prefix, t.Status, t.ExitReason, t.Candles, t.Note)
	}
}
