package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"listingshort/internal/logger"
)

// ErrRunInProgress 已有回测在执行。
var ErrRunInProgress = errors.New("backtest run already in progress")

// Overrides 单次回测对配置参数的覆盖，nil 表示沿用配置。
type Overrides struct {
	EntryOffset    *int     `json:"entry_offset,omitempty"`
	StopLoss       *float64 `json:"stop_loss,omitempty"`
	TakeProfit     *float64 `json:"take_profit,omitempty"`
	TimeoutCandles *int     `json:"timeout_candles,omitempty"`
	Limit          *int     `json:"limit,omitempty"`
}

// Apply 返回覆盖后的模拟参数与标的池配置。
func (o Overrides) Apply(sim SimulatorConfig, universe CatalogConfig) (SimulatorConfig, CatalogConfig, error) {
	if o.EntryOffset != nil {
		sim.EntryOffset = *o.EntryOffset
	}
	if o.StopLoss != nil {
		sim.StopLossFraction = *o.StopLoss
	}
	if o.TakeProfit != nil {
		sim.TakeProfitFraction = *o.TakeProfit
	}
	if o.TimeoutCandles != nil {
		sim.TimeoutCandles = *o.TimeoutCandles
	}
	if o.Limit != nil {
		if *o.Limit < 0 {
			return sim, universe, fmt.Errorf("limit 不能为负: %d", *o.Limit)
		}
		universe.Limit = *o.Limit
	}
	if err := sim.validate(); err != nil {
		return sim, universe, err
	}
	return sim, universe, nil
}

// ReportSink 持久化回测报告（只写）。
type ReportSink interface {
	SaveRun(ctx context.Context, report Report) error
}

// DriverFactory 按覆盖参数构建一次回测使用的 Driver。
type DriverFactory func(o Overrides) (*Driver, error)

// Runner 管理回测执行：同一时刻最多一个任务，结果写入 sink（可为空）。
type Runner struct {
	build DriverFactory
	sink  ReportSink

	baseCtx context.Context
	wg      sync.WaitGroup

	mu     sync.Mutex
	active string
}

func NewRunner(build DriverFactory, sink ReportSink) *Runner {
	return &Runner{build: build, sink: sink, baseCtx: context.Background()}
}

// SetContext 注入宿主 ctx，用于后台任务取消。
func (r *Runner) SetContext(ctx context.Context) {
	if ctx != nil {
		r.baseCtx = ctx
	}
}

// Active 返回正在执行的 run id，空串表示空闲。
func (r *Runner) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Start 异步启动回测，立即返回 running 状态的报告。
func (r *Runner) Start(o Overrides) (Report, error) {
	d, runID, err := r.acquire(o)
	if err != nil {
		return Report{}, err
	}
	report := Report{
		RunID:     runID,
		Status:    RunStatusRunning,
		StartedAt: d.now().UTC(),
		Config:    d.Config(),
		Trades:    []Trade{},
	}
	r.persist(r.baseCtx, report)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release()
		final, err := d.RunWithID(r.baseCtx, runID)
		if err != nil {
			logger.Errorf("[runner] 任务 %s 失败: %v", runID, err)
		}
		r.persist(context.Background(), final)
	}()
	return report, nil
}

// RunSync 同步执行一次回测并持久化结果。
func (r *Runner) RunSync(ctx context.Context, o Overrides) (Report, error) {
	d, runID, err := r.acquire(o)
	if err != nil {
		return Report{}, err
	}
	defer r.release()
	report, err := d.RunWithID(ctx, runID)
	r.persist(context.Background(), report)
	return report, err
}

// Wait 等待后台任务结束。
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) acquire(o Overrides) (*Driver, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != "" {
		return nil, "", fmt.Errorf("%w: %s", ErrRunInProgress, r.active)
	}
	if r.build == nil {
		return nil, "", errors.New("driver factory 未配置")
	}
	d, err := r.build(o)
	if err != nil {
		return nil, "", err
	}
	r.active = d.newID()
	return d, r.active, nil
}

func (r *Runner) release() {
	r.mu.Lock()
	r.active = ""
	r.mu.Unlock()
}

func (r *Runner) persist(ctx context.Context, report Report) {
	if r.sink == nil || report.RunID == "" {
		return
	}
	if err := r.sink.SaveRun(ctx, report); err != nil {
		logger.Warnf("[runner] 保存任务 %s 失败: %v", report.RunID, err)
	}
}
