package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"listingshort/internal/backtest"
	brcfg "listingshort/internal/config"
	"listingshort/internal/logger"
	"listingshort/internal/observability"
	"listingshort/internal/store"
	backtesthttp "listingshort/internal/transport/http/backtest"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	ModeRun   = "run"
	ModeServe = "serve"
)

// App 负责应用级编排：加载配置→初始化依赖→执行回测或启动 HTTP 服务。
type App struct {
	cfg     *brcfg.Config
	runner  *backtest.Runner
	server  *backtesthttp.Server
	results store.ResultStore
	metrics *observability.Metrics
	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *brcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 按模式执行：run 跑一次回测后返回，serve 阻塞直到 ctx 取消。
func (a *App) Run(ctx context.Context, mode string) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeRun:
		_, err := a.RunOnce(ctx)
		return err
	case ModeServe:
		return a.Serve(ctx)
	default:
		return fmt.Errorf("未知运行模式: %s", mode)
	}
}

// RunOnce 同步执行一次回测，输出汇总并写入结果存储（若启用）。
func (a *App) RunOnce(ctx context.Context) (backtest.Report, error) {
	report, err := a.runner.RunSync(ctx, backtest.Overrides{})
	if err != nil {
		return report, fmt.Errorf("回测失败: %w", err)
	}
	logger.Infof("[backtest] run=%s status=%s 合约=%d", report.RunID, report.Status, len(report.Trades))
	logger.InfoBlock(report.Summary.Lines())
	if report.Status == backtest.RunStatusCanceled {
		logger.Warnf("[backtest] run=%s 被取消，结果不完整", report.RunID)
	}
	return report, nil
}

// Serve 启动回测 HTTP API，ctx 取消后等待在途回测结束。
func (a *App) Serve(ctx context.Context) error {
	a.runner.SetContext(ctx)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(gctx); err != nil {
			return fmt.Errorf("backtest http server error: %w", err)
		}
		return nil
	})
	err := group.Wait()
	a.runner.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Metrics 暴露指标注册表（测试与嵌入场景）。
func (a *App) Metrics() *observability.Metrics {
	if a == nil {
		return nil
	}
	return a.metrics
}

// Close 释放结果存储等资源。
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var err error
	if a.runner != nil {
		a.runner.Wait()
	}
	if a.results != nil {
		err = multierr.Append(err, a.results.Close())
	}
	return err
}
