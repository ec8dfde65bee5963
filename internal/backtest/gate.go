package backtest

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Gate 保证相邻两次上游请求的启动间隔不小于 interval。
// 同一次回测的 Catalog 与 Fetcher 共用一个 Gate，并发时它是唯一的串行点。
type Gate struct {
	limiter *rate.Limiter
}

// NewGate 构建请求闸门；interval<=0 时不限速。
func NewGate(interval time.Duration) *Gate {
	if interval <= 0 {
		return &Gate{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Gate{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait 阻塞直到获得下一次请求的许可。
func (g *Gate) Wait(ctx context.Context) error {
	if g == nil || g.limiter == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}

// sleepWithContext 等待 d，ctx 取消时提前返回 false。
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
