package backtest

import (
	"time"

	"listingshort/internal/market"
)

// BackoffFunc 返回第 attempt 次失败（从 1 开始）后的等待时长。
type BackoffFunc func(attempt int) time.Duration

// RetryPolicy 描述一类错误的重试方式。MaxAttempts 为总尝试次数（含首次），
// 0 表示不重试、直接放弃当前页。
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	Cap         time.Duration
}

// Delay 返回封顶后的退避时长。
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	d := p.Backoff(attempt)
	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	if d < 0 {
		d = 0
	}
	return d
}

// LinearBackoff 返回 attempt × unit。
func LinearBackoff(unit time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return time.Duration(attempt) * unit
	}
}

// RetryPolicies 按错误分类索引重试策略；未登记的分类视为不可重试。
type RetryPolicies map[market.ErrorClass]RetryPolicy

// For 返回分类对应的策略。
func (p RetryPolicies) For(class market.ErrorClass) RetryPolicy {
	if p == nil {
		return RetryPolicy{}
	}
	return p[class]
}

// DefaultRetryPolicies 为 Binance 公共行情接口的默认重试表。
func DefaultRetryPolicies() RetryPolicies {
	return RetryPolicies{
		market.ClassTransient: {MaxAttempts: 5, Backoff: LinearBackoff(3 * time.Second), Cap: 15 * time.Second},
		market.ClassRateLimit: {MaxAttempts: 5, Backoff: LinearBackoff(10 * time.Second), Cap: 60 * time.Second},
		market.ClassUpstream:  {MaxAttempts: 5, Backoff: LinearBackoff(2 * time.Second), Cap: 10 * time.Second},
	}
}
