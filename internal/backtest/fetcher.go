package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"listingshort/internal/logger"
	"listingshort/internal/market"
)

// StopReason 说明分页拉取为何结束。
type StopReason string

const (
	StopLimitReached     StopReason = "limit_reached"
	StopShortPage        StopReason = "short_page"
	StopEmptyPage        StopReason = "empty_page"
	StopPastEnd          StopReason = "past_end"
	StopMaxPages         StopReason = "max_pages"
	StopNoProgress       StopReason = "no_progress"
	StopRetriesExhausted StopReason = "retries_exhausted"
	StopAborted          StopReason = "aborted"
	StopCanceled         StopReason = "canceled"
)

// Degraded 是否因错误提前结束（结果可能不完整）。
func (r StopReason) Degraded() bool {
	switch r {
	case StopRetriesExhausted, StopAborted, StopCanceled:
		return true
	}
	return false
}

const (
	defaultPageSize = 1000
	maxPageSize     = 1500
	defaultMaxPages = 10
)

// FetchRequest 单个标的的 K 线拉取请求。End<=0 表示不限，Limit<=0 表示只受页数上限约束。
type FetchRequest struct {
	Symbol   string
	Interval string
	Start    int64
	End      int64
	Limit    int
}

// FetchResult 拉取结果。Candles 始终时间严格递增；Err 记录导致提前结束的最后一个错误。
type FetchResult struct {
	Candles    []market.Candle
	Pages      int
	Requests   int
	StopReason StopReason
	Err        error
}

// FetcherConfig 分页与重试参数。
type FetcherConfig struct {
	PageSize int
	MaxPages int
	Retry    RetryPolicies
	Observer Observer
}

// Fetcher 在请求闸门与重试策略下分页拉取 K 线，失败时返回已拿到的部分数据。
type Fetcher struct {
	src   market.KlineSource
	gate  *Gate
	cfg   FetcherConfig
	obs   Observer
	sleep func(context.Context, time.Duration) bool
}

func NewFetcher(src market.KlineSource, gate *Gate, cfg FetcherConfig) *Fetcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.PageSize > maxPageSize {
		cfg.PageSize = maxPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.Retry == nil {
		cfg.Retry = DefaultRetryPolicies()
	}
	return &Fetcher{
		src:   src,
		gate:  gate,
		cfg:   cfg,
		obs:   observerOrNop(cfg.Observer),
		sleep: sleepWithContext,
	}
}

// Fetch 从 Start 开始按页拉取，直到达到 Limit、页不满、空页、越过 End 或页数上限。
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) FetchResult {
	res := f.fetch(ctx, req)
	f.obs.FetchDone(res.StopReason, len(res.Candles))
	return res
}

func (f *Fetcher) fetch(ctx context.Context, req FetchRequest) FetchResult {
	var res FetchResult
	tf, err := ParseTimeframe(req.Interval)
	if err != nil {
		res.StopReason = StopAborted
		res.Err = err
		return res
	}
	step := tf.Millis()
	capacity := req.Limit
	if capacity <= 0 || capacity > f.cfg.PageSize*f.cfg.MaxPages {
		capacity = f.cfg.PageSize
	}
	acc := make([]market.Candle, 0, capacity)
	cursor := req.Start

	for {
		if req.Limit > 0 && len(acc) >= req.Limit {
			res.StopReason = StopLimitReached
			break
		}
		if req.End > 0 && cursor > req.End {
			res.StopReason = StopPastEnd
			break
		}
		if res.Pages >= f.cfg.MaxPages {
			res.StopReason = StopMaxPages
			break
		}
		want := f.cfg.PageSize
		if req.Limit > 0 && req.Limit-len(acc) < want {
			want = req.Limit - len(acc)
		}
		q := market.KlineQuery{Symbol: req.Symbol, Interval: tf.SourceInterval, Start: cursor, End: req.End, Limit: want}
		page, stop, err := f.fetchPage(ctx, q, &res)
		if err != nil {
			res.StopReason = stop
			res.Err = err
			logger.Warnf("[fetch] %s 第 %d 页失败（%s），保留已拉取 %d 根: %v", req.Symbol, res.Pages+1, stop, len(acc), err)
			break
		}
		res.Pages++
		if len(page) == 0 {
			res.StopReason = StopEmptyPage
			break
		}
		for _, c := range page {
			if n := len(acc); n > 0 && c.Timestamp <= acc[n-1].Timestamp {
				continue
			}
			if req.End > 0 && c.Timestamp > req.End {
				continue
			}
			if req.Limit > 0 && len(acc) >= req.Limit {
				break
			}
			acc = append(acc, c)
		}
		if len(page) < want {
			res.StopReason = StopShortPage
			break
		}
		next := page[len(page)-1].Timestamp + step
		if next <= cursor {
			res.StopReason = StopNoProgress
			break
		}
		cursor = next
	}
	res.Candles = acc
	logger.Debugf("[fetch] %s 完成：candles=%d pages=%d requests=%d stop=%s", req.Symbol, len(acc), res.Pages, res.Requests, res.StopReason)
	return res
}

// fetchPage 拉取单页并按错误分类重试；返回错误时附带对应的结束原因。
func (f *Fetcher) fetchPage(ctx context.Context, q market.KlineQuery, res *FetchResult) ([]market.Candle, StopReason, error) {
	for attempt := 1; ; attempt++ {
		if err := f.gate.Wait(ctx); err != nil {
			return nil, StopCanceled, err
		}
		res.Requests++
		started := time.Now()
		page, err := f.src.Klines(ctx, q)
		if err == nil {
			f.obs.UpstreamRequest("klines", "ok", time.Since(started))
			return page, "", nil
		}
		class := market.Classify(err)
		f.obs.UpstreamRequest("klines", class.String(), time.Since(started))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, StopCanceled, ctxErr
		}
		policy := f.cfg.Retry.For(class)
		if policy.MaxAttempts <= 0 {
			return nil, StopAborted, err
		}
		if attempt >= policy.MaxAttempts {
			return nil, StopRetriesExhausted, fmt.Errorf("%d 次尝试后放弃: %w", attempt, err)
		}
		delay := policy.Delay(attempt)
		f.obs.Retry(class.String())
		logger.Warnf("[fetch] %s cursor=%d %s 错误，第 %d/%d 次，%s 后重试: %v",
			q.Symbol, q.Start, class, attempt, policy.MaxAttempts, delay, err)
		if !f.sleep(ctx, delay) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, StopCanceled, ctxErr
			}
			return nil, StopCanceled, errors.New("退避等待被中断")
		}
	}
}
