package backtest

import "time"

// Observer 接收回测过程中的指标事件，实现需并发安全。
type Observer interface {
	UpstreamRequest(endpoint, outcome string, elapsed time.Duration)
	Retry(class string)
	FetchDone(stop StopReason, candles int)
	TradeDone(status TradeStatus, reason ExitReason, pnlPercent float64)
	RunDone(status string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) UpstreamRequest(string, string, time.Duration) {}
func (nopObserver) Retry(string) {}
func (nopObserver) FetchDone(StopReason, int) {}
func (nopObserver) TradeDone(TradeStatus, ExitReason, float64) {}
func (nopObserver) RunDone(string, time.Duration) {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}
