package market

import "context"

// KlineQuery 描述一次向上游请求的 K 线分页。
type KlineQuery struct {
	Symbol   string
	Interval string
	Start    int64 // Unix ms
	End      int64 // Unix ms（可选；0 表示不限制）
	Limit    int
}

// InstrumentSource 提供合约元数据。
type InstrumentSource interface {
	Instruments(ctx context.Context) ([]Instrument, error)
}

// KlineSource 提供单页 K 线。
type KlineSource interface {
	Klines(ctx context.Context, q KlineQuery) ([]Candle, error)
}

// Source 是回测所需的全部上游能力。
// 实现需要把失败翻译成本包的错误分类（见 errors.go）。
type Source interface {
	InstrumentSource
	KlineSource
	Name() string
}
