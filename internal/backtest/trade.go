package backtest

import (
	"time"

	"listingshort/internal/market"
)

// ExitReason 平仓原因。
type ExitReason string

const (
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitTimeout    ExitReason = "TIMEOUT"
	ExitIncomplete ExitReason = "INCOMPLETE"
	ExitNoData     ExitReason = "NO_DATA"
)

// TradeStatus 单个标的的回测结果状态。
type TradeStatus string

const (
	StatusCompleted  TradeStatus = "COMPLETED"
	StatusIncomplete TradeStatus = "INCOMPLETE"
	StatusSkipped    TradeStatus = "SKIPPED"
)

// Trade 是一次做空模拟的结果，每个 listing 恰好一条，生成后不再修改。
// SKIPPED 时价格相关字段保持零值。
type Trade struct {
	Symbol      string `json:"symbol"`
	BaseAsset   string `json:"base_asset"`
	ListingTime int64  `json:"listing_time"`

	EntryTime       int64   `json:"entry_time,omitempty"`
	EntryPrice      float64 `json:"entry_price,omitempty"`
	StopLossPrice   float64 `json:"stop_loss_price,omitempty"`
	TakeProfitPrice float64 `json:"take_profit_price,omitempty"`
	ExitTime        int64   `json:"exit_time,omitempty"`
	ExitPrice       float64 `json:"exit_price,omitempty"`

	ExitReason                   ExitReason  `json:"exit_reason"`
	PnLPercent                   float64     `json:"pnl_pct"`
	HoldingHours                 float64     `json:"holding_hours"`
	MaxAdverseExcursionPercent   float64     `json:"max_adverse_excursion_pct"`
	MaxFavorableExcursionPercent float64     `json:"max_favorable_excursion_pct"`
	Candles                      int         `json:"candles"`
	Status                       TradeStatus `json:"status"`
	Note                         string      `json:"note,omitempty"`
}

// Completed 是否为已平仓交易（参与统计）。
func (t Trade) Completed() bool {
	return t.Status == StatusCompleted
}

// Win 盈利交易（pnl > 0）。
func (t Trade) Win() bool {
	return t.Completed() && t.PnLPercent > 0
}

// ListingMonth 返回 listing 所在月份（UTC，YYYY-MM）。
func (t Trade) ListingMonth() string {
	if t.ListingTime <= 0 {
		return ""
	}
	return time.UnixMilli(t.ListingTime).UTC().Format("2006-01")
}

// markerTrade 构造不含价格字段的占位记录（SKIPPED / INCOMPLETE）。
func markerTrade(l market.Listing, candles int, status TradeStatus, reason ExitReason, note string) Trade {
	return Trade{
		Symbol:      l.Symbol,
		BaseAsset:   l.BaseAsset,
		ListingTime: l.ListingTimestamp,
		ExitReason:  reason,
		Candles:     candles,
		Status:      status,
		Note:        note,
	}
}

func skippedTrade(l market.Listing, candles int, note string) Trade {
	return markerTrade(l, candles, StatusSkipped, ExitNoData, note)
}

func incompleteTrade(l market.Listing, candles int, note string) Trade {
	return markerTrade(l, candles, StatusIncomplete, ExitIncomplete, note)
}
