package model

import (
	"gorm.io/datatypes"
)

// BacktestRunModel 对应 backtest_runs，一次回测一行。
type BacktestRunModel struct {
	ID             string         `gorm:"column:id;primaryKey"`
	Status         string         `gorm:"column:status;index"`
	StartedAtUnix  int64          `gorm:"column:started_at;index"`
	FinishedAtUnix int64          `gorm:"column:finished_at"`
	Listings       int            `gorm:"column:listings"`
	Completed      int            `gorm:"column:completed"`
	Skipped        int            `gorm:"column:skipped"`
	Incomplete     int            `gorm:"column:incomplete"`
	WinRate        float64        `gorm:"column:win_rate"`
	TotalPnL       float64        `gorm:"column:total_pnl"`
	ConfigJSON     datatypes.JSON `gorm:"column:config_json;type:TEXT"`
	SummaryJSON    datatypes.JSON `gorm:"column:summary_json;type:TEXT"`
	Error          string         `gorm:"column:error"`
	UpdatedAtUnix  int64          `gorm:"column:updated_at"`
}

func (BacktestRunModel) TableName() string { return "backtest_runs" }

// BacktestTradeModel 对应 backtest_trades，Seq 保持 catalog 顺序。
type BacktestTradeModel struct {
	ID                    int64   `gorm:"column:id;primaryKey;autoIncrement"`
	RunID                 string  `gorm:"column:run_id;uniqueIndex:idx_backtest_trade_seq,priority:1"`
	Seq                   int     `gorm:"column:seq;uniqueIndex:idx_backtest_trade_seq,priority:2"`
	Symbol                string  `gorm:"column:symbol;index"`
	BaseAsset             string  `gorm:"column:base_asset"`
	ListingTime           int64   `gorm:"column:listing_time"`
	EntryTime             int64   `gorm:"column:entry_time"`
	EntryPrice            float64 `gorm:"column:entry_price"`
	StopLossPrice         float64 `gorm:"column:stop_loss_price"`
	TakeProfitPrice       float64 `gorm:"column:take_profit_price"`
	ExitTime              int64   `gorm:"column:exit_time"`
	ExitPrice             float64 `gorm:"column:exit_price"`
	ExitReason            string  `gorm:"column:exit_reason"`
	PnLPercent            float64 `gorm:"column:pnl_pct"`
	HoldingHours          float64 `gorm:"column:holding_hours"`
	MaxAdverseExcursion   float64 `gorm:"column:mae_pct"`
	MaxFavorableExcursion float64 `gorm:"column:mfe_pct"`
	Candles               int     `gorm:"column:candles"`
	Status                string  `gorm:"column:status"`
	Note                  string  `gorm:"column:note"`
}

func (BacktestTradeModel) TableName() string { return "backtest_trades" }
