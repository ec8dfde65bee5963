package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"listingshort/internal/backtest"
)

// ErrRunNotFound 指定 run 不存在。
var ErrRunNotFound = errors.New("backtest run not found")

// RunRecord 是 backtest_runs 的对外视图。
type RunRecord struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Listings   int             `json:"listings"`
	Completed  int             `json:"completed"`
	Skipped    int             `json:"skipped"`
	Incomplete int             `json:"incomplete"`
	WinRate    float64         `json:"win_rate"`
	TotalPnL   float64         `json:"total_pnl"`
	Config     json.RawMessage `json:"config,omitempty"`
	Summary    json.RawMessage `json:"summary,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// ResultStore 保存回测结果，回测逻辑本身从不读取它。
type ResultStore interface {
	// SaveRun 写入（或覆盖）一次回测及其全部交易。
	SaveRun(ctx context.Context, report backtest.Report) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	GetRun(ctx context.Context, id string) (RunRecord, error)
	ListTrades(ctx context.Context, runID string, limit int) ([]backtest.Trade, error)
	Close() error
}
