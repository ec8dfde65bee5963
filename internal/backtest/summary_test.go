package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedTrade(reason ExitReason, pnl, holding, mae float64, listedAt time.Time) Trade {
	return Trade{
		Symbol:                     "XUSDT",
		ListingTime:                listedAt.UnixMilli(),
		ExitReason:                 reason,
		PnLPercent:                 pnl,
		HoldingHours:               holding,
		MaxAdverseExcursionPercent: mae,
		Status:                     StatusCompleted,
	}
}

func TestSummarize(t *testing.T) {
	jan := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2023, 2, 3, 0, 0, 0, 0, time.UTC)
	trades := []Trade{
		completedTrade(ExitTakeProfit, 40, 3, 1.5, jan),
		completedTrade(ExitStopLoss, -10, 5, 11, jan),
		completedTrade(ExitTimeout, 5.25, 72, 4, feb),
		completedTrade(ExitStopLoss, -10, 1, 10.5, feb),
		{Symbol: "SKIPUSDT", Status: StatusSkipped, ExitReason: ExitNoData},
		{Symbol: "INCUSDT", Status: StatusIncomplete, ExitReason: ExitIncomplete},
	}

	s := Summarize(trades)

	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 4, s.Completed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Incomplete)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 2, s.Losses)
	assert.Equal(t, 50.0, s.WinRate)
	assert.Equal(t, 25.25, s.TotalPnL)
	assert.Equal(t, 6.31, s.AvgPnL)
	assert.Equal(t, 40.0, s.BestPnL)
	assert.Equal(t, -10.0, s.WorstPnL)
	assert.Equal(t, 23.58, s.StdDevPnL)
	assert.Equal(t, 22.63, s.AvgWin)
	assert.Equal(t, -10.0, s.AvgLoss)
	require.NotNil(t, s.ProfitFactor)
	assert.Equal(t, 2.26, *s.ProfitFactor)
	assert.Equal(t, 20.3, s.AvgHoldingHours)

	require.Len(t, s.ByReason, 3)
	assert.Equal(t, ReasonStats{Reason: ExitTakeProfit, Count: 1, WinRate: 100, AvgPnL: 40, TotalPnL: 40, AvgHoldingHours: 3, AvgMAE: 1.5}, s.ByReason[0])
	assert.Equal(t, ReasonStats{Reason: ExitStopLoss, Count: 2, WinRate: 0, AvgPnL: -10, TotalPnL: -20, AvgHoldingHours: 3, AvgMAE: 10.75}, s.ByReason[1])
	assert.Equal(t, ExitTimeout, s.ByReason[2].Reason)

	require.Len(t, s.ByMonth, 2)
	assert.Equal(t, MonthStats{Month: "2023-01", Trades: 2, Wins: 1, WinRate: 50, TotalPnL: 30, AvgPnL: 15, BestPnL: 40, WorstPnL: -10}, s.ByMonth[0])
	assert.Equal(t, "2023-02", s.ByMonth[1].Month)
	assert.Equal(t, -4.75, s.ByMonth[1].TotalPnL)

	assert.Contains(t, s.Lines(), "Profit Factor: 2.26")
}

func TestSummarizeWithoutLosses(t *testing.T) {
	s := Summarize([]Trade{
		completedTrade(ExitTakeProfit, 40, 3, 0, time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)),
		completedTrade(ExitTimeout, 0, 72, 2, time.Date(2023, 3, 2, 0, 0, 0, 0, time.UTC)),
	})
	assert.Nil(t, s.ProfitFactor)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 0, s.Losses)
	assert.Contains(t, s.Lines(), "Profit Factor: N/A")
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.WinRate)
	assert.NotNil(t, s.ByReason)
	assert.NotNil(t, s.ByMonth)
	assert.NotNil(t, s.Cumulative)
	assert.Contains(t, s.Lines(), "没有完成的交易")
}

func TestSummarizeCumulativeCurveFollowsEntryTime(t *testing.T) {
	day := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	at := func(symbol string, pnl float64, entry time.Time) Trade {
		tr := completedTrade(ExitTimeout, pnl, 72, 0, day)
		tr.Symbol = symbol
		tr.EntryTime = entry.UnixMilli()
		return tr
	}
	trades := []Trade{
		at("CUSDT", -10, day.Add(48*time.Hour)),
		at("BUSDT", 0.1, day.Add(6*time.Hour)),
		{Symbol: "SKIPUSDT", Status: StatusSkipped, ExitReason: ExitNoData},
		at("AUSDT", 0.2, day.Add(6*time.Hour)),
		at("DUSDT", 40, day.Add(72*time.Hour)),
	}

	s := Summarize(trades)

	require.Len(t, s.Cumulative, 4)
	assert.Equal(t, CumulativePoint{Seq: 1, Symbol: "AUSDT", EntryTime: day.Add(6 * time.Hour).UnixMilli(), PnL: 0.2, Cumulative: 0.2}, s.Cumulative[0])
	assert.Equal(t, "BUSDT", s.Cumulative[1].Symbol)
	assert.Equal(t, 0.3, s.Cumulative[1].Cumulative)
	assert.Equal(t, "CUSDT", s.Cumulative[2].Symbol)
	assert.Equal(t, -9.7, s.Cumulative[2].Cumulative)
	assert.Equal(t, 4, s.Cumulative[3].Seq)
	assert.Equal(t, 30.3, s.Cumulative[3].Cumulative)
	assert.Equal(t, s.TotalPnL, s.Cumulative[3].Cumulative)

	assert.Equal(t, "CUSDT", trades[0].Symbol)
	assert.Contains(t, s.Lines(), "累计收益: 终值 +30.30% | 最高 +30.30% | 最低 -9.70% (4 笔)")
}
