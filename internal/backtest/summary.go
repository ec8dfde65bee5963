package backtest

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ReasonStats 按平仓原因汇总。
type ReasonStats struct {
	Reason          ExitReason `json:"reason"`
	Count           int        `json:"count"`
	WinRate         float64    `json:"win_rate"`
	AvgPnL          float64    `json:"avg_pnl"`
	TotalPnL        float64    `json:"total_pnl"`
	AvgHoldingHours float64    `json:"avg_holding_hours"`
	AvgMAE          float64    `json:"avg_mae"`
}

// MonthStats 按上线月份汇总。
type MonthStats struct {
	Month    string  `json:"month"`
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	WinRate  float64 `json:"win_rate"`
	TotalPnL float64 `json:"total_pnl"`
	AvgPnL   float64 `json:"avg_pnl"`
	BestPnL  float64 `json:"best_pnl"`
	WorstPnL float64 `json:"worst_pnl"`
}

// CumulativePoint 按入场时间累加的收益曲线上的一点。
type CumulativePoint struct {
	Seq        int     `json:"seq"`
	Symbol     string  `json:"symbol"`
	EntryTime  int64   `json:"entry_time"`
	PnL        float64 `json:"pnl"`
	Cumulative float64 `json:"cumulative_pnl"`
}

// Summary 回测统计，只统计 COMPLETED 交易。百分比保留两位，持仓小时保留一位。
type Summary struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Skipped    int `json:"skipped"`
	Incomplete int `json:"incomplete"`
	Wins       int `json:"wins"`
	Losses     int `json:"losses"`

	WinRate   float64 `json:"win_rate"`
	TotalPnL  float64 `json:"total_pnl"`
	AvgPnL    float64 `json:"avg_pnl"`
	BestPnL   float64 `json:"best_pnl"`
	WorstPnL  float64 `json:"worst_pnl"`
	StdDevPnL float64 `json:"stddev_pnl"`
	AvgWin    float64 `json:"avg_win"`
	AvgLoss   float64 `json:"avg_loss"`
	// ProfitFactor 无亏损交易时为 nil。
	ProfitFactor    *float64 `json:"profit_factor"`
	AvgHoldingHours float64  `json:"avg_holding_hours"`

	ByReason []ReasonStats `json:"by_reason"`
	ByMonth  []MonthStats  `json:"by_month"`

	Cumulative []CumulativePoint `json:"cumulative"`
}

var summaryReasons = []ExitReason{ExitTakeProfit, ExitStopLoss, ExitTimeout}

// Summarize 计算整次回测的统计。
func Summarize(trades []Trade) Summary {
	s := Summary{Total: len(trades), ByReason: []ReasonStats{}, ByMonth: []MonthStats{}, Cumulative: []CumulativePoint{}}
	completed := make([]Trade, 0, len(trades))
	for _, t := range trades {
		switch t.Status {
		case StatusCompleted:
			completed = append(completed, t)
		case StatusSkipped:
			s.Skipped++
		case StatusIncomplete:
			s.Incomplete++
		}
	}
	s.Completed = len(completed)
	if len(completed) == 0 {
		return s
	}

	pnls := make([]float64, len(completed))
	var winSum, lossSum, holding float64
	for i, t := range completed {
		pnls[i] = t.PnLPercent
		holding += t.HoldingHours
		switch {
		case t.PnLPercent > 0:
			s.Wins++
			winSum += t.PnLPercent
		case t.PnLPercent < 0:
			s.Losses++
			lossSum += t.PnLPercent
		}
	}
	total := sum(pnls)
	n := float64(len(pnls))
	s.WinRate = round2(float64(s.Wins) / n * 100)
	s.TotalPnL = round2(total)
	s.AvgPnL = round2(total / n)
	s.BestPnL = round2(maxOf(pnls))
	s.WorstPnL = round2(minOf(pnls))
	s.StdDevPnL = round2(sampleStdDev(pnls))
	if s.Wins > 0 {
		s.AvgWin = round2(winSum / float64(s.Wins))
	}
	if s.Losses > 0 {
		s.AvgLoss = round2(lossSum / float64(s.Losses))
		if lossSum != 0 {
			pf := round2(math.Abs(winSum / lossSum))
			s.ProfitFactor = &pf
		}
	}
	s.AvgHoldingHours = round1(holding / n)
	s.ByReason = reasonBreakdown(completed)
	s.ByMonth = monthBreakdown(completed)
	s.Cumulative = cumulativeCurve(completed)
	return s
}

func reasonBreakdown(completed []Trade) []ReasonStats {
	out := make([]ReasonStats, 0, len(summaryReasons))
	for _, reason := range summaryReasons {
		var count, wins int
		var pnl, holding, mae float64
		for _, t := range completed {
			if t.ExitReason != reason {
				continue
			}
			count++
			if t.PnLPercent > 0 {
				wins++
			}
			pnl += t.PnLPercent
			holding += t.HoldingHours
			mae += t.MaxAdverseExcursionPercent
		}
		if count == 0 {
			continue
		}
		n := float64(count)
		out = append(out, ReasonStats{
			Reason:          reason,
			Count:           count,
			WinRate:         round2(float64(wins) / n * 100),
			AvgPnL:          round2(pnl / n),
			TotalPnL:        round2(pnl),
			AvgHoldingHours: round1(holding / n),
			AvgMAE:          round2(mae / n),
		})
	}
	return out
}

func monthBreakdown(completed []Trade) []MonthStats {
	byMonth := make(map[string][]float64)
	for _, t := range completed {
		if m := t.ListingMonth(); m != "" {
			byMonth[m] = append(byMonth[m], t.PnLPercent)
		}
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)
	out := make([]MonthStats, 0, len(months))
	for _, m := range months {
		pnls := byMonth[m]
		wins := 0
		for _, p := range pnls {
			if p > 0 {
				wins++
			}
		}
		total := sum(pnls)
		n := float64(len(pnls))
		out = append(out, MonthStats{
			Month:    m,
			Trades:   len(pnls),
			Wins:     wins,
			WinRate:  round1(float64(wins) / n * 100),
			TotalPnL: round2(total),
			AvgPnL:   round2(total / n),
			BestPnL:  round2(maxOf(pnls)),
			WorstPnL: round2(minOf(pnls)),
		})
	}
	return out
}

// cumulativeCurve 按入场时间（同时按 symbol）排序后逐笔累加收益。
func cumulativeCurve(completed []Trade) []CumulativePoint {
	ordered := make([]Trade, len(completed))
	copy(ordered, completed)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].EntryTime != ordered[j].EntryTime {
			return ordered[i].EntryTime < ordered[j].EntryTime
		}
		return ordered[i].Symbol < ordered[j].Symbol
	})
	out := make([]CumulativePoint, 0, len(ordered))
	running := decimal.Zero
	for i, t := range ordered {
		running = running.Add(decimal.NewFromFloat(t.PnLPercent))
		out = append(out, CumulativePoint{
			Seq:        i + 1,
			Symbol:     t.Symbol,
			EntryTime:  t.EntryTime,
			PnL:        round2(t.PnLPercent),
			Cumulative: running.Round(2).InexactFloat64(),
		})
	}
	return out
}

// Lines 以多行文本渲染统计，供日志输出。
func (s Summary) Lines() string {
	var b strings.Builder
	fmt.Fprintf(&b, "标的总数: %d（完成 %d / 跳过 %d / 不完整 %d）\n", s.Total, s.Completed, s.Skipped, s.Incomplete)
	if s.Completed == 0 {
		b.WriteString("没有完成的交易")
		return b.String()
	}
	fmt.Fprintf(&b, "胜率: %.2f%% (%d 胜 / %d 负)\n", s.WinRate, s.Wins, s.Losses)
	fmt.Fprintf(&b, "总收益: %.2f%%  平均: %.2f%%  最好: %.2f%%  最差: %.2f%%  标准差: %.2f%%\n",
		s.TotalPnL, s.AvgPnL, s.BestPnL, s.WorstPnL, s.StdDevPnL)
	pf := "N/A"
	if s.ProfitFactor != nil {
		pf = fmt.Sprintf("%.2f", *s.ProfitFactor)
	}
	fmt.Fprintf(&b, "平均盈利: %.2f%%  平均亏损: %.2f%%  Profit Factor: %s  平均持仓: %.1fh\n",
		s.AvgWin, s.AvgLoss, pf, s.AvgHoldingHours)
	for _, r := range s.ByReason {
		fmt.Fprintf(&b, "  %-12s %3d 笔 | 平均 %+6.2f%% | 合计 %+8.2f%% | 持仓 %.1fh | MAE %.2f%%\n",
			r.Reason, r.Count, r.AvgPnL, r.TotalPnL, r.AvgHoldingHours, r.AvgMAE)
	}
	for _, m := range s.ByMonth {
		fmt.Fprintf(&b, "  %s %3d 笔 胜 %d | 合计 %+8.2f%% | 平均 %+6.2f%%\n", m.Month, m.Trades, m.Wins, m.TotalPnL, m.AvgPnL)
	}
	if n := len(s.Cumulative); n > 0 {
		low, high := s.Cumulative[0].Cumulative, s.Cumulative[0].Cumulative
		for _, p := range s.Cumulative {
			low = math.Min(low, p.Cumulative)
			high = math.Max(high, p.Cumulative)
		}
		fmt.Fprintf(&b, "累计收益: 终值 %+.2f%% | 最高 %+.2f%% | 最低 %+.2f%% (%d 笔)\n", s.Cumulative[n-1].Cumulative, high, low, n)
	}
	return strings.TrimRight(b.String(), "\n")
}

func sum(vals []float64) float64 {
	var total float64
	for _, v := range vals {
		total += v
	}
	return total
}

func maxOf(vals []float64) float64 {
	m := math.Inf(-1)
	for _, v := range vals {
		m = math.Max(m, v)
	}
	return m
}

func minOf(vals []float64) float64 {
	m := math.Inf(1)
	for _, v := range vals {
		m = math.Min(m, v)
	}
	return m
}

// sampleStdDev 样本标准差（n-1），不足两个样本返回 0。
func sampleStdDev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	mean := sum(vals) / float64(len(vals))
	var sq float64
	for _, v := range vals {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(vals)-1))
}

func round2(v float64) float64 { return roundPlaces(v, 2) }
func round1(v float64) float64 { return roundPlaces(v, 1) }

func roundPlaces(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
