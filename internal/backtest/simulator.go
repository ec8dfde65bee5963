package backtest

import (
	"fmt"
	"math"
	"strings"

	"listingshort/internal/market"

	"github.com/shopspring/decimal"
)

// TieBreak 同一根 K 线同时触及止损与止盈时的判定顺序。
type TieBreak string

const (
	TieBreakStopLossFirst   TieBreak = "stop_loss_first"
	TieBreakTakeProfitFirst TieBreak = "take_profit_first"
)

// ParseTieBreak 解析配置值，空串取默认 stop_loss_first。
func ParseTieBreak(s string) (TieBreak, error) {
	switch TieBreak(strings.ToLower(strings.TrimSpace(s))) {
	case "", TieBreakStopLossFirst:
		return TieBreakStopLossFirst, nil
	case TieBreakTakeProfitFirst:
		return TieBreakTakeProfitFirst, nil
	default:
		return "", fmt.Errorf("未知 tie_break: %s", s)
	}
}

// SimulatorConfig 模拟参数，构造后不可变。
type SimulatorConfig struct {
	EntryOffset        int      `json:"entry_offset"`
	StopLossFraction   float64  `json:"stop_loss_fraction"`
	TakeProfitFraction float64  `json:"take_profit_fraction"`
	TimeoutCandles     int      `json:"timeout_candles"`
	MinLookahead       int      `json:"min_lookahead"`
	TieBreak           TieBreak `json:"tie_break"`
}

// DefaultSimulatorConfig 上线后第 6 根收盘做空，10% 止损，40% 止盈，72 根超时。
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		EntryOffset:        6,
		StopLossFraction:   0.10,
		TakeProfitFraction: 0.40,
		TimeoutCandles:     72,
		MinLookahead:       10,
		TieBreak:           TieBreakStopLossFirst,
	}
}

func (c SimulatorConfig) validate() error {
	switch {
	case c.EntryOffset < 0:
		return fmt.Errorf("entry_offset 不能为负: %d", c.EntryOffset)
	case c.StopLossFraction <= 0:
		return fmt.Errorf("stop_loss 需大于 0: %v", c.StopLossFraction)
	case c.TakeProfitFraction <= 0 || c.TakeProfitFraction >= 1:
		return fmt.Errorf("take_profit 需在 (0,1) 区间: %v", c.TakeProfitFraction)
	case c.TimeoutCandles <= 0:
		return fmt.Errorf("timeout_candles 需大于 0: %d", c.TimeoutCandles)
	case c.MinLookahead < 1:
		return fmt.Errorf("min_lookahead 需 >= 1: %d", c.MinLookahead)
	}
	_, err := ParseTieBreak(string(c.TieBreak))
	return err
}

// priceLevels 单笔交易的入场价与止损/止盈价。
type priceLevels struct {
	entry      float64
	stopLoss   float64
	takeProfit float64
}

// exitRule 为一条平仓判定：命中时返回成交价。
type exitRule struct {
	reason ExitReason
	check  func(c market.Candle, lv priceLevels) (float64, bool)
}

var (
	stopLossRule = exitRule{
		reason: ExitStopLoss,
		check: func(c market.Candle, lv priceLevels) (float64, bool) {
			return lv.stopLoss, c.High >= lv.stopLoss
		},
	}
	takeProfitRule = exitRule{
		reason: ExitTakeProfit,
		check: func(c market.Candle, lv priceLevels) (float64, bool) {
			return lv.takeProfit, c.Low <= lv.takeProfit
		},
	}
)

func exitRules(tb TieBreak) []exitRule {
	if tb == TieBreakTakeProfitFirst {
		return []exitRule{takeProfitRule, stopLossRule}
	}
	return []exitRule{stopLossRule, takeProfitRule}
}

// Simulator 把一段 K 线回放成一笔做空交易。无内部状态，可并发调用。
type Simulator struct {
	cfg   SimulatorConfig
	rules []exitRule
}

func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	tb, _ := ParseTieBreak(string(cfg.TieBreak))
	cfg.TieBreak = tb
	return &Simulator{cfg: cfg, rules: exitRules(tb)}, nil
}

// Config 返回模拟参数副本。
func (s *Simulator) Config() SimulatorConfig {
	return s.cfg
}

// Simulate 对单个 listing 回放做空：第 EntryOffset 根收盘入场，
// 之后逐根先更新 MAE/MFE，再按规则顺序判定止损/止盈，均未命中则在最后一根评估 K 线收盘超时平仓。
func (s *Simulator) Simulate(l market.Listing, candles []market.Candle) Trade {
	cfg := s.cfg
	need := cfg.EntryOffset + cfg.MinLookahead
	if len(candles) < need {
		t := skippedTrade(l, len(candles), fmt.Sprintf("仅 %d 根 K 线，至少需要 %d 根", len(candles), need))
		if len(candles) > 0 {
			t.ListingTime = candles[0].Timestamp
		}
		return t
	}
	entryCandle := candles[cfg.EntryOffset]
	if entryCandle.Close <= 0 {
		t := skippedTrade(l, len(candles), fmt.Sprintf("入场价无效: %v", entryCandle.Close))
		t.ListingTime = candles[0].Timestamp
		return t
	}
	last := cfg.EntryOffset + cfg.TimeoutCandles
	if last > len(candles)-1 {
		last = len(candles) - 1
	}
	if last <= cfg.EntryOffset {
		t := incompleteTrade(l, len(candles), "入场后没有可评估的 K 线")
		t.ListingTime = candles[0].Timestamp
		return t
	}

	lv := levelsFor(entryCandle.Close, cfg.StopLossFraction, cfg.TakeProfitFraction)
	trade := Trade{
		Symbol:          l.Symbol,
		BaseAsset:       l.BaseAsset,
		ListingTime:     candles[0].Timestamp,
		EntryTime:       entryCandle.Timestamp,
		EntryPrice:      lv.entry,
		StopLossPrice:   lv.stopLoss,
		TakeProfitPrice: lv.takeProfit,
		Candles:         len(candles),
	}

	var mae, mfe float64
	for i := cfg.EntryOffset + 1; i <= last; i++ {
		c := candles[i]
		mae = math.Max(mae, (c.High-lv.entry)/lv.entry*100)
		mfe = math.Max(mfe, (lv.entry-c.Low)/lv.entry*100)
		for _, rule := range s.rules {
			if price, hit := rule.check(c, lv); hit {
				return closeTrade(trade, c.Timestamp, price, rule.reason, mae, mfe)
			}
		}
	}
	final := candles[last]
	return closeTrade(trade, final.Timestamp, final.Close, ExitTimeout, mae, mfe)
}

func levelsFor(entry, stopLoss, takeProfit float64) priceLevels {
	e := decimal.NewFromFloat(entry)
	one := decimal.NewFromInt(1)
	return priceLevels{
		entry:      entry,
		stopLoss:   e.Mul(one.Add(decimal.NewFromFloat(stopLoss))).InexactFloat64(),
		takeProfit: e.Mul(one.Sub(decimal.NewFromFloat(takeProfit))).InexactFloat64(),
	}
}

func closeTrade(t Trade, exitTime int64, exitPrice float64, reason ExitReason, mae, mfe float64) Trade {
	t.ExitTime = exitTime
	t.ExitPrice = exitPrice
	t.ExitReason = reason
	t.PnLPercent = shortPnLPercent(t.EntryPrice, exitPrice)
	t.HoldingHours = Hours(exitTime - t.EntryTime)
	t.MaxAdverseExcursionPercent = mae
	t.MaxFavorableExcursionPercent = mfe
	t.Status = StatusCompleted
	return t
}

// shortPnLPercent = (entry-exit)/entry*100。
func shortPnLPercent(entry, exit float64) float64 {
	e := decimal.NewFromFloat(entry)
	if e.IsZero() {
		return 0
	}
	return e.Sub(decimal.NewFromFloat(exit)).Div(e).Mul(decimal.NewFromInt(100)).InexactFloat64()
}
