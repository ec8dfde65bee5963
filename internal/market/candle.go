package market

// Candle 为单个周期的 OHLCV，Timestamp 为开盘时间（Unix ms）。
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	CloseTime int64   `json:"close_time,omitempty"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades,omitempty"`
}

// StrictlyIncreasing 检查序列时间戳是否严格递增。
func StrictlyIncreasing(candles []Candle) bool {
	for i := 1; i < len(candles); i++ {
		if candles[i].Timestamp <= candles[i-1].Timestamp {
			return false
		}
	}
	return true
}
