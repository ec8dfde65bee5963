package market

import (
	"strings"
	"time"
)

// ContractPerpetual 为永续合约的归一化类型名。
const ContractPerpetual = "perpetual"

// Instrument 是交易所返回的原始合约元数据（已做字段归一化）。
type Instrument struct {
	Symbol       string
	BaseAsset    string
	QuoteAsset   string
	ContractType string // 小写，如 perpetual / current_quarter
	Active       bool
	OnboardDate  int64 // Unix ms；0 表示缺失
}

// Listing 表示一个纳入回测宇宙的上线合约，创建后不可变。
type Listing struct {
	Symbol           string `json:"symbol"`
	BaseAsset        string `json:"base_asset"`
	QuoteAsset       string `json:"quote_asset"`
	ListingTimestamp int64  `json:"listing_timestamp"`
}

// ListedAt 返回上线时间（UTC）。
func (l Listing) ListedAt() time.Time {
	return time.UnixMilli(l.ListingTimestamp).UTC()
}

// NormalizeContractType 把交易所的 PERPETUAL / swap 等写法统一成小写名。
func NormalizeContractType(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "swap", "perp", "perpetual":
		return ContractPerpetual
	default:
		return v
	}
}
