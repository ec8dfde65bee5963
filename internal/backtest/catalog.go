package backtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"listingshort/internal/logger"
	"listingshort/internal/market"
)

// CatalogConfig 标的池过滤条件。
type CatalogConfig struct {
	QuoteAsset   string    `json:"quote_asset"`
	ContractType string    `json:"contract_type"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end,omitempty"`
	Symbols      []string  `json:"symbols,omitempty"`
	Exclude      []string  `json:"exclude,omitempty"`
	Limit        int       `json:"limit,omitempty"`
}

// Catalog 从交易所合约列表筛出回测标的。
type Catalog struct {
	src  market.InstrumentSource
	gate *Gate
	cfg  CatalogConfig

	allow map[string]struct{}
	deny  map[string]struct{}
}

func NewCatalog(src market.InstrumentSource, gate *Gate, cfg CatalogConfig) *Catalog {
	return &Catalog{
		src:   src,
		gate:  gate,
		cfg:   cfg,
		allow: symbolSet(cfg.Symbols),
		deny:  symbolSet(cfg.Exclude),
	}
}

// Listings 返回按上线时间升序（同一时间按 symbol）的 listing 列表。
// 上游失败包装为 market.ErrCatalogUnavailable，对整次回测是致命错误。
func (c *Catalog) Listings(ctx context.Context) ([]market.Listing, error) {
	if c.src == nil {
		return nil, fmt.Errorf("%w: 未配置数据源", market.ErrCatalogUnavailable)
	}
	if err := c.gate.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", market.ErrCatalogUnavailable, err)
	}
	instruments, err := c.src.Instruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", market.ErrCatalogUnavailable, err)
	}
	out := c.filter(instruments)
	logger.Infof("[catalog] 合约 %d 个，符合条件的 listing %d 个（%s %s 起始 %s）",
		len(instruments), len(out), c.cfg.QuoteAsset, c.cfg.ContractType, c.cfg.Start.Format("2006-01-02"))
	return out, nil
}

func (c *Catalog) filter(instruments []market.Instrument) []market.Listing {
	startMs := int64(0)
	if !c.cfg.Start.IsZero() {
		startMs = c.cfg.Start.UnixMilli()
	}
	endMs := int64(0)
	if !c.cfg.End.IsZero() {
		endMs = c.cfg.End.UnixMilli()
	}
	quote := strings.ToUpper(strings.TrimSpace(c.cfg.QuoteAsset))
	contract := market.NormalizeContractType(c.cfg.ContractType)

	seen := make(map[string]struct{}, len(instruments))
	out := make([]market.Listing, 0, len(instruments))
	for _, inst := range instruments {
		sym := strings.ToUpper(strings.TrimSpace(inst.Symbol))
		switch {
		case sym == "":
			continue
		case !inst.Active:
			continue
		case inst.OnboardDate <= 0:
			continue
		case quote != "" && !strings.EqualFold(inst.QuoteAsset, quote):
			continue
		case contract != "" && inst.ContractType != contract:
			continue
		case inst.OnboardDate < startMs:
			continue
		case endMs > 0 && inst.OnboardDate > endMs:
			continue
		}
		if len(c.allow) > 0 {
			if _, ok := c.allow[sym]; !ok {
				continue
			}
		}
		if _, ok := c.deny[sym]; ok {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, market.Listing{
			Symbol:           sym,
			BaseAsset:        strings.ToUpper(inst.BaseAsset),
			QuoteAsset:       strings.ToUpper(inst.QuoteAsset),
			ListingTimestamp: inst.OnboardDate,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ListingTimestamp == out[j].ListingTimestamp {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].ListingTimestamp < out[j].ListingTimestamp
	})
	if c.cfg.Limit > 0 && len(out) > c.cfg.Limit {
		out = out[:c.cfg.Limit]
	}
	return out
}

func symbolSet(list []string) map[string]struct{} {
	if len(list) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(list))
	for _, s := range list {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}
