package binance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"listingshort/internal/market"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
)

// RESTSource 直接调用 /fapi/v1 REST 接口，不依赖 SDK；
// 适用于自建代理/镜像站点（路径兼容 Binance）。
type RESTSource struct {
	baseURL string
	client  *http.Client
}

func NewREST(cfg Config) (*RESTSource, error) {
	final := cfg.withDefaults()
	httpClient, err := newHTTPClient(final)
	if err != nil {
		return nil, err
	}
	return &RESTSource{baseURL: final.RESTBaseURL, client: httpClient}, nil
}

func (r *RESTSource) Name() string { return "binance-rest" }

func (r *RESTSource) Instruments(ctx context.Context) ([]market.Instrument, error) {
	body, err := r.get(ctx, "/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return nil, err
	}
	symbols := gjson.GetBytes(body, "symbols")
	if !symbols.IsArray() {
		return nil, fmt.Errorf("%w: exchangeInfo 缺少 symbols", market.ErrUnexpectedPayload)
	}
	out := make([]market.Instrument, 0, len(symbols.Array()))
	symbols.ForEach(func(_, item gjson.Result) bool {
		out = append(out, market.Instrument{
			Symbol:       strings.ToUpper(item.Get("symbol").String()),
			BaseAsset:    strings.ToUpper(item.Get("baseAsset").String()),
			QuoteAsset:   strings.ToUpper(item.Get("quoteAsset").String()),
			ContractType: market.NormalizeContractType(item.Get("contractType").String()),
			Active:       strings.EqualFold(item.Get("status").String(), statusTrading),
			OnboardDate:  cast.ToInt64(item.Get("onboardDate").Value()),
		})
		return true
	})
	return out, nil
}

func (r *RESTSource) Klines(ctx context.Context, q market.KlineQuery) ([]market.Candle, error) {
	if q.Symbol == "" || q.Interval == "" {
		return nil, fmt.Errorf("symbol/interval 不能为空")
	}
	limit := q.Limit
	if limit <= 0 || limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(q.Symbol))
	params.Set("interval", strings.ToLower(q.Interval))
	params.Set("limit", strconv.Itoa(limit))
	if q.Start > 0 {
		params.Set("startTime", strconv.FormatInt(q.Start, 10))
	}
	if q.End > 0 {
		params.Set("endTime", strconv.FormatInt(q.End, 10))
	}
	body, err := r.get(ctx, "/fapi/v1/klines", params)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: klines 响应不是合法 JSON", market.ErrUnexpectedPayload)
	}
	rows := gjson.ParseBytes(body)
	if !rows.IsArray() {
		return nil, fmt.Errorf("%w: klines 响应不是数组", market.ErrUnexpectedPayload)
	}
	out := make([]market.Candle, 0, len(rows.Array()))
	for i, row := range rows.Array() {
		c, err := parseKlineRow(row)
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %w", market.ErrUnexpectedPayload, q.Symbol, i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// parseKlineRow 解析 [openTime, "o", "h", "l", "c", "v", closeTime, "qv", trades, ...]。
func parseKlineRow(row gjson.Result) (market.Candle, error) {
	cols := row.Array()
	if len(cols) < 7 {
		return market.Candle{}, fmt.Errorf("expected >=7 columns, got %d", len(cols))
	}
	openTime, err := cast.ToInt64E(cols[0].Value())
	if err != nil {
		return market.Candle{}, err
	}
	var vals [5]float64
	for i := range vals {
		v, err := cast.ToFloat64E(cols[i+1].Value())
		if err != nil {
			return market.Candle{}, err
		}
		vals[i] = v
	}
	c := market.Candle{
		Timestamp: openTime,
		CloseTime: cast.ToInt64(cols[6].Value()),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}
	if len(cols) > 8 {
		c.Trades = cast.ToInt64(cols[8].Value())
	}
	return c, nil
}

func (r *RESTSource) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u, err := url.Parse(r.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, translateError(err, 0)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", market.ErrTransient, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		if code := gjson.GetBytes(body, "code"); code.Exists() && resp.StatusCode < http.StatusInternalServerError {
			if cls := classifyCode(code.Int()); cls == market.ErrRateLimited {
				return nil, fmt.Errorf("%w: %s", cls, gjson.GetBytes(body, "msg").String())
			}
		}
		return nil, statusError(resp.StatusCode, body)
	}
	return body, nil
}
