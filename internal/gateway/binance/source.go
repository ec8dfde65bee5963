package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"listingshort/internal/market"

	"github.com/adshao/go-binance/v2/futures"
)

const (
	maxKlineLimit = 1500
	statusTrading = "TRADING"
)

// Source 基于 go-binance SDK 实现 market.Source（USDT-M 合约）。
type Source struct {
	cfg    Config
	client *futures.Client
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient, err := newHTTPClient(final)
	if err != nil {
		return nil, err
	}
	client.HTTPClient = httpClient
	return &Source{
		cfg:    final,
		client: client,
	}, nil
}

func newHTTPClient(cfg Config) (*http.Client, error) {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	var base http.RoundTripper = http.DefaultTransport
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		base = transport
	}
	httpClient.Transport = statusTransport{base: base}
	return httpClient, nil
}

type statusRecorderKey struct{}

// statusRecorder 保存 SDK 调用最近一次响应的状态码。
type statusRecorder struct {
	status atomic.Int64
}

func (r *statusRecorder) get() int {
	if r == nil {
		return 0
	}
	return int(r.status.Load())
}

func withStatusRecorder(ctx context.Context) (context.Context, *statusRecorder) {
	rec := &statusRecorder{}
	return context.WithValue(ctx, statusRecorderKey{}, rec), rec
}

// statusTransport 把响应状态码写入请求 ctx 中的 statusRecorder。
type statusTransport struct {
	base http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if resp != nil {
		if rec, ok := req.Context().Value(statusRecorderKey{}).(*statusRecorder); ok {
			rec.status.Store(int64(resp.StatusCode))
		}
	}
	return resp, err
}

func (s *Source) Name() string { return "binance-sdk" }

// Instruments 读取 exchangeInfo 中的全部合约元数据。
func (s *Source) Instruments(ctx context.Context) ([]market.Instrument, error) {
	ctx, rec := withStatusRecorder(ctx)
	info, err := s.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, translateError(err, rec.get())
	}
	if info == nil {
		return nil, fmt.Errorf("%w: empty exchangeInfo", market.ErrUnexpectedPayload)
	}
	out := make([]market.Instrument, 0, len(info.Symbols))
	for _, sym := range info.Symbols {
		out = append(out, market.Instrument{
			Symbol:       strings.ToUpper(strings.TrimSpace(sym.Symbol)),
			BaseAsset:    strings.ToUpper(strings.TrimSpace(sym.BaseAsset)),
			QuoteAsset:   strings.ToUpper(strings.TrimSpace(sym.QuoteAsset)),
			ContractType: market.NormalizeContractType(string(sym.ContractType)),
			Active:       strings.EqualFold(sym.Status, statusTrading),
			OnboardDate:  sym.OnboardDate,
		})
	}
	return out, nil
}

// Klines 请求单页 K 线；startTime 以后（含）的数据按时间升序返回。
func (s *Source) Klines(ctx context.Context, q market.KlineQuery) ([]market.Candle, error) {
	symbol := strings.ToUpper(strings.TrimSpace(q.Symbol))
	interval := strings.ToLower(strings.TrimSpace(q.Interval))
	if symbol == "" || interval == "" {
		return nil, fmt.Errorf("symbol/interval 不能为空")
	}
	limit := q.Limit
	if limit <= 0 || limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	svc := s.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit)
	if q.Start > 0 {
		svc = svc.StartTime(q.Start)
	}
	if q.End > 0 {
		svc = svc.EndTime(q.End)
	}
	ctx, rec := withStatusRecorder(ctx)
	kls, err := svc.Do(ctx)
	if err != nil {
		return nil, translateError(err, rec.get())
	}
	out := make([]market.Candle, 0, len(kls))
	for i, kl := range kls {
		if kl == nil {
			continue
		}
		c, err := convertKline(kl)
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %w", market.ErrUnexpectedPayload, symbol, i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func convertKline(kl *futures.Kline) (market.Candle, error) {
	fields := [...]string{kl.Open, kl.High, kl.Low, kl.Close, kl.Volume}
	var vals [5]float64
	for i, raw := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return market.Candle{}, err
		}
		vals[i] = v
	}
	return market.Candle{
		Timestamp: kl.OpenTime,
		CloseTime: kl.CloseTime,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
		Trades:    kl.TradeNum,
	}, nil
}
