package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"listingshort/internal/market"

	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exchangeInfoBody = `{
  "timezone": "UTC",
  "serverTime": 1700000000000,
  "symbols": [
    {"symbol": "BTCUSDT", "pair": "BTCUSDT", "contractType": "PERPETUAL", "status": "TRADING",
     "baseAsset": "BTC", "quoteAsset": "USDT", "marginAsset": "USDT", "onboardDate": 1569398400000},
    {"symbol": "NEWUSDT", "pair": "NEWUSDT", "contractType": "PERPETUAL", "status": "TRADING",
     "baseAsset": "NEW", "quoteAsset": "USDT", "marginAsset": "USDT", "onboardDate": 1704067200000},
    {"symbol": "OLDUSDT_240628", "pair": "OLDUSDT", "contractType": "CURRENT_QUARTER", "status": "SETTLING",
     "baseAsset": "OLD", "quoteAsset": "USDT", "marginAsset": "USDT", "onboardDate": 1704067200000}
  ]
}`

const klinesBody = `[
  [1704067200000, "100.0", "110.5", "95.25", "101.0", "1234.5", 1704070799999, "0", 42, "0", "0", "0"],
  [1704070800000, "101.0", "102.0", "99.0", "100.5", "99.0", 1704074399999, "0", 7, "0", "0", "0"]
]`

func newTestServer(t *testing.T, klinesStatus int, klines string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(exchangeInfoBody))
	})
	mux.HandleFunc("/fapi/v1/klines", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "NEWUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		assert.Equal(t, "1704067200000", r.URL.Query().Get("startTime"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(klinesStatus)
		_, _ = w.Write([]byte(klines))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func buildSources(t *testing.T, baseURL string) map[string]market.Source {
	t.Helper()
	cfg := Config{RESTBaseURL: baseURL, HTTPTimeout: 2 * time.Second}
	sdk, err := New(cfg)
	require.NoError(t, err)
	rest, err := NewREST(cfg)
	require.NoError(t, err)
	return map[string]market.Source{"sdk": sdk, "rest": rest}
}

func TestSourcesInstruments(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, klinesBody)
	for name, src := range buildSources(t, srv.URL) {
		t.Run(name, func(t *testing.T) {
			got, err := src.Instruments(context.Background())
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, market.Instrument{
				Symbol: "NEWUSDT", BaseAsset: "NEW", QuoteAsset: "USDT",
				ContractType: market.ContractPerpetual, Active: true, OnboardDate: 1704067200000,
			}, got[1])
			assert.False(t, got[2].Active)
			assert.Equal(t, "current_quarter", got[2].ContractType)
		})
	}
}

func TestSourcesKlines(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, klinesBody)
	for name, src := range buildSources(t, srv.URL) {
		t.Run(name, func(t *testing.T) {
			got, err := src.Klines(context.Background(), market.KlineQuery{
				Symbol: "NEWUSDT", Interval: "1h", Start: 1704067200000, Limit: 500,
			})
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, market.Candle{
				Timestamp: 1704067200000, CloseTime: 1704070799999,
				Open: 100, High: 110.5, Low: 95.25, Close: 101, Volume: 1234.5, Trades: 42,
			}, got[0])
			assert.True(t, market.StrictlyIncreasing(got))
		})
	}
}

func TestSourcesErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   market.ErrorClass
	}{
		{"rate limited", http.StatusTooManyRequests, `{"code":-1003,"msg":"Too many requests"}`, market.ClassRateLimit},
		{"bad symbol", http.StatusBadRequest, `{"code":-1121,"msg":"Invalid symbol."}`, market.ClassUpstream},
		{"gateway", http.StatusBadGateway, `<html>bad gateway</html>`, market.ClassTransient},
		{"waf forbidden", http.StatusForbidden, `<html>forbidden</html>`, market.ClassUpstream},
		{"restricted location", http.StatusUnavailableForLegalReasons, `<html>restricted</html>`, market.ClassUpstream},
		{"teapot html", http.StatusTeapot, `<html>banned</html>`, market.ClassRateLimit},
		{"garbage payload", http.StatusOK, `[[1704067200000, "x", "1", "1", "1", "1", 1704070799999, "0", 1, "0", "0", "0"]]`, market.ClassUnknown},
	}
	for _, tc := range cases {
		srv := newTestServer(t, tc.status, tc.body)
		for name, src := range buildSources(t, srv.URL) {
			t.Run(tc.name+"/"+name, func(t *testing.T) {
				_, err := src.Klines(context.Background(), market.KlineQuery{
					Symbol: "NEWUSDT", Interval: "1h", Start: 1704067200000, Limit: 10,
				})
				require.Error(t, err)
				assert.Equal(t, tc.want, market.Classify(err), err.Error())
			})
		}
	}
}

func TestRESTMalformedNumberIsPayloadError(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `[[1704067200000, "abc", "1", "1", "1", "1", 1704070799999]]`)
	src, err := NewREST(Config{RESTBaseURL: srv.URL})
	require.NoError(t, err)
	_, err = src.Klines(context.Background(), market.KlineQuery{Symbol: "NEWUSDT", Interval: "1h", Start: 1704067200000})
	require.Error(t, err)
	assert.ErrorIs(t, err, market.ErrUnexpectedPayload)
}

func TestSourcesInstrumentsHTMLErrorMatchesAcrossClients(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<html>forbidden</html>`))
	}))
	t.Cleanup(srv.Close)

	classes := map[string]market.ErrorClass{}
	for name, src := range buildSources(t, srv.URL) {
		_, err := src.Instruments(context.Background())
		require.Error(t, err, name)
		classes[name] = market.Classify(err)
	}
	assert.Equal(t, map[string]market.ErrorClass{"sdk": market.ClassUpstream, "rest": market.ClassUpstream}, classes)
}

func TestTranslateErrorWithoutStatusKeepsCodeClass(t *testing.T) {
	err := translateError(&common.APIError{Code: codeUnparsableAPIErr, Message: "<html>"}, 0)
	assert.ErrorIs(t, err, market.ErrTransient)

	err = translateError(&common.APIError{Code: codeUnparsableAPIErr}, http.StatusServiceUnavailable)
	assert.ErrorIs(t, err, market.ErrTransient)

	err = translateError(&common.APIError{Code: codeTooManyRequests}, http.StatusForbidden)
	assert.ErrorIs(t, err, market.ErrRateLimited)
}
