package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"listingshort/internal/backtest"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordEvents(t *testing.T) {
	m := NewMetrics("")

	m.UpstreamRequest("klines", "ok", 20*time.Millisecond)
	m.UpstreamRequest("klines", "rate_limit", 5*time.Millisecond)
	m.Retry("rate_limit")
	m.FetchDone(backtest.StopLimitReached, 88)
	m.TradeDone(backtest.StatusCompleted, backtest.ExitStopLoss, -10)
	m.TradeDone(backtest.StatusSkipped, backtest.ExitNoData, 0)
	m.RunDone(backtest.RunStatusDone, 3*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("klines", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Retries.WithLabelValues("rate_limit")))
	assert.Equal(t, 88.0, testutil.ToFloat64(m.CandlesFetched))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradesTotal.WithLabelValues("SKIPPED", "NO_DATA")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("done")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TradePnL))
}

func TestMetricsHandlerServesPrivateRegistry(t *testing.T) {
	first := NewMetrics("")
	second := NewMetrics("")
	first.Retry("transient")
	second.Retry("upstream")

	srv := httptest.NewServer(first.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `listingshort_upstream_retries_total{class="transient"} 1`)
	assert.NotContains(t, string(body), `class="upstream"`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.UpstreamRequest("klines", "ok", time.Second)
		m.Retry("transient")
		m.FetchDone(backtest.StopEmptyPage, 0)
		m.TradeDone(backtest.StatusCompleted, backtest.ExitTimeout, 1)
		m.RunDone("done", time.Second)
	})
	assert.Nil(t, m.Registry())
	assert.NotNil(t, m.Handler())
}
