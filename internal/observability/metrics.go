// Package observability 提供回测相关的 Prometheus 指标。
package observability

import (
	"net/http"
	"time"

	"listingshort/internal/backtest"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "listingshort"

// Metrics 汇总全部指标，每个实例持有独立 registry。
type Metrics struct {
	registry *prometheus.Registry

	// 上游请求
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	Retries          *prometheus.CounterVec

	// 拉取
	FetchesTotal   *prometheus.CounterVec
	CandlesFetched prometheus.Counter

	// 交易
	TradesTotal *prometheus.CounterVec
	TradePnL    prometheus.Histogram

	// 回测批次
	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram
	LastRunUnix prometheus.Gauge
}

var _ backtest.Observer = (*Metrics)(nil)

// NewMetrics 创建并注册全部指标，namespace 为空时用默认值。
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		UpstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Upstream market-data requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		UpstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_latency_seconds",
			Help:      "Upstream request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "retries_total",
			Help:      "Page retries by error class",
		}, []string{"class"}),

		FetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "completed_total",
			Help:      "Finished per-instrument fetches by stop reason",
		}, []string{"stop_reason"}),
		CandlesFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "candles_total",
			Help:      "Total candles returned by the fetcher",
		}),

		TradesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "trades_total",
			Help:      "Simulated trades by status and exit reason",
		}, []string{"status", "exit_reason"}),
		TradePnL: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "trade_pnl_percent",
			Help:      "PnL percent of completed trades",
			Buckets:   []float64{-50, -20, -10, -5, 0, 5, 10, 20, 40, 80},
		}),

		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Backtest runs by final status",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of backtest runs",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		LastRunUnix: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix timestamp of the last finished run",
		}),
	}
}

// Registry 返回内部 registry。
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler 返回 /metrics 处理器。
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) UpstreamRequest(endpoint, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	m.UpstreamLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) Retry(class string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(class).Inc()
}

func (m *Metrics) FetchDone(stop backtest.StopReason, candles int) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(string(stop)).Inc()
	m.CandlesFetched.Add(float64(candles))
}

func (m *Metrics) TradeDone(status backtest.TradeStatus, reason backtest.ExitReason, pnlPercent float64) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(string(status), string(reason)).Inc()
	if status == backtest.StatusCompleted {
		m.TradePnL.Observe(pnlPercent)
	}
}

func (m *Metrics) RunDone(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	m.LastRunUnix.SetToCurrentTime()
}
